package book

import (
	"strings"
)

var (
	spanishStopWords = map[string]struct{}{
		"y": {}, "el": {}, "la": {}, "de": {}, "del": {}, "los": {}, "las": {}, "un": {},
		"una": {}, "con": {}, "en": {}, "para": {}, "por": {}, "sin": {}, "sobre": {}, "entre": {},
	}
	englishStopWords = map[string]struct{}{
		"and": {}, "the": {}, "of": {}, "in": {}, "to": {}, "for": {}, "with": {}, "on": {},
		"at": {}, "by": {}, "from": {}, "about": {}, "into": {}, "through": {},
	}
)

const spanishLetters = "áéíóúñüÁÉÍÓÚÑÜ"

// BuildPreciseQuery turns free text into a search expression. Long or
// conjunctive queries become an exact phrase, two-word queries require both
// terms, anything else passes through trimmed.
func BuildPreciseQuery(raw string) string {
	q := strings.TrimSpace(raw)
	tokens := strings.Fields(q)

	for _, t := range tokens {
		switch strings.ToLower(t) {
		case "y", "and":
			return `"` + q + `"`
		}
	}

	switch {
	case len(tokens) >= 3:
		return `"` + q + `"`
	case len(tokens) == 2:
		return "+" + tokens[0] + " +" + tokens[1]
	default:
		return q
	}
}

// DetectLanguage guesses "es" or "en" from stop words, falling back to
// Spanish diacritics.
func DetectLanguage(query string) string {
	var es, en int
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if _, ok := spanishStopWords[t]; ok {
			es++
		}
		if _, ok := englishStopWords[t]; ok {
			en++
		}
	}

	switch {
	case es > en:
		return "es"
	case en > es:
		return "en"
	case strings.ContainsAny(query, spanishLetters):
		return "es"
	default:
		return "en"
	}
}

// SearchRequest is the raw shape of an inbound search.
type SearchRequest struct {
	Q      string
	Title  string
	Author string
	Lang   string
	Limit  int
}

const (
	DefaultLimit = 10
	MaxLimit     = 20
	minQueryLen  = 2
)

// Normalize combines title and author when given, otherwise uses Q, and
// clamps the limit. It returns the query to search for.
func (r *SearchRequest) Normalize() (string, error) {
	var parts []string
	if t := strings.TrimSpace(r.Title); t != "" {
		parts = append(parts, t)
	}
	if a := strings.TrimSpace(r.Author); a != "" {
		parts = append(parts, a)
	}

	q := strings.Join(parts, " ")
	if q == "" {
		q = strings.TrimSpace(r.Q)
	}
	if q == "" {
		return "", ErrEmptyQuery
	}
	if len([]rune(q)) < minQueryLen {
		return "", ErrQueryTooShort
	}

	r.Lang = strings.TrimSpace(r.Lang)
	r.Limit = clampLimit(r.Limit)
	return q, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
