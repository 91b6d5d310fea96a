package book

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"booklookup/internal/platform/googlebooks"
)

const longQueryLen = 15

// isLongQuery counts characters, not bytes, so accented queries are not
// pushed onto the fuzzy path early.
func isLongQuery(query string) bool {
	return utf8.RuneCountInString(query) > longQueryLen
}

// FilterExternalCandidates drops provider volumes that do not look related to
// query and orders the rest: preferred language first, then titles that
// contain the whole query. Provider order is kept for ties.
func FilterExternalCandidates(logger *slog.Logger, vols []googlebooks.Volume, query, lang string) []googlebooks.Volume {
	q := strings.ToLower(query)
	words := wordsLongerThan(q, 1)

	out := make([]googlebooks.Volume, 0, len(vols))
	for _, v := range vols {
		title := strings.ToLower(v.VolumeInfo.Title)
		authors := strings.ToLower(strings.Join(v.VolumeInfo.Authors, " "))

		keep, reason := externalMatch(q, words, title, authors, isLongQuery(query))
		logger.Debug("relevance check", "source", "provider", "id", v.ID, "title", v.VolumeInfo.Title, "keep", keep, "reason", reason)
		if keep {
			out = append(out, v)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if lang != "" {
			li, lj := volumeLanguage(out[i]) == lang, volumeLanguage(out[j]) == lang
			if li != lj {
				return li
			}
		}
		ti := strings.Contains(strings.ToLower(out[i].VolumeInfo.Title), q)
		tj := strings.Contains(strings.ToLower(out[j].VolumeInfo.Title), q)
		return ti && !tj
	})
	return out
}

func externalMatch(q string, words []string, title, authors string, long bool) (bool, string) {
	switch {
	case strings.Contains(title, q):
		return true, "query in title"
	case strings.Contains(authors, q):
		return true, "query in authors"
	}

	if long {
		if fuzzyScore(words, title, authors) >= 0.4 {
			return true, "fuzzy score"
		}
		return false, "fuzzy score too low"
	}

	for _, w := range words {
		if strings.Contains(title, w) || strings.Contains(authors, w) {
			return true, "partial match"
		}
	}
	return false, "no match"
}

// fuzzyScore is the share of query words that overlap (substring either way)
// with any word of title or authors.
func fuzzyScore(words []string, title, authors string) float64 {
	if len(words) == 0 {
		return 0
	}
	bookWords := append(strings.Fields(title), strings.Fields(authors)...)
	matched := 0
	for _, w := range words {
		for _, bw := range bookWords {
			if strings.Contains(bw, w) || strings.Contains(w, bw) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(words))
}

// FilterStoredCandidates applies the same relevance policy to stored rows.
// Rows stay in store order.
func FilterStoredCandidates(logger *slog.Logger, rows []Book, query string) []Book {
	q := strings.ToLower(query)
	long := isLongQuery(query)

	out := make([]Book, 0, len(rows))
	for _, b := range rows {
		title := strings.ToLower(b.Title)
		authors := strings.ToLower(strings.Join(b.Authors, " "))

		keep, reason := storedMatch(q, title, authors, long)
		logger.Debug("relevance check", "source", "store", "external_id", b.ExternalID, "title", b.Title, "keep", keep, "reason", reason)
		if keep {
			out = append(out, b)
		}
	}
	return out
}

func storedMatch(q, title, authors string, long bool) (bool, string) {
	switch {
	case strings.Contains(title, q):
		return true, "query in title"
	case strings.Contains(authors, q):
		return true, "query in authors"
	}

	if long {
		if fuzzyScore(wordsLongerThan(q, 1), title, authors) >= 0.4 {
			return true, "fuzzy score"
		}
		return false, "fuzzy score too low"
	}

	words := wordsLongerThan(q, 2)
	matched := 0
	for _, w := range words {
		if strings.Contains(title, w) || strings.Contains(authors, w) {
			matched++
		}
	}
	need := int(math.Ceil(float64(len(words)) * 0.6))
	if matched >= need {
		return true, "word overlap"
	}
	return false, "word overlap too low"
}

// SortByLanguagePreference moves results in lang to the front. It is a no-op
// when lang is empty.
func SortByLanguagePreference(results []SearchResult, lang string) {
	if lang == "" {
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		return resultLanguage(results[i]) == lang && resultLanguage(results[j]) != lang
	})
}

func wordsLongerThan(s string, n int) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if len([]rune(w)) > n {
			out = append(out, w)
		}
	}
	return out
}

func volumeLanguage(v googlebooks.Volume) string {
	if v.VolumeInfo.Language == "" {
		return "en"
	}
	return v.VolumeInfo.Language
}

func resultLanguage(r SearchResult) string {
	if r.Language == "" {
		return "en"
	}
	return r.Language
}
