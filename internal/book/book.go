package book

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a book is not found in the store or at the provider.
	ErrNotFound = errors.New("book not found")
	// ErrServiceUnavailable is returned when neither the normal path nor the
	// store-only fallback could produce an answer.
	ErrServiceUnavailable = errors.New("book lookup unavailable")

	ErrEmptyQuery    = errors.New("query is required")
	ErrQueryTooShort = errors.New("query must be at least 2 characters")
)

const (
	DefaultLanguage = "es"

	placeholderTitle  = "título no disponible"
	placeholderAuthor = "autor desconocido"
)

// Book is a persisted record. Title, authors and description are stored
// lower-case so they can be matched directly.
type Book struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id,omitempty"`
	Title         string    `json:"title"`
	Authors       []string  `json:"authors"`
	Description   *string   `json:"description,omitempty"`
	ISBN          *string   `json:"isbn,omitempty"`
	Publisher     *string   `json:"publisher,omitempty"`
	PublishedDate *string   `json:"published_date,omitempty"`
	PageCount     *int      `json:"page_count,omitempty"`
	Categories    []string  `json:"categories"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Language      string    `json:"language"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchResult is the display form handed to callers.
type SearchResult struct {
	ID            string   `json:"id"`
	ExternalID    string   `json:"external_id,omitempty"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   *string  `json:"description,omitempty"`
	ISBN          *string  `json:"isbn,omitempty"`
	Publisher     *string  `json:"publisher,omitempty"`
	PublishedDate *string  `json:"published_date,omitempty"`
	PageCount     *int     `json:"page_count,omitempty"`
	Categories    []string `json:"categories"`
	ImageURL      *string  `json:"image_url,omitempty"`
	Language      string   `json:"language"`
	IsFromCache   bool     `json:"is_from_cache"`
}

// ToResult capitalizes text fields for display. fromStore marks records that
// were already in the store before this request.
func (b Book) ToResult(fromStore bool) SearchResult {
	authors := make([]string, len(b.Authors))
	for i, a := range b.Authors {
		authors[i] = capitalize(a)
	}
	var desc *string
	if b.Description != nil {
		d := capitalize(*b.Description)
		desc = &d
	}
	return SearchResult{
		ID:            b.ID,
		ExternalID:    b.ExternalID,
		Title:         capitalize(b.Title),
		Authors:       authors,
		Description:   desc,
		ISBN:          b.ISBN,
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		PageCount:     b.PageCount,
		Categories:    append([]string(nil), b.Categories...),
		ImageURL:      b.ImageURL,
		Language:      b.Language,
		IsFromCache:   fromStore,
	}
}

// capitalize upper-cases the first letter of every space separated word and
// lower-cases the rest.
func capitalize(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

func (r SearchResult) clone() SearchResult {
	r.Authors = append([]string(nil), r.Authors...)
	r.Categories = append([]string(nil), r.Categories...)
	return r
}

func cloneResults(in []SearchResult) []SearchResult {
	if in == nil {
		return nil
	}
	out := make([]SearchResult, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
