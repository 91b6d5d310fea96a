package book

import (
	"strings"

	"booklookup/internal/platform/googlebooks"
)

// FromVolume maps a provider volume to a storable row. Text used for matching
// is lower-cased and missing title or authors get placeholders.
func FromVolume(v googlebooks.Volume) Book {
	info := v.VolumeInfo

	title := strings.ToLower(strings.TrimSpace(info.Title))
	if title == "" {
		title = placeholderTitle
	}

	authors := make([]string, 0, len(info.Authors))
	for _, a := range info.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, strings.ToLower(a))
		}
	}
	if len(authors) == 0 {
		authors = []string{placeholderAuthor}
	}

	b := Book{
		ExternalID:    v.ID,
		Title:         title,
		Authors:       authors,
		Description:   optional(strings.ToLower(info.Description)),
		ISBN:          optional(isbnOf(info.IndustryIdentifiers)),
		Publisher:     optional(info.Publisher),
		PublishedDate: optional(info.PublishedDate),
		PageCount:     info.PageCount,
		Categories:    append([]string{}, info.Categories...),
		Language:      info.Language,
	}
	if info.ImageLinks != nil {
		if info.ImageLinks.Thumbnail != "" {
			b.ImageURL = optional(info.ImageLinks.Thumbnail)
		} else {
			b.ImageURL = optional(info.ImageLinks.SmallThumbnail)
		}
	}
	if b.Language == "" {
		b.Language = DefaultLanguage
	}
	return b
}

func isbnOf(ids []googlebooks.IndustryIdentifier) string {
	for _, want := range []string{"ISBN_13", "ISBN_10"} {
		for _, id := range ids {
			if id.Type == want {
				return id.Identifier
			}
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
