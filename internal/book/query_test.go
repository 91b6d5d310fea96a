package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPreciseQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Harry Potter y la Piedra", `"Harry Potter y la Piedra"`},
		{"  Tolkien  ", "Tolkien"},
		{"Jane Austen", "+Jane +Austen"},
		{"pride and prejudice", `"pride and prejudice"`},
		{"salt AND pepper", `"salt AND pepper"`},
		{"el señor de los anillos", `"el señor de los anillos"`},
		{"the lord rings", `"the lord rings"`},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPreciseQuery(tt.in))
		})
	}
}

func TestBuildPreciseQuery_ConjunctionMustBeStandalone(t *testing.T) {
	// "yoga" contains "y" but is not the conjunction
	assert.Equal(t, "+yoga +basics", BuildPreciseQuery("yoga basics"))
	assert.Equal(t, "+Sandy +Android", BuildPreciseQuery("Sandy Android"))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"spanish stop words", "cien años de soledad", "es"},
		{"english stop words", "the lord of the rings", "en"},
		{"more spanish than english", "la casa de los espíritus", "es"},
		{"tie falls back to diacritics", "canción", "es"},
		{"tie without diacritics", "dune", "en"},
		{"tie with one of each", "de the", "en"},
		{"tie with one of each and accent", "de the niño", "es"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.query))
		})
	}
}

func TestSearchRequest_Normalize(t *testing.T) {
	t.Run("title and author are combined", func(t *testing.T) {
		r := SearchRequest{Q: "ignored", Title: " Emma ", Author: "Austen", Limit: 50}
		q, err := r.Normalize()
		assert.NoError(t, err)
		assert.Equal(t, "Emma Austen", q)
		assert.Equal(t, MaxLimit, r.Limit)
	})

	t.Run("falls back to q", func(t *testing.T) {
		r := SearchRequest{Q: "  dune "}
		q, err := r.Normalize()
		assert.NoError(t, err)
		assert.Equal(t, "dune", q)
		assert.Equal(t, DefaultLimit, r.Limit)
	})

	t.Run("empty", func(t *testing.T) {
		r := SearchRequest{Q: "   "}
		_, err := r.Normalize()
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("too short", func(t *testing.T) {
		r := SearchRequest{Q: "a"}
		_, err := r.Normalize()
		assert.ErrorIs(t, err, ErrQueryTooShort)
	})
}
