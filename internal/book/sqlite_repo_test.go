package book

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), ":memory:", discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	// strictly increasing timestamps keep "newest first" deterministic
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return repo
}

func strPtr(s string) *string { return &s }

func TestSQLiteRepo_BatchInsertSkipDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	n, err := repo.BatchInsertSkipDuplicates(ctx, []Book{
		{ExternalID: "a", Title: "dune", Authors: []string{"frank herbert"}, Language: "en"},
		{ExternalID: "b", Title: "dune messiah", Authors: []string{"frank herbert"}, Language: "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.BatchInsertSkipDuplicates(ctx, []Book{
		{ExternalID: "b", Title: "other title", Language: "en"},
		{ExternalID: "c", Title: "children of dune", Language: "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := repo.FindByExternalID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "dune messiah", b.Title, "duplicates are skipped, not updated")

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestSQLiteRepo_UpsertByExternalID(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	pages := 412
	first, err := repo.UpsertByExternalID(ctx, &Book{
		ExternalID:  "a",
		Title:       "dune",
		Authors:     []string{"frank herbert"},
		Description: strPtr("desert planet"),
		PageCount:   &pages,
		Categories:  []string{"fiction"},
		Language:    "en",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, []string{"frank herbert"}, first.Authors)
	assert.Equal(t, []string{"fiction"}, first.Categories)
	require.NotNil(t, first.PageCount)
	assert.Equal(t, 412, *first.PageCount)
	assert.Nil(t, first.ISBN)

	second, err := repo.UpsertByExternalID(ctx, &Book{ExternalID: "a", Title: "dune (revised)", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "dune (revised)", second.Title)
	assert.Empty(t, second.Authors)

	_, err = repo.UpsertByExternalID(ctx, &Book{Title: "no id"})
	assert.Error(t, err)
}

func TestSQLiteRepo_FindByExternalID(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.FindByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRepo_FindByExternalIDs(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, err := repo.BatchInsertSkipDuplicates(ctx, []Book{
		{ExternalID: "a", Title: "one", Language: "es"},
		{ExternalID: "b", Title: "two", Language: "es"},
		{ExternalID: "c", Title: "three", Language: "es"},
	})
	require.NoError(t, err)

	got, err := repo.FindByExternalIDs(ctx, []string{"c", "a", "zzz"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.FindByExternalIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRepo_FindByFullText(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, err := repo.BatchInsertSkipDuplicates(ctx, []Book{
		{ExternalID: "old", Title: "dune", Authors: []string{"frank herbert"}, Language: "en"},
		{ExternalID: "hp", Title: "harry potter y la piedra filosofal", Authors: []string{"j.k. rowling"}, Language: "es"},
		{ExternalID: "new", Title: "dune messiah", Authors: []string{"frank herbert"}, Language: "en"},
		{ExternalID: "emma", Title: "emma", Authors: []string{"jane austen"}, Language: "en"},
		{ExternalID: "pct", Title: "100% pure", Authors: []string{"someone"}, Language: "en"},
	})
	require.NoError(t, err)

	t.Run("title contains, newest first", func(t *testing.T) {
		got, err := repo.FindByFullText(ctx, "dune", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].ExternalID)
		assert.Equal(t, "old", got[1].ExternalID)
	})

	t.Run("quoted phrase", func(t *testing.T) {
		got, err := repo.FindByFullText(ctx, `"Harry Potter y la Piedra"`, 10)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "hp", got[0].ExternalID)
	})

	t.Run("required terms match authors", func(t *testing.T) {
		got, err := repo.FindByFullText(ctx, "+Jane +Austen", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "emma", got[0].ExternalID)
	})

	t.Run("limit stops after title matches", func(t *testing.T) {
		got, err := repo.FindByFullText(ctx, "dune", 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("like wildcards are literal", func(t *testing.T) {
		got, err := repo.FindByFullText(ctx, "0%", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pct", got[0].ExternalID)
	})
}

func TestSQLiteRepo_CountWithExternalID(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepo(t)

	_, err := repo.BatchInsertSkipDuplicates(ctx, []Book{
		{ExternalID: "a", Title: "one", Language: "es"},
		{Title: "no id", Language: "es"},
		{Title: "no id either", Language: "es"},
	})
	require.NoError(t, err)

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	withID, err := repo.CountWithExternalID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, withID)
}
