package book

import (
	"context"

	"booklookup/internal/platform/googlebooks"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

// Repository defines the contract for book data storage.
type Repository interface {
	// FindByFullText returns up to limit rows matching expr, newest first.
	FindByFullText(ctx context.Context, expr string, limit int) ([]Book, error)
	FindByExternalID(ctx context.Context, externalID string) (Book, error)
	FindByExternalIDs(ctx context.Context, externalIDs []string) ([]Book, error)
	UpsertByExternalID(ctx context.Context, b *Book) (Book, error)
	// BatchInsertSkipDuplicates inserts rows whose external id is not yet
	// stored and reports how many were written.
	BatchInsertSkipDuplicates(ctx context.Context, books []Book) (int, error)
	Count(ctx context.Context) (int, error)
	CountWithExternalID(ctx context.Context) (int, error)
}

// Provider is the external metadata source.
type Provider interface {
	SearchVolumes(ctx context.Context, expr string, maxResults int, lang string) ([]googlebooks.Volume, error)
	GetVolume(ctx context.Context, id string) (*googlebooks.Volume, error)
}
