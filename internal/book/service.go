package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"booklookup/internal/platform/googlebooks"
	"booklookup/internal/platform/memcache"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSearchTTL = 10 * time.Minute

	minProviderQueryLen = 3
)

// Service resolves book searches through the memory cache, the store and the
// external provider, persisting whatever the provider adds.
type Service struct {
	repo      Repository
	provider  Provider
	cache     *memcache.Cache
	logger    *slog.Logger
	searchTTL time.Duration
}

type ServiceOption func(*Service)

// WithSearchTTL sets how long merged search results stay in memory.
func WithSearchTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.searchTTL = ttl
		}
	}
}

// NewService creates a new book service.
func NewService(repo Repository, provider Provider, cache *memcache.Cache, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		provider:  provider,
		cache:     cache,
		logger:    logger,
		searchTTL: DefaultSearchTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func searchKey(query string, maxResults int, lang string) string {
	if lang == "" {
		lang = "auto"
	}
	return fmt.Sprintf("search:%s:%d:%s", query, maxResults, lang)
}

func bookKey(externalID string) string {
	return "book:" + externalID
}

// Search returns up to maxResults books for query. lang is an optional
// language preference such as "es" or "en".
func (s *Service) Search(ctx context.Context, query string, maxResults int, lang string) ([]SearchResult, error) {
	maxResults = clampLimit(maxResults)
	log := s.logger.With("query_id", uuid.NewString(), "query", query)
	start := time.Now()

	key := searchKey(query, maxResults, lang)
	if cached, ok := memcache.GetAs[[]SearchResult](s.cache, key); ok {
		log.Info("search served from memory", "results", len(cached))
		return cloneResults(cached), nil
	}

	results, err := s.resolve(ctx, log, key, query, maxResults, lang)
	if err == nil {
		log.Info("search done", "results", len(results), "took", time.Since(start))
		return results, nil
	}

	log.Error("search failed, retrying store only", "error", err)
	fallback, ferr := s.searchStore(ctx, log, query, maxResults)
	if ferr != nil {
		log.Error("store fallback failed", "error", ferr)
		return nil, errors.Join(ErrServiceUnavailable, ferr)
	}
	return fallback, nil
}

func (s *Service) resolve(ctx context.Context, log *slog.Logger, key, query string, maxResults int, lang string) ([]SearchResult, error) {
	stored, err := s.searchStore(ctx, log, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(stored) >= maxResults {
		log.Info("search satisfied by store", "results", len(stored))
		s.cache.Set(key, cloneResults(stored))
		return stored, nil
	}

	var vols []googlebooks.Volume
	if utf8.RuneCountInString(query) >= minProviderQueryLen {
		// the provider call is the one join point before merging; a failure
		// inside the goroutine resolves to an empty set instead of an error
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			found, err := s.searchProvider(gctx, log, query, maxResults, lang)
			if err != nil {
				log.Warn("provider search failed, continuing with store results", "error", err)
				return nil
			}
			vols = found
			return nil
		})
		_ = g.Wait()
	}

	fresh := s.persist(ctx, log, stored, vols, maxResults-len(stored))

	merged := make([]SearchResult, 0, len(stored)+len(fresh))
	seen := make(map[string]struct{}, cap(merged))
	for _, r := range append(stored, fresh...) {
		if r.ExternalID != "" {
			if _, dup := seen[r.ExternalID]; dup {
				continue
			}
			seen[r.ExternalID] = struct{}{}
		}
		merged = append(merged, r)
	}

	SortByLanguagePreference(merged, lang)
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	log.Info("search merged", "from_store", len(stored), "from_provider", len(fresh), "results", len(merged))
	s.cache.SetWithTTL(key, cloneResults(merged), s.searchTTL)
	return merged, nil
}

func (s *Service) searchStore(ctx context.Context, log *slog.Logger, query string, maxResults int) ([]SearchResult, error) {
	expr := BuildPreciseQuery(query)
	rows, err := s.repo.FindByFullText(ctx, expr, maxResults*2)
	if err != nil {
		return nil, fmt.Errorf("store search: %w", err)
	}

	rows = FilterStoredCandidates(log, rows, query)
	if len(rows) > maxResults {
		rows = rows[:maxResults]
	}

	out := make([]SearchResult, len(rows))
	for i, b := range rows {
		out[i] = b.ToResult(true)
	}
	log.Debug("store search", "expr", expr, "results", len(out))
	return out, nil
}

func (s *Service) searchProvider(ctx context.Context, log *slog.Logger, query string, maxResults int, lang string) ([]googlebooks.Volume, error) {
	if lang == "" {
		lang = DetectLanguage(query)
	}
	raw, err := s.provider.SearchVolumes(ctx, BuildPreciseQuery(query), maxResults, lang)
	if err != nil {
		return nil, err
	}

	vols := FilterExternalCandidates(log, raw, query, lang)
	if len(vols) > maxResults {
		vols = vols[:maxResults]
	}
	log.Info("provider search", "lang", lang, "raw", len(raw), "kept", len(vols))
	return vols, nil
}

// persist stores at most slots volumes that are not already among stored and
// returns them in provider order. Rows that cannot be written are skipped.
func (s *Service) persist(ctx context.Context, log *slog.Logger, stored []SearchResult, vols []googlebooks.Volume, slots int) []SearchResult {
	if slots <= 0 || len(vols) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(stored)+len(vols))
	for _, r := range stored {
		seen[r.ExternalID] = struct{}{}
	}

	rows := make([]Book, 0, slots)
	for _, v := range vols {
		if v.ID == "" {
			continue
		}
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		rows = append(rows, FromVolume(v))
		if len(rows) == slots {
			break
		}
	}
	if len(rows) == 0 {
		return nil
	}

	saved, err := s.batchPersist(ctx, rows)
	if err != nil {
		log.Warn("batch insert failed, inserting one by one", "count", len(rows), "error", err)
		saved = s.upsertEach(ctx, log, rows)
	} else {
		log.Info("persisted provider books", "count", len(saved))
	}

	out := make([]SearchResult, len(saved))
	for i, b := range saved {
		out[i] = b.ToResult(false)
	}
	return out
}

func (s *Service) batchPersist(ctx context.Context, rows []Book) ([]Book, error) {
	ids := make([]string, len(rows))
	for i, b := range rows {
		ids[i] = b.ExternalID
	}

	if _, err := s.repo.BatchInsertSkipDuplicates(ctx, rows); err != nil {
		return nil, fmt.Errorf("batch insert: %w", err)
	}
	found, err := s.repo.FindByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload inserted: %w", err)
	}

	byID := make(map[string]Book, len(found))
	for _, b := range found {
		byID[b.ExternalID] = b
	}
	out := make([]Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) upsertEach(ctx context.Context, log *slog.Logger, rows []Book) []Book {
	out := make([]Book, 0, len(rows))
	for i := range rows {
		saved, err := s.repo.UpsertByExternalID(ctx, &rows[i])
		if err != nil {
			log.Warn("upsert failed, skipping", "external_id", rows[i].ExternalID, "error", err)
			continue
		}
		out = append(out, saved)
	}
	return out
}

// GetByExternalID returns one book by provider id, fetching and storing it
// when it is not known yet. ErrNotFound means the provider has no such volume.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (SearchResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return SearchResult{}, ErrNotFound
	}
	log := s.logger.With("query_id", uuid.NewString(), "external_id", externalID)

	key := bookKey(externalID)
	if cached, ok := memcache.GetAs[SearchResult](s.cache, key); ok {
		log.Info("book served from memory")
		return cached.clone(), nil
	}

	storeFailed := false
	b, err := s.repo.FindByExternalID(ctx, externalID)
	switch {
	case err == nil:
		r := b.ToResult(true)
		s.cache.Set(key, r.clone())
		return r, nil
	case errors.Is(err, ErrNotFound):
	default:
		storeFailed = true
		log.Warn("store lookup failed, asking provider", "error", err)
	}

	v, err := s.provider.GetVolume(ctx, externalID)
	if err != nil {
		if errors.Is(err, googlebooks.ErrNotFound) {
			log.Info("book not found at provider")
			return SearchResult{}, ErrNotFound
		}
		if storeFailed {
			return SearchResult{}, errors.Join(ErrServiceUnavailable, err)
		}
		return SearchResult{}, fmt.Errorf("fetch volume %s: %w", externalID, err)
	}

	row := FromVolume(*v)
	saved, err := s.repo.UpsertByExternalID(ctx, &row)
	if err != nil {
		log.Warn("could not store fetched book", "error", err)
		return row.ToResult(false), nil
	}

	r := saved.ToResult(false)
	s.cache.Set(key, r.clone())
	return r, nil
}

type DatabaseStats struct {
	TotalBooks          int     `json:"total_books"`
	BooksWithExternalID int     `json:"books_with_external_id"`
	CachePercentage     float64 `json:"cache_percentage"`
}

type Stats struct {
	Database DatabaseStats          `json:"database"`
	Memory   memcache.DetailedStats `json:"memory"`
}

// CacheStats reports store totals and memory cache usage.
func (s *Service) CacheStats(ctx context.Context) (Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count books: %w", err)
	}
	withID, err := s.repo.CountWithExternalID(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count books with external id: %w", err)
	}

	var pct float64
	if total > 0 {
		pct = float64(withID) / float64(total) * 100
	}
	return Stats{
		Database: DatabaseStats{
			TotalBooks:          total,
			BooksWithExternalID: withID,
			CachePercentage:     pct,
		},
		Memory: s.cache.DetailedStats(),
	}, nil
}

// ClearMemoryCache empties the memory cache. Stored books are kept.
func (s *Service) ClearMemoryCache() {
	s.cache.Clear()
}
