package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgColumns = `id::text, external_id, title, authors, description, isbn, publisher,
	published_date, page_count, categories, image_url, language, created_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *PostgresRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepo{db: db, timeout: timeout, logger: logger}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanPgBook(row pgx.Row) (Book, error) {
	var (
		b                   Book
		externalID          *string
		authors, categories string
	)
	if err := row.Scan(
		&b.ID, &externalID, &b.Title, &authors, &b.Description, &b.ISBN, &b.Publisher,
		&b.PublishedDate, &b.PageCount, &categories, &b.ImageURL, &b.Language, &b.CreatedAt,
	); err != nil {
		return Book{}, err
	}
	if externalID != nil {
		b.ExternalID = *externalID
	}

	var err error
	if b.Authors, err = decodeList(authors); err != nil {
		return Book{}, err
	}
	if b.Categories, err = decodeList(categories); err != nil {
		return Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) query(ctx context.Context, sql string, args ...any) ([]Book, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanPgBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindByFullText matches expr against the search_vector column. If the
// full-text query fails it falls back to a substring scan.
func (r *PostgresRepo) FindByFullText(ctx context.Context, expr string, limit int) ([]Book, error) {
	const sql = `SELECT ` + pgColumns + `
		FROM books
		WHERE search_vector @@ websearch_to_tsquery('simple', $1)
		ORDER BY created_at DESC
		LIMIT $2`

	books, err := r.query(ctx, sql, expr, limit)
	if err == nil {
		return books, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.logger.Warn("full-text search unavailable, falling back to substring scan", "error", err)
	return r.findBySubstring(ctx, searchTerms(expr), limit)
}

func (r *PostgresRepo) findBySubstring(ctx context.Context, q string, limit int) ([]Book, error) {
	const titleSQL = `SELECT ` + pgColumns + `
		FROM books
		WHERE title ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`

	exact, err := r.query(ctx, titleSQL, likePattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("title scan: %w", err)
	}
	words := wordsLongerThan(q, 2)
	if len(exact) >= limit || len(words) == 0 {
		return exact, nil
	}

	clauses := make([]string, len(words))
	args := make([]any, 0, len(words)+1)
	for i, w := range words {
		clauses[i] = fmt.Sprintf("(title ILIKE $%d OR authors ILIKE $%d)", i+1, i+1)
		args = append(args, likePattern(w))
	}
	args = append(args, limit*2)

	sql := fmt.Sprintf(`SELECT %s FROM books WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		pgColumns, strings.Join(clauses, " OR "), len(args))
	byWord, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("word scan: %w", err)
	}
	return mergeByID(exact, byWord), nil
}

func (r *PostgresRepo) FindByExternalID(ctx context.Context, externalID string) (Book, error) {
	const sql = `SELECT ` + pgColumns + ` FROM books WHERE external_id = $1 LIMIT 1`

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := scanPgBook(r.db.QueryRow(ctx, sql, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("find book %s: %w", externalID, err)
	}
	return b, nil
}

func (r *PostgresRepo) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]Book, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	const sql = `SELECT ` + pgColumns + ` FROM books WHERE external_id = ANY($1)`

	books, err := r.query(ctx, sql, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("find books by external id: %w", err)
	}
	return books, nil
}

const pgInsert = `
	INSERT INTO books (external_id, title, authors, description, isbn, publisher,
	                   published_date, page_count, categories, image_url, language)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func pgArgs(b *Book) []any {
	return []any{
		optional(b.ExternalID), b.Title, encodeList(b.Authors), b.Description, b.ISBN, b.Publisher,
		b.PublishedDate, b.PageCount, encodeList(b.Categories), b.ImageURL, b.Language,
	}
}

func (r *PostgresRepo) UpsertByExternalID(ctx context.Context, b *Book) (Book, error) {
	if b.ExternalID == "" {
		return Book{}, errors.New("upsert book: external id is required")
	}
	const sql = pgInsert + `
	ON CONFLICT (external_id) DO UPDATE SET
		title = EXCLUDED.title,
		authors = EXCLUDED.authors,
		description = EXCLUDED.description,
		isbn = EXCLUDED.isbn,
		publisher = EXCLUDED.publisher,
		published_date = EXCLUDED.published_date,
		page_count = EXCLUDED.page_count,
		categories = EXCLUDED.categories,
		image_url = EXCLUDED.image_url,
		language = EXCLUDED.language,
		updated_at = NOW()
	RETURNING ` + pgColumns

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	saved, err := scanPgBook(r.db.QueryRow(ctx, sql, pgArgs(b)...))
	if err != nil {
		return Book{}, fmt.Errorf("upsert book %s: %w", b.ExternalID, err)
	}
	return saved, nil
}

// BatchInsertSkipDuplicates sends all rows in one batch. Rows whose external
// id already exists are left untouched.
func (r *PostgresRepo) BatchInsertSkipDuplicates(ctx context.Context, books []Book) (int, error) {
	if len(books) == 0 {
		return 0, nil
	}
	const sql = pgInsert + ` ON CONFLICT (external_id) DO NOTHING`

	batch := &pgx.Batch{}
	for i := range books {
		batch.Queue(sql, pgArgs(&books[i])...)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	br := r.db.SendBatch(ctx, batch)
	inserted := 0
	for range books {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return inserted, fmt.Errorf("batch insert books: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return inserted, fmt.Errorf("batch insert books: %w", err)
	}
	return inserted, nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM books`)
}

func (r *PostgresRepo) CountWithExternalID(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM books WHERE external_id IS NOT NULL`)
}

func (r *PostgresRepo) count(ctx context.Context, sql string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// mergeByID appends rows from extra that are not already in base.
func mergeByID(base, extra []Book) []Book {
	seen := make(map[string]struct{}, len(base))
	for _, b := range base {
		seen[b.ID] = struct{}{}
	}
	out := append([]Book(nil), base...)
	for _, b := range extra {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	return out
}
