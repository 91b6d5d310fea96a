package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
	id             TEXT PRIMARY KEY,
	external_id    TEXT UNIQUE,
	title          TEXT NOT NULL,
	authors        TEXT NOT NULL DEFAULT '[]',
	description    TEXT,
	isbn           TEXT,
	publisher      TEXT,
	published_date TEXT,
	page_count     INTEGER,
	categories     TEXT NOT NULL DEFAULT '[]',
	image_url      TEXT,
	language       TEXT NOT NULL DEFAULT 'es',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS books_created_at_idx ON books (created_at DESC);
`

const sqliteColumns = `id, external_id, title, authors, description, isbn, publisher,
	published_date, page_count, categories, image_url, language, created_at`

// SQLiteRepo is a file or in-memory store for local use. SQLite has no
// full-text index here, so every search takes the substring path.
type SQLiteRepo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens path and creates the books table if needed. Use
// ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return NewSQLiteRepo(db, logger), nil
}

func NewSQLiteRepo(db *sql.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{db: db, logger: logger, now: time.Now}
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBook(row rowScanner) (Book, error) {
	var (
		b                                 Book
		externalID, desc, isbn, publisher sql.NullString
		publishedDate, imageURL           sql.NullString
		pageCount                         sql.NullInt64
		authors, categories               string
		createdAt                         int64
	)
	if err := row.Scan(
		&b.ID, &externalID, &b.Title, &authors, &desc, &isbn, &publisher,
		&publishedDate, &pageCount, &categories, &imageURL, &b.Language, &createdAt,
	); err != nil {
		return Book{}, err
	}

	b.ExternalID = externalID.String
	b.Description = nullString(desc)
	b.ISBN = nullString(isbn)
	b.Publisher = nullString(publisher)
	b.PublishedDate = nullString(publishedDate)
	b.ImageURL = nullString(imageURL)
	if pageCount.Valid {
		n := int(pageCount.Int64)
		b.PageCount = &n
	}
	b.CreatedAt = time.Unix(0, createdAt).UTC()

	var err error
	if b.Authors, err = decodeList(authors); err != nil {
		return Book{}, err
	}
	if b.Categories, err = decodeList(categories); err != nil {
		return Book{}, err
	}
	return b, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func (r *SQLiteRepo) query(ctx context.Context, q string, args ...any) ([]Book, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Book
	for rows.Next() {
		b, err := scanSQLiteBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindByFullText first looks for titles containing the whole expression,
// then for rows matching any word longer than two characters.
func (r *SQLiteRepo) FindByFullText(ctx context.Context, expr string, limit int) ([]Book, error) {
	q := searchTerms(expr)

	exact, err := r.query(ctx, `SELECT `+sqliteColumns+`
		FROM books
		WHERE title LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, likePattern(q), limit)
	if err != nil {
		return nil, fmt.Errorf("title scan: %w", err)
	}
	words := wordsLongerThan(q, 2)
	if len(exact) >= limit || len(words) == 0 {
		return exact, nil
	}

	clauses := make([]string, len(words))
	args := make([]any, 0, 2*len(words)+1)
	for i, w := range words {
		clauses[i] = `(title LIKE ? ESCAPE '\' OR authors LIKE ? ESCAPE '\')`
		p := likePattern(w)
		args = append(args, p, p)
	}
	args = append(args, limit*2)

	byWord, err := r.query(ctx, `SELECT `+sqliteColumns+`
		FROM books
		WHERE `+strings.Join(clauses, " OR ")+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("word scan: %w", err)
	}
	return mergeByID(exact, byWord), nil
}

func (r *SQLiteRepo) FindByExternalID(ctx context.Context, externalID string) (Book, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM books WHERE external_id = ? LIMIT 1`, externalID)
	b, err := scanSQLiteBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("find book %s: %w", externalID, err)
	}
	return b, nil
}

func (r *SQLiteRepo) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]Book, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(externalIDs)), ",")
	args := make([]any, len(externalIDs))
	for i, id := range externalIDs {
		args[i] = id
	}

	books, err := r.query(ctx, `SELECT `+sqliteColumns+` FROM books WHERE external_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("find books by external id: %w", err)
	}
	return books, nil
}

const sqliteInsert = `
	INSERT %s INTO books (id, external_id, title, authors, description, isbn, publisher,
	                      published_date, page_count, categories, image_url, language,
	                      created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *SQLiteRepo) insertArgs(b *Book) []any {
	ts := r.now().UnixNano()
	return []any{
		uuid.NewString(), nullable(optional(b.ExternalID)), b.Title, encodeList(b.Authors),
		nullable(b.Description), nullable(b.ISBN), nullable(b.Publisher), nullable(b.PublishedDate),
		pageCountArg(b.PageCount), encodeList(b.Categories), nullable(b.ImageURL), b.Language, ts, ts,
	}
}

func pageCountArg(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

// nullable dereferences p so the driver sees a plain value or NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *SQLiteRepo) UpsertByExternalID(ctx context.Context, b *Book) (Book, error) {
	if b.ExternalID == "" {
		return Book{}, errors.New("upsert book: external id is required")
	}
	q := fmt.Sprintf(sqliteInsert, "") + `
	ON CONFLICT (external_id) DO UPDATE SET
		title = excluded.title,
		authors = excluded.authors,
		description = excluded.description,
		isbn = excluded.isbn,
		publisher = excluded.publisher,
		published_date = excluded.published_date,
		page_count = excluded.page_count,
		categories = excluded.categories,
		image_url = excluded.image_url,
		language = excluded.language,
		updated_at = excluded.updated_at
	RETURNING ` + sqliteColumns

	saved, err := scanSQLiteBook(r.db.QueryRowContext(ctx, q, r.insertArgs(b)...))
	if err != nil {
		return Book{}, fmt.Errorf("upsert book %s: %w", b.ExternalID, err)
	}
	return saved, nil
}

// BatchInsertSkipDuplicates writes all rows in one transaction using
// INSERT OR IGNORE.
func (r *SQLiteRepo) BatchInsertSkipDuplicates(ctx context.Context, books []Book) (int, error) {
	if len(books) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(sqliteInsert, "OR IGNORE"))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := range books {
		res, err := stmt.ExecContext(ctx, r.insertArgs(&books[i])...)
		if err != nil {
			return 0, fmt.Errorf("insert book %s: %w", books[i].ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.logger.Debug("batch insert", "rows", len(books), "inserted", inserted)
	return inserted, nil
}

func (r *SQLiteRepo) Count(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM books`)
}

func (r *SQLiteRepo) CountWithExternalID(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM books WHERE external_id IS NOT NULL`)
}

func (r *SQLiteRepo) count(ctx context.Context, q string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
