package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"booklookup/internal/book"
	"booklookup/internal/config"
	"booklookup/internal/platform/googlebooks"
	"booklookup/internal/platform/logging"
	"booklookup/internal/platform/memcache"

	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the long-lived components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *book.Service
	in      io.Reader
	out     io.Writer
	closers []func()
}

func newApp(configPath string, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, in: os.Stdin, out: out}

	repo, err := a.openStore(context.Background())
	if err != nil {
		a.Close()
		return nil, err
	}

	provider := googlebooks.NewClient(cfg.GoogleBooks.APIKey,
		googlebooks.WithBaseURL(cfg.GoogleBooks.BaseURL),
		googlebooks.WithRateLimit(cfg.GoogleBooks.RPS),
		googlebooks.WithLogger(logger),
	)
	cache := memcache.New(
		memcache.WithMaxEntries(cfg.Cache.MaxEntries),
		memcache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		memcache.WithLogger(logger),
	)

	a.service = book.NewService(repo, provider, cache, logger, book.WithSearchTTL(cfg.Cache.SearchTTL))
	return a, nil
}

func (a *app) openStore(ctx context.Context) (book.Repository, error) {
	switch a.cfg.Database.Driver {
	case "sqlite":
		repo, err := book.OpenSQLite(ctx, a.cfg.Database.DSN, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.logger.Info("using sqlite store", "path", a.cfg.Database.DSN)
		return repo, nil
	default:
		pool, err := openPool(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.logger.Info("database connection OK", "dsn", redactDSN(a.cfg.Database.DSN))
		return book.NewPostgresRepo(pool, a.cfg.Database.Timeout, a.logger), nil
	}
}

// Close releases store connections. It is safe to call more than once.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", redactDSN(dsn), err)
	}
	return pool, nil
}

// redactDSN hides credentials between "://" and "@".
func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}
