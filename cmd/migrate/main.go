package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"booklookup/internal/config"
	"booklookup/internal/platform/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	var (
		command    = flag.String("command", "up", "Migration command: up, down, status, version")
		configPath = flag.String("config", "", "Path to a YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := run(context.Background(), cfg, *command, logger); err != nil {
		logger.Error("migration failed", "command", *command, "error", err)
		os.Exit(1)
	}
	logger.Info("migration finished", "command", *command)
}

func run(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrations target postgres, got driver %q (the sqlite store creates its schema on open)", cfg.Database.Driver)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() { _ = sqlDB.Close() }()

	fsys, dir := migrationsFS()
	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, sqlDB, dir)
	case "down":
		return goose.DownContext(ctx, sqlDB, dir)
	case "status":
		goose.SetLogger(slogLogger{logger})
		return goose.StatusContext(ctx, sqlDB, dir)
	case "version":
		v, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err != nil {
			return err
		}
		logger.Info("database version", "version", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q, use up, down, status or version", command)
	}
}

// slogLogger adapts slog to goose's printf-style logger.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Fatalf(format string, v ...any) {
	s.l.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (s slogLogger) Printf(format string, v ...any) {
	s.l.Info(fmt.Sprintf(format, v...))
}
