package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty temp dir so no stray config.yaml or .env is read.
func chdir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return tmp
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "https://www.googleapis.com/books/v1", cfg.GoogleBooks.BaseURL)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 15*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.SearchTTL)
	assert.Equal(t, "human", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("DB_DSN", "postgres://from-env/db")
	t.Setenv("GOOGLE_BOOKS_API_KEY", "k-123")
	t.Setenv("BOOKLOOKUP_CACHE_SEARCH_TTL", "30s")
	t.Setenv("BOOKLOOKUP_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-env/db", cfg.Database.DSN)
	assert.Equal(t, "k-123", cfg.GoogleBooks.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Cache.SearchTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	dir := chdir(t)
	p := filepath.Join(dir, "booklookup.yaml")
	yaml := "database:\n  driver: sqlite\n  dsn: ./books.db\ncache:\n  max_entries: 50\n"
	require.NoError(t, os.WriteFile(p, []byte(yaml), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./books.db", cfg.Database.DSN)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t)

	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t)
	t.Setenv("BOOKLOOKUP_DATABASE_DRIVER", "mysql")

	_, err := Load("")
	assert.ErrorContains(t, err, `database.driver must be one of [postgres sqlite], got "mysql"`)
}

func TestConfig_ValidateReportsEveryKey(t *testing.T) {
	cfg := Config{
		Database:    DatabaseConfig{Driver: "sqlite", Timeout: time.Second},
		GoogleBooks: GoogleBooksConfig{BaseURL: "not a url", RPS: -1},
		Cache:       CacheConfig{MaxEntries: 10, DefaultTTL: time.Minute},
		Log:         LogConfig{Format: "xml"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn is required")
	assert.Contains(t, err.Error(), "googlebooks.base_url must be a valid URL")
	assert.Contains(t, err.Error(), "googlebooks.rps must be at least 0")
	assert.Contains(t, err.Error(), "cache.search_ttl must be greater than 0")
	assert.Contains(t, err.Error(), "log.format must be one of [human json]")
}

func TestLoadEnvFiles_DoesNotOverrideExistingEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_DSN=from_file\nBOOKLOOKUP_LOG_FORMAT=json\n"), 0o644))
	t.Setenv("DB_DSN", "from_env")
	t.Setenv("BOOKLOOKUP_LOG_FORMAT", "")
	// t.Setenv registers the restore, the unset lets .env fill it in
	require.NoError(t, os.Unsetenv("BOOKLOOKUP_LOG_FORMAT"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Database.DSN)
	assert.Equal(t, "json", cfg.Log.Format)
	_ = os.Unsetenv("BOOKLOOKUP_LOG_FORMAT")
}
