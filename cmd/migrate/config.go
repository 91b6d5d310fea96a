package main

import (
	"io/fs"
	"os"

	"booklookup/db"
)

// migrationsFS returns the migrations to apply and the directory inside it.
// MIGRATIONS_DIR points goose at a directory on disk instead of the embedded set.
func migrationsFS() (fs.FS, string) {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return os.DirFS(v), "."
	}
	return db.Migrations, db.MigrationsDir
}
