package store

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DB wraps the sqlx handle for the application's SQLite file. The handle is
// constructed once at startup and passed into each repository; there is no
// lazily-initialized global.
type DB struct {
	Client *sqlx.DB
	Path   string
}

// Open connects to the SQLite database at path, creating the parent
// directory when needed. WAL mode and foreign keys are always on; verbose
// enables migration logging.
func Open(path string, verbose bool) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_fk=true", path))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma: %w", err)
		}
	}

	if verbose {
		log.Printf("sqlite opened at %s (WAL, foreign keys on)", path)
	}
	return &DB{Client: db, Path: path}, nil
}

// Migrate applies all pending embedded migrations.
func (d *DB) Migrate(verbose bool) error {
	goose.SetBaseFS(embedMigrations)
	if !verbose {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return fmt.Errorf("setting dialect for migrations: %w", err)
	}
	if err := goose.Up(d.Client.DB, "migrations"); err != nil {
		return fmt.Errorf("applying migration: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
