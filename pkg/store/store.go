// Package store owns the SQLite database: opening it, running the embedded
// migrations and the settings table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/utils"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Queryer is implemented by both *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the shared database handle.
type DB struct {
	*sql.DB
	path string
}

type options struct {
	hooks map[string]Hook
}

// Option configures Open.
type Option func(*options)

// WithHook runs fn inside the migration transaction right after the
// migration named name has been applied.
func WithHook(name string, fn Hook) Option {
	return func(o *options) {
		o.hooks[name] = fn
	}
}

// Open opens the database at path, creating it when missing, and applies
// every pending migration.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := options{hooks: make(map[string]Hook)}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := "file::memory:"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, apperrors.NewFileSystemError("DB_DIR", "failed to create database directory").
				WithContext("path", path)
		}
		dsn = path
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, path: path}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.ensureSettings(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(ctx, migrationFiles, o.hooks); err != nil {
		sqlDB.Close()
		return nil, err
	}

	utils.Debug("database ready at %s", path)
	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
