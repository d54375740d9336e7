// Package store contains the storage-agnostic contracts of the import
// pipeline: the repository interface every backend implements, the batched
// committer that drains normalized rows into it, and the intra-file
// duplicate tracker.
//
// Backends live in subpackages (postgres, sqlite, mysql) and are selected by
// Config.Kind so the rest of the codebase never imports a database driver.
package store

import (
	"context"
	"fmt"

	"momoimport/internal/record"
	"momoimport/internal/store/mysql"
	"momoimport/internal/store/postgres"
	"momoimport/internal/store/sqlite"
)

// Repository is the persistence contract for transactions and sessions.
//
// InsertTransactions must implement insert-if-absent on transaction_id:
// rows whose id already exists are skipped silently, and the returned count
// is the number of rows actually written. That count is the deduplication
// signal (duplicates = len(txs) - inserted).
type Repository interface {
	InsertTransactions(ctx context.Context, txs []record.Transaction) (int64, error)
	CountTransactions(ctx context.Context) (int64, error)

	CreateSession(ctx context.Context, s *record.Session) error
	AddImportedRows(ctx context.Context, sessionID string, delta int64) error
	FinalizeSession(ctx context.Context, s *record.Session) error
	GetSession(ctx context.Context, id string) (*record.Session, error)

	// EnsureSchema creates the transactions and import_sessions tables when
	// they do not exist yet.
	EnsureSchema(ctx context.Context) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Kind is one of "postgres", "sqlite", "mysql".
	Kind string `json:"kind"`

	// DSN is the driver connection string.
	DSN string `json:"dsn"`
}

// New constructs the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	switch cfg.Kind {
	case "postgres":
		return postgres.New(ctx, postgres.Config{DSN: cfg.DSN})
	case "sqlite":
		return sqlite.New(ctx, sqlite.Config{DSN: cfg.DSN})
	case "mysql":
		return mysql.New(ctx, mysql.Config{DSN: cfg.DSN})
	default:
		return nil, fmt.Errorf("storage: unknown kind %q", cfg.Kind)
	}
}
