// Package sqlite implements the transaction repository on SQLite through
// database/sql. SQLite has no bulk-load API, so batches run as prepared
// INSERT OR IGNORE statements inside one transaction, which keeps moderate
// volumes fast and gives exact inserted counts via RowsAffected.
//
// This backend doubles as the test store: the driver is pure Go, so an
// in-memory database works everywhere the suite runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopspring/decimal"

	"momoimport/internal/record"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is passed to database/sql, e.g. "file:momo.db?cache=shared" or
	// ":memory:".
	DSN string
}

// Repository is a SQLite-backed store.
type Repository struct {
	db *sql.DB
}

// New opens the database and fails fast on an unreachable DSN.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error { return r.db.Close() }

// EnsureSchema creates the tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id               TEXT PRIMARY KEY,
			transaction_initiated_time   TEXT,
			frmsisdn                     TEXT NOT NULL DEFAULT '',
			tomsisdn                     TEXT NOT NULL DEFAULT '',
			fr_profile                   TEXT NOT NULL DEFAULT '',
			to_profile                   TEXT NOT NULL DEFAULT '',
			transaction_type             TEXT NOT NULL DEFAULT '',
			original_amount              TEXT NOT NULL DEFAULT '0',
			fee                          TEXT NOT NULL DEFAULT '0',
			commission_all               TEXT NOT NULL DEFAULT '0',
			commission_distributeur      TEXT,
			commission_sous_distributeur TEXT,
			commission_revendeur         TEXT,
			commission_marchand          TEXT,
			merchants_online_cash_in     TEXT NOT NULL DEFAULT '',
			import_session_id            TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id            TEXT PRIMARY KEY,
			file_name     TEXT NOT NULL DEFAULT '',
			file_size     INTEGER NOT NULL DEFAULT 0,
			total_rows    INTEGER NOT NULL DEFAULT 0,
			valid_rows    INTEGER NOT NULL DEFAULT 0,
			imported_rows INTEGER NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			error_message TEXT,
			created_at    TEXT NOT NULL,
			finished_at   TEXT
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertTransactions writes the batch inside one transaction using
// INSERT OR IGNORE, returning the number of rows actually inserted.
func (r *Repository) InsertTransactions(ctx context.Context, txs []record.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `INSERT OR IGNORE INTO transactions (
		transaction_id, transaction_initiated_time, frmsisdn, tomsisdn,
		fr_profile, to_profile, transaction_type,
		original_amount, fee, commission_all,
		commission_distributeur, commission_sous_distributeur,
		commission_revendeur, commission_marchand,
		merchants_online_cash_in, import_session_id
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i := range txs {
		tx := &txs[i]
		res, err := stmt.ExecContext(ctx,
			tx.TransactionID,
			textTime(tx.InitiatedAt),
			tx.FrMSISDN, tx.ToMSISDN,
			tx.FrProfile, tx.ToProfile, tx.TransactionType,
			tx.OriginalAmount.String(), tx.Fee.String(), tx.CommissionAll.String(),
			textDec(tx.CommissionDistributeur), textDec(tx.CommissionSousDistributeur),
			textDec(tx.CommissionRevendeur), textDec(tx.CommissionMarchand),
			tx.MerchantsOnlineCashIn, tx.ImportSessionID,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert %q: %w", tx.TransactionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted += n
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// CountTransactions returns the total number of stored transactions.
func (r *Repository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// CreateSession inserts a fresh session row.
func (r *Repository) CreateSession(ctx context.Context, s *record.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO import_sessions (id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at)
		 VALUES (?,?,?,?,?,?,?,NULLIF(?,''),?)`,
		s.ID, s.FileName, s.FileSize, s.TotalRows, s.ValidRows, s.ImportedRows,
		string(s.Status), s.ErrorMessage, s.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create session: %w", err)
	}
	return nil
}

// AddImportedRows bumps the imported counter after a committed batch.
func (r *Repository) AddImportedRows(ctx context.Context, sessionID string, delta int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_sessions SET imported_rows = imported_rows + ? WHERE id = ?`, delta, sessionID)
	if err != nil {
		return fmt.Errorf("sqlite: add imported rows: %w", err)
	}
	return nil
}

// FinalizeSession writes the terminal counters, status, and error message.
func (r *Repository) FinalizeSession(ctx context.Context, s *record.Session) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_sessions
		 SET total_rows=?, valid_rows=?, imported_rows=?, status=?, error_message=NULLIF(?,''), finished_at=?
		 WHERE id=?`,
		s.TotalRows, s.ValidRows, s.ImportedRows, string(s.Status), s.ErrorMessage,
		s.FinishedAt.UTC().Format(time.RFC3339Nano), s.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: finalize session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (*record.Session, error) {
	var (
		s        record.Session
		status   string
		errMsg   sql.NullString
		created  string
		finished sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at, finished_at
		 FROM import_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.FileName, &s.FileSize, &s.TotalRows, &s.ValidRows, &s.ImportedRows, &status, &errMsg, &created, &finished)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	s.Status = record.Status(status)
	s.ErrorMessage = errMsg.String
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		s.CreatedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
			s.FinishedAt = t
		}
	}
	return &s, nil
}

func textTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func textDec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
