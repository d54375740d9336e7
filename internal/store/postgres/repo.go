// Package postgres implements the transaction repository on Postgres using
// pgx v5. Bulk inserts COPY into a temporary staging table and then insert
// into the target with ON CONFLICT DO NOTHING, which gives insert-if-absent
// semantics and an exact inserted-row count in two round-trips per batch.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"momoimport/internal/record"
)

// Config holds Postgres repository configuration.
type Config struct {
	// DSN is the pgxpool connection string, e.g. "postgresql://...".
	DSN string
}

// Repository is a Postgres-backed store.
type Repository struct {
	pool *pgxpool.Pool
}

var txColumns = []string{
	"transaction_id",
	"transaction_initiated_time",
	"frmsisdn",
	"tomsisdn",
	"fr_profile",
	"to_profile",
	"transaction_type",
	"original_amount",
	"fee",
	"commission_all",
	"commission_distributeur",
	"commission_sous_distributeur",
	"commission_revendeur",
	"commission_marchand",
	"merchants_online_cash_in",
	"import_session_id",
}

// New opens a pgx pool against cfg.DSN.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// EnsureSchema creates the transactions and import_sessions tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id               TEXT PRIMARY KEY,
			transaction_initiated_time   TIMESTAMPTZ,
			frmsisdn                     TEXT NOT NULL DEFAULT '',
			tomsisdn                     TEXT NOT NULL DEFAULT '',
			fr_profile                   TEXT NOT NULL DEFAULT '',
			to_profile                   TEXT NOT NULL DEFAULT '',
			transaction_type             TEXT NOT NULL DEFAULT '',
			original_amount              NUMERIC(20,4) NOT NULL DEFAULT 0,
			fee                          NUMERIC(20,4) NOT NULL DEFAULT 0,
			commission_all               NUMERIC(20,4) NOT NULL DEFAULT 0,
			commission_distributeur      NUMERIC(20,4),
			commission_sous_distributeur NUMERIC(20,4),
			commission_revendeur         NUMERIC(20,4),
			commission_marchand          NUMERIC(20,4),
			merchants_online_cash_in     TEXT NOT NULL DEFAULT '',
			import_session_id            TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id            TEXT PRIMARY KEY,
			file_name     TEXT NOT NULL DEFAULT '',
			file_size     BIGINT NOT NULL DEFAULT 0,
			total_rows    BIGINT NOT NULL DEFAULT 0,
			valid_rows    BIGINT NOT NULL DEFAULT 0,
			imported_rows BIGINT NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ
		)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertTransactions bulk-inserts, skipping transaction ids that already
// exist, and returns the number of rows actually written.
func (r *Repository) InsertTransactions(ctx context.Context, txs []record.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()

	const tmp = "tmp_transactions_import"
	create := fmt.Sprintf(
		`CREATE TEMP TABLE %s AS SELECT %s FROM transactions WHERE false`,
		tmp, strings.Join(txColumns, ","),
	)
	if _, err := conn.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("postgres: create temp: %w", err)
	}
	defer func() { _, _ = conn.Exec(ctx, "DROP TABLE IF EXISTS "+tmp) }()

	rows := make([][]any, 0, len(txs))
	for i := range txs {
		rows = append(rows, txRow(&txs[i]))
	}
	if _, err := conn.CopyFrom(ctx, pgx.Identifier{tmp}, txColumns, pgx.CopyFromRows(rows)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("postgres: copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("postgres: copy into temp: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO transactions (%s)
		 SELECT %s FROM %s
		 ON CONFLICT (transaction_id) DO NOTHING`,
		strings.Join(txColumns, ","), strings.Join(txColumns, ","), tmp,
	)
	tag, err := conn.Exec(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert phase: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountTransactions returns the total number of stored transactions.
func (r *Repository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// CreateSession inserts a fresh session row.
func (r *Repository) CreateSession(ctx context.Context, s *record.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO import_sessions (id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9)`,
		s.ID, s.FileName, s.FileSize, s.TotalRows, s.ValidRows, s.ImportedRows, string(s.Status), s.ErrorMessage, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create session: %w", err)
	}
	return nil
}

// AddImportedRows bumps the imported counter after a committed batch.
func (r *Repository) AddImportedRows(ctx context.Context, sessionID string, delta int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_sessions SET imported_rows = imported_rows + $1 WHERE id = $2`,
		delta, sessionID,
	)
	if err != nil {
		return fmt.Errorf("postgres: add imported rows: %w", err)
	}
	return nil
}

// FinalizeSession writes the terminal counters, status, and error message.
func (r *Repository) FinalizeSession(ctx context.Context, s *record.Session) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE import_sessions
		 SET total_rows=$1, valid_rows=$2, imported_rows=$3, status=$4, error_message=NULLIF($5,''), finished_at=$6
		 WHERE id=$7`,
		s.TotalRows, s.ValidRows, s.ImportedRows, string(s.Status), s.ErrorMessage, s.FinishedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: finalize session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (*record.Session, error) {
	var (
		s        record.Session
		status   string
		errMsg   *string
		finished *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at, finished_at
		 FROM import_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.FileName, &s.FileSize, &s.TotalRows, &s.ValidRows, &s.ImportedRows, &status, &errMsg, &s.CreatedAt, &finished)
	if err != nil {
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	s.Status = record.Status(status)
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	if finished != nil {
		s.FinishedAt = *finished
	}
	return &s, nil
}

// txRow flattens a transaction into COPY values aligned to txColumns.
// Amounts travel as strings so pgx encodes them into NUMERIC without
// float rounding; zero initiated times become NULL.
func txRow(tx *record.Transaction) []any {
	return []any{
		tx.TransactionID,
		nullTime(tx.InitiatedAt),
		tx.FrMSISDN,
		tx.ToMSISDN,
		tx.FrProfile,
		tx.ToProfile,
		tx.TransactionType,
		tx.OriginalAmount.String(),
		tx.Fee.String(),
		tx.CommissionAll.String(),
		nullDec(tx.CommissionDistributeur),
		nullDec(tx.CommissionSousDistributeur),
		nullDec(tx.CommissionRevendeur),
		nullDec(tx.CommissionMarchand),
		tx.MerchantsOnlineCashIn,
		tx.ImportSessionID,
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullDec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
