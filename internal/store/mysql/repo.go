// Package mysql implements the transaction repository on MySQL/MariaDB
// through database/sql. Batches run as a single multi-row INSERT IGNORE,
// which skips duplicate transaction ids and reports the inserted count via
// RowsAffected.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/shopspring/decimal"

	"momoimport/internal/record"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/momo?parseTime=true".
	DSN string
}

// Repository is a MySQL-backed store.
type Repository struct {
	db *sql.DB
}

// New opens the database and fails fast on an unreachable DSN.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error { return r.db.Close() }

// EnsureSchema creates the tables if absent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id               VARCHAR(128) PRIMARY KEY,
			transaction_initiated_time   DATETIME NULL,
			frmsisdn                     VARCHAR(32) NOT NULL DEFAULT '',
			tomsisdn                     VARCHAR(32) NOT NULL DEFAULT '',
			fr_profile                   VARCHAR(64) NOT NULL DEFAULT '',
			to_profile                   VARCHAR(64) NOT NULL DEFAULT '',
			transaction_type             VARCHAR(128) NOT NULL DEFAULT '',
			original_amount              DECIMAL(20,4) NOT NULL DEFAULT 0,
			fee                          DECIMAL(20,4) NOT NULL DEFAULT 0,
			commission_all               DECIMAL(20,4) NOT NULL DEFAULT 0,
			commission_distributeur      DECIMAL(20,4) NULL,
			commission_sous_distributeur DECIMAL(20,4) NULL,
			commission_revendeur         DECIMAL(20,4) NULL,
			commission_marchand          DECIMAL(20,4) NULL,
			merchants_online_cash_in     VARCHAR(128) NOT NULL DEFAULT '',
			import_session_id            VARCHAR(64) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id            VARCHAR(64) PRIMARY KEY,
			file_name     VARCHAR(255) NOT NULL DEFAULT '',
			file_size     BIGINT NOT NULL DEFAULT 0,
			total_rows    BIGINT NOT NULL DEFAULT 0,
			valid_rows    BIGINT NOT NULL DEFAULT 0,
			imported_rows BIGINT NOT NULL DEFAULT 0,
			status        VARCHAR(16) NOT NULL,
			error_message TEXT NULL,
			created_at    DATETIME NOT NULL,
			finished_at   DATETIME NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mysql: ensure schema: %w", err)
		}
	}
	return nil
}

// InsertTransactions writes the batch as one multi-row INSERT IGNORE and
// returns the number of rows actually inserted.
func (r *Repository) InsertTransactions(ctx context.Context, txs []record.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	const nCols = 16
	var (
		sb   strings.Builder
		args = make([]any, 0, len(txs)*nCols)
	)
	sb.WriteString(`INSERT IGNORE INTO transactions (
		transaction_id, transaction_initiated_time, frmsisdn, tomsisdn,
		fr_profile, to_profile, transaction_type,
		original_amount, fee, commission_all,
		commission_distributeur, commission_sous_distributeur,
		commission_revendeur, commission_marchand,
		merchants_online_cash_in, import_session_id
	) VALUES `)

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", nCols), ",") + ")"
	for i := range txs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(placeholder)
		tx := &txs[i]
		args = append(args,
			tx.TransactionID,
			nullTime(tx.InitiatedAt),
			tx.FrMSISDN, tx.ToMSISDN,
			tx.FrProfile, tx.ToProfile, tx.TransactionType,
			tx.OriginalAmount.String(), tx.Fee.String(), tx.CommissionAll.String(),
			nullDec(tx.CommissionDistributeur), nullDec(tx.CommissionSousDistributeur),
			nullDec(tx.CommissionRevendeur), nullDec(tx.CommissionMarchand),
			tx.MerchantsOnlineCashIn, tx.ImportSessionID,
		)
	}

	res, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("mysql: insert ignore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql: rows affected: %w", err)
	}
	return n, nil
}

// CountTransactions returns the total number of stored transactions.
func (r *Repository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("mysql: count: %w", err)
	}
	return n, nil
}

// CreateSession inserts a fresh session row.
func (r *Repository) CreateSession(ctx context.Context, s *record.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO import_sessions (id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at)
		 VALUES (?,?,?,?,?,?,?,NULLIF(?,''),?)`,
		s.ID, s.FileName, s.FileSize, s.TotalRows, s.ValidRows, s.ImportedRows,
		string(s.Status), s.ErrorMessage, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("mysql: create session: %w", err)
	}
	return nil
}

// AddImportedRows bumps the imported counter after a committed batch.
func (r *Repository) AddImportedRows(ctx context.Context, sessionID string, delta int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_sessions SET imported_rows = imported_rows + ? WHERE id = ?`, delta, sessionID)
	if err != nil {
		return fmt.Errorf("mysql: add imported rows: %w", err)
	}
	return nil
}

// FinalizeSession writes the terminal counters, status, and error message.
func (r *Repository) FinalizeSession(ctx context.Context, s *record.Session) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_sessions
		 SET total_rows=?, valid_rows=?, imported_rows=?, status=?, error_message=NULLIF(?,''), finished_at=?
		 WHERE id=?`,
		s.TotalRows, s.ValidRows, s.ImportedRows, string(s.Status), s.ErrorMessage, nullTime(s.FinishedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("mysql: finalize session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (*record.Session, error) {
	var (
		s        record.Session
		status   string
		errMsg   sql.NullString
		finished sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_size, total_rows, valid_rows, imported_rows, status, error_message, created_at, finished_at
		 FROM import_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.FileName, &s.FileSize, &s.TotalRows, &s.ValidRows, &s.ImportedRows, &status, &errMsg, &s.CreatedAt, &finished)
	if err != nil {
		return nil, fmt.Errorf("mysql: get session: %w", err)
	}
	s.Status = record.Status(status)
	s.ErrorMessage = errMsg.String
	if finished.Valid {
		s.FinishedAt = finished.Time
	}
	return &s, nil
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
