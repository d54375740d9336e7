// Package record defines the canonical data model shared by the import
// pipeline: the normalized mobile-money transaction and the import-session
// bookkeeping record.
//
// Every upload mode, storage backend, and report consumer speaks this model.
// CSV headers, delimiters, and encodings vary wildly between operator
// exports; nothing upstream of the normalizer should leak past this package.
package record

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one normalized mobile-money transaction.
//
// String fields use "" as the canonical absent value. The three commission
// breakdown fields conflate absent and zero in the source exports, so they
// are carried as NullDecimal and stored as NULL in both cases.
type Transaction struct {
	// TransactionID is the unique business identifier. Uniqueness across the
	// whole store is enforced by insert-if-absent, never by erroring.
	TransactionID string

	// InitiatedAt is when the transaction started. The zero value means the
	// source date could not be parsed; strict policies reject such rows.
	InitiatedAt time.Time

	FrMSISDN  string // sender phone identifier
	ToMSISDN  string // receiver phone identifier
	FrProfile string
	ToProfile string

	TransactionType string

	OriginalAmount decimal.Decimal
	Fee            decimal.Decimal
	CommissionAll  decimal.Decimal

	CommissionDistributeur     decimal.NullDecimal
	CommissionSousDistributeur decimal.NullDecimal
	CommissionRevendeur        decimal.NullDecimal
	CommissionMarchand         decimal.NullDecimal

	MerchantsOnlineCashIn string

	// ImportSessionID is assigned at commit time, not by the normalizer.
	ImportSessionID string
}

// Status is the terminal state of an import session.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Session tracks one file-ingestion run.
//
// Lifecycle: created by the stream driver before the first row is processed,
// counter-updated by the batch committer after each flush, finalized by the
// driver (or the failure path) exactly once. The pipeline never deletes
// sessions; cleanup is an administrative operation elsewhere.
type Session struct {
	ID       string
	FileName string
	FileSize int64

	// TotalRows counts every non-empty data line seen, including rows that
	// failed to parse or validate.
	TotalRows int64

	// ValidRows counts rows that passed the validator for this run.
	ValidRows int64

	// ImportedRows counts rows actually persisted: valid rows minus
	// duplicates the store already held.
	ImportedRows int64

	Status       Status
	ErrorMessage string

	CreatedAt  time.Time
	FinishedAt time.Time
}
