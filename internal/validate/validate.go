// Package validate decides whether a normalized transaction is admissible
// for storage. Admission rules are named policies; every upload mode pins
// one. Rejections return a reason string for aggregate diagnostics, and are
// never persisted per-row.
package validate

import (
	"fmt"

	"momoimport/internal/normalize"
)

// Policy is a named admission rule set for normalized rows.
type Policy struct {
	Name string

	// RequireMSISDN rejects rows with an empty sender or receiver.
	RequireMSISDN bool

	// RequireAmount rejects rows whose original amount failed coercion or is
	// negative.
	RequireAmount bool

	// PositiveAmount additionally rejects zero amounts. Implies the
	// RequireAmount checks.
	PositiveAmount bool

	// RequireDate rejects rows whose initiated time failed every layout,
	// even when a lenient normalizer substituted the current time.
	RequireDate bool
}

// The three policies the mode table chooses from.
var (
	Strict = Policy{
		Name:          "strict",
		RequireMSISDN: true,
		RequireAmount: true,
		RequireDate:   true,
	}

	StrictPositive = Policy{
		Name:           "strict-positive",
		RequireMSISDN:  true,
		RequireAmount:  true,
		PositiveAmount: true,
		RequireDate:    true,
	}

	Lenient = Policy{Name: "lenient"}
)

// Check reports whether the row is admissible, with a human-readable reason
// when it is not. Every policy requires a non-empty transaction id; the rest
// is per-policy.
func (p Policy) Check(res normalize.Result) (bool, string) {
	tx := res.Tx

	if tx.TransactionID == "" {
		return false, "transaction id missing"
	}
	if p.RequireDate && res.DateInvalid {
		return false, "invalid transaction initiated time"
	}
	if p.RequireMSISDN {
		if tx.FrMSISDN == "" {
			return false, "frmsisdn missing"
		}
		if tx.ToMSISDN == "" {
			return false, "tomsisdn missing"
		}
	}
	if p.RequireAmount || p.PositiveAmount {
		if res.AmountInvalid {
			return false, "original amount not a number"
		}
		if tx.OriginalAmount.IsNegative() {
			return false, fmt.Sprintf("original amount %s is negative", tx.OriginalAmount)
		}
		if p.PositiveAmount && tx.OriginalAmount.IsZero() {
			return false, "original amount must be greater than zero"
		}
	}
	return true, ""
}
