// Package normalize converts raw CSV cells into canonical transaction
// records. It owns all numeric and date coercion rules so that every upload
// mode produces identical records for identical logical input.
//
// Row-skip control flow is explicit: a row either yields a Result or a
// Rejection value. Nothing in this package panics on malformed input.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momoimport/internal/columns"
	"momoimport/internal/record"
)

// dateLayouts are tried in order; the first successful parse wins. The
// DD/MM/YYYY forms come first on purpose: the exports this pipeline ingests
// are French-convention, so "02/05/2025" is the 2nd of May.
var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006-01-02",
	time.RFC3339,
}

// Result carries the canonical record plus the coercion diagnostics the
// validator needs to apply its policy.
type Result struct {
	Tx record.Transaction

	// AmountInvalid is set when original_amount was present but failed
	// numeric coercion (e.g. "abc"). The amount itself is left at zero.
	AmountInvalid bool

	// DateInvalid is set when no date layout matched. Lenient normalizers
	// still fill InitiatedAt with the current time in that case.
	DateInvalid bool

	// IDGenerated is set when the transaction id was synthesized because the
	// source row had none.
	IDGenerated bool
}

// Rejection describes a row the normalizer could not produce a record for.
type Rejection struct {
	Line   int
	Reason string
}

// Normalizer turns one raw record (plus its resolved column mapping) into a
// Result. The zero value is a strict normalizer; lenient modes flip the
// defaulting knobs.
type Normalizer struct {
	// SynthesizeID permits generating a transaction id when the source row
	// has none. Lenient/best-effort modes only.
	SynthesizeID bool

	// DefaultDateToNow fills an unparseable initiated time with the current
	// time instead of leaving it zero.
	DefaultDateToNow bool

	// PlaceholderMSISDN substitutes empty sender/receiver identifiers.
	// Empty means leave them empty.
	PlaceholderMSISDN string

	// Now is a clock seam for tests; nil means time.Now.
	Now func() time.Time
}

// Row normalizes a raw CSV record. It never fails outright: coercion
// problems surface as Result flags for the validator to judge. The returned
// Rejection is reserved for rows that cannot even be addressed (currently
// only an empty record).
func (n *Normalizer) Row(rec []string, m columns.Mapping) (Result, *Rejection) {
	if len(rec) == 0 {
		return Result{}, &Rejection{Reason: "empty record"}
	}

	var res Result
	tx := &res.Tx

	tx.TransactionID = m.Value(rec, columns.FieldTransactionID)
	if tx.TransactionID == "" && n.SynthesizeID {
		tx.TransactionID = n.generateID()
		res.IDGenerated = true
	}

	tx.FrMSISDN = n.msisdn(m.Value(rec, columns.FieldFrMSISDN))
	tx.ToMSISDN = n.msisdn(m.Value(rec, columns.FieldToMSISDN))
	tx.FrProfile = m.Value(rec, columns.FieldFrProfile)
	tx.ToProfile = m.Value(rec, columns.FieldToProfile)
	tx.TransactionType = m.Value(rec, columns.FieldTransactionType)
	tx.MerchantsOnlineCashIn = m.Value(rec, columns.FieldMerchantsCashIn)

	tx.InitiatedAt, res.DateInvalid = n.date(m.Value(rec, columns.FieldInitiatedTime))

	if raw := m.Value(rec, columns.FieldOriginalAmount); raw == "" {
		res.AmountInvalid = true
	} else if d, ok := ParseAmount(raw); ok {
		tx.OriginalAmount = d
	} else {
		res.AmountInvalid = true
	}

	// Optional numerics coerce failures to zero, never reject.
	tx.Fee = amountOrZero(m.Value(rec, columns.FieldFee))
	tx.CommissionAll = amountOrZero(m.Value(rec, columns.FieldCommissionAll))

	tx.CommissionDistributeur = commission(m.Value(rec, columns.FieldCommissionDist))
	tx.CommissionSousDistributeur = commission(m.Value(rec, columns.FieldCommissionSous))
	tx.CommissionRevendeur = commission(m.Value(rec, columns.FieldCommissionRev))
	tx.CommissionMarchand = commission(m.Value(rec, columns.FieldCommissionMarch))

	return res, nil
}

func (n *Normalizer) msisdn(s string) string {
	if s == "" {
		return n.PlaceholderMSISDN
	}
	return s
}

func (n *Normalizer) date(s string) (t time.Time, invalid bool) {
	if s != "" {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, false
			}
		}
	}
	if n.DefaultDateToNow {
		return n.now(), true
	}
	return time.Time{}, true
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// generateID builds a transaction id unique within the process lifetime:
// wall-clock nanoseconds plus a random suffix.
func (n *Normalizer) generateID() string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("GEN-%d-%s", n.now().UnixNano(), suffix)
}

// ParseAmount coerces a raw cell into a decimal: internal whitespace
// (including NBSP thousands separators) is stripped and a comma decimal
// separator becomes a period. Reports ok=false when the result is not a
// finite number.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = stripSpaces(s)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, false
	}
	// Reject inf/nan spellings that strconv accepts but decimal chokes on,
	// and anything decimal itself cannot parse.
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// amountOrZero is ParseAmount for optional numeric fields: failures and
// blanks coerce to zero rather than invalidating the row.
func amountOrZero(s string) decimal.Decimal {
	if d, ok := ParseAmount(s); ok {
		return d
	}
	return decimal.Zero
}

// commission maps a commission-breakdown cell to its stored form: NULL when
// absent, unparseable, or zero. The source exports conflate zero and absent
// for these three fields; this is the one canonical rule for both.
func commission(s string) decimal.NullDecimal {
	d, ok := ParseAmount(s)
	if !ok || d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func stripSpaces(s string) string {
	if !strings.ContainsAny(s, " \t ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', ' ':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
