// Package columns maps arbitrary CSV header rows onto the logical transaction
// schema. Operator exports disagree on header spelling ("Transaction ID",
// "transaction_id", "TRANSACTION_ID", ...), so resolution walks a declarative
// alias table instead of scattering string literals through the pipeline.
//
// Matching is exact-case after trimming edge whitespace. That mirrors the
// behavior of the exports this pipeline was built against; do not case-fold
// without revisiting the alias table.
package columns

import "strings"

// Logical field names. These double as canonical column names in storage.
const (
	FieldTransactionID   = "transaction_id"
	FieldInitiatedTime   = "transaction_initiated_time"
	FieldFrMSISDN        = "frmsisdn"
	FieldToMSISDN        = "tomsisdn"
	FieldFrProfile       = "fr_profile"
	FieldToProfile       = "to_profile"
	FieldTransactionType = "transaction_type"
	FieldOriginalAmount  = "original_amount"
	FieldFee             = "fee"
	FieldCommissionAll   = "commission_all"
	FieldCommissionDist  = "commission_distributeur"
	FieldCommissionSous  = "commission_sous_distributeur"
	FieldCommissionRev   = "commission_revendeur"
	FieldCommissionMarch = "commission_marchand"
	FieldMerchantsCashIn = "merchants_online_cash_in"
)

// alias pairs one logical field with its known raw header spellings, in
// priority order: earlier spellings are preferred when a file carries
// more than one of them.
type alias struct {
	Field string
	Names []string
}

// aliasTable is data, not code. Extending support for a new export format
// means adding a spelling here, nowhere else.
var aliasTable = []alias{
	{FieldTransactionID, []string{"Transaction ID", "transaction_id", "TransactionID", "TRANSACTION_ID", "Transaction Id", "Id Transaction", "ID"}},
	{FieldInitiatedTime, []string{"Transaction Initiated Time", "transaction_initiated_time", "TransactionInitiatedTime", "Initiated Time", "Transaction Date", "Date Transaction", "Date"}},
	{FieldFrMSISDN, []string{"FRMSISDN", "frmsisdn", "From MSISDN", "FR_MSISDN", "Sender", "Expediteur"}},
	{FieldToMSISDN, []string{"TOMSISDN", "tomsisdn", "To MSISDN", "TO_MSISDN", "Receiver", "Destinataire"}},
	{FieldFrProfile, []string{"FRPROFILE", "fr_profile", "From Profile", "FR_PROFILE", "FrProfile"}},
	{FieldToProfile, []string{"TOPROFILE", "to_profile", "To Profile", "TO_PROFILE", "ToProfile"}},
	{FieldTransactionType, []string{"Transaction Type", "transaction_type", "TransactionType", "TRANSACTION_TYPE", "Type"}},
	{FieldOriginalAmount, []string{"Original Amount", "original_amount", "OriginalAmount", "ORIGINAL_AMOUNT", "Amount", "Montant"}},
	{FieldFee, []string{"Fee", "fee", "FEE", "Frais", "Transaction Fee"}},
	{FieldCommissionAll, []string{"Commission ALL", "commission_all", "CommissionALL", "Commission All", "Commission"}},
	{FieldCommissionDist, []string{"Commission Distributeur", "commission_distributeur", "CommissionDistributeur", "COMMISSION_DISTRIBUTEUR"}},
	{FieldCommissionSous, []string{"Commission Sous Distributeur", "commission_sous_distributeur", "CommissionSousDistributeur", "COMMISSION_SOUS_DISTRIBUTEUR"}},
	{FieldCommissionRev, []string{"Commission Revendeur", "commission_revendeur", "CommissionRevendeur", "COMMISSION_REVENDEUR"}},
	{FieldCommissionMarch, []string{"Commission Marchand", "commission_marchand", "CommissionMarchand", "COMMISSION_MARCHAND"}},
	{FieldMerchantsCashIn, []string{"Merchants Online Cash In", "merchants_online_cash_in", "MerchantsOnlineCashIn", "MERCHANTS_ONLINE_CASH_IN"}},
}

// Fields returns the logical fields in canonical order. The order doubles as
// the positional layout assumed for header-less files.
func Fields() []string {
	out := make([]string, len(aliasTable))
	for i, a := range aliasTable {
		out[i] = a.Field
	}
	return out
}

// Critical lists the fields a file must expose (by any alias) before a
// header-driven import can proceed.
func Critical() []string {
	return []string{FieldTransactionID, FieldOriginalAmount}
}

// Mapping is the result of resolving one header row. It is built once per
// file and holds no state beyond that file's processing.
type Mapping struct {
	index map[string][]int
	raw   []string
}

// Resolve maps a raw header row onto logical fields. Headers are trimmed
// before comparison and the first occurrence of a duplicated header wins.
// A field keeps every matching alias index, in alias priority order, so
// that Value can fall back to a lower-priority column when the preferred
// cell is empty on a given row.
func Resolve(header []string) Mapping {
	raw := make([]string, len(header))
	byName := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		raw[i] = h
		if _, seen := byName[h]; !seen {
			byName[h] = i
		}
	}

	m := Mapping{index: make(map[string][]int, len(aliasTable)), raw: raw}
	for _, a := range aliasTable {
		for _, name := range a.Names {
			if ix, ok := byName[name]; ok {
				m.index[a.Field] = append(m.index[a.Field], ix)
			}
		}
	}
	return m
}

// Positional returns the fallback mapping for header-less files: logical
// fields are assumed to appear in canonical order, one per column.
func Positional() Mapping {
	m := Mapping{index: make(map[string][]int, len(aliasTable))}
	for i, a := range aliasTable {
		m.index[a.Field] = []int{i}
	}
	return m
}

// Index reports the primary source column index for a logical field.
func (m Mapping) Index(field string) (int, bool) {
	ixs, ok := m.index[field]
	if !ok || len(ixs) == 0 {
		return 0, false
	}
	return ixs[0], true
}

// Value extracts the cell for a logical field from a raw CSV record,
// trimmed. When several header spellings matched the field, the first
// non-empty cell in priority order wins. Missing mappings and short
// records yield "".
func (m Mapping) Value(rec []string, field string) string {
	for _, ix := range m.index[field] {
		if ix < 0 || ix >= len(rec) {
			continue
		}
		if v := strings.TrimSpace(rec[ix]); v != "" {
			return v
		}
	}
	return ""
}

// Raw returns the trimmed header row as seen in the file. Used for 400
// diagnostics so callers can fix their exports.
func (m Mapping) Raw() []string { return m.raw }

// Missing reports which of the given logical fields did not resolve.
func (m Mapping) Missing(fields ...string) []string {
	var out []string
	for _, f := range fields {
		if _, ok := m.index[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}
