package importer

import (
	"time"

	"momoimport/internal/normalize"
	"momoimport/internal/validate"
)

// ModeConfig parameterizes one upload mode. Historically each mode was its
// own near-duplicate code path; here a single driver consumes a named entry
// from this table. Limits are deliberately per-mode, not global: callers
// pick modes for specific file shapes.
type ModeConfig struct {
	Name string

	// BatchSize is the commit batch threshold.
	BatchSize int

	// MaxBytes rejects the upload before any processing when the declared
	// file size exceeds it. 0 disables the check.
	MaxBytes int64

	// MaxRows aborts the run when the row count exceeds it. For pre-parsed
	// row bodies the check happens up front; for streams it fires mid-run
	// as a fatal error.
	MaxRows int64

	// Timeout is the wall-clock budget for one run. 0 means none.
	Timeout time.Duration

	// Policy is the row admission rule.
	Policy validate.Policy

	// PositionalFallback processes files with unrecognizable headers by
	// assuming canonical column order instead of aborting.
	PositionalFallback bool

	// IntraFileDedup disambiguates duplicate transaction ids within one
	// file by numeric suffix instead of letting the store drop them.
	IntraFileDedup bool

	// Normalizer defaulting knobs; lenient modes fill gaps instead of
	// letting the validator reject.
	SynthesizeID      bool
	DefaultDateToNow  bool
	PlaceholderMSISDN string
}

// normalizer builds the row normalizer this mode prescribes.
func (m ModeConfig) normalizer() *normalize.Normalizer {
	return &normalize.Normalizer{
		SynthesizeID:      m.SynthesizeID,
		DefaultDateToNow:  m.DefaultDateToNow,
		PlaceholderMSISDN: m.PlaceholderMSISDN,
	}
}

// modes is the full table of named upload modes.
var modes = map[string]ModeConfig{
	"standard": {
		Name:      "standard",
		BatchSize: 1000,
		MaxBytes:  100 << 20,
		MaxRows:   2_000_000,
		Policy:    validate.Strict,
	},
	"strict": {
		Name:      "strict",
		BatchSize: 5000,
		MaxBytes:  500 << 20,
		MaxRows:   5_000_000,
		Timeout:   5 * time.Minute,
		Policy:    validate.StrictPositive,
	},
	"lenient": {
		Name:               "lenient",
		BatchSize:          2000,
		MaxBytes:           200 << 20,
		MaxRows:            2_000_000,
		Timeout:            5 * time.Minute,
		Policy:             validate.Lenient,
		PositionalFallback: true,
		SynthesizeID:       true,
		DefaultDateToNow:   true,
		PlaceholderMSISDN:  "UNKNOWN",
	},
	"bigfile": {
		Name:      "bigfile",
		BatchSize: 10000,
		MaxBytes:  2 << 30,
		MaxRows:   10_000_000,
		Timeout:   10 * time.Minute,
		Policy:    validate.Strict,
	},
	"dedup": {
		Name:           "dedup",
		BatchSize:      5000,
		MaxBytes:       500 << 20,
		MaxRows:        5_000_000,
		Timeout:        10 * time.Minute,
		Policy:         validate.Strict,
		IntraFileDedup: true,
	},
	"async": {
		Name:      "async",
		BatchSize: 5000,
		MaxBytes:  1 << 30,
		MaxRows:   10_000_000,
		Timeout:   10 * time.Minute,
		Policy:    validate.Strict,
	},
}

// Mode looks up a named mode.
func Mode(name string) (ModeConfig, bool) {
	m, ok := modes[name]
	return m, ok
}

// ModeNames lists the configured modes, for diagnostics.
func ModeNames() []string {
	out := make([]string, 0, len(modes))
	for name := range modes {
		out = append(out, name)
	}
	return out
}
