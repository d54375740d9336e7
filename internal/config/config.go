// Package config defines the JSON-serializable server configuration. It is
// intentionally small, explicit, and dependency-free so a config can be
// loaded from disk and passed through the program without glue code;
// decoding is performed by the standard library, with a light Options
// helper for typed access to free-form option bags.
//
// Environment variables override file values 12-factor style; see Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level server configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `json:"addr"`

	// Storage selects the backing transaction store.
	Storage Storage `json:"storage"`

	// Metrics selects an optional metrics backend.
	Metrics Metrics `json:"metrics"`

	// CSV carries default parser options (delimiter, encoding) applied to
	// every upload unless the request overrides them.
	CSV Options `json:"csv"`
}

// Storage selects the persistence backend.
type Storage struct {
	// Kind is one of "postgres", "sqlite", "mysql".
	Kind string `json:"kind"`

	// DSN is the driver connection string.
	DSN string `json:"dsn"`

	// AutoCreate creates the tables at startup when missing.
	AutoCreate bool `json:"auto_create"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Kind is "" (disabled), "prometheus", or "datadog".
	Kind string `json:"kind"`

	// Options is interpreted by the selected backend: "gateway_url" and
	// "job" for prometheus, "addr"/"namespace" for datadog.
	Options Options `json:"options"`
}

// Load reads a JSON config file (path may be empty for defaults) and applies
// environment overrides: ADDR, STORAGE_KIND, STORAGE_DSN.
func Load(path string) (Config, error) {
	cfg := Config{
		Addr:    ":8080",
		Storage: Storage{Kind: "sqlite", DSN: "file:momoimport.db", AutoCreate: true},
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("STORAGE_KIND"); v != "" {
		cfg.Storage.Kind = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	return cfg, nil
}

// Options fetches typed values from arbitrary JSON maps without introducing
// third-party configuration libraries. It performs only minimal type
// coercion and returns the provided default when a key is absent or of an
// unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// so this accepts float64 and casts.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def when missing
// or empty. Useful for single-character settings such as a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null options object decode to a non-nil,
// empty map so call sites need no nil checks.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
