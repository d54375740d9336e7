// momo-import runs one import from the command line and prints the summary
// as JSON. It is the scripting counterpart of the importd service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"momoimport/internal/csvio"
	"momoimport/internal/importer"
	"momoimport/internal/store"
)

func main() {
	var (
		modeName  = flag.String("mode", "standard", "import mode: "+strings.Join(importer.ModeNames(), ", "))
		filePath  = flag.String("file", "", "CSV file to import (required)")
		kind      = flag.String("storage", envOr("STORAGE_KIND", "sqlite"), "storage backend: postgres, sqlite, mysql")
		dsn       = flag.String("dsn", envOr("STORAGE_DSN", "file:momoimport.db"), "storage DSN")
		delimiter = flag.String("delimiter", "", "field delimiter, empty to sniff")
		encoding  = flag.String("encoding", "", "input encoding: utf-8 (default), latin1, windows-1252")
		create    = flag.Bool("create", true, "create tables if missing")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *filePath == "" {
		log.Fatal("momo-import: -file is required")
	}
	mode, ok := importer.Mode(*modeName)
	if !ok {
		log.Fatalf("momo-import: unknown mode %q (have: %s)", *modeName, strings.Join(importer.ModeNames(), ", "))
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("momo-import: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("momo-import: %v", err)
	}

	ctx := context.Background()
	repo, err := store.New(ctx, store.Config{Kind: *kind, DSN: *dsn})
	if err != nil {
		log.Fatalf("momo-import: open storage: %v", err)
	}
	defer repo.Close()
	if *create {
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("momo-import: ensure schema: %v", err)
		}
	}

	opt := csvio.Options{Encoding: *encoding}
	if *delimiter != "" {
		opt.Delimiter = rune((*delimiter)[0])
	}

	drv := &importer.Driver{Mode: mode, Repo: repo, CSV: opt}
	res, err := drv.Run(ctx, f, info.Name(), info.Size())
	if err != nil {
		if ie, ok := importer.IsInputError(err); ok {
			log.Fatalf("momo-import: rejected: %s (columns: %s)", ie.Reason, strings.Join(ie.AvailableColumns, ", "))
		}
		log.Fatalf("momo-import: %v", err)
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
