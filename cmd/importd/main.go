// importd is the long-running import service. It serves the upload and
// progress endpoints over the configured storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"momoimport/internal/config"
	"momoimport/internal/csvio"
	"momoimport/internal/metrics"
	"momoimport/internal/metrics/datadog"
	"momoimport/internal/metrics/prompush"
	"momoimport/internal/progress"
	"momoimport/internal/store"
	"momoimport/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	addr := flag.String("addr", "", "listen address, overrides config")
	flag.Parse()

	// Local convenience only; the file is absent in most deployments.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("importd: load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx := context.Background()

	repo, err := store.New(ctx, store.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Fatalf("importd: open storage %q: %v", cfg.Storage.Kind, err)
	}
	defer repo.Close()

	if cfg.Storage.AutoCreate {
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("importd: ensure schema: %v", err)
		}
	}

	if err := setupMetrics(cfg.Metrics); err != nil {
		log.Fatalf("importd: metrics backend %q: %v", cfg.Metrics.Kind, err)
	}
	defer metrics.Flush()

	csvOpts := csvio.Options{
		Delimiter:    cfg.CSV.Rune("delimiter", 0),
		Encoding:     cfg.CSV.String("encoding", ""),
		StrictQuotes: cfg.CSV.Bool("strict_quotes", false),
	}

	srv := web.NewServer(web.Config{Addr: cfg.Addr, CSV: csvOpts}, repo, progress.NewMemory())
	log.Printf("importd: listening on %s (storage=%s)", cfg.Addr, cfg.Storage.Kind)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("importd: serve: %v", err)
	}
}

func setupMetrics(mc config.Metrics) error {
	switch mc.Kind {
	case "", "none":
		return nil
	case "prometheus", "pushgateway":
		b, err := prompush.NewBackend(mc.Options.String("job", "momoimport"), mc.Options.String("gateway_url", "http://localhost:9091"))
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		return nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:      mc.Options.String("addr", "127.0.0.1:8125"),
			Namespace: mc.Options.String("namespace", "momoimport"),
		})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		return nil
	default:
		return fmt.Errorf("unknown metrics kind %q", mc.Kind)
	}
}
