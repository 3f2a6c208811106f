package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/planmark/internal/api"
	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/catalog/memstore"
	"github.com/dgallion1/planmark/internal/catalog/sqlite"
	"github.com/dgallion1/planmark/internal/config"
	"github.com/dgallion1/planmark/internal/editor"
	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/ingest"
	"github.com/dgallion1/planmark/internal/viewport"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the catalog.
	store, stats, err := openCatalog(cfg)
	if err != nil {
		log.Error("catalog unavailable", "backend", cfg.CatalogBackend, "error", err)
		os.Exit(1)
	}
	log.Info("catalog ready", "backend", cfg.CatalogBackend)

	retry := errreport.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	sessions := editor.NewRegistry(store, editor.Config{
		PanThreshold: cfg.PanThreshold,
		MinArea:      cfg.MinArea,
		HandleSize:   cfg.HandleSize,
		Zoom:         viewport.Bounds{Min: cfg.MinZoom, Max: cfg.MaxZoom},
		Retry:        retry,
		HistorySize:  cfg.ErrorHistorySize,
	}, cfg.SessionTTL, log)
	go sessions.Run(ctx)

	// Initialize ingestion.
	ingestLog := log.With("component", "ingest")
	rep := errreport.NewReporter(errreport.Config{Retry: retry, HistorySize: cfg.ErrorHistorySize}, ingestLog)
	orch := ingest.NewOrchestrator(cfg, store, rep, ingestLog)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(sessions, store, orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		cancel()
		store.Close()
	}()

	log.Info("starting planmark", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openCatalog returns the configured backend. Latency stats are only kept
// for the remote catalog.
func openCatalog(cfg config.Config) (catalog.Store, *catalog.LatencyStats, error) {
	switch cfg.CatalogBackend {
	case config.BackendHTTP:
		c := catalog.NewClient(cfg.CatalogURL, cfg.CatalogAPIKey)
		return c, c.Stats(), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.BackendMemory:
		return memstore.New(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
}
