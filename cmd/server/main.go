package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psylab/epochsync/internal/api"
	"github.com/psylab/epochsync/internal/config"
	"github.com/psylab/epochsync/internal/pipeline"
	"github.com/psylab/epochsync/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.SyncOptionsFile != "" {
		opts, err := config.LoadSyncOptions(cfg.SyncOptionsFile)
		if err != nil {
			log.Error("failed to load sync options", "file", cfg.SyncOptionsFile, "error", err)
			os.Exit(1)
		}
		cfg.Sync = opts
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := store.New(cfg.ResultsDir)
	if err != nil {
		log.Error("failed to open results store", "dir", cfg.ResultsDir, "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(cfg, results, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, results, log, cfg)

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

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		results.Close()
	}()

	log.Info("starting epochsync", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
