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

	"github.com/dgallion1/talkturns/internal/api"
	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/pathstore"
	"github.com/dgallion1/talkturns/internal/pipeline"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the upload job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seg, err := newSegmenter(cfg, log)
	if err != nil {
		return err
	}
	m := metrics.New()

	newSink, store, closers, err := openJobSink(ctx, cfg)
	if err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(cfg, seg, newSink, m, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, m, store, log, cfg)
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
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		for _, c := range closers {
			c()
		}
	}()

	log.Info("starting talkturns",
		"port", cfg.Port,
		"languages", seg.Library().Languages(),
		"workers", cfg.WorkerCount,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// jobDestination names where uploaded jobs write their turns. Postgres wins
// over pathstore, and CSV files are the fallback, matching the segment command.
func jobDestination(cfg config.Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.PathstoreURL != "":
		return "pathstore"
	default:
		return "csv"
	}
}

// openJobSink opens the destination picked by jobDestination. The returned
// pathstore is nil unless pathstore is that destination, so the turns
// endpoints never read from a store no job writes to.
func openJobSink(ctx context.Context, cfg config.Config) (pipeline.SinkFactory, *sink.Pathstore, []func() error, error) {
	switch jobDestination(cfg) {
	case "postgres":
		pg, err := sink.OpenPostgres(ctx, cfg.DatabaseURL, cfg.TurnsTable)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.EnsureTable(ctx, false); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		return pipeline.Shared(pg, "postgres:"+cfg.TurnsTable), nil, []func() error{pg.Close}, nil
	case "pathstore":
		store := sink.NewPathstore(pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey))
		return pipeline.Shared(store, "pathstore:"+sink.KeyPrefix), store, []func() error{store.Close}, nil
	default:
		return pipeline.CSVFiles(cfg.OutputDir), nil, nil, nil
	}
}
