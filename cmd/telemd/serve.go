package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helios-aero/telemd/config"
	"github.com/helios-aero/telemd/internal/ingest"
	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/server"
	"github.com/helios-aero/telemd/internal/state"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the telemetry service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telemetry service",
	Long: `Start the telemd telemetry service.

The service will:
  - Load configuration from the specified YAML file
  - Start the configured ingestion backend (simulated flight stack or
    bridge socket)
  - Serve REST snapshots and the WebSocket stream on the configured port

The service runs until interrupted (Ctrl+C) or receives SIGTERM. A failed
ingestion backend does not stop the service: clients keep receiving the
last known (possibly null) telemetry, with the failure visible on /status.

Example:
  telemd serve -c config.yaml
  telemd serve --config /etc/telemd/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"backend", string(cfg.Backend),
		"source", cfg.SourceAddress(),
		"push_rate_hz", cfg.PushRateHz,
	)

	st := state.NewStore()
	m := metrics.New()

	adapter, err := ingest.New(cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create ingestion backend: %w", err)
	}

	srv := server.New(st, server.StatusInfo{
		Backend:       string(cfg.Backend),
		SourceAddress: cfg.SourceAddress(),
		PushRateHz:    cfg.PushRateHz,
	}, cfg.Port, m, logger)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info("server listening",
		"port", cfg.Port,
		"docs", fmt.Sprintf("http://localhost:%d/docs", cfg.Port),
		"stream", fmt.Sprintf("ws://localhost:%d/telemetry/stream", cfg.Port),
	)

	ingestErr := make(chan error, 1)
	go func() { ingestErr <- adapter.Run(ctx, st) }()

	select {
	case err := <-ingestErr:
		if err != nil {
			// terminal ingestion failure: keep serving the last known
			// (possibly null) telemetry until shutdown
			logger.Error("ingestion stopped, serving stale telemetry", "error", err)
		}
		<-ctx.Done()

	case <-ctx.Done():
		// signal received, wait for ingestion to wind down
		select {
		case <-ingestErr:
		case <-time.After(shutdownTimeout):
			logger.Warn("ingestion did not stop in time",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
