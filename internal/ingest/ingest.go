// Package ingest contains the telemetry ingestion adapters.
//
// Exactly one adapter is active per process, selected by configuration. The
// stream adapter consumes a push-style [flight.Source]; the socket adapter
// reads newline-delimited JSON frames from a local bridge socket. Both write
// into the shared state store and nothing else ever does.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helios-aero/telemd/config"
	"github.com/helios-aero/telemd/internal/flight/sim"
	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

// Adapter drives one ingestion backend.
type Adapter interface {
	// Run ingests telemetry into st until ctx is cancelled or the adapter
	// reaches a terminal state. It returns nil on clean shutdown and an
	// error when the backend failed permanently for this process run.
	Run(ctx context.Context, st *state.Store) error
}

// New builds the adapter selected by cfg.Backend.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (Adapter, error) {
	switch cfg.Backend {
	case config.BackendSim:
		return NewStreamAdapter(sim.New(), StreamConfig{
			Address:         cfg.Address,
			ConnectTimeout:  cfg.ConnectTimeout.Duration(),
			TelemetryRateHz: cfg.TelemetryRateHz,
		}, m, logger), nil

	case config.BackendBridge:
		return NewSocketAdapter(SocketConfig{
			Path:             cfg.SocketPath,
			ReconnectBackoff: cfg.ReconnectBackoff.Duration(),
		}, m, logger), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
