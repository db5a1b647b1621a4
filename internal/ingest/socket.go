package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

const (
	// socketReadTimeout bounds a single read; a bridge that goes quiet for
	// this long is treated as disconnected.
	socketReadTimeout = 5 * time.Second

	socketReadBufSize = 4096
)

// SocketConfig configures a [SocketAdapter].
type SocketConfig struct {
	// Path is the unix socket the bridge process writes to.
	Path string

	// ReconnectBackoff is the fixed delay between reconnect attempts.
	ReconnectBackoff time.Duration
}

// SocketAdapter ingests newline-delimited JSON telemetry frames from a local
// bridge socket.
//
// The adapter never reaches a terminal state: any connect failure, read
// error, timeout or EOF sends it back into a reconnect loop with a fixed
// backoff, for the life of the process. Lines that are not valid JSON are
// dropped without disturbing the connection.
type SocketAdapter struct {
	cfg     SocketConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSocketAdapter creates a socket adapter.
func NewSocketAdapter(cfg SocketConfig, m *metrics.Metrics, logger *slog.Logger) *SocketAdapter {
	return &SocketAdapter{cfg: cfg, metrics: m, logger: logger}
}

// frame is one decoded bridge line. Each group is optional; a frame carries
// any subset and only the groups present end up in the patch.
type frame struct {
	Position *state.Position `json:"position"`
	Attitude *state.Attitude `json:"attitude"`
	Battery  *state.Battery  `json:"battery"`
}

// Run implements [Adapter]. It returns only when ctx is cancelled.
func (a *SocketAdapter) Run(ctx context.Context, st *state.Store) error {
	var dialer net.Dialer

	for {
		if ctx.Err() != nil {
			return nil
		}

		st.Apply(state.Patch{Connecting: boolPtr(true), Connected: boolPtr(false)})

		conn, err := dialer.DialContext(ctx, "unix", a.cfg.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("bridge socket unreachable",
				"path", a.cfg.Path,
				"error", err,
				"retry_in", a.cfg.ReconnectBackoff.String(),
			)
			st.Apply(state.Patch{Connecting: boolPtr(false), Connected: boolPtr(false)})
			a.metrics.SocketReconnects.Inc()
			if !a.sleep(ctx) {
				return nil
			}
			continue
		}

		now := time.Now().UTC()
		st.Apply(state.Patch{
			Connecting: boolPtr(false),
			Connected:  boolPtr(true),
			StartedAt:  &now,
		})
		a.logger.Info("connected to bridge socket", "path", a.cfg.Path)

		err = a.readFrames(ctx, conn, st)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}

		a.logger.Warn("bridge connection lost",
			"error", err,
			"retry_in", a.cfg.ReconnectBackoff.String(),
		)
		st.Apply(state.Patch{Connecting: boolPtr(false), Connected: boolPtr(false)})
		a.metrics.SocketReconnects.Inc()
		if !a.sleep(ctx) {
			return nil
		}
	}
}

// readFrames accumulates raw bytes, splits them on newlines and applies each
// decodable frame. It returns the read error that ended the connection.
func (a *SocketAdapter) readFrames(ctx context.Context, conn net.Conn, st *state.Store) error {
	buf := make([]byte, socketReadBufSize)
	var acc []byte

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(socketReadTimeout)); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			acc = a.drainLines(acc, st)
		}
		if err != nil {
			// EOF, timeout and socket errors all mean connection loss here
			return err
		}
	}
}

// drainLines applies every complete line in acc and returns the unconsumed
// remainder (a partial line, kept for the next read).
func (a *SocketAdapter) drainLines(acc []byte, st *state.Store) []byte {
	for {
		i := bytes.IndexByte(acc, '\n')
		if i < 0 {
			return acc
		}
		line := bytes.TrimSpace(acc[:i])
		acc = acc[i+1:]
		if len(line) == 0 {
			continue
		}
		a.applyLine(line, st)
	}
}

// applyLine decodes one line and patches the store with the groups present.
// Undecodable lines are dropped silently (counted, not logged: a chatty
// bridge would flood the log).
func (a *SocketAdapter) applyLine(line []byte, st *state.Store) {
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		a.metrics.LinesDropped.Inc()
		return
	}
	if f.Position == nil && f.Attitude == nil && f.Battery == nil {
		return
	}

	st.Apply(state.Patch{
		Position: f.Position,
		Attitude: f.Attitude,
		Battery:  f.Battery,
	})

	if f.Position != nil {
		a.metrics.FramesIngested.WithLabelValues("position").Inc()
	}
	if f.Attitude != nil {
		a.metrics.FramesIngested.WithLabelValues("attitude").Inc()
	}
	if f.Battery != nil {
		a.metrics.FramesIngested.WithLabelValues("battery").Inc()
	}
}

// sleep waits out the reconnect backoff. It returns false if ctx was
// cancelled while waiting.
func (a *SocketAdapter) sleep(ctx context.Context) bool {
	select {
	case <-time.After(a.cfg.ReconnectBackoff):
		return true
	case <-ctx.Done():
		return false
	}
}
