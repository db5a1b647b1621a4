package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

// streamWriteTimeout bounds each push write. A client that stops reading
// would otherwise block the write forever once kernel send buffers fill,
// leaking the session goroutine.
const streamWriteTimeout = 10 * time.Second

// handleStream upgrades the connection and runs one distribution session
// for its lifetime.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		s.logger.Warn("stream upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:           uuid.NewString(),
		conn:         conn,
		store:        s.store,
		interval:     s.pushInterval,
		writeTimeout: streamWriteTimeout,
		metrics:      s.metrics,
		logger:       s.logger,
	}
	sess.run(r.Context())
}

// controlMessage is the inbound filter message a stream client may send:
//
//	{"subscribe": ["position"]}             - only position
//	{"subscribe": ["attitude", "battery"]}  - attitude + battery
//	{"subscribe": ["all"]}                  - everything (the initial state)
type controlMessage struct {
	Subscribe []string `json:"subscribe"`
}

// session is one connected stream client. Sessions are fully independent:
// filter changes, disconnects and slow clients are local to one session and
// never affect ingestion or other sessions.
type session struct {
	id           string
	conn         *websocket.Conn
	store        *state.Store
	interval     time.Duration
	writeTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	// filter is the session's group filter. nil means unrestricted (all
	// groups); an empty non-nil set means the client filtered everything
	// out and receives only last_updated until corrected.
	filter map[state.Key]struct{}
}

// run pushes snapshots at the configured cadence until the client goes away
// or the server shuts down.
func (sess *session) run(ctx context.Context) {
	defer sess.conn.Close()

	sess.metrics.ActiveSessions.Inc()
	defer sess.metrics.ActiveSessions.Dec()
	sess.logger.Debug("stream session started", "session", sess.id)

	control := make(chan controlMessage, 8)
	go sess.readControl(control)

	ticker := time.NewTicker(sess.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !sess.drainControl(control) {
				sess.logger.Debug("stream session closed by client", "session", sess.id)
				return
			}
			// a stalled client fails the write instead of parking it
			_ = sess.conn.SetWriteDeadline(time.Now().Add(sess.writeTimeout))
			if err := sess.conn.WriteJSON(sess.snapshot()); err != nil {
				sess.logger.Debug("stream session ended", "session", sess.id, "error", err)
				return
			}
			sess.metrics.FramesPushed.Inc()

		case <-ctx.Done():
			sess.logger.Debug("stream session cancelled", "session", sess.id)
			return
		}
	}
}

// readControl is the session's read pump. It forwards filter messages until
// the connection errors, then closes the channel to signal client departure.
// Messages that are not JSON or carry no subscribe list are ignored.
func (sess *session) readControl(control chan<- controlMessage) {
	defer close(control)
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Subscribe == nil {
			continue
		}
		select {
		case control <- msg:
		default:
			// a client flooding control messages between ticks only
			// overwrites its own filter; dropping extras is harmless
		}
	}
}

// drainControl applies all pending filter messages without blocking. It
// returns false when the control channel is closed (client disconnected).
func (sess *session) drainControl(control <-chan controlMessage) bool {
	for {
		select {
		case msg, ok := <-control:
			if !ok {
				return false
			}
			sess.applyFilter(msg.Subscribe)
		default:
			return true
		}
	}
}

// applyFilter updates the session filter from a subscribe list. The sentinel
// "all" resets to unrestricted; otherwise the filter becomes the intersection
// of the requested names with the valid telemetry groups, dropping unknown
// names silently.
func (sess *session) applyFilter(names []string) {
	filter := make(map[state.Key]struct{}, len(names))
	for _, name := range names {
		if name == "all" {
			sess.filter = nil
			return
		}
		if key, ok := state.TelemetryGroup(name); ok {
			filter[key] = struct{}{}
		}
	}
	sess.filter = filter
}

// snapshot reads the filtered groups plus last_updated from the store.
func (sess *session) snapshot() map[string]any {
	keys := make([]state.Key, 0, len(state.TelemetryGroups)+1)
	if sess.filter == nil {
		keys = append(keys, state.TelemetryGroups...)
	} else {
		for _, g := range state.TelemetryGroups {
			if _, ok := sess.filter[g]; ok {
				keys = append(keys, g)
			}
		}
	}
	keys = append(keys, state.KeyLastUpdated)
	return sess.store.Get(keys...)
}
