package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helios-aero/telemd/docs"
	"github.com/helios-aero/telemd/internal/metrics"
	"github.com/helios-aero/telemd/internal/state"
)

// StatusInfo is the static configuration surfaced on /status alongside the
// live connection flags. It is supplied at construction and never mutated.
type StatusInfo struct {
	Backend       string
	SourceAddress string
	PushRateHz    float64
}

// Server handles HTTP requests for telemetry snapshots and the live stream.
//
// Endpoints:
//   - GET /telemetry, /telemetry/{position,attitude,battery}: snapshots
//   - GET /status: connection state plus static configuration
//   - GET /telemetry/stream: WebSocket push stream, filterable per session
//   - GET /healthz, /metrics, /openapi.json, /docs: operational surface
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store        *state.Store
	info         StatusInfo
	port         int
	pushInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	httpServer   *http.Server
	upgrader     websocket.Upgrader
}

// New creates a new HTTP [Server] over the given store. The server is not
// started until [Server.Start] is called.
func New(st *state.Store, info StatusInfo, port int, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		store:        st,
		info:         info,
		port:         port,
		pushInterval: time.Duration(float64(time.Second) / info.PushRateHz),
		metrics:      m,
		logger:       logger,
		upgrader: websocket.Upgrader{
			// the API is CORS-open; the stream follows suit
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until the context is cancelled, then shuts
// down gracefully with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: mux,
		// BaseContext derives all request contexts from the server context,
		// so cancelling ctx also ends long-running stream sessions.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// routes builds the request mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/telemetry", s.handleTelemetry)
	mux.HandleFunc("/telemetry/position", s.handleGroup(state.KeyPosition))
	mux.HandleFunc("/telemetry/attitude", s.handleGroup(state.KeyAttitude))
	mux.HandleFunc("/telemetry/battery", s.handleGroup(state.KeyBattery))
	mux.HandleFunc("/telemetry/stream", s.handleStream)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
	mux.HandleFunc("/docs", s.handleDocs)
	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

// handleTelemetry returns the full telemetry snapshot.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, telemetrySnapshot(s.store))
}

// handleGroup returns a handler serving a single telemetry group.
func (s *Server) handleGroup(key state.Key) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.writeJSON(w, groupSnapshot(s.store, key))
	}
}

// handleStatus returns connection state merged with static configuration.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, statusSnapshot(s.store, s.info))
}

// handleHealthz is a liveness probe. It reports the process, not the
// vehicle link: degraded telemetry still serves snapshots.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleOpenAPI serves the generated OpenAPI 3 document.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, buildOpenAPI(s.info))
}

// handleDocs serves the embedded documentation UI.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	content, err := fs.ReadFile(docs.Assets, "assets/docs.html")
	if err != nil {
		http.Error(w, "Documentation not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(content); err != nil {
		s.logger.Error("failed to write docs response", "error", err)
	}
}

// writeJSON writes v as a JSON response with open CORS headers.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
