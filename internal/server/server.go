package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/statuswatch/internal/logging"
	"github.com/jpalmerr/statuswatch/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler goroutine. Must be <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	emptyMessage = "No incidents detected yet."
)

// HealthFunc reports when the last poll cycle finished. ok is false before
// the first cycle completes.
type HealthFunc func() (lastCycle time.Time, ok bool)

// Server serves the recent incident view.
//
// Routes:
//   - GET /: recent incident lines as plain text, newest first
//   - GET /api/incidents: recent incidents as JSON, newest first
//   - GET /api/sse: Server-Sent Events stream of new incidents
//   - GET /metrics: Prometheus metrics (when a handler is configured)
//   - GET /healthz: liveness and the last cycle time
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	store      store.Store
	port       int
	metrics    http.Handler
	health     HealthFunc
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server]. metrics and health may be nil.
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, metrics http.Handler, health HealthFunc, logger *slog.Logger) *Server {
	return &Server{
		store:   st,
		port:    port,
		metrics: metrics,
		health:  health,
		logger:  logging.Default(logger).With("component", "server"),
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/incidents", s.handleIncidents)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start binds synchronously, so a port conflict is returned as an error, then
// serves until ctx is cancelled and shuts down with a bounded timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so long-lived SSE handlers end
		// on shutdown
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// handleIndex writes one line per recent incident, newest first.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	incidents := s.store.Recent()

	var b strings.Builder
	if len(incidents) == 0 {
		b.WriteString(emptyMessage)
		b.WriteByte('\n')
	}
	for _, inc := range incidents {
		b.WriteString(inc.Message)
		b.WriteByte('\n')
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(b.String())); err != nil {
		s.logger.Error("failed to write index response", "error", err)
	}
}

// handleIncidents returns recent incidents as JSON.
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.Recent()); err != nil {
		s.logger.Error("failed to encode incidents response", "error", err)
	}
}

type healthResponse struct {
	Status    string     `json:"status"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
}

// handleHealth reports liveness. The process is healthy as soon as it
// serves; last_cycle is absent until the first cycle completes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "starting"}
	if s.health != nil {
		if last, ok := s.health(); ok {
			last = last.UTC()
			resp = healthResponse{Status: "ok", LastCycle: &last}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// handleSSE streams incidents via Server-Sent Events. The stored history is
// replayed oldest first on connect, then new incidents follow.
//
// Writes carry deadlines so a slow or vanished client cannot block the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// not every ResponseWriter supports deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	recent := s.store.Recent()
	for i := len(recent) - 1; i >= 0; i-- {
		data, err := json.Marshal(recent[i])
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case inc, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(inc)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}
