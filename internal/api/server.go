// Package api serves the softphone control API over HTTP, with a WebSocket
// stream of call events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	types "github.com/sebas/softphone/api/types/v1"
	"github.com/sebas/softphone/internal/controller"
	"github.com/sebas/softphone/internal/numbers"
	"github.com/sebas/softphone/internal/prefs"
)

// NumberStore is the identity store behind /api/v1/numbers.
type NumberStore interface {
	List(ctx context.Context) ([]numbers.Number, error)
	Get(ctx context.Context, number string) (numbers.Number, error)
	Upsert(ctx context.Context, n numbers.Number) error
	Delete(ctx context.Context, number string) error
	SetDefault(ctx context.Context, number string) error
}

// PrefsStore is the preferences file behind /api/v1/prefs.
type PrefsStore interface {
	Get() prefs.Preferences
	Update(fn func(*prefs.Preferences)) (prefs.Preferences, error)
}

// Option configures a Server.
type Option func(*Server)

// WithNumbers enables the numbers endpoints.
func WithNumbers(n NumberStore) Option {
	return func(s *Server) { s.numbers = n }
}

// WithPrefs enables the preferences endpoints.
func WithPrefs(p PrefsStore) Option {
	return func(s *Server) { s.prefs = p }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server provides the HTTP control API.
type Server struct {
	addr       string
	httpServer *http.Server
	ctrl       *controller.Controller
	numbers    NumberStore
	prefs      PrefsStore
	metrics    http.Handler
	upgrader   websocket.Upgrader
	startTime  time.Time

	mu     sync.Mutex
	stream *streamObserver
}

// NewServer creates the API server.
func NewServer(addr string, ctrl *controller.Controller, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		ctrl:      ctrl,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Call
	mux.HandleFunc("GET /api/v1/call", s.handleCallStatus)
	mux.HandleFunc("POST /api/v1/call", s.handleStartCall)
	mux.HandleFunc("DELETE /api/v1/call", s.handleEndCall)
	mux.HandleFunc("POST /api/v1/call/mute", s.handleMute)
	mux.HandleFunc("POST /api/v1/call/speaker", s.handleSpeaker)
	mux.HandleFunc("POST /api/v1/call/digits", s.handleDigits)

	// Recording
	mux.HandleFunc("POST /api/v1/recording", s.handleStartRecording)
	mux.HandleFunc("DELETE /api/v1/recording", s.handleStopRecording)

	// Numbers
	mux.HandleFunc("GET /api/v1/numbers", s.handleListNumbers)
	mux.HandleFunc("POST /api/v1/numbers", s.handleUpsertNumber)
	mux.HandleFunc("DELETE /api/v1/numbers/{number}", s.handleDeleteNumber)
	mux.HandleFunc("POST /api/v1/numbers/{number}/default", s.handleSetDefault)

	// Preferences
	mux.HandleFunc("GET /api/v1/prefs", s.handleGetPrefs)
	mux.HandleFunc("PUT /api/v1/prefs", s.handleUpdatePrefs)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("[API] Starting HTTP API server", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stream != nil {
		s.stream.close()
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status: "ok",
		Uptime: int64(time.Since(s.startTime).Seconds()),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	writeJSON(w, status, types.ErrorResponse{Error: err.Error(), Kind: kind})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
