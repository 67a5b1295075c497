// Package http serves the sync status and control endpoints.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"budgetsync/internal/log"
	"budgetsync/internal/middleware/ratelimit"
	"budgetsync/internal/middleware/trace"
	"budgetsync/internal/syncengine"
)

// Syncer is what the endpoints drive: a single engine for the CLI or the
// per-user engine pool in the worker.
type Syncer interface {
	SyncStatus(ctx context.Context, uid string) (syncengine.Status, error)
	RequestSync(ctx context.Context, uid, reason string) (syncengine.Result, error)
}

type Server struct {
	http.Server
	syncer   Syncer
	gatherer prometheus.Gatherer
	limiter  *ratelimit.Limiter
	ready    func(context.Context) error
}

type Option func(*Server)

// WithReadiness sets the /readyz check. Without it the server is ready as
// soon as it listens.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithRateLimit replaces the default limiter config for POST /sync.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.limiter.Stop()
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// NewServer wires the routes. A nil gatherer falls back to the default
// prometheus registry.
func NewServer(addr string, syncer Syncer, gatherer prometheus.Gatherer, logger *log.Logger, opts ...Option) *Server {
	if syncer == nil {
		panic("http: nil syncer")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		syncer:   syncer,
		gatherer: gatherer,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/sync", s.limiter.Middleware(ClientIP)(http.HandlerFunc(s.handleSync)))

	var h http.Handler = mux
	h = withHeaders(h)
	h = log.AccessLog(ClientIP)(h)
	h = trace.Middleware(h)
	h = log.Middleware(logger.WithComponent(log.ComponentHTTP))(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and releases the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

func userParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userParam(r)
	if uid == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	st, err := s.syncer.SyncStatus(r.Context(), uid)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Status lookup failed",
			log.FieldUserID, uid, log.FieldError, err.Error())
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type syncResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	Conflicts int    `json:"conflicts"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	uid := userParam(r)
	if uid == "" {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "http"
	}

	res, err := s.syncer.RequestSync(r.Context(), uid, reason)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Sync request failed",
			log.FieldUserID, uid, log.FieldError, err.Error())
		http.Error(w, "sync unavailable", http.StatusInternalServerError)
		return
	}

	body := syncResponse{
		Success:   res.Success,
		Message:   res.Message,
		Conflicts: res.Conflicts.Total(),
	}
	if !res.Success {
		body.Kind = res.Kind.String()
	}
	writeJSON(w, statusForResult(res), body)
}

func statusForResult(res syncengine.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case syncengine.KindOffline:
		return http.StatusServiceUnavailable
	case syncengine.KindNotFound:
		return http.StatusNotFound
	case syncengine.KindInvalid, syncengine.KindNoUser:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
