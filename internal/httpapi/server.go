package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nhle/mailvault/internal/model"
	"github.com/nhle/mailvault/internal/store"
	"github.com/nhle/mailvault/internal/sync"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultSyncTimeout  = 60 * time.Second
	recentRunsLimit     = 20
)

// NotificationHandler processes one inbound notification. *sync.Engine
// satisfies it.
type NotificationHandler interface {
	Handle(ctx context.Context, n model.Notification) (sync.Result, error)
}

// Repoller is the subset of *sync.Poller the server drives.
type Repoller interface {
	Trigger()
	Statuses() []sync.SyncStatus
}

// ServerConfig tunes request handling.
type ServerConfig struct {
	MaxBodyBytes int64
	// SyncTimeout bounds each webhook-driven engine run.
	SyncTimeout time.Duration
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Engine  NotificationHandler
	Poller  Repoller // optional
	Cursors store.CursorStore
	Runs    store.RunLog // optional
	Slot    string
	Logger  *slog.Logger
}

// Server exposes the webhook, manual sync, and status endpoints.
type Server struct {
	cfg    ServerConfig
	deps   Deps
	logger *slog.Logger
	router chi.Router
	now    func() time.Time
}

// NewServer builds the router for deps.
func NewServer(cfg ServerConfig, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/pubsub", s.handlePush)
		r.Post("/sync", s.handleSync)
		r.Get("/status", s.handleStatus)
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "mailvault",
		"slot":    s.deps.Slot,
		"endpoints": []string{
			"POST /v1/webhooks/pubsub",
			"POST /v1/sync",
			"GET /v1/status",
			"GET /health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePush accepts a Pub/Sub push delivery. Malformed bodies are
// rejected with 400 and never reach the engine. Engine failures return
// 500 so the push subscription redelivers.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)

	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}

	n, err := model.ParsePushEnvelope(body, s.now().UTC())
	if err != nil {
		s.logger.Warn("rejected push delivery", "correlation_id", correlationID, "error", err)
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		return
	}
	if n.DeliveryID == "" {
		n.DeliveryID = correlationID
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SyncTimeout)
	defer cancel()

	res, err := s.deps.Engine.Handle(ctx, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync_failed", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSync queues an immediate re-poll.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	if s.deps.Poller == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "re-poller is not configured", correlationID)
		return
	}
	s.deps.Poller.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":        "queued",
		"correlationId": correlationID,
	})
}

type statusResponse struct {
	Slot       string            `json:"slot"`
	Cursor     *model.Cursor     `json:"cursor"`
	Pollers    []sync.SyncStatus `json:"pollers"`
	RecentRuns []model.SyncRun   `json:"recent_runs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)

	cur, err := s.deps.Cursors.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable", err.Error(), correlationID)
		return
	}

	resp := statusResponse{
		Slot:       s.deps.Slot,
		Cursor:     cur,
		Pollers:    []sync.SyncStatus{},
		RecentRuns: []model.SyncRun{},
	}
	if s.deps.Poller != nil {
		resp.Pollers = s.deps.Poller.Statuses()
	}
	if s.deps.Runs != nil {
		runs, err := s.deps.Runs.RecentRuns(r.Context(), s.deps.Slot, recentRunsLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store_unavailable", err.Error(), correlationID)
			return
		}
		if runs != nil {
			resp.RecentRuns = runs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// getCorrelationID prefers the caller's X-Correlation-Id, then the
// router's request ID, then a fresh UUID.
func getCorrelationID(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-Id"); id != "" {
		return id
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
