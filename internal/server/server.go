package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/event"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/killswitch"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/model"
	"github.com/ogulcanaydogan/billing-killswitch/pkg/storage"
)

// Server exposes the killswitch as a Pub/Sub push endpoint plus health and
// decision history APIs.
type Server struct {
	handler     *killswitch.Handler
	store       storage.Storage
	router      *mux.Router
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

// Options holds optional server settings.
type Options struct {
	// Store enables GET /api/v1/decisions when non-nil.
	Store storage.Storage
	// InvocationTimeout bounds each push delivery. Zero means 60s.
	InvocationTimeout time.Duration
	// MaxBodySize caps push request bodies. Zero means 1 MB.
	MaxBodySize int64
}

// NewServer creates an API server.
func NewServer(h *killswitch.Handler, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		handler:     h,
		store:       opts.Store,
		router:      mux.NewRouter(),
		timeout:     opts.InvocationTimeout,
		maxBodySize: opts.MaxBodySize,
		logger:      logger,
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.maxBodySize <= 0 {
		s.maxBodySize = 1 << 20
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/pubsub", s.handlePush).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/decisions", s.handleDecisions).Methods(http.MethodGet)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePush serves Pub/Sub push deliveries. Any non-2xx response makes
// Pub/Sub redeliver the message.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	env, err := event.DecodeEnvelope(body)
	if err != nil {
		s.logger.Error("decode push envelope", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.handler.Handle(ctx, &env.Message)
	if err != nil {
		status := http.StatusInternalServerError
		if event.IsMalformed(err) {
			status = http.StatusBadRequest
		}
		s.logger.Error("handle budget event",
			"message_id", env.Message.MessageID,
			"subscription", env.Subscription,
			"error", err,
		)
		http.Error(w, err.Error(), status)
		return
	}

	s.logger.Info("budget event handled",
		"message_id", env.Message.MessageID,
		"action", result.Action,
		"project", result.ProjectID,
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, result.Message)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "decision log disabled", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := model.DecisionFilter{
		ProjectID: q.Get("project"),
		BudgetID:  q.Get("budget"),
		Action:    model.Action(q.Get("action")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	decisions, err := s.store.ListDecisions(ctx, filter)
	if err != nil {
		s.logger.Error("list decisions", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, "internal error", status)
		return
	}
	if decisions == nil {
		decisions = []model.Decision{}
	}

	writeJSON(w, http.StatusOK, decisions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
