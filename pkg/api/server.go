// Package api exposes inference, feedback, rule management, and
// calendar ingestion over HTTP/JSON, routed with gorilla/mux and
// guarded by an optional bcrypt-compared API key.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/audit"
	"github.com/mirakessler/nudge/pkg/calendar"
	"github.com/mirakessler/nudge/pkg/feedback"
	"github.com/mirakessler/nudge/pkg/inference"
	"github.com/mirakessler/nudge/pkg/location"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/metrics"
	"github.com/mirakessler/nudge/pkg/mqtt"
	"github.com/mirakessler/nudge/pkg/rules"
)

// Config holds HTTP API server configuration. AuthKeyHash is a bcrypt
// hash produced by HashAuthKey; an empty hash disables auth.
type Config struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	AuthKeyHash []byte `json:"-"`
}

// DefaultConfig returns a disabled, localhost-bound, unauthenticated Config.
func DefaultConfig() *Config {
	return &Config{Enabled: false, Host: "localhost", Port: 8090}
}

// HashAuthKey bcrypt-hashes a plaintext API key for Config.AuthKeyHash.
func HashAuthKey(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// Server exposes the nudge engine over HTTP/JSON.
type Server struct {
	catalog   *rules.Catalog
	engine    *inference.Engine
	feedback  *feedback.Service
	ingester  *calendar.Ingester
	location  *location.Manager
	auditLog  *audit.Log
	metrics   *metrics.Registry
	publisher *mqtt.Publisher
	config    *Config
	logger    *logx.Logger
	startTime time.Time
	srv       *http.Server
}

// New creates a Server. publisher, metrics, and locMgr may be nil if
// MQTT fan-out, Prometheus instrumentation, or location clustering are
// not wired up.
func New(catalog *rules.Catalog, engine *inference.Engine, feedbackSvc *feedback.Service, ingester *calendar.Ingester, locMgr *location.Manager, auditLog *audit.Log, reg *metrics.Registry, publisher *mqtt.Publisher, config *Config, logger *logx.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		catalog:   catalog,
		engine:    engine,
		feedback:  feedbackSvc,
		ingester:  ingester,
		location:  locMgr,
		auditLog:  auditLog,
		metrics:   reg,
		publisher: publisher,
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}
}

// authMiddleware enforces the optional bcrypt-compared API key.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.config.AuthKeyHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := r.URL.Query().Get("auth")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if key == "" || bcrypt.CompareHashAndPassword(s.config.AuthKeyHash, []byte(key)) != nil {
			s.logger.Warn("invalid authentication attempt", "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// Router builds the mux.Router without starting a listener; useful for
// tests that exercise handlers via httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/infer", s.authMiddleware(s.handleInfer)).Methods(http.MethodPost)
	r.HandleFunc("/v1/feedback", s.authMiddleware(s.handleFeedback)).Methods(http.MethodPost)
	r.HandleFunc("/v1/rules", s.authMiddleware(s.handleListRules)).Methods(http.MethodGet)
	r.HandleFunc("/v1/rules", s.authMiddleware(s.handleCreateRule)).Methods(http.MethodPost)
	r.HandleFunc("/v1/rules/{id}", s.authMiddleware(s.handleDeactivateRule)).Methods(http.MethodDelete)
	r.HandleFunc("/v1/calendar/events", s.authMiddleware(s.handleIngestEvents)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Start serves the API in the background; a no-op if disabled in config.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("nudge API server is disabled")
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.Router()}
	s.logger.Info("starting nudge API server", "address", addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("nudge API server failed", "error", err.Error())
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type inferRequest struct {
	Context      pkg.Context `json:"context"`
	EnableSearch bool        `json:"enable_search"`
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if s.location != nil {
		s.location.ObserveContext(req.Context)
	}

	start := time.Now()
	resp, err := s.engine.Infer(r.Context(), req.Context, req.EnableSearch)
	if s.metrics != nil {
		s.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.InferenceCalls.WithLabelValues("error").Inc()
		}
		s.sendError(w, http.StatusBadRequest, "inference failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.InferenceCalls.WithLabelValues("ok").Inc()
		s.metrics.SuggestionsEmitted.Add(float64(len(resp.SuggestedTasks)))
		if resp.SearchMetadata != nil {
			s.metrics.SearchNodesExplored.Observe(float64(resp.SearchMetadata.NodesExplored))
			if resp.SearchMetadata.OptimizationQuality == "greedy_fallback" {
				s.metrics.GreedyFallbacks.Inc()
			}
		}
	}
	if s.publisher != nil {
		s.publisher.PublishSuggestions(resp)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

type feedbackRequest struct {
	RuleID         int64       `json:"rule_id"`
	Outcome        pkg.Outcome `json:"outcome"`
	Context        pkg.Context `json:"context"`
	ChosenLeadTime int         `json:"chosen_lead_time"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.feedback.Apply(req.RuleID, req.Outcome, req.Context, req.ChosenLeadTime); err != nil {
		if s.metrics != nil {
			s.metrics.FeedbackApplied.WithLabelValues("error").Inc()
		}
		status := http.StatusInternalServerError
		if errors.Is(err, pkg.ErrRuleNotFound) || errors.Is(err, pkg.ErrInvalidContext) {
			status = http.StatusBadRequest
		}
		s.sendError(w, status, "feedback application failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.FeedbackApplied.WithLabelValues(string(req.Outcome)).Inc()
	}
	if s.publisher != nil {
		s.publisher.PublishFeedback(pkg.FeedbackRecord{
			RuleID:          req.RuleID,
			Outcome:         req.Outcome,
			ContextSnapshot: req.Context,
			ChosenLeadTime:  req.ChosenLeadTime,
			Timestamp:       time.Now(),
		})
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"status": "applied"})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.catalog.List())
}

type createRuleRequest struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	TriggerCondition map[string]any `json:"trigger_condition"`
	Weight           float64        `json:"weight"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" || len(req.TriggerCondition) == 0 {
		s.sendError(w, http.StatusBadRequest, "name and trigger_condition are required", nil)
		return
	}
	rule := s.catalog.Create(pkg.Rule{
		Name:             req.Name,
		Description:      req.Description,
		TriggerCondition: req.TriggerCondition,
		Weight:           req.Weight,
		Source:           pkg.RuleSourceUser,
	})
	if s.metrics != nil {
		s.metrics.RulesActive.Set(float64(len(s.catalog.ListActive())))
	}
	s.sendJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}
	if err := s.catalog.Deactivate(id); err != nil {
		s.sendError(w, http.StatusNotFound, "deactivation failed", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RulesActive.Set(float64(len(s.catalog.ListActive())))
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"status": "deactivated", "id": id})
}

type calendarEventsRequest struct {
	Events []pkg.ParsedEvent `json:"events"`
}

func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	var req calendarEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	result := s.ingester.Ingest(r.Context(), req.Events)
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode json response", "error", err.Error())
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	s.sendJSON(w, status, body)
}
