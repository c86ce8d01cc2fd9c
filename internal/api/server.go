// Package api provides the HTTP API server for Sightline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sightline/sightline/internal/actions"
	"github.com/sightline/sightline/internal/agent"
	"github.com/sightline/sightline/internal/config"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/goals"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/strategy"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	engine    *agent.Engine
	tactical  *strategy.Manager
	goals     *goals.Tracker
	knowledge *knowledge.Store
	executor  *actions.Executor
	appConfig *config.Config
	hub       *EventHub
}

// Config for the server
type Config struct {
	Port      int
	Engine    *agent.Engine
	Strategy  *strategy.Manager
	Goals     *goals.Tracker
	Knowledge *knowledge.Store
	Executor  *actions.Executor
	AppConfig *config.Config
	Hub       *EventHub
}

// New creates a new API server
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = NewEventHub()
	}

	s := &Server{
		engine:    cfg.Engine,
		tactical:  cfg.Strategy,
		goals:     cfg.Goals,
		knowledge: cfg.Knowledge,
		executor:  cfg.Executor,
		appConfig: cfg.AppConfig,
		hub:       hub,
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Hub returns the event hub so other components can publish to it.
func (s *Server) Hub() *EventHub {
	return s.hub
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analysis", s.handlePostAnalysis)
		r.Get("/status", s.handleGetStatus)

		r.Get("/knowledge", s.handleGetKnowledge)
		r.Get("/goals", s.handleGetGoals)
		r.Get("/actions", s.handleGetActions)

		r.Get("/subjects", s.handleGetSubjects)
		r.Get("/subjects/{subjectID}/predict", s.handlePredictSubject)

		r.Get("/incidents", s.handleGetIncidents)
		r.Post("/incidents/{incidentID}/status", s.handleUpdateIncidentStatus)
		r.Get("/incidents/{incidentID}/audit", s.handleGetIncidentAudit)
		r.Post("/incidents/{incidentID}/plan", s.handleGeneratePlan)

		r.Get("/plans", s.handleGetPlans)
		r.Get("/report", s.handleGetReport)
		r.Get("/recommendations", s.handleGetRecommendations)

		r.Get("/devices/{deviceID}/settings", s.handleGetDeviceSettings)
		r.Put("/devices/{deviceID}/settings", s.handlePutDeviceSettings)
	})

	// WebSocket
	r.Get("/ws/events", s.hub.ServeHTTP)

	s.router = r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.Info("API server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}

// ====== Handlers ======

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePostAnalysis(w http.ResponseWriter, r *http.Request) {
	var result core.AnalysisResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid analysis payload: "+err.Error())
		return
	}
	if result.CameraID == "" {
		s.respondError(w, http.StatusBadRequest, "camera_id is required")
		return
	}

	if err := s.engine.HandleAnalysis(result); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"accepted":  true,
		"camera_id": result.CameraID,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Status()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"engine":           status,
		"cognitive_status": s.engine.StatusText(r.Context()),
		"tracked_subjects": len(s.tactical.TrackedSubjects()),
		"active_incidents": len(s.tactical.ActiveIncidents()),
		"ws_clients":       s.hub.ClientCount(),
	})
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if query := r.URL.Query().Get("query"); query != "" {
		s.respondJSON(w, http.StatusOK, s.knowledge.Query(query, limit))
		return
	}
	s.respondJSON(w, http.StatusOK, s.knowledge.Recent(limit))
}

func (s *Server) handleGetGoals(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		s.respondJSON(w, http.StatusOK, s.goals.Active())
		return
	}
	s.respondJSON(w, http.StatusOK, s.goals.All())
}

func (s *Server) handleGetActions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	s.respondJSON(w, http.StatusOK, s.executor.Recent(limit))
}

func (s *Server) handleGetSubjects(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tactical.TrackedSubjects())
}

func (s *Server) handlePredictSubject(w http.ResponseWriter, r *http.Request) {
	id := core.SubjectID(chi.URLParam(r, "subjectID"))
	seconds := queryFloat(r, "seconds", 5)

	position, err := s.tactical.PredictPosition(id, seconds)
	if err != nil {
		s.respondStrategyError(w, err)
		return
	}
	trajectory, err := s.tactical.Trajectory(id)
	if err != nil {
		s.respondStrategyError(w, err)
		return
	}
	cameras, err := s.tactical.PredictNextCameras(id)
	if err != nil {
		s.respondStrategyError(w, err)
		return
	}
	threat, err := s.tactical.ThreatScore(id)
	if err != nil {
		s.respondStrategyError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"subject_id":    id,
		"seconds_ahead": seconds,
		"position":      position,
		"trajectory":    trajectory,
		"next_cameras":  cameras,
		"threat_score":  threat,
	})
}

func (s *Server) handleGetIncidents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		s.respondJSON(w, http.StatusOK, s.tactical.ActiveIncidents())
		return
	}
	s.respondJSON(w, http.StatusOK, s.tactical.AllIncidents())
}

func (s *Server) handleUpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id := core.IncidentID(chi.URLParam(r, "incidentID"))

	var req struct {
		Status string `json:"status"`
		By     string `json:"by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid status payload: "+err.Error())
		return
	}

	status := core.IncidentStatus(req.Status)
	switch status {
	case core.IncidentNew, core.IncidentInvestigating, core.IncidentConfirmed,
		core.IncidentFalseAlarm, core.IncidentResolved:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown incident status: "+req.Status)
		return
	}

	by := req.By
	if by == "" {
		by = "api"
	}
	if err := s.tactical.UpdateIncidentStatus(r.Context(), id, status, by); err != nil {
		s.respondStrategyError(w, err)
		return
	}

	incident, _ := s.tactical.Incident(id)
	s.respondJSON(w, http.StatusOK, incident)
}

func (s *Server) handleGetIncidentAudit(w http.ResponseWriter, r *http.Request) {
	id := core.IncidentID(chi.URLParam(r, "incidentID"))

	entries, err := s.tactical.AuditTrail(id)
	if err != nil {
		s.respondStrategyError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	id := core.IncidentID(chi.URLParam(r, "incidentID"))

	plan := s.tactical.GeneratePlan(r.Context(), id)
	if plan == nil {
		s.respondError(w, http.StatusNotFound, "incident not found or closed")
		return
	}
	s.respondJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tactical.Plans())
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tactical.Report(r.Context()))
}

func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	recs := s.engine.SecurityRecommendations()
	if recs == nil {
		recs = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) handleGetDeviceSettings(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no configuration attached")
		return
	}
	id := core.CameraID(chi.URLParam(r, "deviceID"))
	s.respondJSON(w, http.StatusOK, s.appConfig.Device(id))
}

func (s *Server) handlePutDeviceSettings(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no configuration attached")
		return
	}
	id := core.CameraID(chi.URLParam(r, "deviceID"))

	var dev config.DeviceConfig
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid settings payload: "+err.Error())
		return
	}
	if err := s.appConfig.SetDevice(id, dev); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.hub.Publish("device_settings_updated", map[string]any{
		"device_id": id,
		"settings":  dev,
	})
	s.respondJSON(w, http.StatusOK, dev)
}

// ====== Response helpers ======

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStrategyError maps strategy errors to HTTP statuses.
func (s *Server) respondStrategyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSubjectNotFound),
		errors.Is(err, core.ErrIncidentNotFound),
		errors.Is(err, core.ErrPlanNotFound),
		errors.Is(err, core.ErrRecordNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrServiceUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
