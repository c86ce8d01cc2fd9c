package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sightline/sightline/internal/actions"
	"github.com/sightline/sightline/internal/agent"
	"github.com/sightline/sightline/internal/anomaly"
	"github.com/sightline/sightline/internal/config"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/goals"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/scheduler"
	"github.com/sightline/sightline/internal/strategy"
	"github.com/sightline/sightline/internal/testutil"
)

type testServer struct {
	server   *Server
	engine   *agent.Engine
	tactical *strategy.Manager
	store    *knowledge.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sched := scheduler.New(scheduler.Config{CleanupInterval: time.Hour})
	store := knowledge.NewStore()
	tracker := goals.NewTracker()
	executor := actions.NewExecutor(actions.DefaultConfig())
	tactical := strategy.New(strategy.DefaultConfig())
	detector := anomaly.New(anomaly.Config{DeviceID: "test-device"})
	completion := llm.NewService(llm.Config{}, false)

	actions.RegisterDefaults(executor, actions.Deps{
		Strategy:   tactical,
		Knowledge:  store,
		Detector:   detector,
		Completion: completion,
	})

	engine := agent.New(agent.Config{ReflectionInterval: time.Hour}, agent.Deps{
		Scheduler:  sched,
		Knowledge:  store,
		Goals:      tracker,
		Executor:   executor,
		Strategy:   tactical,
		Detector:   detector,
		Completion: completion,
	})
	if err := engine.Start(); err != nil {
		t.Fatalf("engine start: %v", err)
	}
	t.Cleanup(engine.Stop)

	srv := New(Config{
		Port:      0,
		Engine:    engine,
		Strategy:  tactical,
		Goals:     tracker,
		Knowledge: store,
		Executor:  executor,
		AppConfig: config.Default(),
	})
	t.Cleanup(srv.hub.Stop)

	return &testServer{server: srv, engine: engine, tactical: tactical, store: store}
}

func (ts *testServer) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestPostAnalysis(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{
			name:     "accepted",
			body:     testutil.AnomalousAnalysis("cam-1", time.Now(), 0.9),
			wantCode: http.StatusAccepted,
		},
		{
			name:     "missing camera",
			body:     testutil.QuietAnalysis("", time.Now()),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed payload",
			body:     "not an object",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/analysis", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if _, ok := body["engine"]; !ok {
		t.Error("missing engine section in status")
	}
	if _, ok := body["active_incidents"]; !ok {
		t.Error("missing active_incidents in status")
	}
}

func TestGetKnowledge(t *testing.T) {
	ts := newTestServer(t)

	for _, content := range []string{
		"Detected person on camera cam-1",
		"Detected car on camera cam-2",
		"Motion level 0.80 on camera cam-1",
	} {
		if _, err := ts.store.Add(knowledge.Item{
			Kind:       core.KnowledgeObservation,
			Content:    content,
			Confidence: 0.9,
			Source:     "test",
		}); err != nil {
			t.Fatalf("seed knowledge: %v", err)
		}
	}

	rec := ts.request(t, http.MethodGet, "/api/knowledge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []knowledge.Item
	decodeBody(t, rec, &items)
	if len(items) != 3 {
		t.Errorf("recent items = %d, want 3", len(items))
	}

	rec = ts.request(t, http.MethodGet, "/api/knowledge?query=cam-1", nil)
	decodeBody(t, rec, &items)
	if len(items) != 2 {
		t.Errorf("query matches = %d, want 2", len(items))
	}
}

func TestGetGoals(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/goals?active=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var active []goals.Goal
	decodeBody(t, rec, &active)
	if len(active) < 2 {
		t.Errorf("active goals = %d, want at least the standing pair", len(active))
	}
}

func TestIncidentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	incident := ts.tactical.CreateIncident(context.Background(), strategy.IncidentInput{
		Type:        core.IncidentUnknownVisitor,
		Severity:    core.SeverityMedium,
		CameraID:    "cam-1",
		Description: "unknown person at the gate",
	})

	rec := ts.request(t, http.MethodGet, "/api/incidents?active=true", nil)
	var incidents []strategy.Incident
	decodeBody(t, rec, &incidents)
	if len(incidents) != 1 {
		t.Fatalf("active incidents = %d, want 1", len(incidents))
	}

	rec = ts.request(t, http.MethodPost, "/api/incidents/"+string(incident.ID)+"/status",
		map[string]string{"status": "investigating", "by": "operator"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status update code = %d: %s", rec.Code, rec.Body.String())
	}
	var updated strategy.Incident
	decodeBody(t, rec, &updated)
	if updated.Status != core.IncidentInvestigating {
		t.Errorf("incident status = %s, want investigating", updated.Status)
	}

	rec = ts.request(t, http.MethodPost, "/api/incidents/"+string(incident.ID)+"/status",
		map[string]string{"status": "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status code = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, "/api/incidents/missing/status",
		map[string]string{"status": "resolved"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident code = %d, want 404", rec.Code)
	}
}

func TestGeneratePlan(t *testing.T) {
	ts := newTestServer(t)

	incident := ts.tactical.CreateIncident(context.Background(), strategy.IncidentInput{
		Type:        core.IncidentIntrusion,
		Severity:    core.SeverityHigh,
		CameraID:    "cam-1",
		Description: "fence line crossed",
	})

	rec := ts.request(t, http.MethodPost, "/api/incidents/"+string(incident.ID)+"/plan", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("plan code = %d: %s", rec.Code, rec.Body.String())
	}
	var plan strategy.Plan
	decodeBody(t, rec, &plan)
	if plan.IncidentID != incident.ID {
		t.Errorf("plan incident = %s, want %s", plan.IncidentID, incident.ID)
	}
	if len(plan.Actions) == 0 {
		t.Error("plan has no actions")
	}

	rec = ts.request(t, http.MethodGet, "/api/plans", nil)
	var plans []strategy.Plan
	decodeBody(t, rec, &plans)
	if len(plans) != 1 {
		t.Errorf("plans = %d, want 1", len(plans))
	}

	rec = ts.request(t, http.MethodPost, "/api/incidents/missing/plan", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing incident plan code = %d, want 404", rec.Code)
	}
}

func TestPredictSubject(t *testing.T) {
	ts := newTestServer(t)

	base := time.Now().Add(-10 * time.Second)
	ts.tactical.ProcessAnalysis(context.Background(), testutil.PersonAnalysis("cam-1", base, "trk-1", "known"))
	ts.tactical.ProcessAnalysis(context.Background(), testutil.PersonAnalysis("cam-1", base.Add(time.Second), "trk-1", "known"))

	subjects := ts.tactical.TrackedSubjects()
	if len(subjects) != 1 {
		t.Fatalf("tracked subjects = %d, want 1", len(subjects))
	}

	rec := ts.request(t, http.MethodGet,
		"/api/subjects/"+string(subjects[0].ID)+"/predict?seconds=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	for _, key := range []string{"position", "trajectory", "next_cameras", "threat_score"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in prediction response", key)
		}
	}
}

func TestPredictSubject_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/subjects/missing/predict", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}

func TestGetReport(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var report strategy.SituationReport
	decodeBody(t, rec, &report)
	if report.Summary == "" {
		t.Error("report summary is empty")
	}
}

func TestDeviceSettings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodGet, "/api/devices/cam-1/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get code = %d, want 200", rec.Code)
	}

	rec = ts.request(t, http.MethodPut, "/api/devices/cam-1/settings",
		config.DeviceConfig{Enabled: true, Threshold: 0.9, EnableLearning: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("put code = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodGet, "/api/devices/cam-1/settings", nil)
	var dev config.DeviceConfig
	decodeBody(t, rec, &dev)
	if dev.Threshold != 0.9 {
		t.Errorf("threshold = %f, want 0.9", dev.Threshold)
	}

	rec = ts.request(t, http.MethodPut, "/api/devices/cam-1/settings",
		config.DeviceConfig{Threshold: 1.5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid threshold code = %d, want 400", rec.Code)
	}
}

func TestEventHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewEventHub()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	hub.Publish("incident_created", map[string]string{"id": "inc-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "incident_created" {
		t.Errorf("event type = %q, want incident_created", event.Type)
	}
}
