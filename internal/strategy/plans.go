package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
)

// GeneratePlan builds a monitoring plan for an incident. Planning is
// model-assisted when the completion service is available; otherwise
// the recommended-action heuristics drive it.
func (m *Manager) GeneratePlan(ctx context.Context, incidentID core.IncidentID) *Plan {
	inc := m.snapshotIncident(incidentID)
	if inc == nil {
		return nil
	}

	now := time.Now()
	plan := &Plan{
		ID:         core.PlanID(uuid.NewString()),
		IncidentID: inc.ID,
		Status:     PlanActive,
		Strategy: MonitoringStrategy{
			Cameras:          m.monitoringCameras(inc.CameraID),
			Duration:         30 * time.Minute,
			FrameRate:        5,
			EnablePrediction: true,
			AlertOnLoss:      true,
			CrossCamera:      true,
			Priority:         0.7,
			Reason:           "Incident response",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	plan.Actions = m.planActions(ctx, inc, now)

	m.planMu.Lock()
	m.plans[plan.ID] = plan
	m.planMu.Unlock()

	m.publish("plan_created", m.snapshotPlan(plan.ID))
	return m.snapshotPlan(plan.ID)
}

// planActions prefers a model-planned sequence and falls back to the
// per-type recommendations.
func (m *Manager) planActions(ctx context.Context, inc *Incident, now time.Time) []PlannedAction {
	if m.completion != nil && m.completion.Enabled() {
		if actions, err := m.modelPlanActions(ctx, inc, now); err == nil && len(actions) > 0 {
			return actions
		} else if err != nil {
			logging.Debug("model planning failed for incident %s, using heuristics: %v", inc.ID, err)
		}
	}
	return heuristicPlanActions(inc, now)
}

func (m *Manager) modelPlanActions(ctx context.Context, inc *Incident, now time.Time) ([]PlannedAction, error) {
	analysis, err := m.completion.Analyze(ctx, llm.AnalysisRequest{
		Kind: llm.KindResponsePlanning,
		Context: []llm.ContextItem{
			{Label: "Incident", Content: fmt.Sprintf("type=%s severity=%s camera=%s: %s",
				inc.Type, inc.Severity, inc.CameraID, inc.Description)},
			{Label: "Recommended actions", Content: strings.Join(RecommendedActions(inc), "\n")},
		},
	})
	if err != nil {
		return nil, err
	}

	var actions []PlannedAction
	for i, sa := range analysis.Actions {
		// Passive monitoring is already covered by the strategy itself.
		if sa.Kind == "monitor" {
			continue
		}
		kind := planActionKind(sa.Kind)
		desc := sa.Description
		if desc == "" {
			desc = string(kind)
		}
		actions = append(actions, PlannedAction{
			Kind:        kind,
			Description: desc,
			Priority:    10 - i,
			Due:         now.Add(time.Duration(5*i) * time.Minute),
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority > actions[j].Priority
	})
	return actions, nil
}

// heuristicPlanActions turns the recommended action list into scheduled
// steps with falling priority and staggered due times.
func heuristicPlanActions(inc *Incident, now time.Time) []PlannedAction {
	recs := RecommendedActions(inc)
	actions := make([]PlannedAction, 0, len(recs))
	for i, rec := range recs {
		actions = append(actions, PlannedAction{
			Kind:        actionKindForRecommendation(rec),
			Description: rec,
			Priority:    10 - i,
			Due:         now.Add(time.Duration(5*i) * time.Minute),
		})
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority > actions[j].Priority
	})
	return actions
}

// planActionKind maps model action labels onto executable kinds.
func planActionKind(label string) core.ActionKind {
	switch label {
	case "monitor":
		return core.ActionFocusCamera
	case "alert":
		return core.ActionGenerateAlert
	case "track":
		return core.ActionTrackSubject
	case "analyze-further":
		return core.ActionGatherContext
	case "cross-reference":
		return core.ActionCorrelateEvents
	case "predict":
		return core.ActionUpdateModel
	case "recommend":
		return core.ActionRequestAssistance
	default:
		return core.ActionLogInformation
	}
}

// actionKindForRecommendation infers an executable kind from guidance
// text.
func actionKindForRecommendation(rec string) core.ActionKind {
	lower := strings.ToLower(rec)
	switch {
	case strings.Contains(lower, "escalate"):
		return core.ActionEscalateIncident
	case strings.Contains(lower, "alert"):
		return core.ActionGenerateAlert
	case strings.Contains(lower, "track"):
		return core.ActionTrackSubject
	case strings.Contains(lower, "verify"), strings.Contains(lower, "review"):
		return core.ActionVerifyAnomaly
	case strings.Contains(lower, "monitor"):
		return core.ActionFocusCamera
	case strings.Contains(lower, "correlate"):
		return core.ActionCorrelateEvents
	case strings.Contains(lower, "response team"), strings.Contains(lower, "secure"):
		return core.ActionInitiateResponse
	case strings.Contains(lower, "context"), strings.Contains(lower, "gather"), strings.Contains(lower, "identify"):
		return core.ActionGatherContext
	default:
		return core.ActionLogInformation
	}
}

// monitoringCameras returns the primary camera plus its active adjacent
// cameras, the area a fleeing subject can reach directly.
func (m *Manager) monitoringCameras(primary core.CameraID) []core.CameraID {
	m.camMu.RLock()
	defer m.camMu.RUnlock()

	cameras := []core.CameraID{}
	if primary != "" {
		cameras = append(cameras, primary)
	}

	origin, ok := m.cameras[primary]
	if !ok {
		return cameras
	}

	for _, id := range origin.Adjacent {
		if id == primary {
			continue
		}
		if cam, ok := m.cameras[id]; ok && cam.Active {
			cameras = append(cameras, id)
		}
	}
	return cameras
}

// Plan returns one plan by ID.
func (m *Manager) Plan(id core.PlanID) (*Plan, bool) {
	plan := m.snapshotPlan(id)
	return plan, plan != nil
}

func (m *Manager) snapshotPlan(id core.PlanID) *Plan {
	m.planMu.RLock()
	defer m.planMu.RUnlock()

	plan, ok := m.plans[id]
	if !ok {
		return nil
	}
	cp := *plan
	cp.Strategy.Cameras = append([]core.CameraID(nil), plan.Strategy.Cameras...)
	cp.Actions = append([]PlannedAction(nil), plan.Actions...)
	return &cp
}

// Plans returns all plans, newest first.
func (m *Manager) Plans() []*Plan {
	m.planMu.RLock()
	defer m.planMu.RUnlock()

	out := make([]*Plan, 0, len(m.plans))
	for _, plan := range m.plans {
		cp := *plan
		cp.Strategy.Cameras = append([]core.CameraID(nil), plan.Strategy.Cameras...)
		cp.Actions = append([]PlannedAction(nil), plan.Actions...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// MarkPlanAction marks one action done. Finishing the last action
// completes the plan.
func (m *Manager) MarkPlanAction(id core.PlanID, index int) error {
	m.planMu.Lock()
	defer m.planMu.Unlock()

	plan, ok := m.plans[id]
	if !ok {
		return core.ErrPlanNotFound
	}
	if index < 0 || index >= len(plan.Actions) {
		return fmt.Errorf("%w: action index %d", core.ErrInvalidInput, index)
	}

	plan.Actions[index].Done = true
	plan.UpdatedAt = time.Now()

	if plan.Status == PlanActive && plan.IsComplete() {
		plan.Status = PlanCompleted
	}
	return nil
}

// completePlansFor finishes every active plan attached to an incident.
func (m *Manager) completePlansFor(incidentID core.IncidentID) {
	m.planMu.Lock()
	defer m.planMu.Unlock()

	for _, plan := range m.plans {
		if plan.IncidentID == incidentID && plan.Status == PlanActive {
			plan.Status = PlanCompleted
			plan.UpdatedAt = time.Now()
		}
	}
}
