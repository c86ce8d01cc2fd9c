package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/sightline/sightline/internal/anomaly"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/storage"
	"github.com/sightline/sightline/internal/strategy"
)

// Deps are the subsystems handlers act on. Optional fields may be nil;
// handlers degrade to logging when their target is absent.
type Deps struct {
	Strategy   *strategy.Manager
	Knowledge  *knowledge.Store
	Detector   *anomaly.Detector
	Completion *llm.Service
	Models     *storage.ModelStore
	Events     strategy.EventPublisher
}

func (d Deps) publish(event string, data any) {
	if d.Events != nil {
		d.Events.Publish(event, data)
	}
}

// RegisterDefaults wires a handler for every action kind.
func RegisterDefaults(e *Executor, deps Deps) {
	e.Register(core.ActionFocusCamera, deps.focusCamera)
	e.Register(core.ActionAdjustAnalysis, deps.adjustAnalysis)
	e.Register(core.ActionGenerateAlert, deps.generateAlert)
	e.Register(core.ActionSuppressAlert, deps.suppressAlert)
	e.Register(core.ActionGatherContext, deps.gatherContext)
	e.Register(core.ActionVerifyAnomaly, deps.verifyAnomaly)
	e.Register(core.ActionCorrelateEvents, deps.correlateEvents)
	e.Register(core.ActionInitiateResponse, deps.initiateResponse)
	e.Register(core.ActionTrackSubject, deps.trackSubject)
	e.Register(core.ActionCoordinateSystem, deps.coordinateSystem)
	e.Register(core.ActionUpdateModel, deps.updateModel)
	e.Register(core.ActionLogInformation, deps.logInformation)
	e.Register(core.ActionRequestAssistance, deps.requestAssistance)
	e.Register(core.ActionEscalateIncident, deps.escalateIncident)
	e.Register(core.ActionGenerateReport, deps.generateReport)
}

// focusCamera directs attention to a camera for a duration.
func (d Deps) focusCamera(ctx context.Context, action Action) (*Result, error) {
	camera := core.CameraID(action.Params.String("camera_id"))
	if camera == "" && d.Strategy != nil {
		camera = d.Strategy.RecommendedCamera()
	}
	if camera == "" {
		return nil, fmt.Errorf("%w: no camera to focus", core.ErrCameraNotFound)
	}

	duration := action.Params.Int("duration")
	if duration <= 0 {
		duration = 300
	}

	d.publish("camera_focus", core.Params{"camera_id": string(camera), "duration": duration})
	return &Result{
		Message: fmt.Sprintf("Focused on camera %s for %ds", camera, duration),
		Data:    core.Params{"camera_id": string(camera), "duration": duration},
	}, nil
}

// adjustAnalysis tunes the anomaly threshold.
func (d Deps) adjustAnalysis(ctx context.Context, action Action) (*Result, error) {
	if d.Detector == nil {
		return nil, fmt.Errorf("%w: no detector attached", core.ErrServiceUnavailable)
	}

	threshold := action.Params.Float("threshold")
	if threshold == 0 {
		threshold = action.Params.Float("sensitivity")
	}
	if threshold == 0 {
		return nil, fmt.Errorf("%w: threshold", core.ErrMissingRequired)
	}

	d.Detector.SetThreshold(threshold)
	applied := d.Detector.Threshold()
	return &Result{
		Message: fmt.Sprintf("Anomaly threshold set to %.2f", applied),
		Data:    core.Params{"threshold": applied},
	}, nil
}

// generateAlert raises an operator alert.
func (d Deps) generateAlert(ctx context.Context, action Action) (*Result, error) {
	priority := action.Params.String("priority")
	if priority == "" {
		priority = "medium"
	}

	payload := core.Params{
		"priority":    priority,
		"description": action.Description,
		"camera_id":   action.Params.String("camera_id"),
	}
	d.publish("alert", payload)
	logging.Warn("ALERT [%s]: %s", priority, action.Description)

	return &Result{
		Message: fmt.Sprintf("Alert raised with %s priority", priority),
		Data:    payload,
	}, nil
}

// suppressAlert records that alerts for a source should be muted.
func (d Deps) suppressAlert(ctx context.Context, action Action) (*Result, error) {
	reason := action.Params.String("reason")
	if reason == "" {
		reason = "operator judgment"
	}

	if d.Knowledge != nil {
		if _, err := d.Knowledge.Add(knowledge.Item{
			Kind:       core.KnowledgeMetaKnowledge,
			Content:    fmt.Sprintf("Alert suppressed: %s (%s)", action.Description, reason),
			Confidence: 0.9,
			Source:     "action_executor",
		}); err != nil {
			return nil, err
		}
	}

	d.publish("alert_suppressed", core.Params{"reason": reason})
	return &Result{Message: "Alert suppression recorded"}, nil
}

// gatherContext pulls related knowledge for a concern.
func (d Deps) gatherContext(ctx context.Context, action Action) (*Result, error) {
	if d.Knowledge == nil {
		return nil, fmt.Errorf("%w: no knowledge store attached", core.ErrServiceUnavailable)
	}

	query := action.Params.String("query")
	if query == "" {
		query = action.Description
	}

	items := d.Knowledge.Query(query, 10)
	contents := make([]string, 0, len(items))
	for _, item := range items {
		contents = append(contents, item.Content)
	}

	return &Result{
		Message: fmt.Sprintf("Gathered %d related knowledge items", len(items)),
		Data:    core.Params{"count": len(items), "items": contents},
	}, nil
}

// verifyAnomaly double-checks a flagged anomaly, with model assistance
// when available.
func (d Deps) verifyAnomaly(ctx context.Context, action Action) (*Result, error) {
	description := action.Params.String("anomaly")
	if description == "" {
		description = action.Description
	}

	if d.Completion != nil && d.Completion.Enabled() {
		analysis, err := d.Completion.Analyze(ctx, llm.AnalysisRequest{
			Kind: llm.KindAnomalyAnalysis,
			Context: []llm.ContextItem{
				{Label: "Anomaly", Content: description},
			},
		})
		if err == nil {
			verified := analysis.Confidence > 0.5
			return &Result{
				Message: fmt.Sprintf("Anomaly verification confidence %.2f", analysis.Confidence),
				Data: core.Params{
					"verified":   verified,
					"confidence": analysis.Confidence,
					"reasoning":  analysis.Reasoning,
				},
			}, nil
		}
		logging.Debug("model verification unavailable, using local check: %v", err)
	}

	// Local check: corroboration from recent knowledge.
	corroborating := 0
	if d.Knowledge != nil {
		for _, word := range strings.Fields(description) {
			if len(word) < 4 {
				continue
			}
			corroborating += len(d.Knowledge.Query(word, 5))
		}
	}
	verified := corroborating > 0
	return &Result{
		Message: fmt.Sprintf("Local verification found %d corroborating items", corroborating),
		Data:    core.Params{"verified": verified, "corroborating": corroborating},
	}, nil
}

// correlateEvents looks for related activity across cameras.
func (d Deps) correlateEvents(ctx context.Context, action Action) (*Result, error) {
	related := 0
	var cameras []string

	if d.Strategy != nil {
		for _, inc := range d.Strategy.ActiveIncidents() {
			related++
			if inc.CameraID != "" {
				cameras = append(cameras, string(inc.CameraID))
			}
		}
	}
	if d.Knowledge != nil {
		related += len(d.Knowledge.Query("camera", 10))
	}

	return &Result{
		Message: fmt.Sprintf("Correlated %d related events", related),
		Data:    core.Params{"related": related, "cameras": cameras},
	}, nil
}

// initiateResponse regenerates the response plan for an incident.
func (d Deps) initiateResponse(ctx context.Context, action Action) (*Result, error) {
	if d.Strategy == nil {
		return nil, fmt.Errorf("%w: no strategy manager attached", core.ErrServiceUnavailable)
	}

	incidentID := core.IncidentID(action.Params.String("incident_id"))
	if incidentID == "" {
		active := d.Strategy.ActiveIncidents()
		if len(active) == 0 {
			return nil, fmt.Errorf("%w: no open incident to respond to", core.ErrIncidentNotFound)
		}
		incidentID = active[0].ID
	}

	plan := d.Strategy.GeneratePlan(ctx, incidentID)
	if plan == nil {
		return nil, core.ErrIncidentNotFound
	}

	d.publish("response_initiated", core.Params{"incident_id": string(incidentID), "plan_id": string(plan.ID)})
	return &Result{
		Message: fmt.Sprintf("Response plan %s generated for incident %s", plan.ID, incidentID),
		Data:    core.Params{"plan_id": string(plan.ID), "actions": len(plan.Actions)},
	}, nil
}

// trackSubject predicts where a subject will appear next.
func (d Deps) trackSubject(ctx context.Context, action Action) (*Result, error) {
	if d.Strategy == nil {
		return nil, fmt.Errorf("%w: no strategy manager attached", core.ErrServiceUnavailable)
	}

	subjectID := core.SubjectID(action.Params.String("subject_id"))
	if subjectID == "" {
		subjects := d.Strategy.TrackedSubjects()
		if len(subjects) == 0 {
			return nil, fmt.Errorf("%w: nothing to track", core.ErrSubjectNotFound)
		}
		subjectID = subjects[0].ID
	}

	next, err := d.Strategy.PredictNextCameras(subjectID)
	if err != nil {
		return nil, err
	}

	cameras := make([]string, 0, len(next))
	for _, c := range next {
		cameras = append(cameras, string(c))
	}
	d.publish("subject_tracked", core.Params{"subject_id": string(subjectID), "next_cameras": cameras})

	return &Result{
		Message: fmt.Sprintf("Tracking subject %s, %d likely next cameras", subjectID, len(next)),
		Data:    core.Params{"subject_id": string(subjectID), "next_cameras": cameras},
	}, nil
}

// coordinateSystem points the wider system at the focus camera.
func (d Deps) coordinateSystem(ctx context.Context, action Action) (*Result, error) {
	var camera core.CameraID
	if d.Strategy != nil {
		camera = d.Strategy.RecommendedCamera()
	}

	d.publish("system_coordination", core.Params{"camera_id": string(camera)})
	return &Result{
		Message: fmt.Sprintf("Coordination signal sent, focus camera %q", camera),
		Data:    core.Params{"camera_id": string(camera)},
	}, nil
}

// updateModel persists the anomaly baselines.
func (d Deps) updateModel(ctx context.Context, action Action) (*Result, error) {
	if d.Detector == nil {
		return nil, fmt.Errorf("%w: no detector attached", core.ErrServiceUnavailable)
	}

	trained := d.Detector.TrainedBuckets()
	if d.Models != nil {
		if err := d.Detector.Save(d.Models); err != nil {
			return nil, err
		}
	}

	return &Result{
		Message: fmt.Sprintf("Model state saved, %d trained buckets", trained),
		Data:    core.Params{"trained_buckets": trained},
	}, nil
}

// logInformation records an observation in the knowledge base.
func (d Deps) logInformation(ctx context.Context, action Action) (*Result, error) {
	if d.Knowledge == nil {
		logging.Info("%s", action.Description)
		return &Result{Message: "Information logged"}, nil
	}

	confidence := action.ExpectedUtility
	if confidence <= 0 {
		confidence = 0.5
	}
	item, err := d.Knowledge.Add(knowledge.Item{
		Kind:       core.KnowledgeObservation,
		Content:    action.Description,
		Confidence: confidence,
		Source:     "action_executor",
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Message: "Information recorded in knowledge base",
		Data:    core.Params{"knowledge_id": string(item.ID)},
	}, nil
}

// requestAssistance summons a human operator.
func (d Deps) requestAssistance(ctx context.Context, action Action) (*Result, error) {
	payload := core.Params{
		"reason":    action.Description,
		"camera_id": action.Params.String("camera_id"),
	}
	d.publish("assistance_requested", payload)
	logging.Warn("operator assistance requested: %s", action.Description)
	return &Result{Message: "Operator assistance requested", Data: payload}, nil
}

// escalateIncident confirms an incident and regenerates its plan.
func (d Deps) escalateIncident(ctx context.Context, action Action) (*Result, error) {
	if d.Strategy == nil {
		return nil, fmt.Errorf("%w: no strategy manager attached", core.ErrServiceUnavailable)
	}

	incidentID := core.IncidentID(action.Params.String("incident_id"))
	if incidentID == "" {
		active := d.Strategy.ActiveIncidents()
		if len(active) == 0 {
			return nil, fmt.Errorf("%w: no open incident to escalate", core.ErrIncidentNotFound)
		}
		incidentID = active[0].ID
	}

	if err := d.Strategy.UpdateIncidentStatus(ctx, incidentID, core.IncidentConfirmed, "escalation"); err != nil {
		return nil, err
	}
	d.publish("incident_escalated", core.Params{"incident_id": string(incidentID)})

	return &Result{
		Message: fmt.Sprintf("Incident %s escalated to confirmed", incidentID),
		Data:    core.Params{"incident_id": string(incidentID)},
	}, nil
}

// generateReport produces a situation report.
func (d Deps) generateReport(ctx context.Context, action Action) (*Result, error) {
	if d.Strategy == nil {
		return nil, fmt.Errorf("%w: no strategy manager attached", core.ErrServiceUnavailable)
	}

	report := d.Strategy.Report(ctx)
	d.publish("report_generated", report)

	return &Result{
		Message: report.Summary,
		Data: core.Params{
			"active_incidents": report.ActiveIncidents,
			"tracked_subjects": report.TrackedSubjects,
			"highest_severity": report.HighestSeverity,
		},
	}, nil
}
