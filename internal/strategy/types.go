// Package strategy manages the tactical security picture: cameras,
// tracked subjects, incidents, and monitoring plans.
package strategy

import (
	"time"

	"github.com/sightline/sightline/internal/core"
)

// Camera is one monitored video source. Position places the camera on
// a normalized site map; Adjacent names the cameras a subject can reach
// directly from this one. Hand-off prediction only ever proposes
// adjacent cameras.
type Camera struct {
	ID       core.CameraID   `json:"id"`
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Position core.Point      `json:"position"`
	Adjacent []core.CameraID `json:"adjacent,omitempty"`
	Active   bool            `json:"active"`
}

// SubjectPosition is one normalized sighting of a subject.
type SubjectPosition struct {
	CameraID  core.CameraID `json:"camera_id"`
	Point     core.Point    `json:"point"`
	Timestamp time.Time     `json:"timestamp"`
}

// TrackedSubject is a person or vehicle followed across cameras.
type TrackedSubject struct {
	ID                core.SubjectID    `json:"id"`
	TrackID           string            `json:"track_id"`
	Type              string            `json:"type"` // "person" or "vehicle"
	RecognitionStatus string            `json:"recognition_status,omitempty"`
	FirstSeen         time.Time         `json:"first_seen"`
	LastSeen          time.Time         `json:"last_seen"`
	LastCamera        core.CameraID     `json:"last_camera"`
	Positions         []SubjectPosition `json:"positions"`
	ThreatScore       float64           `json:"threat_score"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// Trajectory describes a subject's current motion in normalized frame
// coordinates.
type Trajectory struct {
	Angle float64 `json:"angle"` // Radians, screen-up positive
	Speed float64 `json:"speed"` // Normalized units per second
}

// ResponseAction is one step recorded on an incident's timeline.
type ResponseAction struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Incident is one security event under management.
type Incident struct {
	ID              core.IncidentID     `json:"id"`
	Type            core.IncidentType   `json:"type"`
	Severity        core.Severity       `json:"severity"`
	Status          core.IncidentStatus `json:"status"`
	CameraID        core.CameraID       `json:"camera_id"`
	SubjectIDs      []core.SubjectID    `json:"subject_ids,omitempty"`
	Description     string              `json:"description"`
	AnomalyScore    float64             `json:"anomaly_score"`
	StartTime       time.Time           `json:"start_time"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ResolveTime     *time.Time          `json:"resolve_time,omitempty"`
	ResolvedBy      string              `json:"resolved_by,omitempty"`
	ResponseActions []ResponseAction    `json:"response_actions"`
}

// MonitoringStrategy configures how a plan watches its cameras.
type MonitoringStrategy struct {
	Cameras          []core.CameraID `json:"cameras"`
	Duration         time.Duration   `json:"duration"`
	FrameRate        int             `json:"frame_rate"`
	EnablePrediction bool            `json:"enable_prediction"`
	AlertOnLoss      bool            `json:"alert_on_loss"`
	CrossCamera      bool            `json:"cross_camera"`
	Priority         float64         `json:"priority"`
	Reason           string          `json:"reason"`
}

// PlanStatus is the lifecycle state of a monitoring plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// PlannedAction is one scheduled step within a plan.
type PlannedAction struct {
	Kind        core.ActionKind `json:"kind"`
	Description string          `json:"description"`
	Priority    int             `json:"priority"`
	Due         time.Time       `json:"due"`
	Done        bool            `json:"done"`
}

// Plan is a monitoring plan generated for an incident.
type Plan struct {
	ID         core.PlanID        `json:"id"`
	IncidentID core.IncidentID    `json:"incident_id"`
	Status     PlanStatus         `json:"status"`
	Strategy   MonitoringStrategy `json:"strategy"`
	Actions    []PlannedAction    `json:"actions"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// IsComplete reports whether the plan needs no further work.
func (p *Plan) IsComplete() bool {
	if p.Status == PlanCompleted || p.Status == PlanCancelled {
		return true
	}
	for _, a := range p.Actions {
		if !a.Done {
			return false
		}
	}
	return len(p.Actions) > 0
}

// EventPublisher receives strategy events for fan-out to subscribers.
// Implementations must not block.
type EventPublisher interface {
	Publish(event string, data any)
}
