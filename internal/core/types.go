// Package core defines the fundamental types shared across Sightline.
package core

import (
	"time"
)

// ====== Identifiers ======

// KnowledgeID uniquely identifies a knowledge item
type KnowledgeID string

// GoalID uniquely identifies a goal
type GoalID string

// ActionID uniquely identifies an action
type ActionID string

// ReasoningID uniquely identifies a reasoning record
type ReasoningID string

// SubjectID uniquely identifies a tracked subject
type SubjectID string

// IncidentID uniquely identifies a security incident
type IncidentID string

// PlanID uniquely identifies a strategic plan
type PlanID string

// CameraID uniquely identifies a camera device
type CameraID string

// ====== Knowledge ======

// KnowledgeKind categorizes a belief held by the engine
type KnowledgeKind string

const (
	KnowledgeObservation    KnowledgeKind = "observation"
	KnowledgeInference      KnowledgeKind = "inference"
	KnowledgePrediction     KnowledgeKind = "prediction"
	KnowledgeHistoricalFact KnowledgeKind = "historical_fact"
	KnowledgeContextualInfo KnowledgeKind = "contextual_info"
	KnowledgeMetaKnowledge  KnowledgeKind = "meta_knowledge"
)

// ====== Goals ======

// GoalKind categorizes an objective
type GoalKind string

const (
	GoalMonitor  GoalKind = "monitor"
	GoalDetect   GoalKind = "detect"
	GoalTrack    GoalKind = "track"
	GoalVerify   GoalKind = "verify"
	GoalRespond  GoalKind = "respond"
	GoalPrevent  GoalKind = "prevent"
	GoalOptimize GoalKind = "optimize"
)

// GoalStatus is the lifecycle state of a goal
type GoalStatus string

const (
	GoalPending    GoalStatus = "pending"
	GoalInProgress GoalStatus = "in_progress"
	GoalAchieved   GoalStatus = "achieved"
	GoalFailed     GoalStatus = "failed"
	GoalAbandoned  GoalStatus = "abandoned"
)

// Priority orders goals from critical down to background work
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityBackground
)

// String returns the human-readable priority name
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "background"
	}
}

// ====== Actions ======

// ActionKind identifies the intervention an action performs
type ActionKind string

const (
	ActionFocusCamera       ActionKind = "focus_camera"
	ActionAdjustAnalysis    ActionKind = "adjust_analysis"
	ActionGenerateAlert     ActionKind = "generate_alert"
	ActionSuppressAlert     ActionKind = "suppress_alert"
	ActionGatherContext     ActionKind = "gather_context"
	ActionVerifyAnomaly     ActionKind = "verify_anomaly"
	ActionCorrelateEvents   ActionKind = "correlate_events"
	ActionInitiateResponse  ActionKind = "initiate_response"
	ActionTrackSubject      ActionKind = "track_subject"
	ActionCoordinateSystem  ActionKind = "coordinate_system"
	ActionUpdateModel       ActionKind = "update_model"
	ActionLogInformation    ActionKind = "log_information"
	ActionRequestAssistance ActionKind = "request_assistance"
	ActionEscalateIncident  ActionKind = "escalate_incident"
	ActionGenerateReport    ActionKind = "generate_report"
)

// ActionStatus is the lifecycle state of an action
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionCancelled  ActionStatus = "cancelled"
)

// ====== Incidents ======

// IncidentType categorizes a security incident
type IncidentType string

const (
	IncidentUnknownVisitor     IncidentType = "unknown_visitor"
	IncidentLoitering          IncidentType = "loitering"
	IncidentIntrusion          IncidentType = "intrusion"
	IncidentCrowdFormation     IncidentType = "crowd_formation"
	IncidentUnusualMovement    IncidentType = "unusual_movement"
	IncidentSuspiciousBehavior IncidentType = "suspicious_behavior"
	IncidentAbandonedObject    IncidentType = "abandoned_object"
	IncidentTrackingLost       IncidentType = "tracking_lost"
	IncidentSystemAlert        IncidentType = "system_alert"
)

// Severity ranks incident impact
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the human-readable severity name
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// SeverityForScore maps an anomaly score onto a severity tier.
// Boundaries are strict: a score of exactly 0.85 is high, not critical.
func SeverityForScore(score float64) Severity {
	switch {
	case score > 0.85:
		return SeverityCritical
	case score > 0.7:
		return SeverityHigh
	case score > 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IncidentStatus is the lifecycle state of an incident
type IncidentStatus string

const (
	IncidentNew           IncidentStatus = "new"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentConfirmed     IncidentStatus = "confirmed"
	IncidentFalseAlarm    IncidentStatus = "false_alarm"
	IncidentResolved      IncidentStatus = "resolved"
)

// IsClosed reports whether the status is terminal
func (s IncidentStatus) IsClosed() bool {
	return s == IncidentResolved || s == IncidentFalseAlarm
}

// ====== Perception input ======

// Point is a position in normalized frame coordinates (0.0-1.0)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an object box in pixel coordinates. The frame
// dimensions on the enclosing AnalysisResult convert it to normalized
// points.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the box center point
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// DetectedObject is one detection reported by the perception layer
type DetectedObject struct {
	Type       string            `json:"type"` // "person", "vehicle", ...
	Confidence float64           `json:"confidence"`
	Box        BoundingBox       `json:"box"`
	TrackID    string            `json:"track_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// AnalysisResult is the perception layer's per-frame output
type AnalysisResult struct {
	CameraID           CameraID         `json:"camera_id"`
	Timestamp          time.Time        `json:"timestamp"`
	FrameWidth         int              `json:"frame_width,omitempty"`
	FrameHeight        int              `json:"frame_height,omitempty"`
	Objects            []DetectedObject `json:"objects,omitempty"`
	MotionLevel        float64          `json:"motion_level"`
	IsAnomaly          bool             `json:"is_anomaly"`
	AnomalyType        string           `json:"anomaly_type,omitempty"`
	AnomalyDescription string           `json:"anomaly_description,omitempty"`
	AnomalyScore       float64          `json:"anomaly_score"`
}

// PersonCount returns the number of detected people and how many of
// them carry an unknown recognition status.
func (r *AnalysisResult) PersonCount() (total, unknown int) {
	for _, obj := range r.Objects {
		if obj.Type != "person" {
			continue
		}
		total++
		if obj.Attributes["recognition_status"] == "unknown" {
			unknown++
		}
	}
	return total, unknown
}

// VehicleCount returns the number of detected vehicles
func (r *AnalysisResult) VehicleCount() int {
	n := 0
	for _, obj := range r.Objects {
		if obj.Type == "vehicle" {
			n++
		}
	}
	return n
}

// ====== Structured parameters ======

// Params carries free-form structured values attached to goals and actions
type Params map[string]any

// String returns the named string parameter, or "" when absent
func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Float returns the named numeric parameter, or 0 when absent
func (p Params) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Int returns the named integer parameter, or 0 when absent
func (p Params) Int(key string) int {
	return int(p.Float(key))
}

// Bool returns the named boolean parameter, or false when absent
func (p Params) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Clone returns a shallow copy so callers never share the backing map
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
