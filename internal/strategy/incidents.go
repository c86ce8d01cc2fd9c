package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/storage"
)

// IncidentInput is everything needed to open an incident.
type IncidentInput struct {
	Type         core.IncidentType
	Severity     core.Severity
	CameraID     core.CameraID
	SubjectIDs   []core.SubjectID
	Description  string
	AnomalyScore float64
}

// incidentTypeForAnomaly maps perception anomaly labels onto incident
// types. Unrecognized labels fall back to suspicious behavior.
func incidentTypeForAnomaly(anomalyType string) core.IncidentType {
	switch anomalyType {
	case "UnknownVisitor":
		return core.IncidentUnknownVisitor
	case "Loitering":
		return core.IncidentLoitering
	case "Intrusion":
		return core.IncidentIntrusion
	case "CrowdFormation":
		return core.IncidentCrowdFormation
	case "AbnormalMovement":
		return core.IncidentUnusualMovement
	case "AbandonedObject":
		return core.IncidentAbandonedObject
	default:
		return core.IncidentSuspiciousBehavior
	}
}

// CreateIncident opens an incident, records its creation on the
// timeline and audit log, and generates a monitoring plan for it.
func (m *Manager) CreateIncident(ctx context.Context, input IncidentInput) *Incident {
	now := time.Now()
	inc := &Incident{
		ID:           core.IncidentID(uuid.NewString()),
		Type:         input.Type,
		Severity:     input.Severity,
		Status:       core.IncidentNew,
		CameraID:     input.CameraID,
		SubjectIDs:   input.SubjectIDs,
		Description:  input.Description,
		AnomalyScore: input.AnomalyScore,
		StartTime:    now,
		UpdatedAt:    now,
		ResponseActions: []ResponseAction{
			{
				Type:        "INCIDENT_CREATED",
				Description: "Incident created automatically by system",
				Timestamp:   now,
			},
		},
	}

	m.incMu.Lock()
	m.incidents[inc.ID] = inc
	m.incMu.Unlock()

	m.recordAudit(storage.AuditEntry{
		IncidentID:  inc.ID,
		CameraID:    inc.CameraID,
		ActionType:  "INCIDENT_CREATED",
		Description: "Incident created automatically by system",
		InitiatedBy: "system",
	})

	logging.Info("incident %s opened: %s severity=%s camera=%s",
		inc.ID, inc.Type, inc.Severity, inc.CameraID)

	m.GeneratePlan(ctx, inc.ID)
	m.publish("incident_created", m.snapshotIncident(inc.ID))

	return m.snapshotIncident(inc.ID)
}

// UpdateIncidentStatus transitions an incident and records the change.
// Closing statuses set the resolve time and complete the incident's
// plans.
func (m *Manager) UpdateIncidentStatus(ctx context.Context, id core.IncidentID, status core.IncidentStatus, by string) error {
	m.incMu.Lock()
	inc, ok := m.incidents[id]
	if !ok {
		m.incMu.Unlock()
		return core.ErrIncidentNotFound
	}

	now := time.Now()
	inc.Status = status
	inc.UpdatedAt = now
	inc.ResponseActions = append(inc.ResponseActions, ResponseAction{
		Type:        "STATUS_CHANGE",
		Description: fmt.Sprintf("Incident status changed to %s", status),
		Timestamp:   now,
	})
	if status.IsClosed() {
		inc.ResolveTime = &now
		inc.ResolvedBy = by
	}
	cameraID := inc.CameraID
	m.incMu.Unlock()

	m.recordAudit(storage.AuditEntry{
		IncidentID:  id,
		CameraID:    cameraID,
		ActionType:  "STATUS_CHANGE",
		Description: fmt.Sprintf("Incident status changed to %s", status),
		InitiatedBy: by,
	})

	if status.IsClosed() {
		m.completePlansFor(id)
	}

	m.publish("incident_updated", m.snapshotIncident(id))
	return nil
}

// Incident returns one incident by ID.
func (m *Manager) Incident(id core.IncidentID) (*Incident, bool) {
	inc := m.snapshotIncident(id)
	return inc, inc != nil
}

func (m *Manager) snapshotIncident(id core.IncidentID) *Incident {
	m.incMu.RLock()
	defer m.incMu.RUnlock()

	inc, ok := m.incidents[id]
	if !ok {
		return nil
	}
	cp := *inc
	cp.SubjectIDs = append([]core.SubjectID(nil), inc.SubjectIDs...)
	cp.ResponseActions = append([]ResponseAction(nil), inc.ResponseActions...)
	return &cp
}

// ActiveIncidents returns open incidents, most severe first, newer
// incidents breaking ties.
func (m *Manager) ActiveIncidents() []*Incident {
	m.incMu.RLock()
	defer m.incMu.RUnlock()

	var out []*Incident
	for _, inc := range m.incidents {
		if inc.Status.IsClosed() {
			continue
		}
		cp := *inc
		cp.SubjectIDs = append([]core.SubjectID(nil), inc.SubjectIDs...)
		cp.ResponseActions = append([]ResponseAction(nil), inc.ResponseActions...)
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// AllIncidents returns every incident, newest first.
func (m *Manager) AllIncidents() []*Incident {
	m.incMu.RLock()
	defer m.incMu.RUnlock()

	out := make([]*Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		cp := *inc
		cp.SubjectIDs = append([]core.SubjectID(nil), inc.SubjectIDs...)
		cp.ResponseActions = append([]ResponseAction(nil), inc.ResponseActions...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// AuditTrail returns the persisted audit entries for an incident.
func (m *Manager) AuditTrail(id core.IncidentID) ([]storage.AuditEntry, error) {
	if m.audit == nil {
		return nil, nil
	}
	return m.audit.ForIncident(id)
}

func (m *Manager) recordAudit(entry storage.AuditEntry) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Append(entry); err != nil {
		logging.Warn("audit append failed for incident %s: %v", entry.IncidentID, err)
	}
}

// EstimateTimeToResolution gives the expected handling time per
// severity tier.
func EstimateTimeToResolution(severity core.Severity) time.Duration {
	switch severity {
	case core.SeverityCritical:
		return 2 * time.Hour
	case core.SeverityHigh:
		return time.Hour
	case core.SeverityMedium:
		return 30 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// RecommendedActions lists operator guidance for an incident, with
// escalation steps added for high and critical severity.
func RecommendedActions(inc *Incident) []string {
	var actions []string
	switch inc.Type {
	case core.IncidentUnknownVisitor:
		actions = []string{
			"Verify visitor identity",
			"Track subject across cameras",
			"Review entry point footage",
		}
	case core.IncidentLoitering:
		actions = []string{
			"Monitor subject behavior",
			"Track subject across cameras",
			"Check against known persons",
		}
	case core.IncidentIntrusion:
		actions = []string{
			"Generate immediate alert",
			"Track subject across cameras",
			"Secure affected area",
		}
	case core.IncidentCrowdFormation:
		actions = []string{
			"Monitor crowd density",
			"Identify gathering cause",
			"Prepare crowd management response",
		}
	case core.IncidentUnusualMovement:
		actions = []string{
			"Verify movement pattern",
			"Track subject across cameras",
			"Correlate with other cameras",
		}
	case core.IncidentAbandonedObject:
		actions = []string{
			"Verify object is unattended",
			"Review footage for owner",
			"Secure surrounding area",
		}
	default:
		actions = []string{
			"Verify anomaly footage",
			"Monitor affected camera",
			"Gather additional context",
		}
	}

	switch inc.Severity {
	case core.SeverityCritical:
		actions = append(actions, "Escalate to supervisor", "Prepare immediate response team")
	case core.SeverityHigh:
		actions = append(actions, "Escalate to supervisor")
	}
	return actions
}
