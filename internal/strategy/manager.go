package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/storage"
)

// positionCap bounds the per-subject position history.
const positionCap = 100

// Config configures the strategy manager
type Config struct {
	UnknownVisitorThreshold time.Duration // Unknown person presence before an incident
	SubjectIdleTimeout      time.Duration // Idle subjects are dropped after this
	IncidentStaleTimeout    time.Duration // Open incidents auto-resolve after this
	PlanRetention           time.Duration // Finished plans are kept this long
	FrameWidth              int           // Fallback frame width for pixel boxes
	FrameHeight             int           // Fallback frame height for pixel boxes
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		UnknownVisitorThreshold: 30 * time.Second,
		SubjectIdleTimeout:      10 * time.Minute,
		IncidentStaleTimeout:    30 * time.Minute,
		PlanRetention:           24 * time.Hour,
		FrameWidth:              1920,
		FrameHeight:             1080,
	}
}

// Manager owns the tactical picture: cameras, subjects, incidents, and
// the monitoring plans responding to them.
type Manager struct {
	cfg Config

	camMu   sync.RWMutex
	cameras map[core.CameraID]*Camera

	subMu    sync.RWMutex
	subjects map[core.SubjectID]*TrackedSubject

	incMu     sync.RWMutex
	incidents map[core.IncidentID]*Incident

	planMu sync.RWMutex
	plans  map[core.PlanID]*Plan

	audit      *storage.AuditStore
	completion *llm.Service
	events     EventPublisher
}

// New creates a manager with an empty picture.
func New(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.UnknownVisitorThreshold <= 0 {
		cfg.UnknownVisitorThreshold = def.UnknownVisitorThreshold
	}
	if cfg.SubjectIdleTimeout <= 0 {
		cfg.SubjectIdleTimeout = def.SubjectIdleTimeout
	}
	if cfg.IncidentStaleTimeout <= 0 {
		cfg.IncidentStaleTimeout = def.IncidentStaleTimeout
	}
	if cfg.PlanRetention <= 0 {
		cfg.PlanRetention = def.PlanRetention
	}
	if cfg.FrameWidth <= 0 {
		cfg.FrameWidth = def.FrameWidth
	}
	if cfg.FrameHeight <= 0 {
		cfg.FrameHeight = def.FrameHeight
	}

	return &Manager{
		cfg:       cfg,
		cameras:   make(map[core.CameraID]*Camera),
		subjects:  make(map[core.SubjectID]*TrackedSubject),
		incidents: make(map[core.IncidentID]*Incident),
		plans:     make(map[core.PlanID]*Plan),
	}
}

// SetAuditStore enables persistent incident audit logging.
func (m *Manager) SetAuditStore(store *storage.AuditStore) {
	m.audit = store
}

// SetCompletion enables model-assisted planning and reporting.
func (m *Manager) SetCompletion(svc *llm.Service) {
	m.completion = svc
}

// SetEventPublisher routes strategy events to subscribers.
func (m *Manager) SetEventPublisher(pub EventPublisher) {
	m.events = pub
}

func (m *Manager) publish(event string, data any) {
	if m.events != nil {
		m.events.Publish(event, data)
	}
}

// ====== Cameras ======

// AddCamera registers a camera on the site map.
func (m *Manager) AddCamera(cam Camera) {
	m.camMu.Lock()
	defer m.camMu.Unlock()
	cp := cam
	cp.Adjacent = append([]core.CameraID(nil), cam.Adjacent...)
	m.cameras[cam.ID] = &cp
}

// Camera returns one camera by ID.
func (m *Manager) Camera(id core.CameraID) (*Camera, bool) {
	m.camMu.RLock()
	defer m.camMu.RUnlock()

	cam, ok := m.cameras[id]
	if !ok {
		return nil, false
	}
	cp := *cam
	cp.Adjacent = append([]core.CameraID(nil), cam.Adjacent...)
	return &cp, true
}

// Cameras returns all registered cameras.
func (m *Manager) Cameras() []*Camera {
	m.camMu.RLock()
	defer m.camMu.RUnlock()

	out := make([]*Camera, 0, len(m.cameras))
	for _, cam := range m.cameras {
		cp := *cam
		cp.Adjacent = append([]core.CameraID(nil), cam.Adjacent...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetCameraActive toggles a camera's availability.
func (m *Manager) SetCameraActive(id core.CameraID, active bool) error {
	m.camMu.Lock()
	defer m.camMu.Unlock()

	cam, ok := m.cameras[id]
	if !ok {
		return core.ErrCameraNotFound
	}
	cam.Active = active
	return nil
}

// ====== Analysis Intake ======

// ProcessAnalysis folds one perception result into the picture and
// returns any incidents it raised.
func (m *Manager) ProcessAnalysis(ctx context.Context, result core.AnalysisResult) []*Incident {
	subjects := m.updateSubjects(result)

	var created []*Incident

	for _, subj := range subjects {
		if inc := m.maybeRaiseUnknownVisitor(ctx, subj, result); inc != nil {
			created = append(created, inc)
		}
	}

	if result.IsAnomaly {
		ids := make([]core.SubjectID, 0, len(subjects))
		for _, s := range subjects {
			ids = append(ids, s.ID)
		}
		inc := m.CreateIncident(ctx, IncidentInput{
			Type:         incidentTypeForAnomaly(result.AnomalyType),
			Severity:     core.SeverityForScore(result.AnomalyScore),
			CameraID:     result.CameraID,
			SubjectIDs:   ids,
			Description:  result.AnomalyDescription,
			AnomalyScore: result.AnomalyScore,
		})
		created = append(created, inc)
	}

	return created
}

// updateSubjects matches detections to tracked subjects and updates
// their position histories. Only persons and vehicles are tracked, and
// matching is by exact track ID.
func (m *Manager) updateSubjects(result core.AnalysisResult) []*TrackedSubject {
	width := float64(result.FrameWidth)
	height := float64(result.FrameHeight)
	if width <= 0 {
		width = float64(m.cfg.FrameWidth)
	}
	if height <= 0 {
		height = float64(m.cfg.FrameHeight)
	}

	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	var updated []*TrackedSubject
	for _, obj := range result.Objects {
		if obj.Type != "person" && obj.Type != "vehicle" {
			continue
		}
		if obj.TrackID == "" {
			continue
		}

		subj := m.findByTrackIDLocked(obj.TrackID)
		if subj == nil {
			subj = &TrackedSubject{
				ID:        core.SubjectID(uuid.NewString()),
				TrackID:   obj.TrackID,
				Type:      obj.Type,
				FirstSeen: ts,
			}
			m.subjects[subj.ID] = subj
		}

		center := obj.Box.Center()
		pos := SubjectPosition{
			CameraID:  result.CameraID,
			Point:     clampPoint(core.Point{X: center.X / width, Y: center.Y / height}),
			Timestamp: ts,
		}
		subj.Positions = append(subj.Positions, pos)
		if len(subj.Positions) > positionCap {
			subj.Positions = subj.Positions[len(subj.Positions)-positionCap:]
		}
		subj.LastSeen = ts
		subj.LastCamera = result.CameraID

		if status := obj.Attributes["recognition_status"]; status != "" {
			subj.RecognitionStatus = status
		}
		if subj.RecognitionStatus == "unknown" {
			subj.ThreatScore += 0.05
			if subj.ThreatScore > 1 {
				subj.ThreatScore = 1
			}
		}

		cp := *subj
		updated = append(updated, &cp)
	}
	return updated
}

func (m *Manager) findByTrackIDLocked(trackID string) *TrackedSubject {
	for _, subj := range m.subjects {
		if subj.TrackID == trackID {
			return subj
		}
	}
	return nil
}

// maybeRaiseUnknownVisitor raises one incident per subject when an
// unknown person has been present longer than the configured threshold.
func (m *Manager) maybeRaiseUnknownVisitor(ctx context.Context, subj *TrackedSubject, result core.AnalysisResult) *Incident {
	if subj.Type != "person" || subj.RecognitionStatus != "unknown" {
		return nil
	}
	if subj.LastSeen.Sub(subj.FirstSeen) < m.cfg.UnknownVisitorThreshold {
		return nil
	}

	m.subMu.Lock()
	stored, ok := m.subjects[subj.ID]
	if !ok || stored.Attributes["unknown_visitor_raised"] == "true" {
		m.subMu.Unlock()
		return nil
	}
	if stored.Attributes == nil {
		stored.Attributes = make(map[string]string)
	}
	stored.Attributes["unknown_visitor_raised"] = "true"
	threat := stored.ThreatScore
	m.subMu.Unlock()

	// Severity follows the anomaly score accompanying the sighting; the
	// slowly-accumulating subject threat only raises it, never lowers it.
	score := result.AnomalyScore
	if threat > score {
		score = threat
	}

	return m.CreateIncident(ctx, IncidentInput{
		Type:         core.IncidentUnknownVisitor,
		Severity:     core.SeverityForScore(score),
		CameraID:     result.CameraID,
		SubjectIDs:   []core.SubjectID{subj.ID},
		Description:  "Unknown person present beyond allowed threshold",
		AnomalyScore: score,
	})
}

// ====== Subjects ======

// Subject returns one tracked subject by ID.
func (m *Manager) Subject(id core.SubjectID) (*TrackedSubject, bool) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	subj, ok := m.subjects[id]
	if !ok {
		return nil, false
	}
	cp := *subj
	cp.Positions = append([]SubjectPosition(nil), subj.Positions...)
	return &cp, true
}

// TrackedSubjects returns all subjects, highest threat first.
func (m *Manager) TrackedSubjects() []*TrackedSubject {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	out := make([]*TrackedSubject, 0, len(m.subjects))
	for _, subj := range m.subjects {
		cp := *subj
		cp.Positions = append([]SubjectPosition(nil), subj.Positions...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ThreatScore > out[j].ThreatScore
	})
	return out
}

// ThreatScore combines a subject's own score with the severity of any
// open incidents it is involved in.
func (m *Manager) ThreatScore(id core.SubjectID) (float64, error) {
	m.subMu.RLock()
	subj, ok := m.subjects[id]
	if !ok {
		m.subMu.RUnlock()
		return 0, core.ErrSubjectNotFound
	}
	score := subj.ThreatScore
	m.subMu.RUnlock()

	m.incMu.RLock()
	for _, inc := range m.incidents {
		if inc.Status.IsClosed() || !involvesSubject(inc, id) {
			continue
		}
		switch inc.Severity {
		case core.SeverityCritical:
			score += 0.3
		case core.SeverityHigh:
			score += 0.2
		case core.SeverityMedium:
			score += 0.1
		default:
			score += 0.05
		}
	}
	m.incMu.RUnlock()

	if score > 1 {
		score = 1
	}
	return score, nil
}

func involvesSubject(inc *Incident, id core.SubjectID) bool {
	for _, sid := range inc.SubjectIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// RecommendedCamera picks where attention should go: the camera of the
// most severe open incident, then the last camera of the highest-threat
// subject, then any active camera.
func (m *Manager) RecommendedCamera() core.CameraID {
	m.incMu.RLock()
	var best *Incident
	for _, inc := range m.incidents {
		if inc.Status.IsClosed() {
			continue
		}
		if best == nil || inc.Severity > best.Severity {
			best = inc
		}
	}
	m.incMu.RUnlock()
	if best != nil && best.CameraID != "" {
		return best.CameraID
	}

	m.subMu.RLock()
	var top *TrackedSubject
	for _, subj := range m.subjects {
		if top == nil || subj.ThreatScore > top.ThreatScore {
			top = subj
		}
	}
	m.subMu.RUnlock()
	if top != nil && top.LastCamera != "" {
		return top.LastCamera
	}

	for _, cam := range m.Cameras() {
		if cam.Active {
			return cam.ID
		}
	}
	return ""
}

// ====== Cleanup ======

// Cleanup drops idle subjects, auto-resolves stale incidents, and
// removes old finished plans.
func (m *Manager) Cleanup(ctx context.Context) {
	now := time.Now()

	m.subMu.Lock()
	for id, subj := range m.subjects {
		if now.Sub(subj.LastSeen) > m.cfg.SubjectIdleTimeout {
			delete(m.subjects, id)
		}
	}
	m.subMu.Unlock()

	m.incMu.RLock()
	var stale []core.IncidentID
	for id, inc := range m.incidents {
		// Staleness is measured from the last update, not creation, so
		// an incident an operator is actively working never times out.
		if !inc.Status.IsClosed() && now.Sub(inc.UpdatedAt) > m.cfg.IncidentStaleTimeout {
			stale = append(stale, id)
		}
	}
	m.incMu.RUnlock()
	for _, id := range stale {
		if err := m.UpdateIncidentStatus(ctx, id, core.IncidentResolved, "system_timeout"); err != nil {
			logging.Warn("auto-resolve incident %s: %v", id, err)
		}
	}

	m.planMu.Lock()
	for id, plan := range m.plans {
		if plan.Status != PlanActive && now.Sub(plan.UpdatedAt) > m.cfg.PlanRetention {
			delete(m.plans, id)
		}
	}
	m.planMu.Unlock()
}

func clampPoint(p core.Point) core.Point {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return core.Point{X: clamp(p.X), Y: clamp(p.Y)}
}
