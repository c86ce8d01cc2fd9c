package storage

import (
	"fmt"
	"time"

	"github.com/sightline/sightline/internal/core"
)

// AuditEntry is one row of the incident response history
type AuditEntry struct {
	ID          int64           `json:"id"`
	IncidentID  core.IncidentID `json:"incident_id"`
	CameraID    core.CameraID   `json:"camera_id"`
	ActionType  string          `json:"action_type"`
	Description string          `json:"description"`
	InitiatedBy string          `json:"initiated_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AuditStore records incident response actions for later review
type AuditStore struct {
	db *DB
}

// NewAuditStore creates an audit store
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append records one entry
func (s *AuditStore) Append(entry AuditEntry) error {
	if entry.IncidentID == "" {
		return fmt.Errorf("%w: incident id", core.ErrMissingRequired)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Conn().Exec(`
		INSERT INTO incident_audit (incident_id, camera_id, action_type, description, initiated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.IncidentID, entry.CameraID, entry.ActionType, entry.Description,
		entry.InitiatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ForIncident returns the entries for one incident, oldest first
func (s *AuditStore) ForIncident(id core.IncidentID) ([]AuditEntry, error) {
	rows, err := s.db.Conn().Query(`
		SELECT id, incident_id, camera_id, action_type, description, initiated_by, created_at
		FROM incident_audit WHERE incident_id = ?
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.CameraID, &e.ActionType,
			&e.Description, &e.InitiatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recent returns the newest entries across all incidents
func (s *AuditStore) Recent(limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(`
		SELECT id, incident_id, camera_id, action_type, description, initiated_by, created_at
		FROM incident_audit
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.CameraID, &e.ActionType,
			&e.Description, &e.InitiatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries older than the cutoff
func (s *AuditStore) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Conn().Exec("DELETE FROM incident_audit WHERE created_at < ?", olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
