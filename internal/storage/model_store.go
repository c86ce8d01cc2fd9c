package storage

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/logging"
)

// ModelRecord is one persisted anomaly baseline: the per-feature mean
// and standard deviation for a single (camera, hour-of-day) bucket.
type ModelRecord struct {
	DeviceID  core.CameraID `json:"device_id"`
	Hour      int           `json:"hour"`
	Trained   bool          `json:"trained"`
	Mean      []float64     `json:"mean"`
	StdDev    []float64     `json:"stddev"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ModelStore persists anomaly models
type ModelStore struct {
	db *DB
}

// NewModelStore creates a model store
func NewModelStore(db *DB) *ModelStore {
	return &ModelStore{db: db}
}

// checksum fingerprints the serialized statistics so a reload can detect
// a truncated or hand-edited row. JSON float encoding is exact for
// float64 round-trips, so identical bytes mean identical model state.
func checksum(mean, stddev string) string {
	sum := blake2b.Sum256([]byte(mean + "|" + stddev))
	return hex.EncodeToString(sum[:])
}

// Save upserts one model record
func (s *ModelStore) Save(rec ModelRecord) error {
	if rec.Hour < 0 || rec.Hour > 23 {
		return fmt.Errorf("%w: hour %d", core.ErrInvalidInput, rec.Hour)
	}

	mean, err := json.Marshal(rec.Mean)
	if err != nil {
		return fmt.Errorf("encode mean: %w", err)
	}
	stddev, err := json.Marshal(rec.StdDev)
	if err != nil {
		return fmt.Errorf("encode stddev: %w", err)
	}

	trained := 0
	if rec.Trained {
		trained = 1
	}

	_, err = s.db.Conn().Exec(`
		INSERT INTO anomaly_models (device_id, hour, trained, mean, stddev, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, hour) DO UPDATE SET
		    trained = excluded.trained,
		    mean = excluded.mean,
		    stddev = excluded.stddev,
		    checksum = excluded.checksum,
		    updated_at = excluded.updated_at
	`, rec.DeviceID, rec.Hour, trained, string(mean), string(stddev),
		checksum(string(mean), string(stddev)), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save model %s/%d: %w", rec.DeviceID, rec.Hour, err)
	}
	return nil
}

// Load reads one model record. A missing row returns ErrRecordNotFound;
// a row that fails its checksum returns ErrModelCorrupt so callers can
// fall back to an untrained model.
func (s *ModelStore) Load(deviceID core.CameraID, hour int) (ModelRecord, error) {
	var rec ModelRecord
	var trained int
	var mean, stddev, sum string

	err := s.db.Conn().QueryRow(`
		SELECT trained, mean, stddev, checksum, updated_at
		FROM anomaly_models WHERE device_id = ? AND hour = ?
	`, deviceID, hour).Scan(&trained, &mean, &stddev, &sum, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, core.ErrRecordNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("load model %s/%d: %w", deviceID, hour, err)
	}

	if checksum(mean, stddev) != sum {
		return rec, fmt.Errorf("model %s/%d: %w", deviceID, hour, core.ErrModelCorrupt)
	}

	rec.DeviceID = deviceID
	rec.Hour = hour
	rec.Trained = trained != 0
	if err := json.Unmarshal([]byte(mean), &rec.Mean); err != nil {
		return rec, fmt.Errorf("model %s/%d: %w", deviceID, hour, core.ErrModelCorrupt)
	}
	if err := json.Unmarshal([]byte(stddev), &rec.StdDev); err != nil {
		return rec, fmt.Errorf("model %s/%d: %w", deviceID, hour, core.ErrModelCorrupt)
	}
	return rec, nil
}

// LoadAll reads every persisted record for a device. A corrupt row only
// loses its own hour: it is skipped with a warning and the remaining
// records still load, so one bad bucket cannot take down a whole day of
// baselines.
func (s *ModelStore) LoadAll(deviceID core.CameraID) ([]ModelRecord, error) {
	rows, err := s.db.Conn().Query(`
		SELECT hour FROM anomaly_models WHERE device_id = ? ORDER BY hour
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []int
	for rows.Next() {
		var hour int
		if err := rows.Scan(&hour); err != nil {
			return nil, err
		}
		hours = append(hours, hour)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(hours))
	for _, hour := range hours {
		rec, err := s.Load(deviceID, hour)
		if errors.Is(err, core.ErrModelCorrupt) {
			logging.Warn("skipping corrupt model record %s/%d", deviceID, hour)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes all records for a device
func (s *ModelStore) Delete(deviceID core.CameraID) error {
	_, err := s.db.Conn().Exec("DELETE FROM anomaly_models WHERE device_id = ?", deviceID)
	return err
}
