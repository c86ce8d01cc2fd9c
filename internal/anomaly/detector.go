package anomaly

import (
	"fmt"
	"sync"
	"time"

	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/storage"
)

const (
	// StatisticalAnomalyType labels anomalies this detector raises.
	StatisticalAnomalyType = "StatisticalAnomaly"

	statisticalAnomalyDescription = "Activity deviates from normal patterns"

	// historyCap bounds the per-bucket sample window and the recent
	// observation history.
	historyCap = 1000
)

// Config configures a detector
type Config struct {
	DeviceID     core.CameraID // Identity used for model persistence
	Threshold    float64       // Score above which activity is anomalous
	TrainingSize int           // Samples per hourly bucket before training
	Learning     bool          // Whether observations update the baseline
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		DeviceID:     "default",
		Threshold:    0.7,
		TrainingSize: 100,
		Learning:     true,
	}
}

// Detector scores analysis results against hourly Gaussian baselines.
type Detector struct {
	mu           sync.RWMutex
	deviceID     core.CameraID
	threshold    float64
	trainingSize int
	learning     bool
	models       [24]*GaussianModel
	samples      [24][][]float64
	recent       []FeatureVector
}

// New creates a detector with untrained baselines.
func New(cfg Config) *Detector {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "default"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.TrainingSize <= 0 {
		cfg.TrainingSize = 100
	}

	d := &Detector{
		deviceID:     cfg.DeviceID,
		trainingSize: cfg.TrainingSize,
		learning:     cfg.Learning,
	}
	d.threshold = clampThreshold(cfg.Threshold)
	for i := range d.models {
		d.models[i] = NewGaussianModel()
	}
	return d
}

// Observe feeds one result into the baseline. Once a bucket has
// enough samples its model is (re)trained on the sliding window.
func (d *Detector) Observe(result core.AnalysisResult) {
	features := ExtractFeatures(result)
	hour := bucketHour(result.Timestamp)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent = append(d.recent, features)
	if len(d.recent) > historyCap {
		d.recent = d.recent[len(d.recent)-historyCap:]
	}

	if !d.learning {
		return
	}

	d.samples[hour] = append(d.samples[hour], features.Vector())
	if len(d.samples[hour]) > historyCap {
		d.samples[hour] = d.samples[hour][len(d.samples[hour])-historyCap:]
	}

	if len(d.samples[hour]) >= d.trainingSize {
		d.models[hour].Train(d.samples[hour])
	}
}

// Detect scores a result and annotates it. An untrained bucket never
// flags an anomaly: with no baseline the detector fails open instead
// of alarming on everything.
func (d *Detector) Detect(result core.AnalysisResult) core.AnalysisResult {
	hour := bucketHour(result.Timestamp)

	d.mu.RLock()
	model := d.models[hour]
	threshold := d.threshold
	trained := model.Trained
	d.mu.RUnlock()

	if !trained {
		return result
	}

	score := model.Score(ExtractFeatures(result).Vector())

	if score > result.AnomalyScore {
		result.AnomalyScore = score
	}
	if score > threshold {
		result.IsAnomaly = true
		if result.AnomalyType == "" {
			result.AnomalyType = StatisticalAnomalyType
		}
		if result.AnomalyDescription == "" {
			result.AnomalyDescription = statisticalAnomalyDescription
		}
	}
	return result
}

// SetThreshold updates the anomaly threshold, clamped to [0, 1].
func (d *Detector) SetThreshold(threshold float64) {
	d.mu.Lock()
	d.threshold = clampThreshold(threshold)
	d.mu.Unlock()
}

// Threshold returns the current anomaly threshold.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// TrainedBuckets returns how many hourly baselines are trained.
func (d *Detector) TrainedBuckets() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, m := range d.models {
		if m.Trained {
			count++
		}
	}
	return count
}

// RecentHistory returns up to limit of the newest feature vectors.
func (d *Detector) RecentHistory(limit int) []FeatureVector {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 || limit > len(d.recent) {
		limit = len(d.recent)
	}
	out := make([]FeatureVector, limit)
	copy(out, d.recent[len(d.recent)-limit:])
	return out
}

// Save persists all trained hourly models.
func (d *Detector) Save(store *storage.ModelStore) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for hour, model := range d.models {
		if !model.Trained {
			continue
		}
		rec := storage.ModelRecord{
			DeviceID: d.deviceID,
			Hour:     hour,
			Trained:  true,
			Mean:     model.Mean,
			StdDev:   model.StdDev,
		}
		if err := store.Save(rec); err != nil {
			return fmt.Errorf("save model for hour %d: %w", hour, err)
		}
	}
	return nil
}

// Load restores persisted hourly models. Missing hours stay untrained.
func (d *Detector) Load(store *storage.ModelStore) error {
	records, err := store.LoadAll(d.deviceID)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range records {
		if rec.Hour < 0 || rec.Hour > 23 {
			continue
		}
		d.models[rec.Hour] = &GaussianModel{
			Mean:    rec.Mean,
			StdDev:  rec.StdDev,
			Trained: rec.Trained,
		}
	}
	logging.Debug("loaded %d anomaly models for %s", len(records), d.deviceID)
	return nil
}

func bucketHour(ts time.Time) int {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.Hour()
}

func clampThreshold(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
