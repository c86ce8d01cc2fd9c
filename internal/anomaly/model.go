// Package anomaly provides statistical anomaly detection over camera
// analysis results. Each hour of the day gets its own Gaussian baseline
// so nighttime activity is judged against nighttime norms.
package anomaly

import (
	"math"
	"time"

	"github.com/sightline/sightline/internal/core"
)

// featureCount is the dimensionality of a feature vector.
const featureCount = 6

// FeatureVector is one observation reduced to model features.
type FeatureVector struct {
	TimeOfDay          float64 `json:"time_of_day"` // Seconds since midnight
	DayOfWeek          float64 `json:"day_of_week"`
	MotionLevel        float64 `json:"motion_level"`
	PersonCount        float64 `json:"person_count"`
	VehicleCount       float64 `json:"vehicle_count"`
	UnknownPersonRatio float64 `json:"unknown_person_ratio"`
}

// ExtractFeatures reduces an analysis result to a feature vector.
func ExtractFeatures(result core.AnalysisResult) FeatureVector {
	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	persons, unknown := result.PersonCount()
	ratio := float64(unknown) / math.Max(1, float64(persons))

	return FeatureVector{
		TimeOfDay:          float64(ts.Hour()*3600 + ts.Minute()*60 + ts.Second()),
		DayOfWeek:          float64(ts.Weekday()),
		MotionLevel:        result.MotionLevel,
		PersonCount:        float64(persons),
		VehicleCount:       float64(result.VehicleCount()),
		UnknownPersonRatio: ratio,
	}
}

// Vector returns the normalized feature values the model consumes.
func (f FeatureVector) Vector() []float64 {
	return []float64{
		f.TimeOfDay / 86400,
		f.DayOfWeek / 7,
		f.MotionLevel,
		f.PersonCount,
		f.VehicleCount,
		f.UnknownPersonRatio,
	}
}

// GaussianModel holds per-feature mean and standard deviation for one
// hourly bucket.
type GaussianModel struct {
	Mean    []float64 `json:"mean"`
	StdDev  []float64 `json:"stddev"`
	Trained bool      `json:"trained"`
}

// NewGaussianModel returns an untrained model.
func NewGaussianModel() *GaussianModel {
	return &GaussianModel{
		Mean:   make([]float64, featureCount),
		StdDev: make([]float64, featureCount),
	}
}

// Train fits the model to the given sample vectors.
func (m *GaussianModel) Train(samples [][]float64) {
	if len(samples) == 0 {
		return
	}

	mean := make([]float64, featureCount)
	for _, s := range samples {
		for i := 0; i < featureCount && i < len(s); i++ {
			mean[i] += s[i]
		}
	}
	n := float64(len(samples))
	for i := range mean {
		mean[i] /= n
	}

	stddev := make([]float64, featureCount)
	for _, s := range samples {
		for i := 0; i < featureCount && i < len(s); i++ {
			d := s[i] - mean[i]
			stddev[i] += d * d
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / n)
	}

	m.Mean = mean
	m.StdDev = stddev
	m.Trained = true
}

// Score returns an anomaly score in [0, 1] for a normalized vector.
// An untrained model scores everything as fully anomalous; callers
// decide whether to trust that.
func (m *GaussianModel) Score(v []float64) float64 {
	if !m.Trained {
		return 1.0
	}

	var sum float64
	for i := 0; i < featureCount && i < len(v); i++ {
		// Near-zero deviation means the feature is constant in the
		// baseline; skip it rather than divide by nothing.
		if m.StdDev[i] <= 1e-5 {
			continue
		}
		z := (v[i] - m.Mean[i]) / m.StdDev[i]
		sum += z * z
	}

	return 1 - math.Exp(-sum/(2*featureCount))
}
