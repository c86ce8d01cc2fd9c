package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/sightline/sightline/internal/core"
)

// RandomID generates a random ID for testing.
func RandomID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// QuietAnalysis returns a frame analysis with nothing of note.
func QuietAnalysis(camera core.CameraID, at time.Time) core.AnalysisResult {
	return core.AnalysisResult{
		CameraID:    camera,
		Timestamp:   at,
		FrameWidth:  1920,
		FrameHeight: 1080,
		MotionLevel: 0.02,
	}
}

// PersonAnalysis returns a frame analysis with one detected person.
// The track ID is stable across calls with the same trackID argument,
// so sightings chain into one tracked subject.
func PersonAnalysis(camera core.CameraID, at time.Time, trackID, recognition string) core.AnalysisResult {
	return core.AnalysisResult{
		CameraID:    camera,
		Timestamp:   at,
		FrameWidth:  1920,
		FrameHeight: 1080,
		MotionLevel: 0.3,
		Objects: []core.DetectedObject{
			{
				Type:       "person",
				Confidence: 0.9,
				TrackID:    trackID,
				Box:        core.BoundingBox{X: 900, Y: 500, Width: 120, Height: 240},
				Attributes: map[string]string{"recognition_status": recognition},
			},
		},
	}
}

// AnomalousAnalysis returns a frame analysis already flagged anomalous
// by the upstream vision pipeline.
func AnomalousAnalysis(camera core.CameraID, at time.Time, score float64) core.AnalysisResult {
	return core.AnalysisResult{
		CameraID:           camera,
		Timestamp:          at,
		FrameWidth:         1920,
		FrameHeight:        1080,
		MotionLevel:        0.6,
		IsAnomaly:          true,
		AnomalyType:        "motion_spike",
		AnomalyDescription: "sudden motion spike",
		AnomalyScore:       score,
	}
}
