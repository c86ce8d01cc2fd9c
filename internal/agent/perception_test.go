package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/knowledge"
)

func dayTime() time.Time {
	return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
}

func nightTime() time.Time {
	return time.Date(2026, 3, 2, 23, 15, 0, 0, time.UTC)
}

func TestPerceive_MotionAndObjects(t *testing.T) {
	result := core.AnalysisResult{
		CameraID:    "cam-front",
		Timestamp:   dayTime(),
		MotionLevel: 0.4,
		Objects: []core.DetectedObject{
			{Type: "person", Confidence: 0.9,
				Attributes: map[string]string{"recognition_status": "unknown"}},
			{Type: "vehicle", Confidence: 0.8},
		},
	}

	facts := perceive(result)

	wantFragments := []string{
		"Motion level 0.40 on camera cam-front",
		"Detected unknown person on camera cam-front",
		"Detected vehicle on camera cam-front",
		"Current period is business hours",
	}
	for _, fragment := range wantFragments {
		if !containsFact(facts, fragment) {
			t.Errorf("missing fact containing %q", fragment)
		}
	}
	for _, fact := range facts {
		if fact.Source != "cam-front" && fact.Kind == core.KnowledgeObservation {
			t.Errorf("observation source = %q, want cam-front", fact.Source)
		}
		if fact.Confidence < 0 || fact.Confidence > 1 {
			t.Errorf("confidence %f out of range for %q", fact.Confidence, fact.Content)
		}
	}
}

func TestPerceive_QuietFrameProducesNoObservations(t *testing.T) {
	result := core.AnalysisResult{
		CameraID:    "cam-1",
		Timestamp:   dayTime(),
		MotionLevel: 0.005,
	}
	for _, fact := range perceive(result) {
		if fact.Kind == core.KnowledgeObservation {
			t.Errorf("unexpected observation %q from quiet frame", fact.Content)
		}
	}
}

func TestPerceive_AnomalyFact(t *testing.T) {
	result := core.AnalysisResult{
		CameraID:           "cam-2",
		Timestamp:          dayTime(),
		IsAnomaly:          true,
		AnomalyType:        "motion_spike",
		AnomalyDescription: "sudden motion spike",
		AnomalyScore:       0.92,
	}
	facts := perceive(result)
	if !containsFact(facts, "Anomaly on camera cam-2: sudden motion spike") {
		t.Fatalf("missing anomaly fact, got %v", factContents(facts))
	}
}

func TestPerceive_AnomalyTypeInferences(t *testing.T) {
	tests := []struct {
		anomalyType string
		fragment    string
		confidence  float64
	}{
		{"UnknownVisitor", "Potential security concern: unknown individual present", 0.72},
		{"Loitering", "Suspicious behavior: subject lingering in area", 0.72},
		{"AbnormalActivity", "Unusual activity pattern", 0.63},
	}

	for _, tt := range tests {
		t.Run(tt.anomalyType, func(t *testing.T) {
			result := core.AnalysisResult{
				CameraID:           "cam-2",
				Timestamp:          dayTime(),
				IsAnomaly:          true,
				AnomalyType:        tt.anomalyType,
				AnomalyDescription: "flagged by detector",
				AnomalyScore:       0.9,
			}
			facts := perceive(result)

			var found *knowledge.Item
			for i, fact := range facts {
				if fact.Kind == core.KnowledgeInference && strings.Contains(fact.Content, tt.fragment) {
					found = &facts[i]
					break
				}
			}
			if found == nil {
				t.Fatalf("missing inference containing %q, got %v", tt.fragment, factContents(facts))
			}
			if diff := found.Confidence - tt.confidence; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("confidence = %f, want %f", found.Confidence, tt.confidence)
			}
		})
	}
}

func TestPerceive_NighttimeInferences(t *testing.T) {
	result := core.AnalysisResult{
		CameraID:    "cam-3",
		Timestamp:   nightTime(),
		MotionLevel: 0.5,
		Objects: []core.DetectedObject{
			{Type: "vehicle", Confidence: 0.9}, {Type: "vehicle", Confidence: 0.9},
			{Type: "vehicle", Confidence: 0.9}, {Type: "vehicle", Confidence: 0.9},
		},
	}
	facts := perceive(result)

	if !containsFact(facts, "Current period is nighttime") {
		t.Error("missing nighttime context fact")
	}
	if !containsFact(facts, "Unusual nighttime activity on camera cam-3") {
		t.Error("missing nighttime activity inference")
	}
	if !containsFact(facts, "Unusual vehicle concentration at night on camera cam-3") {
		t.Error("missing vehicle concentration inference")
	}
}

func TestPerceive_CrowdOutsideBusinessHours(t *testing.T) {
	objects := make([]core.DetectedObject, 6)
	for i := range objects {
		objects[i] = core.DetectedObject{Type: "person", Confidence: 0.9}
	}
	result := core.AnalysisResult{
		CameraID:  "cam-4",
		Timestamp: time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC),
		Objects:   objects,
	}
	if !containsFact(perceive(result), "Unexpected crowd of 6 people outside business hours") {
		t.Fatal("missing crowd inference")
	}
}

func TestThreatScore(t *testing.T) {
	tests := []struct {
		name string
		item knowledge.Item
		want float64
	}{
		{
			name: "unknown person",
			item: knowledge.Item{Content: "Detected unknown person on camera cam-1", Confidence: 0.9},
			want: 0.72,
		},
		{
			name: "suspicious activity",
			item: knowledge.Item{Content: "Suspicious loitering near entrance", Confidence: 1.0},
			want: 0.8,
		},
		{
			name: "benign observation",
			item: knowledge.Item{Content: "Detected car on camera cam-1", Confidence: 0.95},
			want: 0,
		},
		{
			name: "anomaly mention",
			item: knowledge.Item{Content: "Anomaly on camera cam-2: motion spike", Confidence: 0.5},
			want: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := threatScore(tt.item)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("threatScore() = %f, want %f", got, tt.want)
			}
		})
	}
}

func containsFact(facts []knowledge.Item, fragment string) bool {
	for _, fact := range facts {
		if strings.Contains(fact.Content, fragment) {
			return true
		}
	}
	return false
}

func factContents(facts []knowledge.Item) []string {
	out := make([]string, len(facts))
	for i, fact := range facts {
		out[i] = fact.Content
	}
	return out
}
