package agent

import (
	"fmt"
	"strings"

	"github.com/sightline/sightline/internal/core"
	"github.com/sightline/sightline/internal/knowledge"
)

// threatIndicators are the content markers that promote a fact into a
// potential threat.
var threatIndicators = []string{
	"unknown",
	"unauthorized",
	"suspicious",
	"unusual",
	"anomaly",
	"unusual activity",
	"unexpected",
}

// perceive turns one analysis result into knowledge items: direct
// observations, contextual facts, and simple inferences.
func perceive(result core.AnalysisResult) []knowledge.Item {
	var facts []knowledge.Item

	observe := func(kind core.KnowledgeKind, confidence float64, format string, args ...any) {
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		facts = append(facts, knowledge.Item{
			Kind:       kind,
			Content:    fmt.Sprintf(format, args...),
			Confidence: confidence,
			Source:     string(result.CameraID),
			Timestamp:  result.Timestamp,
		})
	}

	if result.MotionLevel > 0.01 {
		observe(core.KnowledgeObservation, result.MotionLevel,
			"Motion level %.2f on camera %s", result.MotionLevel, result.CameraID)
	}

	for _, obj := range result.Objects {
		label := obj.Type
		if status := obj.Attributes["recognition_status"]; status != "" {
			label = status + " " + label
		}
		observe(core.KnowledgeObservation, obj.Confidence,
			"Detected %s on camera %s", label, result.CameraID)
	}

	if result.IsAnomaly {
		desc := result.AnomalyDescription
		if desc == "" {
			desc = result.AnomalyType
		}
		observe(core.KnowledgeObservation, result.AnomalyScore,
			"Anomaly on camera %s: %s", result.CameraID, desc)

		// Anomaly types carry situational meaning beyond the raw
		// observation, at reduced confidence.
		switch result.AnomalyType {
		case "UnknownVisitor":
			observe(core.KnowledgeInference, result.AnomalyScore*0.8,
				"Potential security concern: unknown individual present in monitored area")
		case "Loitering":
			observe(core.KnowledgeInference, result.AnomalyScore*0.8,
				"Suspicious behavior: subject lingering in area for an extended period")
		case "AbnormalActivity":
			observe(core.KnowledgeInference, result.AnomalyScore*0.7,
				"Unusual activity pattern, possible unauthorized access or behavior")
		}
	}

	hour := result.Timestamp.Hour()
	nighttime := hour >= 22 || hour < 6
	businessHours := hour >= 9 && hour < 17

	if nighttime {
		observe(core.KnowledgeContextualInfo, 1.0, "Current period is nighttime")
	}
	if businessHours {
		observe(core.KnowledgeContextualInfo, 1.0, "Current period is business hours")
	}

	persons, _ := result.PersonCount()
	vehicles := result.VehicleCount()

	if nighttime && result.MotionLevel > 0.1 {
		observe(core.KnowledgeInference, 0.85,
			"Unusual nighttime activity on camera %s", result.CameraID)
	}
	if persons > 5 && !businessHours {
		observe(core.KnowledgeInference, 0.75,
			"Unexpected crowd of %d people outside business hours on camera %s", persons, result.CameraID)
	}
	if vehicles > 3 && nighttime {
		observe(core.KnowledgeInference, 0.8,
			"Unusual vehicle concentration at night on camera %s", result.CameraID)
	}

	return facts
}

// threatScore rates how threatening a fact sounds. Facts mentioning a
// threat indicator score at a fraction of their confidence; everything
// else scores zero.
func threatScore(item knowledge.Item) float64 {
	content := strings.ToLower(item.Content)
	for _, indicator := range threatIndicators {
		if strings.Contains(content, indicator) {
			return item.Confidence * 0.8
		}
	}
	return 0
}
