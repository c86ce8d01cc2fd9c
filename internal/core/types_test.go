package core

import "testing"

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0.0, SeverityLow},
		{0.5, SeverityLow},
		{0.51, SeverityMedium},
		{0.7, SeverityMedium},
		{0.71, SeverityHigh},
		{0.85, SeverityHigh},
		{0.86, SeverityCritical},
		{1.0, SeverityCritical},
	}

	for _, tt := range tests {
		if got := SeverityForScore(tt.score); got != tt.want {
			t.Errorf("SeverityForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityHigh, "high"},
		{SeverityCritical, "critical"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestIncidentStatusIsClosed(t *testing.T) {
	closed := map[IncidentStatus]bool{
		IncidentNew:           false,
		IncidentInvestigating: false,
		IncidentConfirmed:     false,
		IncidentFalseAlarm:    true,
		IncidentResolved:      true,
	}
	for status, want := range closed {
		if got := status.IsClosed(); got != want {
			t.Errorf("%s.IsClosed() = %v, want %v", status, got, want)
		}
	}
}

func TestPersonCount(t *testing.T) {
	result := AnalysisResult{
		Objects: []DetectedObject{
			{Type: "person", Attributes: map[string]string{"recognition_status": "unknown"}},
			{Type: "person", Attributes: map[string]string{"recognition_status": "known"}},
			{Type: "person"},
			{Type: "vehicle"},
		},
	}

	total, unknown := result.PersonCount()
	if total != 3 {
		t.Errorf("total persons = %d, want 3", total)
	}
	if unknown != 1 {
		t.Errorf("unknown persons = %d, want 1", unknown)
	}
	if got := result.VehicleCount(); got != 1 {
		t.Errorf("vehicles = %d, want 1", got)
	}
}

func TestBoundingBoxCenter(t *testing.T) {
	box := BoundingBox{X: 100, Y: 200, Width: 50, Height: 80}
	center := box.Center()
	if center.X != 125 || center.Y != 240 {
		t.Errorf("Center() = (%v, %v), want (125, 240)", center.X, center.Y)
	}
}

func TestParams(t *testing.T) {
	p := Params{
		"name":    "gate",
		"score":   0.75,
		"count":   3,
		"enabled": true,
	}

	if got := p.String("name"); got != "gate" {
		t.Errorf("String(name) = %q", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := p.Float("score"); got != 0.75 {
		t.Errorf("Float(score) = %v", got)
	}
	if got := p.Float("count"); got != 3 {
		t.Errorf("Float(count) = %v, want int promoted to 3", got)
	}
	if got := p.Int("count"); got != 3 {
		t.Errorf("Int(count) = %d", got)
	}
	if got := p.Bool("enabled"); !got {
		t.Error("Bool(enabled) = false")
	}
	if got := p.Bool("name"); got {
		t.Error("Bool(name) = true for non-bool value")
	}

	clone := p.Clone()
	clone["name"] = "yard"
	if p.String("name") != "gate" {
		t.Error("Clone() shares storage with the original")
	}

	var nilParams Params
	if nilParams.Clone() != nil {
		t.Error("Clone() of nil params should be nil")
	}
	if nilParams.String("x") != "" || nilParams.Int("x") != 0 {
		t.Error("nil params getters should return zero values")
	}
}
