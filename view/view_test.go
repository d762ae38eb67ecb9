package view

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"earthprint/analysis"
	"earthprint/recorder"
	"earthprint/state"
)

func sampleResult() *analysis.Result {
	return &analysis.Result{
		Transcription: "I drove to work and then took a long flight to visit my family for the holidays",
		Emissions: []analysis.Emission{
			{Activity: "Driving", Emission: 2.3, Type: "transport"},
			{Activity: "Flight", Emission: 250, Details: &analysis.Details{Method: "distance based", Assumptions: "economy class"}},
		},
	}
}

func TestResultContents(t *testing.T) {
	out := Result(sampleResult(), 40)
	for _, want := range []string{
		"Transcription",
		"I drove to work",
		"Driving",
		"2.30 kg CO2e",
		"250.00 kg CO2e",
		"(transport)",
		"distance based",
		"economy class",
		"Total:",
		"252.30 kg CO2e",
		"(very-high)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResultWrapsTranscription(t *testing.T) {
	res := sampleResult()
	out := Result(res, 20)
	lines := strings.Split(out, "\n")
	for _, line := range lines[1:4] {
		if w := lipgloss.Width(line); w > 20 {
			t.Errorf("transcription line %q is %d wide, want <= 20", line, w)
		}
	}
}

func TestResultNil(t *testing.T) {
	if got := Result(nil, 80); got != "" {
		t.Errorf("Result(nil) = %q, want empty", got)
	}
}

func TestEmissionsEmpty(t *testing.T) {
	if out := Emissions(nil, 80); !strings.Contains(out, "No activities detected") {
		t.Errorf("Emissions(nil) = %q", out)
	}
}

func TestTotalBand(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "0.00 kg CO2e (low)"},
		{1, "1.00 kg CO2e (moderate)"},
		{4.999, "5.00 kg CO2e (moderate)"},
		{5, "5.00 kg CO2e (high)"},
		{10, "10.00 kg CO2e (very-high)"},
	}
	for _, tt := range tests {
		if out := Total(tt.v); !strings.Contains(out, tt.want) {
			t.Errorf("Total(%v) = %q, want it to contain %q", tt.v, out, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		st   state.State
		want string
	}{
		{"idle", state.NewIdle(), "No analysis yet"},
		{"loading", state.NewLoading(), "⣾ Analysing audio"},
		{"error", state.NewError("model unavailable"), "model unavailable"},
		{"result", state.NewResult(sampleResult()), "252.30 kg CO2e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := Status(tt.st, "⣾", 60); !strings.Contains(out, tt.want) {
				t.Errorf("Status = %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestLevelBar(t *testing.T) {
	tests := []struct {
		level  float64
		filled int
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{3, 10},
		{-1, 0},
	}
	for _, tt := range tests {
		out := LevelBar(tt.level, 10)
		if got := strings.Count(out, "█"); got != tt.filled {
			t.Errorf("LevelBar(%v) filled = %d, want %d", tt.level, got, tt.filled)
		}
		if got := lipgloss.Width(out); got != 10 {
			t.Errorf("LevelBar(%v) width = %d, want 10", tt.level, got)
		}
	}
	if LevelBar(0.5, 0) != "" {
		t.Error("zero width bar should be empty")
	}
}

func TestRecording(t *testing.T) {
	out := Recording(recorder.Session{Status: recorder.Active, Elapsed: 3}, 0.5, 40)
	if !strings.Contains(out, "REC 00:03") {
		t.Errorf("Recording = %q", out)
	}
	if w := lipgloss.Width(out); w != 40 {
		t.Errorf("width = %d, want 40", w)
	}
	if out := Recording(recorder.Session{}, 0, 40); !strings.Contains(out, "STANDBY") {
		t.Errorf("idle Recording = %q", out)
	}
}
