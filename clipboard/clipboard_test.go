package clipboard

import (
	"testing"

	"earthprint/analysis"
)

func TestText(t *testing.T) {
	res := &analysis.Result{
		Transcription: "I drove to work",
		Emissions: []analysis.Emission{
			{Activity: "Driving", Emission: 2.3},
			{Activity: analysis.UnknownActivity},
		},
	}
	want := "I drove to work\n\nDriving: 2.30 kg CO2e\nUnknown activity: 0.00 kg CO2e\nTotal: 2.30 kg CO2e\n"
	if got := Text(res); got != want {
		t.Errorf("Text =\n%q\nwant\n%q", got, want)
	}
}

func TestCopyResult(t *testing.T) {
	if !Available() {
		t.Skip("no clipboard utility")
	}
	var got string
	old := writeAll
	writeAll = func(s string) error { got = s; return nil }
	t.Cleanup(func() { writeAll = old })

	if err := CopyResult(&analysis.Result{Transcription: "hi"}); err != nil {
		t.Fatalf("CopyResult: %v", err)
	}
	if got != "hi\n\nTotal: 0.00 kg CO2e\n" {
		t.Errorf("copied %q", got)
	}
	if err := CopyResult(nil); err == nil {
		t.Error("expected error copying nil result")
	}
}
