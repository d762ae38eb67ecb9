package analysis

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	res, err := Parse([]byte(`{
		"transcription": "I drove to work",
		"emissions": [
			{"activity": "Driving", "emission": 2.3, "type": "transport",
			 "details": {"method": "distance", "assumptions": "10 km petrol car"}},
			{"activity": "Coffee", "emission": 0.21}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Transcription != "I drove to work" {
		t.Errorf("Transcription = %q", res.Transcription)
	}
	if len(res.Emissions) != 2 {
		t.Fatalf("len(Emissions) = %d, want 2", len(res.Emissions))
	}
	d := res.Emissions[0]
	if d.Activity != "Driving" || d.Emission != 2.3 || d.Type != "transport" {
		t.Errorf("first emission = %+v", d)
	}
	if d.Details == nil || d.Details.Method != "distance" || d.Details.Assumptions != "10 km petrol car" {
		t.Errorf("details = %+v", d.Details)
	}
	if res.Emissions[1].Details != nil {
		t.Error("details should be nil when absent")
	}
	if got := FormatKg(res.Total()); got != "2.51" {
		t.Errorf("total = %s, want 2.51", got)
	}
	if len(res.Raw) == 0 {
		t.Error("raw body not kept")
	}
}

func TestParseDefaults(t *testing.T) {
	for _, tt := range []struct {
		name          string
		body          string
		transcription string
		emissions     []Emission
	}{
		{
			name:          "empty object",
			body:          `{}`,
			transcription: TranscriptionUnavailable,
		},
		{
			name:          "null transcription",
			body:          `{"transcription": null, "emissions": []}`,
			transcription: TranscriptionUnavailable,
		},
		{
			name:          "emissions not an array",
			body:          `{"transcription": "hi", "emissions": {"activity": "x"}}`,
			transcription: "hi",
		},
		{
			name:          "missing emission value",
			body:          `{"emissions": [{"activity": "Driving"}]}`,
			transcription: TranscriptionUnavailable,
			emissions:     []Emission{{Activity: "Driving"}},
		},
		{
			name:          "non-numeric emission",
			body:          `{"emissions": [{"activity": "Flight", "emission": "lots"}]}`,
			transcription: TranscriptionUnavailable,
			emissions:     []Emission{{Activity: "Flight"}},
		},
		{
			name:          "missing activity",
			body:          `{"emissions": [{"emission": 1.5}, {"activity": "", "emission": 2}, {"activity": null}]}`,
			transcription: TranscriptionUnavailable,
			emissions: []Emission{
				{Activity: UnknownActivity, Emission: 1.5},
				{Activity: UnknownActivity, Emission: 2},
				{Activity: UnknownActivity},
			},
		},
		{
			name:          "non-object entry",
			body:          `{"emissions": [3, "x"]}`,
			transcription: TranscriptionUnavailable,
			emissions:     []Emission{{Activity: UnknownActivity}, {Activity: UnknownActivity}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse([]byte(tt.body))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Transcription != tt.transcription {
				t.Errorf("Transcription = %q, want %q", res.Transcription, tt.transcription)
			}
			if len(res.Emissions) != len(tt.emissions) {
				t.Fatalf("Emissions = %+v, want %+v", res.Emissions, tt.emissions)
			}
			for i, want := range tt.emissions {
				got := res.Emissions[i]
				if got.Activity != want.Activity || got.Emission != want.Emission {
					t.Errorf("Emissions[%d] = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestParseMissingEmissionTotalsZero(t *testing.T) {
	res, err := Parse([]byte(`{"emissions": [{"activity": "Driving"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Total() != 0 || FormatKg(res.Emissions[0].Emission) != "0.00" {
		t.Errorf("total = %v, emission = %v", res.Total(), res.Emissions[0].Emission)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `"text"`, `42`, `null`} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrNotObject) {
			t.Errorf("Parse(%q) err = %v, want ErrNotObject", body, err)
		}
	}
}

func TestTotalIsPure(t *testing.T) {
	res := &Result{Emissions: []Emission{{Emission: 1.25}, {Emission: 2.5}, {Emission: 0}}}
	first := res.Total()
	if first != 3.75 || res.Total() != first {
		t.Errorf("Total = %v then %v, want 3.75 twice", first, res.Total())
	}

	res.Emissions = append(res.Emissions, Emission{Emission: 1})
	if res.Total() != 4.75 {
		t.Errorf("Total after append = %v, want 4.75", res.Total())
	}

	var nilRes *Result
	if nilRes.Total() != 0 {
		t.Error("nil result total should be 0")
	}
}

func TestBand(t *testing.T) {
	for _, tt := range []struct {
		v    float64
		want Severity
	}{
		{0, Low},
		{0.99, Low},
		{1.0, Moderate},
		{4.99, Moderate},
		{5.0, High},
		{9.99, High},
		{10.0, VeryHigh},
		{250, VeryHigh},
	} {
		if got := Band(tt.v); got != tt.want {
			t.Errorf("Band(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
	if VeryHigh.String() != "very-high" || Moderate.String() != "moderate" {
		t.Error("unexpected severity names")
	}
}

func TestFormatKg(t *testing.T) {
	for _, tt := range []struct {
		v    float64
		want string
	}{
		{2.3, "2.30"},
		{0, "0.00"},
		{12.346, "12.35"},
	} {
		if got := FormatKg(tt.v); got != tt.want {
			t.Errorf("FormatKg(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
