package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	TranscriptionUnavailable = "unavailable"
	UnknownActivity          = "Unknown activity"
)

// ErrNotObject is returned by Parse when the body is not a JSON object.
var ErrNotObject = errors.New("response is not a JSON object")

type Details struct {
	Method      string
	Assumptions string
}

type Emission struct {
	Activity string
	Emission float64 // kg CO2e
	Type     string
	Details  *Details
}

// Result is a normalized service response. Raw keeps the body as received.
type Result struct {
	Transcription string
	Emissions     []Emission
	Raw           json.RawMessage
}

// Parse normalizes a service response. Missing or malformed fields are
// defaulted rather than rejected: no transcription reads "unavailable", a
// missing or non-array emissions list is empty, an entry without an activity
// is "Unknown activity" and a non-numeric emission is 0.
func Parse(body []byte) (*Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrNotObject)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: got %s", ErrNotObject, doc.Type)
	}

	res := &Result{
		Transcription: TranscriptionUnavailable,
		Raw:           json.RawMessage(append([]byte(nil), body...)),
	}
	if t := doc.Get("transcription"); t.Exists() && t.Type != gjson.Null {
		res.Transcription = t.String()
	}

	if list := doc.Get("emissions"); list.IsArray() {
		for _, item := range list.Array() {
			res.Emissions = append(res.Emissions, parseEmission(item))
		}
	}
	return res, nil
}

func parseEmission(item gjson.Result) Emission {
	e := Emission{Activity: UnknownActivity}
	if a := item.Get("activity"); a.Type == gjson.String && strings.TrimSpace(a.Str) != "" {
		e.Activity = a.Str
	}
	if v := item.Get("emission"); v.Type == gjson.Number {
		e.Emission = v.Num
	}
	if t := item.Get("type"); t.Type == gjson.String {
		e.Type = t.Str
	}
	if d := item.Get("details"); d.IsObject() {
		e.Details = &Details{
			Method:      d.Get("method").String(),
			Assumptions: d.Get("assumptions").String(),
		}
	}
	return e
}

// Total sums every entry. It is recomputed on each call.
func (r *Result) Total() float64 {
	if r == nil {
		return 0
	}
	var sum float64
	for _, e := range r.Emissions {
		sum += e.Emission
	}
	return sum
}

// FormatKg renders an emission value with two decimals.
func FormatKg(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
