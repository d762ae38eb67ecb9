package analysis

// Severity is a display band for an emission value.
type Severity int

const (
	Low Severity = iota
	Moderate
	High
	VeryHigh
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "low"
	case Moderate:
		return "moderate"
	case High:
		return "high"
	default:
		return "very-high"
	}
}

// Band maps kg CO2e onto a severity. A value on a boundary belongs to the
// band that starts there, so 1.0 is Moderate.
func Band(v float64) Severity {
	switch {
	case v < 1:
		return Low
	case v < 5:
		return Moderate
	case v < 10:
		return High
	default:
		return VeryHigh
	}
}
