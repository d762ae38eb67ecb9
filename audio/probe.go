package audio

import (
	"errors"
	"time"
)

type ProbeResult int

const (
	ProbeGranted ProbeResult = iota
	ProbeDenied
	ProbeUnavailable
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeGranted:
		return "granted"
	case ProbeDenied:
		return "denied"
	default:
		return "unavailable"
	}
}

const probeHold = 100 * time.Millisecond

// Probe briefly opens the microphone to surface any permission prompt early.
// The result is informational; it never gates a later Acquire.
func Probe(src *Source) (ProbeResult, error) {
	st, err := src.Acquire(DefaultConstraints(), nil)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return ProbeDenied, err
		}
		return ProbeUnavailable, err
	}
	time.Sleep(probeHold)
	st.Release()
	return ProbeGranted, nil
}
