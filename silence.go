package main

import "time"

const (
	speechLevel      = 0.02 // meter level counted as voice
	silenceWarnAfter = 3 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected
	SilenceWarnClear              // speech resumed after warning
)

// silenceMonitor watches meter levels over a sliding window and flags a
// recording that has gone quiet.
type silenceMonitor struct {
	windowSz int

	ticks  int
	window []bool
	warned bool
}

func newSilenceMonitor(interval time.Duration) *silenceMonitor {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	windowSz := max(int(silenceWarnAfter/interval), 1)
	return &silenceMonitor{
		windowSz: windowSz,
		window:   make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, m.windowSz)
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Level feeds one meter reading.
func (m *silenceMonitor) Level(level float64) SilenceEvent {
	m.window[m.ticks%m.windowSz] = level >= speechLevel
	m.ticks++

	r := m.ratio()
	if m.ticks >= m.windowSz && r < speechMinRatio && !m.warned {
		m.warned = true
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}
	return SilenceNone
}

func (m *silenceMonitor) Warned() bool { return m.warned }

func (m *silenceMonitor) Reset() {
	m.ticks = 0
	m.warned = false
	clear(m.window)
}
