// Package cue plays short tones marking recording transitions.
package cue

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

type Cue int

const (
	Start Cue = iota
	End
	Error
)

const sampleRate = 44100

type tone struct {
	freq     float64
	volume   float64
	decay    float64
	duration float64 // seconds per beep
	gap      float64 // seconds of silence between the two beeps; 0 means single
}

var tones = map[Cue]tone{
	// high and short
	Start: {freq: 1200, volume: 0.5, decay: 60, duration: 0.12},
	// a little lower and longer
	End: {freq: 900, volume: 0.5, decay: 40, duration: 0.15},
	// low double beep
	Error: {freq: 350, volume: 0.6, decay: 30, duration: 0.08, gap: 0.05},
}

var (
	enabled atomic.Bool

	pcmOnce sync.Once
	pcm     map[Cue][]byte

	// play hands mono 16-bit little-endian samples to the platform backend.
	play = playPCM
)

func init() {
	enabled.Store(true)
}

func SetEnabled(on bool) { enabled.Store(on) }

func Enabled() bool { return enabled.Load() }

// Play starts the cue in the background and returns immediately. Playback
// failures are ignored.
func Play(c Cue) {
	if !enabled.Load() {
		return
	}
	pcmOnce.Do(render)
	samples, ok := pcm[c]
	if !ok {
		return
	}
	go play(samples)
}

func render() {
	pcm = make(map[Cue][]byte, len(tones))
	for c, t := range tones {
		pcm[c] = synth(t)
	}
}

func synth(t tone) []byte {
	beep := tick(t.freq, t.duration, t.volume, t.decay)
	if t.gap <= 0 {
		return beep
	}
	gap := make([]byte, int(sampleRate*t.gap)*2)
	out := make([]byte, 0, len(beep)*2+len(gap))
	out = append(out, beep...)
	out = append(out, gap...)
	return append(out, beep...)
}

// tick is a sine with an exponential decay envelope.
func tick(freq, duration, volume, decay float64) []byte {
	n := int(sampleRate * duration)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * math.Exp(-t*decay))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
