package meter

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"earthprint/audio"
)

const DefaultInterval = 50 * time.Millisecond

// Tappable is the part of an audio stream the meter reads from.
type Tappable interface {
	Tap(cb audio.DataCallback) (cancel func())
}

type Options struct {
	Interval  time.Duration
	FFTSize   int
	Smoothing float64
	// OnLevel, when set, is called from the meter goroutine after every sample.
	OnLevel func(level float64)
}

// Meter reports the live amplitude of a stream. It only observes; nothing it
// does affects what is recorded.
type Meter struct {
	opts     Options
	analyser *Analyser
	untap    func()

	mu   sync.Mutex
	ring []float64
	pos  int
	full bool

	level    atomic.Uint64
	stop     chan struct{}
	wg       sync.WaitGroup
	detached sync.Once
}

// Attach taps src and starts sampling at opts.Interval.
func Attach(src Tappable, opts Options) *Meter {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	a := NewAnalyser(opts.FFTSize, opts.Smoothing)
	m := &Meter{
		opts:     opts,
		analyser: a,
		ring:     make([]float64, a.Size()),
		stop:     make(chan struct{}),
	}
	m.untap = src.Tap(m.ingest)

	m.wg.Add(1)
	go m.loop()
	return m
}

func (m *Meter) ingest(data []byte, _ uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(binary.LittleEndian.Uint16(data[i:]))
		m.ring[m.pos] = float64(s) / 32768
		m.pos++
		if m.pos == len(m.ring) {
			m.pos = 0
			m.full = true
		}
	}
}

// window returns the most recent samples in order.
func (m *Meter) window() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return append([]float64(nil), m.ring[:m.pos]...)
	}
	out := make([]float64, 0, len(m.ring))
	out = append(out, m.ring[m.pos:]...)
	return append(out, m.ring[:m.pos]...)
}

func (m *Meter) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			level := m.sample()
			if m.opts.OnLevel != nil {
				m.opts.OnLevel(level)
			}
		}
	}
}

func (m *Meter) sample() float64 {
	level := m.analyser.Level(m.window())
	m.level.Store(math.Float64bits(level))
	return level
}

// Level returns the last sampled level in [0, 1].
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Detach stops sampling and removes the tap. It waits for the sampling
// goroutine to exit and may be called more than once.
func (m *Meter) Detach() {
	m.detached.Do(func() {
		m.untap()
		close(m.stop)
		m.wg.Wait()
		m.level.Store(0)
	})
}
