package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"earthprint/audio"
	"earthprint/encoder"
	"earthprint/meter"
)

var (
	ErrEncoding = errors.New("encoding failed")
	ErrBusy     = errors.New("a recording is in progress")
)

type Status int

const (
	Idle Status = iota
	Acquiring
	Active
	Finalizing
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Active:
		return "active"
	case Finalizing:
		return "finalizing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// busy reports whether a live capture owns the device.
func (s Status) busy() bool {
	return s == Acquiring || s == Active || s == Finalizing
}

type Mode int

const (
	Live Mode = iota
	FileUpload
)

func (m Mode) String() string {
	if m == FileUpload {
		return "file"
	}
	return "live"
}

type Session struct {
	ID        string
	Mode      Mode
	Status    Status
	StartedAt time.Time
	Elapsed   int // whole seconds while Active
	Err       error
	File      *audio.FileRef
}

// Acquirer opens the microphone. *audio.Source satisfies it.
type Acquirer interface {
	Acquire(c audio.Constraints, sink audio.DataCallback) (*audio.Stream, error)
}

// Sink receives recorder events. Calls are made outside the recorder lock,
// possibly from device or ticker goroutines.
type Sink interface {
	StatusChanged(s Session)
	Tick(elapsed int)
	Level(level float64)
}

type nopSink struct{}

func (nopSink) StatusChanged(Session) {}
func (nopSink) Tick(int)              {}
func (nopSink) Level(float64)         {}

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) Chan() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()                  { w.t.Stop() }

func NewWallTicker(d time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

type Config struct {
	Constraints audio.Constraints
	Format      string
	Meter       meter.Options
	Sink        Sink
	// NewTicker drives the elapsed counter. Defaults to a wall-clock ticker.
	NewTicker func(d time.Duration) Ticker
}

// Recorder owns at most one live capture at a time and turns it into an
// encoded payload on Stop.
type Recorder struct {
	src Acquirer
	cfg Config

	mu      sync.Mutex
	sess    Session
	stream  *audio.Stream
	meter   *meter.Meter
	chunks  [][]byte
	payload *encoder.Payload
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(src Acquirer, cfg Config) *Recorder {
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewWallTicker
	}
	if cfg.Format == "" {
		cfg.Format = encoder.FormatFLAC
	}
	return &Recorder{src: src, cfg: cfg}
}

// Start opens the microphone and begins a live session. Calling it while a
// capture is already running does nothing and returns nil.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.sess.Status.busy() {
		r.mu.Unlock()
		return nil
	}
	id := uuid.NewString()
	r.sess = Session{ID: id, Mode: Live, Status: Acquiring, StartedAt: time.Now()}
	r.chunks = nil
	r.payload = nil
	snap := r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)

	stream, err := r.src.Acquire(r.cfg.Constraints, func(data []byte, _ uint32) {
		r.ingest(id, data)
	})
	if err != nil {
		r.mu.Lock()
		r.sess.Status = Failed
		r.sess.Err = err
		snap = r.sess
		r.mu.Unlock()
		r.cfg.Sink.StatusChanged(snap)
		return err
	}

	opts := r.cfg.Meter
	onLevel := opts.OnLevel
	opts.OnLevel = func(level float64) {
		r.cfg.Sink.Level(level)
		if onLevel != nil {
			onLevel(level)
		}
	}

	r.mu.Lock()
	r.stream = stream
	r.sess.Status = Active
	r.sess.Elapsed = 0
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.tick(r.cfg.NewTicker(time.Second), r.done)
	r.meter = meter.Attach(stream, opts)
	snap = r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)
	return nil
}

func (r *Recorder) ingest(id string, data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.ID != id || (r.sess.Status != Acquiring && r.sess.Status != Active) {
		return
	}
	r.chunks = append(r.chunks, bytes.Clone(data))
}

func (r *Recorder) tick(t Ticker, done <-chan struct{}) {
	defer r.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.Chan():
			r.mu.Lock()
			if r.sess.Status != Active {
				r.mu.Unlock()
				return
			}
			r.sess.Elapsed++
			elapsed := r.sess.Elapsed
			r.mu.Unlock()
			r.cfg.Sink.Tick(elapsed)
		}
	}
}

// teardown stops the ticker and meter and releases the device. It must be
// called after the session left Active.
func (r *Recorder) teardown() *audio.Stream {
	r.mu.Lock()
	done, m, stream := r.done, r.meter, r.stream
	r.done, r.meter, r.stream = nil, nil, nil
	r.mu.Unlock()

	if done != nil {
		close(done)
	}
	r.wg.Wait()
	if m != nil {
		m.Detach()
	}
	if stream != nil {
		stream.Release()
	}
	return stream
}

// Stop ends the live session and encodes everything captured so far. It is a
// no-op returning nil unless a session is Active. The device is released
// whether or not encoding succeeds.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.sess.Status != Active {
		r.mu.Unlock()
		return nil
	}
	r.sess.Status = Finalizing
	snap := r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)

	stream := r.teardown()

	r.mu.Lock()
	pcm := bytes.Join(r.chunks, nil)
	r.chunks = nil
	r.mu.Unlock()

	payload, err := encoder.Encode(r.cfg.Format, stream.SampleRate(), pcm)

	r.mu.Lock()
	if err != nil {
		r.sess.Status = Failed
		r.sess.Err = fmt.Errorf("%w: %v", ErrEncoding, err)
	} else {
		r.sess.Status = Ready
		r.payload = payload
	}
	snap = r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)
	return snap.Err
}

// Abort discards an Active session without encoding and returns to Idle.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if r.sess.Status != Active {
		r.mu.Unlock()
		return
	}
	r.sess.Status = Finalizing
	r.mu.Unlock()

	r.teardown()

	r.mu.Lock()
	r.chunks = nil
	r.sess = Session{}
	snap := r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)
}

// UseFile opens a file-upload session, which is Ready immediately.
func (r *Recorder) UseFile(ref audio.FileRef) (Session, error) {
	r.mu.Lock()
	if r.sess.Status.busy() {
		r.mu.Unlock()
		return Session{}, ErrBusy
	}
	r.sess = Session{
		ID:        uuid.NewString(),
		Mode:      FileUpload,
		Status:    Ready,
		StartedAt: time.Now(),
		File:      &ref,
	}
	r.chunks = nil
	r.payload = nil
	snap := r.sess
	r.mu.Unlock()
	r.cfg.Sink.StatusChanged(snap)
	return snap, nil
}

// Payload returns the encoded recording of a Ready live session, or nil.
func (r *Recorder) Payload() *encoder.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.Status != Ready || r.sess.Mode != Live {
		return nil
	}
	return r.payload
}

func (r *Recorder) Snapshot() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess
}

// Level is the live meter reading, 0 when nothing is recording.
func (r *Recorder) Level() float64 {
	r.mu.Lock()
	m := r.meter
	r.mu.Unlock()
	if m == nil {
		return 0
	}
	return m.Level()
}

// FormatElapsed renders whole seconds as MM:SS.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
