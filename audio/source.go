package audio

import (
	"fmt"
	"sync"
)

// Source hands out microphone streams. A nil Context means no audio backend
// is available; every Acquire then fails with ErrDeviceUnavailable.
type Source struct {
	ctx    Context
	device *DeviceInfo
}

func NewSource(ctx Context, device *DeviceInfo) *Source {
	return &Source{ctx: ctx, device: device}
}

// Acquire opens the microphone, registers sink and starts the device. sink is
// attached before the device starts so no early chunk is lost.
func (s *Source) Acquire(c Constraints, sink DataCallback) (*Stream, error) {
	if s == nil || s.ctx == nil {
		return nil, ErrDeviceUnavailable
	}
	cfg := c.captureConfig()
	dev, err := s.ctx.NewCapture(s.device, cfg)
	if err != nil {
		return nil, classify(fmt.Errorf("new capture: %w", err))
	}

	st := &Stream{dev: dev, config: cfg, taps: make(map[int]DataCallback)}
	if sink != nil {
		st.Tap(sink)
	}
	dev.SetCallback(st.dispatch)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, classify(fmt.Errorf("start capture: %w", err))
	}
	return st, nil
}

func (s *Source) DeviceName() string {
	if s == nil || s.device == nil {
		return "system default"
	}
	return s.device.Name
}

// Stream is a started capture device with fan-out to any number of taps.
// Only the session that acquired it may release it.
type Stream struct {
	dev    CaptureDevice
	config CaptureConfig

	mu       sync.Mutex
	taps     map[int]DataCallback
	nextID   int
	released bool
}

func (s *Stream) dispatch(data []byte, frameCount uint32) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	cbs := make([]DataCallback, 0, len(s.taps))
	for i := 0; i < s.nextID; i++ {
		if cb, ok := s.taps[i]; ok {
			cbs = append(cbs, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(data, frameCount)
	}
}

// Tap registers cb for every subsequent chunk. The returned func removes it.
func (s *Stream) Tap(cb DataCallback) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.taps[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.taps, id)
			s.mu.Unlock()
		})
	}
}

func (s *Stream) SampleRate() uint32 { return s.config.SampleRate }

func (s *Stream) Channels() uint32 { return s.config.Channels }

func (s *Stream) DeviceName() string { return s.dev.DeviceName() }

// Release stops and closes the device. Safe to call more than once.
func (s *Stream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.taps = map[int]DataCallback{}
	s.mu.Unlock()

	s.dev.Stop()
	s.dev.ClearCallback()
	s.dev.Close()
}

func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
