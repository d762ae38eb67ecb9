package audio

import (
	"errors"
	"strings"
)

const (
	WAVHeaderSize = 44

	DefaultSampleRate = 44100
	DefaultChannels   = 1
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrNoFileSelected    = errors.New("no file selected")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives little-endian 16-bit PCM. data must not be retained
// after the callback returns.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate       uint32
	Channels         uint32
	EchoCancellation bool
	NoiseSuppression bool
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Constraints are requested from the device on a best-effort basis.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	SampleRate       uint32
	Channels         uint32
}

func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
	}
}

func (c Constraints) captureConfig() CaptureConfig {
	cfg := CaptureConfig{
		SampleRate:       c.SampleRate,
		Channels:         c.Channels,
		EchoCancellation: c.EchoCancellation,
		NoiseSuppression: c.NoiseSuppression,
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = DefaultChannels
	}
	return cfg
}

var deniedMarkers = []string{"permission", "denied", "not authorized", "eperm", "eacces"}

// classify maps a backend failure onto the two acquisition errors callers
// can act on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	lower := strings.ToLower(err.Error())
	for _, m := range deniedMarkers {
		if strings.Contains(lower, m) {
			return &acquireError{kind: ErrPermissionDenied, err: err}
		}
	}
	return &acquireError{kind: ErrDeviceUnavailable, err: err}
}

type acquireError struct {
	kind error
	err  error
}

func (e *acquireError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *acquireError) Is(target error) bool { return target == e.kind }

func (e *acquireError) Unwrap() error { return e.err }
