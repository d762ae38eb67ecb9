package encoder

import (
	"errors"
	"fmt"
	"time"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

// ErrOddLength is returned when PCM input does not hold whole 16-bit samples.
var ErrOddLength = errors.New("pcm length is not a multiple of 2")

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	MimeType() string
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// New returns an encoder for mono 16-bit PCM at sampleRate.
func New(format string, sampleRate uint32) (Encoder, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}
	switch format {
	case FormatFLAC:
		return NewFlac(sampleRate)
	case FormatWAV:
		return NewWav(sampleRate), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Formats lists the values New accepts.
func Formats() []string {
	return []string{FormatFLAC, FormatWAV}
}
