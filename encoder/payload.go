package encoder

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Payload is a finished recording. It is never modified after Encode returns.
type Payload struct {
	data       []byte
	mimeType   string
	frames     uint64
	sampleRate uint32
	encodeTime time.Duration
}

func (p *Payload) MimeType() string { return p.mimeType }

func (p *Payload) Size() int { return len(p.data) }

// Bytes returns a copy of the encoded container.
func (p *Payload) Bytes() []byte {
	return append([]byte(nil), p.data...)
}

// DataURI renders the payload as data:<mime>;base64,<body>.
func (p *Payload) DataURI() string {
	return "data:" + p.mimeType + ";base64," + base64.StdEncoding.EncodeToString(p.data)
}

func (p *Payload) Frames() uint64 { return p.frames }

// Duration is the audio length derived from the frame count.
func (p *Payload) Duration() time.Duration {
	if p.sampleRate == 0 {
		return 0
	}
	return time.Duration(p.frames) * time.Second / time.Duration(p.sampleRate)
}

func (p *Payload) EncodeTime() time.Duration { return p.encodeTime }

// Encode converts little-endian 16-bit mono PCM into a payload of the given
// format. pcm is read in BlockSize-sample blocks; the tail becomes a short
// final block.
func Encode(format string, sampleRate uint32, pcm []byte) (*Payload, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("encode %s: %w (%d bytes)", format, ErrOddLength, len(pcm))
	}
	enc, err := New(format, sampleRate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	block := make([]int16, 0, BlockSize)
	for i := 0; i+1 < len(pcm); i += 2 {
		block = append(block, int16(binary.LittleEndian.Uint16(pcm[i:])))
		if len(block) == BlockSize {
			if err := enc.EncodeBlock(block); err != nil {
				return nil, err
			}
			block = block[:0]
		}
	}
	if len(block) > 0 {
		if err := enc.EncodeBlock(block); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing %s encoder: %w", format, err)
	}
	enc.AddEncodeTime(time.Since(start))

	return &Payload{
		data:       append([]byte(nil), enc.Bytes()...),
		mimeType:   enc.MimeType(),
		frames:     enc.TotalFrames(),
		sampleRate: sampleRate,
		encodeTime: enc.EncodeTime(),
	}, nil
}
