package encoder

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mewkiz/flac"
)

func testPCM(nSamples int) []byte {
	pcm := make([]byte, nSamples*2)
	for i := range nSamples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16((i%2000)-1000)))
	}
	return pcm
}

func decodeFlac(t *testing.T, data []byte) (pcm []byte, sampleRate uint32) {
	t.Helper()
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("flac.New: %v", err)
	}
	defer stream.Close()

	var out bytes.Buffer
	var b [2]byte
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ParseNext: %v", err)
		}
		for _, s := range f.Subframes[0].Samples {
			binary.LittleEndian.PutUint16(b[:], uint16(int16(s)))
			out.Write(b[:])
		}
	}
	return out.Bytes(), stream.Info.SampleRate
}

func TestEncodeFlacRoundTrip(t *testing.T) {
	pcm := testPCM(BlockSize*2 + BlockSize/3)

	p, err := Encode(FormatFLAC, 44100, pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if p.MimeType() != "audio/flac" {
		t.Errorf("MimeType = %q", p.MimeType())
	}
	data := p.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
	if p.Frames() != uint64(len(pcm)/2) {
		t.Errorf("Frames = %d, want %d", p.Frames(), len(pcm)/2)
	}

	got, rate := decodeFlac(t, data)
	if rate != 44100 {
		t.Errorf("sample rate = %d, want 44100", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("decoded %d bytes, not equal to the %d input bytes", len(got), len(pcm))
	}
}

func TestEncodeWavRoundTrip(t *testing.T) {
	pcm := testPCM(BlockSize + 7)

	p, err := Encode(FormatWAV, 16000, pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data := p.Bytes()
	if len(data) != wavHeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(data), wavHeaderSize+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Error("malformed RIFF header")
	}
	if rate := binary.LittleEndian.Uint32(data[24:]); rate != 16000 {
		t.Errorf("header sample rate = %d", rate)
	}
	if n := binary.LittleEndian.Uint32(data[40:]); int(n) != len(pcm) {
		t.Errorf("data chunk size = %d, want %d", n, len(pcm))
	}
	if !bytes.Equal(data[wavHeaderSize:], pcm) {
		t.Error("wav body differs from input pcm")
	}
}

func TestEncodeEmpty(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			p, err := Encode(format, 44100, nil)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if p.Frames() != 0 || p.Duration() != 0 {
				t.Errorf("frames=%d duration=%v", p.Frames(), p.Duration())
			}
			if p.Size() == 0 {
				t.Error("expected a header even with no audio")
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Encode(FormatFLAC, 44100, []byte{1, 2, 3}); !errors.Is(err, ErrOddLength) {
		t.Errorf("odd length err = %v", err)
	}
	if _, err := Encode("ogg", 44100, nil); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Encode(FormatWAV, 0, nil); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestPayloadDataURI(t *testing.T) {
	pcm := testPCM(100)
	p, err := Encode(FormatWAV, 8000, pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	uri := p.DataURI()
	prefix := "data:audio/wav;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri prefix = %q", uri[:min(len(uri), 30)])
	}
	body, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if !bytes.Equal(body, p.Bytes()) {
		t.Error("data uri body differs from payload bytes")
	}
	if got, want := p.Duration(), 100*time.Second/8000; got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
}

func TestPayloadBytesIsCopy(t *testing.T) {
	p, err := Encode(FormatWAV, 8000, testPCM(10))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b := p.Bytes()
	b[0] = 'X'
	if p.Bytes()[0] != 'R' {
		t.Error("mutating Bytes() changed the payload")
	}
}

func TestFlacEncoderRejectsOversizedBlock(t *testing.T) {
	enc, err := NewFlac(16000)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.EncodeBlock(make([]int16, BlockSize+1)); err == nil {
		t.Error("expected error for oversized block")
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := enc.EncodeBlock([]int16{1}); err == nil {
		t.Error("expected error after Close")
	}
}
