package cue

import (
	"encoding/binary"
	"testing"
	"time"
)

func peak(pcm []byte) int {
	m := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if v < 0 {
			v = -v
		}
		m = max(m, v)
	}
	return m
}

func TestSynthLengths(t *testing.T) {
	for _, c := range []Cue{Start, End, Error} {
		tn := tones[c]
		want := int(sampleRate*tn.duration) * 2
		if tn.gap > 0 {
			want = want*2 + int(sampleRate*tn.gap)*2
		}
		if got := len(synth(tn)); got != want {
			t.Errorf("cue %d: %d bytes, want %d", c, got, want)
		}
	}
	if len(synth(tones[Error])) <= len(synth(tones[End])) {
		t.Error("error cue should be the longest")
	}
}

func TestTickDecays(t *testing.T) {
	pcm := tick(1000, 0.2, 0.5, 40)
	window := len(pcm) / 10 &^ 1
	head, tail := peak(pcm[:window]), peak(pcm[len(pcm)-window:])
	if head == 0 {
		t.Fatal("tone is silent")
	}
	if tail*4 > head {
		t.Errorf("envelope does not decay: head %d, tail %d", head, tail)
	}
	if vol := 0.5; head > int(32767*vol)+1 {
		t.Errorf("peak %d exceeds volume", head)
	}
}

func TestErrorHasGap(t *testing.T) {
	tn := tones[Error]
	pcm := synth(tn)
	beep := int(sampleRate*tn.duration) * 2
	gap := pcm[beep : beep+int(sampleRate*tn.gap)*2]
	if peak(gap) != 0 {
		t.Error("gap between beeps is not silent")
	}
	if peak(pcm[len(pcm)-beep:]) == 0 {
		t.Error("second beep missing")
	}
}

func TestPlay(t *testing.T) {
	got := make(chan []byte, 1)
	orig := play
	play = func(pcm []byte) { got <- pcm }
	t.Cleanup(func() {
		play = orig
		SetEnabled(true)
	})

	Play(Start)
	select {
	case pcm := <-got:
		if len(pcm) != len(synth(tones[Start])) {
			t.Errorf("played %d bytes", len(pcm))
		}
	case <-time.After(time.Second):
		t.Fatal("cue not played")
	}

	SetEnabled(false)
	Play(End)
	select {
	case <-got:
		t.Error("played while disabled")
	case <-time.After(50 * time.Millisecond):
	}
}
