package main

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"earthprint/cue"
	"earthprint/recorder"
	"earthprint/view"
)

// programSink forwards recorder events to the Bubble Tea program. Events
// that arrive before the program is attached are dropped.
type programSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *programSink) attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *programSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (s *programSink) StatusChanged(sess recorder.Session) {
	s.send(RecordingStatusMsg{Session: sess})
}

func (s *programSink) Tick(elapsed int) {
	s.send(RecordingTickMsg{Elapsed: elapsed})
}

func (s *programSink) Level(level float64) {
	s.send(AudioLevelMsg{Level: level})
}

// lineSink redraws a single status line, for the headless record command.
type lineSink struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	sess    recorder.Session
	silence *silenceMonitor
}

func newLineSink(out io.Writer, width int, silence *silenceMonitor) *lineSink {
	return &lineSink{out: out, width: width, silence: silence}
}

func (s *lineSink) StatusChanged(sess recorder.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.redraw(0)
	if sess.Status == recorder.Ready || sess.Status == recorder.Failed {
		fmt.Fprintln(s.out)
	}
}

func (s *lineSink) Tick(elapsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Elapsed = elapsed
	s.redraw(0)
}

func (s *lineSink) Level(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silence != nil && s.silence.Level(level) == SilenceWarn {
		fmt.Fprint(s.out, "\r\x1b[K  ⚠ no voice detected\n")
	}
	s.redraw(level)
}

func (s *lineSink) redraw(level float64) {
	fmt.Fprint(s.out, "\r\x1b[K"+view.Recording(s.sess, level, s.width))
}

// cueSink plays a tone on live recording transitions, then forwards.
type cueSink struct {
	next recorder.Sink
}

func (s cueSink) StatusChanged(sess recorder.Session) {
	if sess.Mode == recorder.Live {
		switch sess.Status {
		case recorder.Active:
			cue.Play(cue.Start)
		case recorder.Ready:
			cue.Play(cue.End)
		case recorder.Failed:
			cue.Play(cue.Error)
		}
	}
	s.next.StatusChanged(sess)
}

func (s cueSink) Tick(elapsed int) { s.next.Tick(elapsed) }

func (s cueSink) Level(level float64) { s.next.Level(level) }
