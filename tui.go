package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"earthprint/audio"
	"earthprint/clipboard"
	"earthprint/pipeline"
	"earthprint/recorder"
	"earthprint/state"
	"earthprint/submit"
	"earthprint/view"
)

// TUI message types
type RecordingStatusMsg struct{ Session recorder.Session }
type RecordingTickMsg struct{ Elapsed int }
type AudioLevelMsg struct{ Level float64 }
type StateMsg struct{ State state.State }
type HealthMsg struct {
	Health *submit.Health
	Err    error
}
type DeviceLineMsg struct{ Text string }
type copiedMsg struct{ err error }
type actionDoneMsg struct{ err error }

type tuiMode int

const (
	tuiModeMain tuiMode = iota
	tuiModeUpload
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

type tuiModel struct {
	ctrl    *pipeline.Controller
	silence *silenceMonitor

	mode        tuiMode
	session     recorder.Session
	level       float64
	noVoice     bool
	st          state.State
	serviceLine string
	deviceLine  string
	notice      string
	spinner     spinner.Model
	input       textinput.Model
	width       int
	height      int
}

func newTUIModel(ctrl *pipeline.Controller, silence *silenceMonitor) tuiModel {
	input := textinput.New()
	input.Placeholder = "path/to/recording.mp3"
	input.Prompt = "file: "
	input.CharLimit = 4096

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return tuiModel{
		ctrl:    ctrl,
		silence: silence,
		st:      ctrl.Store().Current(),
		spinner: spin,
		input:   input,
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, quitCmd(m.ctrl)
		}
		if m.mode == tuiModeUpload {
			return m.updateUpload(msg)
		}
		return m.updateMain(msg)

	case spinner.TickMsg:
		if m.st.Kind == state.Loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case RecordingStatusMsg:
		m.session = msg.Session
		if msg.Session.Status == recorder.Active && msg.Session.Elapsed == 0 {
			m.silence.Reset()
			m.noVoice = false
		}
		if msg.Session.Status != recorder.Active {
			m.level = 0
		}

	case RecordingTickMsg:
		m.session.Elapsed = msg.Elapsed

	case AudioLevelMsg:
		if m.session.Status == recorder.Active {
			m.level = m.level*0.6 + msg.Level*0.4
			switch m.silence.Level(msg.Level) {
			case SilenceWarn:
				m.noVoice = true
			case SilenceWarnClear:
				m.noVoice = false
			}
		}

	case StateMsg:
		m.st = msg.State
		if m.st.Kind == state.Loading {
			m.notice = ""
			return m, m.spinner.Tick
		}

	case HealthMsg:
		m.serviceLine = healthLineText(msg)

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case copiedMsg:
		if msg.err != nil {
			m.notice = "copy failed: " + msg.err.Error()
		} else {
			m.notice = "✓ copied to clipboard"
		}

	case actionDoneMsg:
		if errors.Is(msg.err, pipeline.ErrBusy) {
			m.notice = pipeline.MsgBusy
		}
	}
	return m, nil
}

func (m tuiModel) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, quitCmd(m.ctrl)

	case "r", " ":
		m.notice = ""
		switch m.session.Status {
		case recorder.Active:
			return m, stopCmd(m.ctrl)
		case recorder.Acquiring, recorder.Finalizing:
			return m, nil
		}
		return m, startCmd(m.ctrl)

	case "u":
		if m.session.Status == recorder.Active {
			m.notice = pipeline.MsgBusyRecorder
			return m, nil
		}
		m.mode = tuiModeUpload
		m.notice = ""
		m.input.Reset()
		return m, m.input.Focus()

	case "c":
		if m.st.Kind != state.Result {
			return m, nil
		}
		res := m.st.Result
		return m, func() tea.Msg {
			return copiedMsg{err: clipboard.CopyResult(res)}
		}
	}
	return m, nil
}

func (m tuiModel) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = tuiModeMain
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		path := strings.Trim(strings.TrimSpace(m.input.Value()), `"'`)
		m.mode = tuiModeMain
		m.input.Blur()
		return m, uploadCmd(m.ctrl, path)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// quitCmd discards any live recording, then quits. Abort reports through the
// program, so it must not run on the event loop.
func quitCmd(ctrl *pipeline.Controller) tea.Cmd {
	abort := func() tea.Msg {
		ctrl.Recorder().Abort()
		return nil
	}
	return tea.Sequence(abort, tea.Quit)
}

func startCmd(ctrl *pipeline.Controller) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: ctrl.StartRecording()}
	}
}

func stopCmd(ctrl *pipeline.Controller) tea.Cmd {
	return func() tea.Msg {
		_, err := ctrl.StopRecording(context.Background())
		return actionDoneMsg{err: err}
	}
}

func uploadCmd(ctrl *pipeline.Controller, path string) tea.Cmd {
	return func() tea.Msg {
		_, err := ctrl.SubmitFile(context.Background(), path)
		return actionDoneMsg{err: err}
	}
}

func healthCmd(client *submit.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h, err := client.Health(ctx)
		return HealthMsg{Health: h, Err: err}
	}
}

func healthLineText(msg HealthMsg) string {
	switch {
	case msg.Err != nil:
		return "service: unreachable"
	case msg.Health.Ready():
		return "service: ready"
	default:
		return "service: loading models"
	}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := max(m.width-2, 20)

	var lines []string
	lines = append(lines, titleStyle.Render("earthprint")+" "+dimStyle.Render(version))
	if m.serviceLine != "" || m.deviceLine != "" {
		lines = append(lines, infoStyle.Render(strings.Join(nonEmpty(m.serviceLine, m.deviceLine), "  •  ")))
	}
	lines = append(lines, "")
	lines = append(lines, view.Recording(m.session, m.level, width))
	if m.session.Status == recorder.Active && m.noVoice {
		lines = append(lines, warnStyle.Render("  ⚠ no voice detected"))
	}
	lines = append(lines, "")

	if m.mode == tuiModeUpload {
		lines = append(lines, m.input.View())
		lines = append(lines, helpStyle.Render("enter to upload, esc to cancel ("+strings.Join(audio.AcceptedFormats, " ")+")"))
		lines = append(lines, "")
	}

	lines = append(lines, strings.TrimRight(view.Status(m.st, m.spinner.View(), width), "\n"))
	if m.notice != "" {
		lines = append(lines, "", noticeStyle.Render(m.notice))
	}
	lines = append(lines, "", m.helpLine())

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		PaddingLeft(1).
		Render(strings.Join(lines, "\n"))
}

func (m tuiModel) helpLine() string {
	recLabel := " record  "
	if m.session.Status == recorder.Active {
		recLabel = " stop & analyse  "
	}
	parts := []string{
		keyStyle.Render("r") + helpStyle.Render(recLabel),
		keyStyle.Render("u") + helpStyle.Render(" upload  "),
	}
	if m.st.Kind == state.Result {
		parts = append(parts, keyStyle.Render("c")+helpStyle.Render(" copy  "))
	}
	parts = append(parts, keyStyle.Render("q")+helpStyle.Render(" quit"))
	return strings.Join(parts, "")
}

func nonEmpty(items ...string) []string {
	var out []string
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
