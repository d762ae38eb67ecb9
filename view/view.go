package view

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"earthprint/analysis"
	"earthprint/recorder"
	"earthprint/state"
)

const minWrap = 20

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	helperStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	totalStyle  = lipgloss.NewStyle().Bold(true)

	severityStyles = map[analysis.Severity]lipgloss.Style{
		analysis.Low:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		analysis.Moderate: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		analysis.High:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		analysis.VeryHigh: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func wrapWidth(width int) int {
	if width < minWrap {
		return minWrap
	}
	return width
}

func SeverityStyle(v float64) lipgloss.Style {
	return severityStyles[analysis.Band(v)]
}

// Result renders a transcription, its emissions and the total.
func Result(res *analysis.Result, width int) string {
	if res == nil {
		return ""
	}
	w := wrapWidth(width)

	var b strings.Builder
	b.WriteString(headerStyle.Render("Transcription") + "\n")
	for _, line := range strings.Split(wordwrap.String(res.Transcription, w), "\n") {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Carbon footprint") + "\n")
	b.WriteString(Emissions(res.Emissions, w))
	b.WriteString("\n")
	b.WriteString(Total(res.Total()))
	return b.String()
}

// Emissions renders one line per entry, colored by severity, with the
// entry's method and assumptions underneath when present.
func Emissions(items []analysis.Emission, width int) string {
	if len(items) == 0 {
		return helperStyle.Render("No activities detected") + "\n"
	}
	w := wrapWidth(width)

	nameWidth := 0
	for _, e := range items {
		nameWidth = max(nameWidth, lipgloss.Width(e.Activity))
	}
	nameWidth = min(nameWidth, w/2)

	var b strings.Builder
	for _, e := range items {
		name := e.Activity
		if lipgloss.Width(name) > nameWidth {
			name = wordwrap.String(name, nameWidth)
			name = strings.SplitN(name, "\n", 2)[0]
		}
		value := SeverityStyle(e.Emission).Render(analysis.FormatKg(e.Emission) + " kg CO2e")
		line := fmt.Sprintf("• %-*s  %s", nameWidth, name, value)
		if e.Type != "" {
			line += " " + dimStyle.Render("("+e.Type+")")
		}
		b.WriteString(line + "\n")

		if d := e.Details; d != nil {
			for _, note := range []string{d.Method, d.Assumptions} {
				if strings.TrimSpace(note) == "" {
					continue
				}
				for _, l := range strings.Split(wordwrap.String(note, w-4), "\n") {
					b.WriteString("    " + helperStyle.Render(l) + "\n")
				}
			}
		}
	}
	return b.String()
}

func Total(v float64) string {
	label := totalStyle.Render("Total:")
	value := SeverityStyle(v).Bold(true).Render(analysis.FormatKg(v) + " kg CO2e")
	return fmt.Sprintf("%s %s (%s)\n", label, value, analysis.Band(v))
}

// Status renders the panel for the current UI state. spin is the spinner
// frame shown while a request is pending.
func Status(st state.State, spin string, width int) string {
	w := wrapWidth(width)
	switch st.Kind {
	case state.Loading:
		return helperStyle.Render(strings.TrimSpace(spin+" Analysing audio…")) + "\n"
	case state.Error:
		return errorStyle.Render(wordwrap.String("✗ "+st.Message, w)) + "\n"
	case state.Result:
		return Result(st.Result, w)
	default:
		return dimStyle.Render("No analysis yet") + "\n"
	}
}

// Recording renders the live status line for a session.
func Recording(sess recorder.Session, level float64, width int) string {
	switch sess.Status {
	case recorder.Acquiring:
		return helperStyle.Render("… opening microphone")
	case recorder.Active:
		label := recStyle.Render("● REC " + recorder.FormatElapsed(sess.Elapsed))
		barWidth := max(wrapWidth(width)-lipgloss.Width(label)-1, 1)
		return label + " " + LevelBar(level, barWidth)
	case recorder.Finalizing:
		return helperStyle.Render("… encoding")
	default:
		return dimStyle.Render("○ STANDBY")
	}
}

// LevelBar draws level (0..1) as a bar width cells wide.
func LevelBar(level float64, width int) string {
	if width <= 0 {
		return ""
	}
	if math.IsNaN(level) || level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(math.Round(level * float64(width)))
	bar := strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("░", width-filled))
	return bar
}
