package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DiagnosticsFile = "diagnostics_log.txt"
	AnalysisFile    = "analysis_log.txt"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	analysisFile *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

// Submission describes one finished request to the analysis service.
type Submission struct {
	SessionID  string
	Transport  string
	Format     string
	Outcome    string
	StatusCode int
	AudioS     float64
	PayloadKB  float64
	SentKB     float64
	EncodeMs   float64
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	TLSProto   string
	Emissions  int
	TotalKg    float64
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: EARTHPRINT_LOG_PATH environment variable
	if envPath := os.Getenv("EARTHPRINT_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagFile, err = os.OpenFile(filepath.Join(dir, DiagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	analysisFile, err = os.OpenFile(filepath.Join(dir, AnalysisFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady = false
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if analysisFile != nil {
		analysisFile.Close()
		analysisFile = nil
	}
}

// Logger returns the diagnostics logger, or a no-op logger before Init.
func Logger() zerolog.Logger {
	if !logReady {
		return zerolog.Nop()
	}
	return diagLog
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SubmissionMetrics(m Submission) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Str("session", m.SessionID).
		Str("transport", m.Transport).
		Str("outcome", m.Outcome).
		Str("conn", connStatus)
	if m.Format != "" {
		ev = ev.Str("format", m.Format)
	}
	if m.StatusCode != 0 {
		ev = ev.Int("status", m.StatusCode)
	}
	if m.TLSProto != "" {
		ev = ev.Str("tls_proto", m.TLSProto)
	}
	ev.Float64("audio_s", m.AudioS).
		Float64("payload_kb", m.PayloadKB).
		Float64("sent_kb", m.SentKB).
		Float64("encode_ms", m.EncodeMs).
		Float64("dns_ms", m.DNSMs).
		Float64("tls_ms", m.TLSMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalMs).
		Int("emissions", m.Emissions).
		Float64("total_kg", m.TotalKg).
		Msg("submission")
}

// AnalysisText appends one tab-separated line per result to the analysis log.
func AnalysisText(transcription string, totalKg float64) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if analysisFile == nil {
		return
	}
	text := strings.ReplaceAll(transcription, "\n", " ")
	line := fmt.Sprintf("%s\t[%d]\t%.2f kg\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, totalKg, text)
	analysisFile.WriteString(line)
}

func RecordingStart(sessionID, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Str("device", device).
		Msg("recording_start")
}

func RecordingStop(sessionID string, elapsed int, status string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", sessionID).
		Int("elapsed_s", elapsed).
		Str("status", status).
		Msg("recording_stop")
}

func SessionStart(service, format, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("service", service).
		Str("format", format).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
