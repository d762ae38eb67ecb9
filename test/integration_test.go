//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"earthprint/clipboard"
)

var testBinary string

const analysisBody = `{"transcription":"I drove 10 km","emissions":[{"activity":"Driving","emission":2.3,"type":"transport"}]}`

func TestMain(m *testing.M) {
	testBinary = os.Getenv("EARTHPRINT_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "EARTHPRINT_TEST_BIN not set; build the binary and point the variable at it")
		os.Exit(1)
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	tonePath := filepath.Join("data", "tone.wav")
	if err := generateToneWAV(tonePath, 16000, 0.5, 440); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	os.Remove(tonePath)
	os.Exit(code)
}

func generateToneWAV(path string, sampleRate int, durationS, freq float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+2*i:], uint16(v))
	}
	return os.WriteFile(path, buf, 0644)
}

type request struct {
	Path        string
	ContentType string
	Body        string
}

// fakeService records every request and answers with a fixed status and body.
type fakeService struct {
	*httptest.Server
	mu       sync.Mutex
	requests []request
}

func newFakeService(t *testing.T, status int, body string) *fakeService {
	t.Helper()
	s := &fakeService{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"ok","models_ready":true}`))
			return
		}
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, request{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Body: string(data)})
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeService) submissions() []request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request(nil), s.requests...)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runEarthprint(t *testing.T, url, stdin string, args ...string) (output, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"test", "--logpath", logDir, "--url", url}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+t.TempDir())

	done := make(chan struct{})
	var out []byte
	var err error
	go func() {
		out, err = cmd.CombinedOutput()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		cmd.Process.Kill()
		t.Fatal("earthprint did not exit")
	}
	if err != nil {
		t.Fatalf("earthprint exited with error: %v\noutput: %s", err, out)
	}
	return string(out), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestLiveRecording(t *testing.T) {
	svc := newFakeService(t, http.StatusOK, analysisBody)
	out, logDir := runEarthprint(t, svc.URL, cmds("START", "WAIT_AUDIO_DONE", "STOP", "QUIT"), "data/tone.wav")

	if !strings.Contains(out, "RESULT total=2.30 activities=1") {
		t.Fatalf("missing result line in output:\n%s", out)
	}
	reqs := svc.submissions()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Path != "/api/process-audio" {
		t.Errorf("path = %q", reqs[0].Path)
	}
	if !strings.Contains(reqs[0].Body, `"audio_data":"data:audio/flac;base64,`) {
		t.Errorf("body is not an inline flac data URI: %.80s", reqs[0].Body)
	}

	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "recording_start", "recording_stop", "submission", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics log missing %q", want)
		}
	}
	if !strings.Contains(readLog(t, logDir, "analysis_log.txt"), "2.30 kg\tI drove 10 km") {
		t.Error("analysis log missing result line")
	}
}

func TestUploadFile(t *testing.T) {
	svc := newFakeService(t, http.StatusOK, analysisBody)
	out, _ := runEarthprint(t, svc.URL, cmds("UPLOAD data/tone.wav", "QUIT"), "data/tone.wav")

	if !strings.Contains(out, "RESULT total=2.30") {
		t.Fatalf("missing result line in output:\n%s", out)
	}
	reqs := svc.submissions()
	if len(reqs) != 1 || reqs[0].Path != "/api/upload-audio" {
		t.Fatalf("requests = %+v", reqs)
	}
	if !strings.HasPrefix(reqs[0].ContentType, "multipart/form-data") {
		t.Errorf("content type = %q", reqs[0].ContentType)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	svc := newFakeService(t, http.StatusOK, analysisBody)
	out, _ := runEarthprint(t, svc.URL, cmds("UPLOAD", "STATE", "QUIT"), "data/tone.wav")

	if !strings.Contains(out, "ERROR Please select an audio file to upload.") {
		t.Errorf("missing no-file error in output:\n%s", out)
	}
	if !strings.Contains(out, "STATE error") {
		t.Errorf("state not error:\n%s", out)
	}
	if n := len(svc.submissions()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestServiceErrorDetail(t *testing.T) {
	svc := newFakeService(t, http.StatusInternalServerError, `{"detail":"model unavailable"}`)
	out, logDir := runEarthprint(t, svc.URL, cmds("START", "SLEEP 300", "STOP", "STATE", "QUIT"), "data/tone.wav")

	if !strings.Contains(out, "ERROR model unavailable") {
		t.Errorf("missing service detail in output:\n%s", out)
	}
	if !strings.Contains(out, "STATE error") {
		t.Errorf("state not error:\n%s", out)
	}
	if !strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "outcome=service_error") {
		t.Error("expected service_error outcome in diagnostics")
	}
}

func TestServiceUnreachable(t *testing.T) {
	svc := newFakeService(t, http.StatusOK, analysisBody)
	url := svc.URL
	svc.Close()

	out, _ := runEarthprint(t, url, cmds("UPLOAD data/tone.wav", "QUIT"), "data/tone.wav")
	if !strings.Contains(out, "ERROR Could not reach the analysis service") {
		t.Errorf("missing transport error in output:\n%s", out)
	}
}

func TestConnReuse(t *testing.T) {
	svc := newFakeService(t, http.StatusOK, analysisBody)
	_, logDir := runEarthprint(t, svc.URL, cmds("UPLOAD data/tone.wav", "UPLOAD data/tone.wav", "QUIT"), "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if strings.Count(diag, "submission") < 2 {
		t.Error("expected 2 submission entries in diagnostics")
	}
	if !strings.Contains(diag, "conn=reused") {
		t.Error("expected conn=reused in diagnostics")
	}
}

func TestCopyResult(t *testing.T) {
	if !clipboard.Available() {
		t.Skip("clipboard not available")
	}
	svc := newFakeService(t, http.StatusOK, analysisBody)
	out, _ := runEarthprint(t, svc.URL, cmds("UPLOAD data/tone.wav", "COPY", "QUIT"), "data/tone.wav")
	if !strings.Contains(out, "COPIED") {
		t.Skipf("copy failed:\n%s", out)
	}

	clip, err := clipboard.Read()
	if err != nil {
		t.Skip("clipboard not available")
	}
	if !strings.Contains(clip, "Driving: 2.30 kg CO2e") || !strings.Contains(clip, "Total: 2.30 kg CO2e") {
		t.Errorf("clipboard = %q", clip)
	}
}
