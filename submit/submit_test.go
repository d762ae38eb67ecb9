package submit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"earthprint/audio"
	"earthprint/encoder"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	if got, want := m.Sum(), 195*time.Millisecond; got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func testPayload(t *testing.T) *encoder.Payload {
	t.Helper()
	p, err := encoder.Encode(encoder.FormatWAV, 16000, []byte{1, 0, 2, 0, 3, 0})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return p
}

func TestSubmitLive(t *testing.T) {
	p := testPayload(t)
	var gotData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != LivePath {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotData = body["audio_data"]
		w.Write([]byte(`{"transcription":"I drove to work","emissions":[{"activity":"Driving","emission":2.3}]}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/", time.Second).SubmitLive(context.Background(), p)
	if err != nil {
		t.Fatalf("SubmitLive: %v", err)
	}
	if gotData != p.DataURI() {
		t.Errorf("audio_data = %q, want the payload data URI", gotData)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(gotData, "data:audio/wav;base64,"))
	if err != nil || string(raw) != string(p.Bytes()) {
		t.Errorf("audio_data does not decode to the payload: %v", err)
	}
	if resp.Transport != TransportInline || resp.Metrics == nil || resp.SentBytes == 0 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Result.Transcription != "I drove to work" || resp.Result.Total() != 2.3 {
		t.Errorf("result = %+v", resp.Result)
	}
}

func TestSubmitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip.mp3")
	if err := os.WriteFile(path, []byte("ID3 fake mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	ref, err := audio.SelectFile(path)
	if err != nil {
		t.Fatalf("SelectFile: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile(UploadField)
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "trip.mp3" || string(data) != "ID3 fake mp3" {
			t.Errorf("upload = %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("part Content-Type = %q", ct)
		}
		w.Write([]byte(`{"transcription":"flew to Berlin","emissions":[{"activity":"Flight","emission":150}]}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second).SubmitFile(context.Background(), ref)
	if err != nil {
		t.Fatalf("SubmitFile: %v", err)
	}
	if resp.Transport != TransportMultipart || resp.Result.Emissions[0].Activity != "Flight" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSubmitFileNoSelection(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).SubmitFile(context.Background(), audio.FileRef{})
	if !errors.Is(err, audio.ErrNoFileSelected) {
		t.Errorf("err = %v, want ErrNoFileSelected", err)
	}
	if hits.Load() != 0 {
		t.Error("request sent without a file")
	}
}

func TestServiceErrors(t *testing.T) {
	for _, tt := range []struct {
		name       string
		status     int
		body       string
		detail     string
		structured bool
	}{
		{"structured detail", 500, `{"detail":"model unavailable"}`, "model unavailable", true},
		{"html body", 502, `<html>bad gateway</html>`, "analysis service error (502 Bad Gateway)", false},
		{"validation list", 422, `{"detail":[{"msg":"field required"}]}`, "analysis service error (422 Unprocessable Entity)", false},
		{"empty body", 503, ``, "analysis service error (503 Service Unavailable)", false},
		{"2xx not an object", 200, `["nope"]`, "unexpected response from the analysis service", false},
		{"2xx not json", 200, `ok`, "unexpected response from the analysis service", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).SubmitLive(context.Background(), testPayload(t))
			var se *ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v (%T), want *ServiceError", err, err)
			}
			if se.StatusCode != tt.status || se.Detail != tt.detail || se.Structured != tt.structured {
				t.Errorf("ServiceError = %+v", se)
			}
			if se.Error() != tt.detail {
				t.Errorf("Error() = %q", se.Error())
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).SubmitLive(context.Background(), testPayload(t))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v (%T), want *TransportError", err, err)
	}
	if te.Op != "submit live" || te.Unwrap() == nil {
		t.Errorf("TransportError = %+v", te)
	}
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { <-release }))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).SubmitLive(context.Background(), testPayload(t))
	var te *TransportError
	if !errors.As(err, &te) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want a TransportError wrapping DeadlineExceeded", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != HealthPath {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(`{"status":"healthy","whisper_loaded":true,"spacy_loaded":true,"models_ready":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || !h.WhisperLoaded || !h.SpacyLoaded || !h.Ready() {
		t.Errorf("health = %+v", h)
	}
	if d := c.Warm(context.Background()); d != 0 {
		t.Errorf("Warm over plain HTTP reported a TLS handshake of %v", d)
	}
}

func TestHealthNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"loading","whisper_loaded":false,"spacy_loaded":true,"models_ready":false}`))
	}))
	defer srv.Close()

	h, err := New(srv.URL, time.Second).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Ready() {
		t.Error("Ready() = true for a loading service")
	}
	var nilHealth *Health
	if nilHealth.Ready() {
		t.Error("nil health should not be ready")
	}
}
