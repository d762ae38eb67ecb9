package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"earthprint/analysis"
	"earthprint/audio"
	"earthprint/encoder"
)

const (
	LivePath   = "/api/process-audio"
	UploadPath = "/api/upload-audio"
	HealthPath = "/health"

	// UploadField is the multipart field carrying the file.
	UploadField = "audio"
)

type Transport string

const (
	TransportInline    Transport = "inline"
	TransportMultipart Transport = "multipart"
)

// Client talks to the analysis service. It sends whatever it is given and
// does not queue; callers keep at most one request in flight.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *TracedClient
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    NewTracedClient(),
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type Response struct {
	Result    *analysis.Result
	Metrics   *NetworkMetrics
	Transport Transport
	SentBytes int
}

type liveRequest struct {
	AudioData string `json:"audio_data"`
}

// SubmitLive posts a recorded payload inline as a data URI.
func (c *Client) SubmitLive(ctx context.Context, p *encoder.Payload) (*Response, error) {
	if p == nil {
		return nil, errors.New("submit live: no payload")
	}
	body, err := json.Marshal(liveRequest{AudioData: p.DataURI()})
	if err != nil {
		return nil, fmt.Errorf("submit live: %w", err)
	}
	resp, err := c.post(ctx, "submit live", LivePath, "application/json", body)
	if err != nil {
		return nil, err
	}
	resp.Transport = TransportInline
	return resp, nil
}

// SubmitFile posts the file at ref as a multipart upload.
func (c *Client) SubmitFile(ctx context.Context, ref audio.FileRef) (*Response, error) {
	if strings.TrimSpace(ref.Path) == "" {
		return nil, audio.ErrNoFileSelected
	}
	body, contentType, err := multipartBody(ref)
	if err != nil {
		return nil, fmt.Errorf("submit file: %w", err)
	}
	resp, err := c.post(ctx, "submit file", UploadPath, contentType, body)
	if err != nil {
		return nil, err
	}
	resp.Transport = TransportMultipart
	return resp, nil
}

func multipartBody(ref audio.FileRef) ([]byte, string, error) {
	fd, err := os.Open(ref.Path)
	if err != nil {
		return nil, "", err
	}
	defer fd.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	name := ref.Name
	if name == "" {
		name = "audio"
	}
	ct := ref.ContentType
	if ct == "" {
		ct = audio.ContentType(name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     UploadField,
		"filename": name,
	}))
	h.Set("Content-Type", ct)
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, fd); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) post(ctx context.Context, op, path, contentType string, body []byte) (*Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	tr, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if tr.StatusCode < 200 || tr.StatusCode > 299 {
		return nil, serviceError(tr.StatusCode, tr.Body)
	}

	res, err := analysis.Parse(tr.Body)
	if err != nil {
		return nil, &ServiceError{StatusCode: tr.StatusCode, Detail: "unexpected response from the analysis service"}
	}
	return &Response{Result: res, Metrics: tr.Metrics, SentBytes: len(body)}, nil
}

type Health struct {
	Status        string `json:"status"`
	WhisperLoaded bool   `json:"whisper_loaded"`
	SpacyLoaded   bool   `json:"spacy_loaded"`
	ModelsReady   bool   `json:"models_ready"`
}

func (h *Health) Ready() bool {
	return h != nil && h.ModelsReady
}

// Health queries the service's readiness endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	tr, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "health", Err: err}
	}
	if tr.StatusCode != http.StatusOK {
		return nil, serviceError(tr.StatusCode, tr.Body)
	}
	var h Health
	if err := json.Unmarshal(tr.Body, &h); err != nil {
		return nil, &ServiceError{StatusCode: tr.StatusCode, Detail: fmt.Sprintf("malformed health response: %v", err)}
	}
	return &h, nil
}

// Warm pre-opens a connection to the service. Errors are ignored.
func (c *Client) Warm(ctx context.Context) time.Duration {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+HealthPath, nil)
	if err != nil {
		return 0
	}
	return c.http.WarmConnection(req)
}
