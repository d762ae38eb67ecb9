package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"earthprint/analysis"
	"earthprint/audio"
	"earthprint/encoder"
	"earthprint/log"
	"earthprint/metrics"
	"earthprint/recorder"
	"earthprint/state"
	"earthprint/submit"
)

var (
	// ErrBusy rejects a submission while another one is pending.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrNotRecording is returned by StopRecording when no session is Active.
	ErrNotRecording = errors.New("no recording to submit")
)

const (
	MsgPermission   = "Could not access the microphone. Please check microphone permissions and try again."
	MsgUnavailable  = "No microphone is available. Connect one and try again."
	MsgEncoding     = "Could not encode the recording. Please try recording again."
	MsgNoFile       = "Please select an audio file to upload."
	MsgTransport    = "Could not reach the analysis service. Check your connection and try again."
	MsgBusyRecorder = "Stop the current recording before uploading a file."
	MsgBusy         = "A submission is already in progress. Wait for it to finish."
)

type Config struct {
	Format  string
	Device  string           // device name for logs only
	Metrics *metrics.Metrics // optional
	// WarmTimeout bounds the connection warm-up issued on StartRecording.
	// Zero disables it.
	WarmTimeout time.Duration
}

// Controller turns user intents into recorder and client calls and projects
// every outcome onto the state store.
type Controller struct {
	rec    *recorder.Recorder
	client *submit.Client
	store  *state.Store
	cfg    Config

	submitted atomic.Int64
}

func New(rec *recorder.Recorder, client *submit.Client, store *state.Store, cfg Config) *Controller {
	if cfg.Format == "" {
		cfg.Format = encoder.FormatFLAC
	}
	return &Controller{rec: rec, client: client, store: store, cfg: cfg}
}

func (c *Controller) Store() *state.Store { return c.store }

func (c *Controller) Recorder() *recorder.Recorder { return c.rec }

// Submitted counts requests that reached the service, successful or not.
func (c *Controller) Submitted() int { return int(c.submitted.Load()) }

// StartRecording opens the microphone. A failure is shown as an Error state
// and returned; the user may retry. While a submission is pending it returns
// ErrBusy and leaves the recorder untouched.
func (c *Controller) StartRecording() error {
	if c.store.Current().Kind == state.Loading {
		c.rejectBusy()
		return ErrBusy
	}
	prev := c.rec.Snapshot()
	if err := c.rec.Start(); err != nil {
		msg := Message(err)
		log.Errorf("recording failed to start: %v", err)
		if m := c.cfg.Metrics; m != nil {
			m.RecordingsFailed.WithLabelValues(failureReason(err)).Inc()
		}
		c.showError(msg)
		return err
	}

	sess := c.rec.Snapshot()
	if sess.ID == prev.ID {
		// already capturing
		return nil
	}
	log.RecordingStart(sess.ID, c.cfg.Device)
	if m := c.cfg.Metrics; m != nil {
		m.RecordingsStarted.Inc()
	}
	if cur := c.store.Current(); cur.Kind == state.Error {
		c.store.Set(state.NewIdle())
	}
	if c.cfg.WarmTimeout > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WarmTimeout)
			defer cancel()
			c.client.Warm(ctx)
		}()
	}
	return nil
}

// StopRecording ends the live session and submits the recording inline.
func (c *Controller) StopRecording(ctx context.Context) (*analysis.Result, error) {
	if c.rec.Snapshot().Status != recorder.Active {
		return nil, ErrNotRecording
	}
	stopErr := c.rec.Stop()
	sess := c.rec.Snapshot()
	log.RecordingStop(sess.ID, sess.Elapsed, sess.Status.String())
	if stopErr != nil {
		log.Errorf("recording failed: %v", stopErr)
		if m := c.cfg.Metrics; m != nil {
			m.RecordingsFailed.WithLabelValues(failureReason(stopErr)).Inc()
		}
		c.showError(Message(stopErr))
		return nil, stopErr
	}

	p := c.rec.Payload()
	if p == nil {
		return nil, ErrNotRecording
	}
	if m := c.cfg.Metrics; m != nil {
		m.RecordingSeconds.Observe(p.Duration().Seconds())
		m.PayloadBytes.Observe(float64(p.Size()))
	}

	if !c.store.BeginLoading() {
		c.rejectBusy()
		return nil, ErrBusy
	}
	start := time.Now()
	resp, err := c.client.SubmitLive(ctx, p)
	entry := log.Submission{
		SessionID: sess.ID,
		Transport: string(submit.TransportInline),
		Format:    c.cfg.Format,
		AudioS:    p.Duration().Seconds(),
		PayloadKB: float64(p.Size()) / 1024,
		EncodeMs:  float64(p.EncodeTime().Microseconds()) / 1000,
	}
	return c.finish(submit.TransportInline, entry, start, resp, err)
}

// SubmitFile uploads the file at path. An empty path is reported as an
// inline error without contacting the service.
func (c *Controller) SubmitFile(ctx context.Context, path string) (*analysis.Result, error) {
	if c.store.Current().Kind == state.Loading {
		c.rejectBusy()
		return nil, ErrBusy
	}
	ref, err := audio.SelectFile(path)
	if err != nil {
		if errors.Is(err, audio.ErrNoFileSelected) {
			c.showError(MsgNoFile)
		} else {
			c.showError(err.Error())
		}
		return nil, err
	}
	if !ref.Accepted() {
		log.Warnf("uploading %s, which is not a listed audio format", ref.Name)
	}
	sess, err := c.rec.UseFile(ref)
	if err != nil {
		c.showError(MsgBusyRecorder)
		return nil, err
	}

	if !c.store.BeginLoading() {
		c.rejectBusy()
		return nil, ErrBusy
	}
	start := time.Now()
	resp, err := c.client.SubmitFile(ctx, ref)
	entry := log.Submission{
		SessionID: sess.ID,
		Transport: string(submit.TransportMultipart),
		PayloadKB: float64(ref.Size) / 1024,
	}
	return c.finish(submit.TransportMultipart, entry, start, resp, err)
}

func (c *Controller) finish(t submit.Transport, entry log.Submission, start time.Time, resp *submit.Response, err error) (*analysis.Result, error) {
	elapsed := time.Since(start)
	c.submitted.Add(1)
	entry.TotalMs = float64(elapsed.Microseconds()) / 1000
	m := c.cfg.Metrics
	if m != nil {
		m.SubmissionDuration.WithLabelValues(string(t)).Observe(elapsed.Seconds())
	}

	if err != nil {
		entry.Outcome = outcome(err)
		var se *submit.ServiceError
		if errors.As(err, &se) {
			entry.StatusCode = se.StatusCode
		}
		log.SubmissionMetrics(entry)
		log.Errorf("submission failed: %v", err)
		if m != nil {
			m.Submissions.WithLabelValues(string(t), entry.Outcome).Inc()
		}
		c.store.Set(state.NewError(Message(err)))
		return nil, err
	}

	res := resp.Result
	total := res.Total()
	entry.Outcome = "ok"
	entry.StatusCode = 200
	entry.Emissions = len(res.Emissions)
	entry.TotalKg = total
	entry.SentKB = float64(resp.SentBytes) / 1024
	if nm := resp.Metrics; nm != nil {
		entry.DNSMs = ms(nm.DNS)
		entry.TLSMs = ms(nm.TLS)
		entry.TTFBMs = ms(nm.TTFB)
		entry.TotalMs = ms(nm.Total)
		entry.ConnReused = nm.ConnReused
		entry.TLSProto = nm.TLSProtocol
	}
	log.SubmissionMetrics(entry)
	log.AnalysisText(res.Transcription, total)
	if m != nil {
		m.Submissions.WithLabelValues(string(t), entry.Outcome).Inc()
		m.EmissionsTotal.Observe(total)
		m.Activities.Add(float64(len(res.Emissions)))
	}
	c.store.Set(state.NewResult(res))
	return res, nil
}

// showError sets an Error state unless a request is pending.
func (c *Controller) showError(msg string) {
	if c.store.Current().Kind == state.Loading {
		return
	}
	c.store.Set(state.NewError(msg))
}

func (c *Controller) rejectBusy() {
	log.Warn("submission rejected: another request is pending")
	if m := c.cfg.Metrics; m != nil {
		m.SubmissionsBusy.Inc()
	}
}

// Message maps any pipeline failure to the text shown to the user.
func Message(err error) string {
	var se *submit.ServiceError
	var te *submit.TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audio.ErrPermissionDenied):
		return MsgPermission
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return MsgUnavailable
	case errors.Is(err, recorder.ErrEncoding):
		return MsgEncoding
	case errors.Is(err, audio.ErrNoFileSelected):
		return MsgNoFile
	case errors.Is(err, recorder.ErrBusy):
		return MsgBusyRecorder
	case errors.Is(err, ErrBusy):
		return MsgBusy
	case errors.As(err, &se):
		return se.Detail
	case errors.As(err, &te):
		return MsgTransport
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "unavailable"
	case errors.Is(err, recorder.ErrEncoding):
		return "encoding"
	default:
		return "other"
	}
}

func outcome(err error) string {
	var se *submit.ServiceError
	var te *submit.TransportError
	switch {
	case errors.As(err, &se):
		return "service_error"
	case errors.As(err, &te):
		return "transport_error"
	default:
		return "error"
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
