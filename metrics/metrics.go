package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the client's Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingsFailed  *prometheus.CounterVec
	RecordingSeconds  prometheus.Histogram
	PayloadBytes      prometheus.Histogram

	// Submission metrics
	Submissions        *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	SubmissionsBusy    prometheus.Counter

	// Result metrics
	EmissionsTotal prometheus.Histogram
	Activities     prometheus.Counter
}

// New creates the metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "earthprint_recordings_started_total",
			Help: "Total number of live recordings started",
		}),
		RecordingsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "earthprint_recordings_failed_total",
			Help: "Total number of live recordings that failed, by reason",
		}, []string{"reason"}),
		RecordingSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "earthprint_recording_seconds",
			Help:    "Length of finished live recordings",
			Buckets: []float64{1, 3, 5, 10, 20, 30, 60, 120, 300},
		}),
		PayloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "earthprint_payload_bytes",
			Help:    "Size of encoded recordings",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "earthprint_submissions_total",
			Help: "Total number of analysis requests, by transport and outcome",
		}, []string{"transport", "outcome"}),
		SubmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earthprint_submission_duration_seconds",
			Help:    "Time from sending an analysis request to receiving the response",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"transport"}),
		SubmissionsBusy: f.NewCounter(prometheus.CounterOpts{
			Name: "earthprint_submissions_rejected_busy_total",
			Help: "Submissions rejected because another request was pending",
		}),

		EmissionsTotal: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "earthprint_result_emissions_kg",
			Help:    "Total kg CO2e per analysis result",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 500},
		}),
		Activities: f.NewCounter(prometheus.CounterOpts{
			Name: "earthprint_result_activities_total",
			Help: "Total number of activities returned by the service",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
