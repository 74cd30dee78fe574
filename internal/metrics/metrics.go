// Package metrics exposes recording progress to Prometheus and as a JSON
// status snapshot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/linuxmatters/lapse/internal/errors"
	"github.com/linuxmatters/lapse/internal/recorder"
)

// Metrics owns a private registry so several recorders, or tests, never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal    prometheus.Counter
	packetsTotal   prometheus.Counter
	bytesTotal     prometheus.Counter
	failuresTotal  *prometheus.CounterVec
	captureSeconds prometheus.Histogram
	encodeSeconds  prometheus.Histogram
	recording      prometheus.Gauge

	mu     sync.Mutex
	status Status
}

// Status is the JSON document served at /status.
type Status struct {
	Output      string    `json:"output"`
	Recording   bool      `json:"recording"`
	Frames      int       `json:"frames"`
	Limit       int       `json:"limit"`
	Packets     int       `json:"packets"`
	Bytes       int64     `json:"bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Elapsed     string    `json:"elapsed"`
	NextCapture time.Time `json:"next_capture,omitempty"`
	Truncated   bool      `json:"truncated"`
	Error       string    `json:"error,omitempty"`
}

// New registers the recorder collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		framesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lapse_frames_total",
			Help: "Frames captured and encoded",
		}),
		packetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lapse_packets_total",
			Help: "Encoded packets written to the output",
		}),
		bytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lapse_output_bytes_total",
			Help: "Encoded bytes written to the output",
		}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lapse_failures_total",
			Help: "Run failures by kind",
		}, []string{"kind"}),
		captureSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lapse_capture_duration_seconds",
			Help:    "Time spent grabbing one frame from the display",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		encodeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lapse_encode_duration_seconds",
			Help:    "Time spent converting, encoding and writing one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lapse_recording",
			Help: "1 while a recording is in progress",
		}),
	}
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Start marks a recording to output as in progress.
func (m *Metrics) Start(output string, limit int) {
	m.recording.Set(1)
	m.mu.Lock()
	m.status = Status{Output: output, Recording: true, Limit: limit}
	m.mu.Unlock()
}

// Observe records one completed cycle. Counters advance by the difference
// from the previous report.
func (m *Metrics) Observe(p recorder.Progress) {
	m.mu.Lock()
	prev := m.status
	m.status.Frames = p.Frames
	m.status.Limit = p.Limit
	m.status.Packets = p.Packets
	m.status.Bytes = p.Bytes
	m.status.Width = p.Width
	m.status.Height = p.Height
	m.status.Elapsed = p.Elapsed.Round(time.Millisecond).String()
	m.status.NextCapture = p.NextCapture
	m.mu.Unlock()

	m.framesTotal.Add(float64(max(p.Frames-prev.Frames, 0)))
	m.packetsTotal.Add(float64(max(p.Packets-prev.Packets, 0)))
	m.bytesTotal.Add(float64(max(p.Bytes-prev.Bytes, 0)))
	m.captureSeconds.Observe(p.CaptureTime.Seconds())
	m.encodeSeconds.Observe(p.EncodeTime.Seconds())
}

// Finish records the final result and any error.
func (m *Metrics) Finish(res recorder.Result, err error) {
	m.recording.Set(0)

	m.mu.Lock()
	prev := m.status
	m.status.Recording = false
	m.status.Frames = res.Frames
	m.status.Packets = res.Packets
	m.status.Bytes = res.Bytes
	m.status.Width = res.Width
	m.status.Height = res.Height
	m.status.Elapsed = res.Elapsed.Round(time.Millisecond).String()
	m.status.NextCapture = time.Time{}
	m.status.Truncated = res.Truncated
	if err != nil {
		m.status.Error = err.Error()
	}
	m.mu.Unlock()

	// Packets flushed by the drain arrive after the last progress report.
	m.packetsTotal.Add(float64(max(res.Packets-prev.Packets, 0)))
	m.bytesTotal.Add(float64(max(res.Bytes-prev.Bytes, 0)))

	if err != nil {
		kind, ok := apperrors.KindOf(err)
		if !ok {
			kind = "unknown"
		}
		m.failuresTotal.WithLabelValues(string(kind)).Inc()
	}
}

// Snapshot returns the current status.
func (m *Metrics) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
