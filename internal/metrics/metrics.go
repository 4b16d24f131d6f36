// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesNoBody    atomic.Uint64

	// Error counters
	ReadErrors   atomic.Uint64
	DetectErrors atomic.Uint64
	HookErrors   atomic.Uint64

	// Workout state
	Reps          atomic.Uint64
	Announcements atomic.Uint64
	Active        atomic.Uint64 // 0 = idle frame rate, 1 = active
	WSClients     atomic.Int64

	updates       *prometheus.CounterVec
	detectLatency prometheus.Histogram
	lastAngle     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "squatcoach_counter_updates_total",
			Help: "Counter updates by outcome",
		}, []string{"status"}),
		detectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "squatcoach_detect_duration_seconds",
			Help:    "Pose detection latency per frame",
			Buckets: []float64{.01, .025, .05, .1, .2, .4, .8},
		}),
		lastAngle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "squatcoach_knee_angle_degrees",
			Help: "Most recent accepted knee angle",
		}),
	}

	m.register()

	return m
}

func (m *Metrics) register() {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		)
	}

	m.registry.MustRegister(
		counter("squatcoach_frames_read_total", "Total frames read from the camera", &m.FramesRead),
		counter("squatcoach_frames_processed_total", "Total frames run through pose detection", &m.FramesProcessed),
		counter("squatcoach_frames_no_body_total", "Total frames where nobody was detected", &m.FramesNoBody),
		counter("squatcoach_read_errors_total", "Total camera read errors", &m.ReadErrors),
		counter("squatcoach_detect_errors_total", "Total pose detection errors", &m.DetectErrors),
		counter("squatcoach_hook_errors_total", "Total hook execution errors", &m.HookErrors),
		counter("squatcoach_reps_total", "Total completed repetitions", &m.Reps),
		counter("squatcoach_announcements_total", "Total spoken announcements", &m.Announcements),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "squatcoach_pipeline_active",
			Help: "Pipeline frame rate mode (0=idle, 1=active)",
		}, func() float64 { return float64(m.Active.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "squatcoach_event_clients",
			Help: "Connected event stream clients",
		}, func() float64 { return float64(m.WSClients.Load()) }),
		m.updates,
		m.detectLatency,
		m.lastAngle,
	)
}

// ObserveEvent records the outcome of one counter update.
func (m *Metrics) ObserveEvent(ev exercise.Event) {
	m.updates.WithLabelValues(string(ev.Status)).Inc()
	if ev.Status == exercise.StatusAccepted {
		m.lastAngle.Set(ev.Angle)
	}
	if ev.RepCompleted {
		m.Reps.Add(1)
	}
}

// ObserveDetect records how long one detection took.
func (m *Metrics) ObserveDetect(d time.Duration) {
	m.detectLatency.Observe(d.Seconds())
}

// SetActive records the pipeline frame rate mode.
func (m *Metrics) SetActive(active bool) {
	if active {
		m.Active.Store(1)
	} else {
		m.Active.Store(0)
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
