package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for buildwave. A disabled instance is
// safe to call; every recorder is a no-op.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsTotal   *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec

	// Wave metrics
	wavesCompleted prometheus.Counter
	waveDuration   prometheus.Histogram

	// System metrics
	activeWorkers prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		// Build durations run from seconds to hours.
		buckets = []float64{10, 30, 60, 120, 300, 600, 1200, 3600, 7200}
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Total number of package builds by terminal result",
			},
			[]string{"result"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of package build attempts in seconds",
				Buckets:   buckets,
			},
			[]string{"result"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts by failure kind",
			},
			[]string{"result"},
		),
		wavesCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "waves_completed_total",
				Help:      "Total number of build waves completed",
			},
		),
		waveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wave_duration_seconds",
				Help:      "Duration of build waves in seconds",
				Buckets:   buckets,
			},
		),
		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workers",
				Help:      "Number of builds currently in flight",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.buildsTotal,
		m.buildDuration,
		m.retriesTotal,
		m.wavesCompleted,
		m.waveDuration,
		m.activeWorkers,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Serve exposes the registry at /metrics on the configured listen address.
// It returns immediately; errors from the listener are delivered to errFn.
func (m *Metrics) Serve(errFn func(error)) {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Addr:    m.config.ListenAddress,
		Handler: mux,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if errFn != nil {
				errFn(err)
			}
		}
	}()
}

// RecordBuild records a terminal package result and its duration.
func (m *Metrics) RecordBuild(result string, duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.buildsTotal.WithLabelValues(result).Inc()
	m.buildDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt following the given failure kind.
func (m *Metrics) RecordRetry(result string) {
	if !m.config.Enabled {
		return
	}
	m.retriesTotal.WithLabelValues(result).Inc()
}

// RecordWave records a completed wave and its duration.
func (m *Metrics) RecordWave(duration time.Duration) {
	if !m.config.Enabled {
		return
	}
	m.wavesCompleted.Inc()
	m.waveDuration.Observe(duration.Seconds())
}

// WorkerStarted increments the in-flight worker gauge.
func (m *Metrics) WorkerStarted() {
	if !m.config.Enabled {
		return
	}
	m.activeWorkers.Inc()
}

// WorkerFinished decrements the in-flight worker gauge.
func (m *Metrics) WorkerFinished() {
	if !m.config.Enabled {
		return
	}
	m.activeWorkers.Dec()
}

// Registry returns the underlying Prometheus registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
