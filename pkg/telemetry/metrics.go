package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics collects Prometheus metrics for detections and capability
// calls. A disabled instance is a safe no-op.
type Metrics struct {
	config MetricsConfig

	detectionsTotal   *prometheus.CounterVec
	detectionDuration *prometheus.HistogramVec
	probesTotal       *prometheus.CounterVec

	capabilityCalls    *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec

	policyDenials *prometheus.CounterVec

	sshConnections prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		detectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gantry",
				Name:      "detections_total",
				Help:      "Total number of guest detections by resolved guest and method",
			},
			[]string{"guest", "method"},
		),
		detectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gantry",
				Name:      "detection_duration_seconds",
				Help:      "Duration of guest detection in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gantry",
				Name:      "detector_probes_total",
				Help:      "Total number of detector probes by guest and result",
			},
			[]string{"guest", "result"},
		),

		capabilityCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gantry",
				Name:      "capability_calls_total",
				Help:      "Total number of capability calls by capability, guest and status",
			},
			[]string{"capability", "guest", "status"},
		),
		capabilityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gantry",
				Name:      "capability_duration_seconds",
				Help:      "Duration of capability calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),

		policyDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gantry",
				Name:      "policy_denials_total",
				Help:      "Total number of capability calls denied by policy",
			},
			[]string{"policy"},
		),

		sshConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gantry",
				Name:      "ssh_connections_active",
				Help:      "Current number of open SSH connections",
			},
		),
	}

	registry.MustRegister(
		m.detectionsTotal,
		m.detectionDuration,
		m.probesTotal,
		m.capabilityCalls,
		m.capabilityDuration,
		m.policyDenials,
		m.sshConnections,
	)

	return m, nil
}

// RecordDetection records a completed guest detection.
func (m *Metrics) RecordDetection(guest, method string, duration time.Duration) {
	if m.detectionsTotal == nil {
		return
	}
	m.detectionsTotal.WithLabelValues(guest, method).Inc()
	m.detectionDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordProbe records one detector probe outcome.
func (m *Metrics) RecordProbe(guest, result string) {
	if m.probesTotal == nil {
		return
	}
	m.probesTotal.WithLabelValues(guest, result).Inc()
}

// RecordCapabilityCall records a capability dispatch outcome.
func (m *Metrics) RecordCapabilityCall(capability, guest, status string, duration time.Duration) {
	if m.capabilityCalls == nil {
		return
	}
	m.capabilityCalls.WithLabelValues(capability, guest, status).Inc()
	m.capabilityDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordPolicyDenial records a policy-blocked capability call.
func (m *Metrics) RecordPolicyDenial(policy string) {
	if m.policyDenials == nil {
		return
	}
	m.policyDenials.WithLabelValues(policy).Inc()
}

// ConnectionOpened increments the active SSH connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m.sshConnections == nil {
		return
	}
	m.sshConnections.Inc()
}

// ConnectionClosed decrements the active SSH connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m.sshConnections == nil {
		return
	}
	m.sshConnections.Dec()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve starts the metrics HTTP server in the background.
func (m *Metrics) Serve(logger zerolog.Logger) {
	if !m.config.Enabled {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", m.config.ListenAddress).Str("path", path).Msg("Metrics server listening")
}
