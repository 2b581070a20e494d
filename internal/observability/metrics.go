// Package observability provides Prometheus metrics for streamed turns.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "medassist"
	turnSubsystem    = "turn"
)

// Turn outcomes used as the "outcome" label.
const (
	OutcomeDone     = "done"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds the turn metrics. All methods are safe on a nil receiver so
// callers without metrics need no checks.
type Metrics struct {
	// TurnsTotal counts finished turns. Labels: module, outcome
	TurnsTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures the delay until the first answer text.
	// Labels: module
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// TurnDurationSeconds measures a whole turn. Labels: module, outcome
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveStreams is the number of turns currently streaming.
	ActiveStreams prometheus.Gauge

	// FallbacksTotal counts degraded completions. Labels: module
	FallbacksTotal *prometheus.CounterVec

	// UpstreamErrorsTotal counts upstream failures. Labels: module, code
	UpstreamErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that went away mid-turn.
	ClientDisconnectsTotal prometheus.Counter

	// ConfigRefreshErrorsTotal counts lookups that hit a failed refresh.
	ConfigRefreshErrorsTotal prometheus.Counter
}

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "total",
				Help:      "Finished turns by module and outcome",
			},
			[]string{"module", "outcome"},
		),
		TimeToFirstTokenSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from turn start to the first answer fragment",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"module"},
		),
		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "duration_seconds",
				Help:      "Total turn duration",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"module", "outcome"},
		),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: turnSubsystem,
			Name:      "active_streams",
			Help:      "Turns currently streaming",
		}),
		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "fallbacks_total",
				Help:      "Turns completed by the degraded generator",
			},
			[]string{"module"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "upstream_errors_total",
				Help:      "Upstream model failures by code",
			},
			[]string{"module", "code"},
		),
		ClientDisconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: turnSubsystem,
			Name:      "client_disconnects_total",
			Help:      "Clients that disconnected before the turn finished",
		}),
		ConfigRefreshErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "config_refresh_errors_total",
			Help:      "Configuration lookups served after a failed refresh",
		}),
	}
}

// StreamStarted increments the active stream gauge.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *Metrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

// FirstToken records the time to first answer text.
func (m *Metrics) FirstToken(module string, d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstTokenSeconds.WithLabelValues(module).Observe(d.Seconds())
}

// TurnFinished records a turn outcome and duration.
func (m *Metrics) TurnFinished(module, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(module, outcome).Inc()
	m.TurnDurationSeconds.WithLabelValues(module, outcome).Observe(d.Seconds())
	if outcome == OutcomeDegraded {
		m.FallbacksTotal.WithLabelValues(module).Inc()
	}
}

// UpstreamError counts one upstream failure.
func (m *Metrics) UpstreamError(module, code string) {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.WithLabelValues(module, code).Inc()
}

// ClientDisconnected counts one disconnect.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.ClientDisconnectsTotal.Inc()
}

// ConfigRefreshFailed counts one lookup served after a failed refresh.
func (m *Metrics) ConfigRefreshFailed() {
	if m == nil {
		return
	}
	m.ConfigRefreshErrorsTotal.Inc()
}
