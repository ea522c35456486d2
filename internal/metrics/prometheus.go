package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "simhost"
	sessionSubsystem = "session"
)

// Termination and rejection reasons used as label values.
const (
	ReasonCapacity   = "capacity"
	ReasonDuplicate  = "duplicate"
	ReasonUnknown    = "unknown_sim_type"
	ReasonBuild      = "build"
	ReasonStep       = "step"
	ReasonIdle       = "idle"
	ReasonDisconnect = "disconnect"
	ReasonShutdown   = "shutdown"
)

type Metrics struct {
	// ActiveSessions tracks sessions that finished building and are running.
	ActiveSessions prometheus.Gauge

	// SessionsCreated counts successful session starts.
	// Labels: sim_type
	SessionsCreated *prometheus.CounterVec

	// SessionsRejected counts init requests that did not produce a session.
	// Labels: reason
	SessionsRejected *prometheus.CounterVec

	// SessionsTerminated counts sessions leaving the registry.
	// Labels: reason
	SessionsTerminated *prometheus.CounterVec

	// TickDuration measures the work part of one loop iteration.
	// Labels: sim_type
	TickDuration *prometheus.HistogramVec

	// TickOverruns counts ticks whose work exceeded the period.
	TickOverruns prometheus.Counter

	// InputsTotal counts routed commands.
	// Labels: kind
	InputsTotal *prometheus.CounterVec

	// InputErrors counts commands rejected while being applied.
	// Labels: kind
	InputErrors *prometheus.CounterVec

	// TelemetryPushes counts sim_data frames sent to clients.
	TelemetryPushes prometheus.Counter
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer
// exposes them on the process /metrics endpoint.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "active",
			Help:      "Number of running simulation sessions",
		}),
		SessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "created_total",
			Help:      "Sessions that finished building, by sim type",
		}, []string{"sim_type"}),
		SessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "rejected_total",
			Help:      "Init requests that did not produce a session, by reason",
		}, []string{"reason"}),
		SessionsTerminated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "terminated_total",
			Help:      "Sessions removed from the registry, by reason",
		}, []string{"reason"}),
		TickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "tick_duration_seconds",
			Help:      "Time spent draining inputs and stepping physics per tick",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
		}, []string{"sim_type"}),
		TickOverruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "tick_overruns_total",
			Help:      "Ticks whose work took longer than the loop period",
		}),
		InputsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "inputs_total",
			Help:      "Commands routed to sessions, by kind",
		}, []string{"kind"}),
		InputErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: sessionSubsystem,
			Name:      "input_errors_total",
			Help:      "Commands rejected while being applied, by kind",
		}, []string{"kind"}),
		TelemetryPushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telemetry",
			Name:      "pushes_total",
			Help:      "sim_data frames emitted to clients",
		}),
	}
}

func (m *Metrics) SessionStarted(simType string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(simType).Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records a session that had started leaving the registry.
func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTerminated.WithLabelValues(reason).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.SessionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTick(simType string, work, period time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.WithLabelValues(simType).Observe(work.Seconds())
	if work > period {
		m.TickOverruns.Inc()
	}
}

func (m *Metrics) Input(kind string) {
	if m == nil {
		return
	}
	m.InputsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) InputRejected(kind string) {
	if m == nil {
		return
	}
	m.InputErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Pushed() {
	if m == nil {
		return
	}
	m.TelemetryPushes.Inc()
}
