package syncengine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	syncs          *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	conflicts      *prometheus.CounterVec
	listenerErrors *prometheus.CounterVec
	retries        *prometheus.CounterVec
	online         prometheus.Gauge
	listeners      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetsync",
			Name:      "sync_operations_total",
			Help:      "Sync operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "budgetsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetsync",
			Name:      "sync_conflicts_total",
			Help:      "Local entities left unuploaded because the remote copy was at least as recent.",
		}, []string{"collection"}),
		listenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetsync",
			Name:      "listener_errors_total",
			Help:      "Errors reported by realtime listeners.",
		}, []string{"collection"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "budgetsync",
			Name:      "remote_retries_total",
			Help:      "Retried remote calls.",
		}, []string{"operation"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "budgetsync",
			Name:      "online",
			Help:      "1 when the remote store is reachable.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "budgetsync",
			Name:      "realtime_sessions",
			Help:      "Users with an active set of realtime listeners.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.syncs, m.duration, m.conflicts, m.listenerErrors, m.retries, m.online, m.listeners)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, res Result) {
	if m == nil {
		return
	}
	outcome := "success"
	if !res.Success {
		outcome = res.Kind.String()
	}
	m.syncs.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if n := len(res.Conflicts.Transactions); n > 0 {
		m.conflicts.WithLabelValues("transactions").Add(float64(n))
	}
	if n := len(res.Conflicts.Categories); n > 0 {
		m.conflicts.WithLabelValues("categories").Add(float64(n))
	}
	if n := len(res.Conflicts.Budgets); n > 0 {
		m.conflicts.WithLabelValues("budgets").Add(float64(n))
	}
}

func (m *Metrics) listenerError(collection string) {
	if m == nil {
		return
	}
	m.listenerErrors.WithLabelValues(collection).Inc()
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) setOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func (m *Metrics) setListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

// ListenerErrors exposes the per-collection listener error counter.
func (m *Metrics) ListenerErrors(collection string) prometheus.Counter {
	return m.listenerErrors.WithLabelValues(collection)
}
