// Package metrics provides Prometheus metrics for session lifecycle operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lifecycle subsystem.
type Metrics struct {
	enabled bool

	// Renewal metrics
	renewalsTotal   *prometheus.CounterVec
	renewalRetries  prometheus.Counter
	renewalDuration prometheus.Histogram

	// Revocation cache metrics
	revocationEntries   prometheus.Gauge
	revocationHitsTotal prometheus.Counter
	revocationMissTotal prometheus.Counter
	revocationEvictions prometheus.Counter

	// Session metrics
	sessionTimeoutsTotal prometheus.Counter
	sessionActivityTotal prometheus.Counter

	// Event bus metrics
	busRejectionsTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	// Renewal metrics
	m.renewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authsession_renewals_total",
		Help: "Total credential renewal flights",
	}, []string{"result"})

	m.renewalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_renewal_retries_total",
		Help: "Total renewal attempts retried after a transient failure",
	})

	m.renewalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authsession_renewal_duration_seconds",
		Help:    "Renewal flight duration in seconds, retries included",
		Buckets: prometheus.DefBuckets,
	})

	// Revocation cache metrics
	m.revocationEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authsession_revocation_entries",
		Help: "Current number of entries in the revocation cache",
	})

	m.revocationHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_revocation_hits_total",
		Help: "Total revocation cache lookups that found a live entry",
	})

	m.revocationMissTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_revocation_misses_total",
		Help: "Total revocation cache lookups that found nothing",
	})

	m.revocationEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_revocation_evictions_total",
		Help: "Total capacity evictions of nearest-expiry entries",
	})

	// Session metrics
	m.sessionTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_session_timeouts_total",
		Help: "Total idle-session expirations",
	})

	m.sessionActivityTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authsession_session_activity_total",
		Help: "Total effective (post-debounce) activity updates",
	})

	// Event bus metrics
	m.busRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authsession_bus_rejections_total",
		Help: "Total subscriptions rejected by a subscriber cap",
	}, []string{"topic"})

	return m
}

// RecordRenewal records a finished renewal flight.
func (m *Metrics) RecordRenewal(result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.renewalsTotal.WithLabelValues(result).Inc()
	m.renewalDuration.Observe(durationSeconds)
}

// RecordRenewalRetry records a retried renewal attempt.
func (m *Metrics) RecordRenewalRetry() {
	if !m.enabled {
		return
	}
	m.renewalRetries.Inc()
}

// SetRevocationEntries sets the current revocation cache size.
func (m *Metrics) SetRevocationEntries(n float64) {
	if !m.enabled {
		return
	}
	m.revocationEntries.Set(n)
}

// RecordRevocationHit records a lookup that found a live entry.
func (m *Metrics) RecordRevocationHit() {
	if !m.enabled {
		return
	}
	m.revocationHitsTotal.Inc()
}

// RecordRevocationMiss records a lookup that found nothing.
func (m *Metrics) RecordRevocationMiss() {
	if !m.enabled {
		return
	}
	m.revocationMissTotal.Inc()
}

// RecordRevocationEviction records a capacity eviction.
func (m *Metrics) RecordRevocationEviction() {
	if !m.enabled {
		return
	}
	m.revocationEvictions.Inc()
}

// RecordSessionTimeout records an idle-session expiration.
func (m *Metrics) RecordSessionTimeout() {
	if !m.enabled {
		return
	}
	m.sessionTimeoutsTotal.Inc()
}

// RecordSessionActivity records an effective activity update.
func (m *Metrics) RecordSessionActivity() {
	if !m.enabled {
		return
	}
	m.sessionActivityTotal.Inc()
}

// RecordBusRejection records a subscription rejected by a cap.
func (m *Metrics) RecordBusRejection(topic string) {
	if !m.enabled {
		return
	}
	m.busRejectionsTotal.WithLabelValues(topic).Inc()
}
