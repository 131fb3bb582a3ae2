package metrics

import (
	"testing"
)

// Global metrics instance (reused across enabled tests to avoid Prometheus registry conflicts)
var globalMetrics *Metrics

func init() {
	globalMetrics = New(true)
}

func TestMetricsEnabled(t *testing.T) {
	if globalMetrics == nil {
		t.Fatal("metrics should not be nil")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := New(false)

	if m == nil {
		t.Fatal("metrics should not be nil (noop)")
	}

	// These should not panic even though they're noop
	m.RecordRenewal("success", 0.25)
	m.RecordRenewalRetry()
	m.SetRevocationEntries(10)
	m.RecordRevocationHit()
	m.RecordRevocationMiss()
	m.RecordRevocationEviction()
	m.RecordSessionTimeout()
	m.RecordSessionActivity()
	m.RecordBusRejection("credential.refreshed")
}

func TestRecordRenewal(t *testing.T) {
	// Should not panic
	globalMetrics.RecordRenewal("success", 0.1)
	globalMetrics.RecordRenewal("rejected", 0.05)
	globalMetrics.RecordRenewal("exhausted", 3.2)
	globalMetrics.RecordRenewalRetry()
}

func TestRevocationMetrics(t *testing.T) {
	// Should not panic
	globalMetrics.SetRevocationEntries(42)
	globalMetrics.RecordRevocationHit()
	globalMetrics.RecordRevocationMiss()
	globalMetrics.RecordRevocationEviction()
	globalMetrics.SetRevocationEntries(0)
}

func TestSessionMetrics(t *testing.T) {
	// Should not panic
	globalMetrics.RecordSessionTimeout()
	globalMetrics.RecordSessionActivity()
}

func TestBusMetrics(t *testing.T) {
	topics := []string{"credential.refreshed", "credential.cleared", "session.expired"}
	for _, topic := range topics {
		globalMetrics.RecordBusRejection(topic)
	}
}
