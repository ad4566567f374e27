package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	m.IncRateLimitRequests("/feed", "user")
	m.IncRateLimitBlocked("/feed", "ip")
	m.IncRateLimitStoreErrors()
	m.ObserveHTTPRequest("GET", "/feed", "200", 0.02, 0, 512)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		MetricRateLimitRequests,
		MetricRateLimitBlocked,
		MetricRateLimitStoreErrors,
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if !found[name] {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/feed", "user")
	m.IncRateLimitRequests("/feed", "user")
	m.IncRateLimitBlocked("/feed", "user")

	if got := counterValue(t, m.rateLimitRequests, "/feed", "user"); got != 2 {
		t.Errorf("rate limit requests = %v, want 2", got)
	}
	if got := counterValue(t, m.rateLimitBlocked, "/feed", "user"); got != 1 {
		t.Errorf("rate limit blocked = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncRateLimitRequests("/feed", "user")
	m.IncRateLimitBlocked("/feed", "user")
	m.IncRateLimitStoreErrors()
	m.ObserveHTTPRequest("GET", "/feed", "200", 0.1, 0, 0)
}
