package feed

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("duplicate registration should fail")
	}

	m.ObservePage(OutcomeOK, 0.01)
	m.IncSnapshotLookup(LookupHit)
	m.IncUpstreamRequest("success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := make(map[string]bool)
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		MetricFeedPageRequests,
		MetricFeedPageDuration,
		MetricFeedSnapshotLookups,
		MetricFeedSnapshotItems,
		MetricFeedUpstreamRequests,
		MetricFeedUpstreamBreakerState,
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestMetrics_ObserveSnapshotBuild(t *testing.T) {
	m := NewMetrics()

	m.ObserveSnapshotBuild(0.2, 120, nil)
	m.ObserveSnapshotBuild(0.5, 0, errors.New("down"))

	read := func(c prometheus.Metric) *dto.Metric {
		var out dto.Metric
		if err := c.Write(&out); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		return &out
	}

	if v := read(m.snapshotBuilds).GetCounter().GetValue(); v != 1 {
		t.Errorf("builds = %v, want 1", v)
	}
	if v := read(m.snapshotBuildErrors).GetCounter().GetValue(); v != 1 {
		t.Errorf("build errors = %v, want 1", v)
	}
	if v := read(m.snapshotBuildSeconds).GetHistogram().GetSampleCount(); v != 2 {
		t.Errorf("build duration samples = %v, want 2", v)
	}
	if v := gaugeValue(t, m.snapshotItems); v != 120 {
		t.Errorf("snapshot items = %v, want 120 from the last successful build", v)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObservePage(OutcomeOK, 1)
	m.IncSnapshotLookup(LookupMiss)
	m.ObserveSnapshotBuild(1, 1, nil)
	m.IncUpstreamRequest("failure")
	m.SetBreakerState(0)
}
