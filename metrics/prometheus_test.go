package metrics

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-isr/logger"
	"github.com/saiset-co/sai-isr/types"
	"github.com/saiset-co/sai-isr/utils"
)

func newTestPrometheusMetrics(t *testing.T) types.MetricsManager {
	t.Helper()

	manager, err := NewPrometheusMetrics(context.Background(), logger.NewNopLogger(),
		&types.MetricsConfig{Enabled: true, Type: "prometheus", Prefix: "isr_test"})
	if err != nil {
		t.Fatalf("NewPrometheusMetrics: %v", err)
	}
	if err := manager.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { manager.Stop() })

	return manager
}

func TestPrometheusCounter(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	counter := manager.Counter("serves_total", map[string]string{"result": "hit"})
	counter.Inc()
	counter.Add(4)

	if got := counter.Get(); got != 5 {
		t.Errorf("counter = %v, want 5", got)
	}
}

func TestPrometheusGauge(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	gauge := manager.Gauge("inflight_renders", nil)
	gauge.Set(3)
	gauge.Inc()
	gauge.Dec()

	if got := gauge.Get(); got != 3 {
		t.Errorf("gauge = %v, want 3", got)
	}
}

func TestPrometheusHistogram(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	histogram := manager.Histogram("render_seconds", []float64{0.1, 1}, nil)
	histogram.Observe(0.05)
	histogram.Observe(0.5)

	if got := histogram.GetCount(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if got := histogram.GetSum(); got < 0.54 || got > 0.56 {
		t.Errorf("sum = %v, want ~0.55", got)
	}
}

func TestPrometheusSeriesIdentity(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	manager.Counter("dedup_total", map[string]string{"mode": "regenerate"}).Inc()
	manager.Counter("dedup_total", map[string]string{"mode": "regenerate"}).Inc()

	if got := manager.Counter("dedup_total", map[string]string{"mode": "regenerate"}).Get(); got != 2 {
		t.Errorf("counter = %v, want 2", got)
	}
}

func TestPrometheusDistinctLabelSets(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	byRoute := manager.Counter("mixed_total", map[string]string{"route": "/a"})
	byRoute.Inc()

	// Same name with an extra label must get its own vec, not panic in With.
	byResult := manager.Counter("mixed_total", map[string]string{"route": "/a", "result": "hit"})
	byResult.Inc()
	byResult.Inc()

	if got := byRoute.Get(); got != 1 {
		t.Errorf("route-only counter = %v, want 1", got)
	}
	if got := byResult.Get(); got != 2 {
		t.Errorf("route+result counter = %v, want 2", got)
	}
}

func TestPrometheusGetMetrics(t *testing.T) {
	manager := newTestPrometheusMetrics(t)

	manager.Counter("export_total", nil).Inc()

	data, err := manager.GetMetrics()
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}

	var values []types.MetricValue
	if err := utils.Unmarshal(data, &values); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}

	found := false
	for _, v := range values {
		if v.Name == "isr_test_export_total" && v.Value == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("exported values = %+v, want the incremented counter", values)
	}
}
