package metrics

import (
	"time"

	"github.com/saiset-co/sai-isr/types"
)

// NopMetrics discards everything. Used when metrics are disabled.
type NopMetrics struct{}

func NewNopMetrics() types.MetricsManager {
	return &NopMetrics{}
}

func (n *NopMetrics) Start() error    { return nil }
func (n *NopMetrics) Stop() error     { return nil }
func (n *NopMetrics) IsRunning() bool { return true }

func (n *NopMetrics) Counter(name string, labels map[string]string) types.Counter {
	return nopCounter{}
}

func (n *NopMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	return nopGauge{}
}

func (n *NopMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	return nopHistogram{}
}

func (n *NopMetrics) GetMetrics() ([]byte, error) {
	return []byte("[]"), nil
}

type nopCounter struct{}

func (nopCounter) Inc()              {}
func (nopCounter) Add(float64)       {}
func (nopCounter) Get() float64      { return 0 }

type nopGauge struct{}

func (nopGauge) Set(float64) {}
func (nopGauge) Inc()        {}
func (nopGauge) Dec()        {}
func (nopGauge) Get() float64 { return 0 }

type nopHistogram struct{}

func (nopHistogram) Observe(float64)          {}
func (nopHistogram) ObserveDuration(time.Time) {}
func (nopHistogram) GetCount() uint64         { return 0 }
func (nopHistogram) GetSum() float64          { return 0 }
