package scan

import (
	"sort"
	"sync"

	"github.com/BennyH26/titan/pkg/metrics"
)

// Counter names maintained by the driver itself. Jobs may add their own.
const (
	MetricRowsScanned       = "rows.scanned"
	MetricRowsMatched       = "rows.matched"
	MetricRowsSkippedFilter = "rows.skipped.key_filter"
	MetricRowsSkippedEmpty  = "rows.skipped.no_match"
)

// Metrics is the counter surface handed to jobs. It is safe for concurrent
// use from Process calls.
type Metrics interface {
	Increment(name string)
	Add(name string, delta int64)
}

// CounterMetrics is a map-backed Metrics, used in tests and single-process
// runs where counter values are read back after the scan.
type CounterMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewCounterMetrics creates an empty CounterMetrics.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counters: make(map[string]int64)}
}

func (c *CounterMetrics) Increment(name string) {
	c.Add(name, 1)
}

func (c *CounterMetrics) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Get returns a counter's current value.
func (c *CounterMetrics) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Names returns all counter names seen so far, sorted.
func (c *CounterMetrics) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PromMetrics mirrors the driver's row counters into Prometheus while
// keeping per-job counters in memory.
type PromMetrics struct {
	*CounterMetrics
	prom *metrics.Metrics
}

// NewPromMetrics wraps the registered Prometheus collectors.
func NewPromMetrics(prom *metrics.Metrics) *PromMetrics {
	return &PromMetrics{CounterMetrics: NewCounterMetrics(), prom: prom}
}

func (p *PromMetrics) Increment(name string) {
	p.Add(name, 1)
}

func (p *PromMetrics) Add(name string, delta int64) {
	p.CounterMetrics.Add(name, delta)
	switch name {
	case MetricRowsScanned:
		p.prom.RowsScannedTotal.Add(float64(delta))
	case MetricRowsMatched:
		p.prom.RowsMatchedTotal.Add(float64(delta))
	case MetricRowsSkippedFilter:
		p.prom.RowsSkippedTotal.WithLabelValues("key_filter").Add(float64(delta))
	case MetricRowsSkippedEmpty:
		p.prom.RowsSkippedTotal.WithLabelValues("no_match").Add(float64(delta))
	}
}
