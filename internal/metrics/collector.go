// Package metrics is a small Prometheus-text metrics collector. It renders
// the exposition format directly so the relay does not need to pull in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector.
var Collector = New()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func New() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	help  string
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values over fixed buckets.
type Histogram struct {
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Counter returns the counter with the given name, creating it on first use.
func (m *MetricsCollector) Counter(name, help string) *Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := &Counter{help: help}
	m.counters[name] = c
	return c
}

// Gauge returns the gauge with the given name, creating it on first use.
func (m *MetricsCollector) Gauge(name, help string) *Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g := &Gauge{help: help}
	m.gauges[name] = g
	return g
}

// Histogram returns the histogram with the given name, creating it on first use.
func (m *MetricsCollector) Histogram(name, help string, bounds []float64) *Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	sort.Float64s(bounds)
	h := &Histogram{help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	m.histograms[name] = h
	return h
}

// Handler renders all registered metrics in Prometheus text format.
func (m *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP gembot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE gembot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "gembot_uptime_seconds %d\n", int64(time.Since(m.startTime).Seconds()))

		m.mu.Lock()
		defer m.mu.Unlock()

		for _, name := range sortedKeys(m.counters) {
			c := m.counters[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, c.help, name, name, c.Value())
		}
		for _, name := range sortedKeys(m.gauges) {
			g := m.gauges[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, g.help, name, name, g.Value())
		}
		for _, name := range sortedKeys(m.histograms) {
			h := m.histograms[name]
			h.mu.Lock()
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", name, h.help, name)
			for i, le := range h.bounds {
				bound := fmt.Sprintf("%g", le)
				if math.IsInf(le, 1) {
					bound = "+Inf"
				}
				fmt.Fprintf(&sb, "%s_bucket{le=%q} %d\n", name, bound, h.buckets[i])
			}
			fmt.Fprintf(&sb, "%s_count %d\n%s_sum %f\n", name, h.count, name, h.sum)
			h.mu.Unlock()
		}

		fmt.Fprint(w, sb.String())
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metrics used across the relay pipeline.
var (
	EventsTotal    = Collector.Counter("gembot_events_total", "Inbound events routed through the filter")
	RepliesTotal   = Collector.Counter("gembot_replies_total", "Outbound reply messages sent")
	BlockedTotal   = Collector.Counter("gembot_blocked_total", "Generations withheld by the safety policy")
	FailuresTotal  = Collector.Counter("gembot_generation_failures_total", "Generation calls that returned an error")
	SendFailures   = Collector.Counter("gembot_send_failures_total", "Outbound sends that failed")
	InflightEvents = Collector.Gauge("gembot_inflight_events", "Events currently being processed")

	GenerationLatency = Collector.Histogram("gembot_generation_latency_seconds",
		"Generation call latency in seconds", []float64{0.5, 1, 2, 5, 10, 30, 60, 120})
)
