// Package metrics is a small in-process metrics sink: counters and gauges
// with an event-style Observe entry point that plugs into the feed's metrics
// callback.
package metrics

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Sink collects counters and gauges. All methods are safe for concurrent
// use.
type Sink struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{
		counters: map[string]int64{},
		gauges:   map[string]float64{},
	}
}

// Incr increments a counter.
func (s *Sink) Incr(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += value
}

// SetGauge sets a gauge value.
func (s *Sink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

// Observe records an event: the "<name>_total" counter is incremented and
// each value becomes a "<name>_<key>" gauge. Its signature matches the feed's
// metrics callback.
func (s *Sink) Observe(name string, values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name+"_total"]++
	for key, value := range values {
		s.gauges[name+"_"+key] = value
	}
}

// Export returns a merged view of all current metrics.
func (s *Sink) Export() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.counters)+len(s.gauges))
	for name, value := range s.counters {
		out[name] = float64(value)
	}
	for name, value := range s.gauges {
		out[name] = value
	}
	return out
}

// RenderText renders all metrics in the Prometheus text exposition format,
// sorted by name.
func (s *Sink) RenderText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(s.counters)+len(s.gauges))
	for name, value := range s.counters {
		lines = append(lines, name+" "+strconv.FormatInt(value, 10))
	}
	for name, value := range s.gauges {
		lines = append(lines, name+" "+strconv.FormatFloat(value, 'g', -1, 64))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}
