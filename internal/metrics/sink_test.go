package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkObserveCountsAndGauges(t *testing.T) {
	s := NewSink()

	s.Observe("sequence_gap", map[string]float64{"gap": 2, "sequence": 8})
	s.Observe("sequence_gap", map[string]float64{"gap": 1, "sequence": 12})

	exported := s.Export()
	assert.Equal(t, 2.0, exported["sequence_gap_total"])
	assert.Equal(t, 1.0, exported["sequence_gap_gap"])
	assert.Equal(t, 12.0, exported["sequence_gap_sequence"])
}

func TestSinkCountersAndGauges(t *testing.T) {
	s := NewSink()

	s.Incr("events", 1)
	s.Incr("events", 3)
	s.SetGauge("edge", 0.05)
	s.SetGauge("edge", 0.07)

	exported := s.Export()
	assert.Equal(t, 4.0, exported["events"])
	assert.Equal(t, 0.07, exported["edge"])
}

func TestSinkRenderTextSortedLines(t *testing.T) {
	s := NewSink()
	s.Incr("b_counter", 2)
	s.SetGauge("a_gauge", 1.5)

	text := s.RenderText()
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Equal(t, []string{"a_gauge 1.5", "b_counter 2"}, lines)
}
