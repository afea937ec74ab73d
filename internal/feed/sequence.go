package feed

import "fmt"

// SequenceTracker records the last sequence number seen per composite key
// (channel, market, outcome-or-wildcard). It is single-writer, owned by one
// feed instance, and grows for the process lifetime; no eviction is defined.
type SequenceTracker struct {
	last map[string]int64
}

// NewSequenceTracker creates an empty tracker.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: map[string]int64{}}
}

// Key builds the composite tracking key. An empty outcome maps to "*".
func (t *SequenceTracker) Key(channel, marketID, outcomeID string) string {
	if outcomeID == "" {
		outcomeID = "*"
	}
	return fmt.Sprintf("%s:%s:%s", channel, marketID, outcomeID)
}

// Observe records the incoming sequence and returns the gap size (number of
// missed messages) when the incoming number skips ahead of last+1. The first
// observation for a key and contiguous sequences return gap 0. The stored
// sequence is always advanced to the incoming value, even across gaps.
func (t *SequenceTracker) Observe(channel, marketID, outcomeID string, sequence int64) (gap int64, prev int64, gapped bool) {
	key := t.Key(channel, marketID, outcomeID)
	previous, seen := t.last[key]
	t.last[key] = sequence
	if !seen || sequence == previous+1 {
		return 0, previous, false
	}
	if sequence <= previous {
		// Replays and reordered duplicates are not gaps.
		return 0, previous, false
	}
	return sequence - previous - 1, previous, true
}

// Len returns the number of tracked keys.
func (t *SequenceTracker) Len() int {
	return len(t.last)
}
