package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstObservationIsNotAGap(t *testing.T) {
	tracker := NewSequenceTracker()

	gap, _, gapped := tracker.Observe("orderbook", "m1", "yes", 41)
	assert.False(t, gapped)
	assert.Zero(t, gap)
}

func TestContiguousSequencesAdvanceWithoutGaps(t *testing.T) {
	tracker := NewSequenceTracker()

	tracker.Observe("orderbook", "m1", "yes", 1)
	for seq := int64(2); seq <= 5; seq++ {
		gap, prev, gapped := tracker.Observe("orderbook", "m1", "yes", seq)
		assert.False(t, gapped)
		assert.Zero(t, gap)
		assert.Equal(t, seq-1, prev)
	}
}

func TestSkipReportsMissedMessageCount(t *testing.T) {
	tracker := NewSequenceTracker()

	tracker.Observe("orderbook", "m1", "yes", 5)
	gap, prev, gapped := tracker.Observe("orderbook", "m1", "yes", 8)

	assert.True(t, gapped)
	assert.Equal(t, int64(2), gap)
	assert.Equal(t, int64(5), prev)
}

func TestReplaysAndDuplicatesAreNotGaps(t *testing.T) {
	tracker := NewSequenceTracker()

	tracker.Observe("trades", "m1", "", 10)

	_, _, gapped := tracker.Observe("trades", "m1", "", 10)
	assert.False(t, gapped)

	_, _, gapped = tracker.Observe("trades", "m1", "", 7)
	assert.False(t, gapped)

	// The stored sequence advanced to the replayed value, so the next
	// contiguous message after it is not a gap either.
	_, _, gapped = tracker.Observe("trades", "m1", "", 8)
	assert.False(t, gapped)
}

func TestStoredSequenceAdvancesAcrossGaps(t *testing.T) {
	tracker := NewSequenceTracker()

	tracker.Observe("orderbook", "m1", "yes", 5)
	tracker.Observe("orderbook", "m1", "yes", 9)

	gap, prev, gapped := tracker.Observe("orderbook", "m1", "yes", 10)
	assert.False(t, gapped)
	assert.Zero(t, gap)
	assert.Equal(t, int64(9), prev)
}

func TestKeysAreIndependentPerChannelMarketAndOutcome(t *testing.T) {
	tracker := NewSequenceTracker()

	tracker.Observe("orderbook", "m1", "yes", 5)
	_, _, gapped := tracker.Observe("orderbook", "m1", "no", 50)
	assert.False(t, gapped)
	_, _, gapped = tracker.Observe("trades", "m1", "yes", 50)
	assert.False(t, gapped)

	assert.Equal(t, 3, tracker.Len())
}

func TestEmptyOutcomeMapsToWildcardKey(t *testing.T) {
	tracker := NewSequenceTracker()

	assert.Equal(t, "orderbook:m1:*", tracker.Key("orderbook", "m1", ""))
	assert.Equal(t, "orderbook:m1:yes", tracker.Key("orderbook", "m1", "yes"))
}
