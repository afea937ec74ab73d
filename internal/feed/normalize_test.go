package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyarb/setbot/internal/domain"
)

var normalizeNow = time.Date(2024, 6, 1, 12, 0, 10, 0, time.UTC)

func newTestNormalizer() normalizer {
	return normalizer{now: func() time.Time { return normalizeNow }}
}

func TestNormalizeOrderBookReadsFieldAliases(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":       "l2",
		"market_id":  "m1",
		"outcome_id": "yes",
		"bid":        0.45,
		"ask":        0.55,
		"quantity":   12.0,
		"feeBps":     30.0,
		"seq":        7.0,
	})

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventOrderBook, ev.Type)
	assert.Equal(t, "m1", ev.MarketID)
	assert.Equal(t, "yes", ev.OutcomeID)
	assert.Equal(t, 0.45, *ev.Bid)
	assert.Equal(t, 0.55, *ev.Ask)
	assert.Equal(t, 12.0, *ev.Size)
	assert.Equal(t, 30, *ev.FeeBps)
	assert.Equal(t, int64(7), *ev.Sequence)
}

func TestNormalizeUnwrapsNestedDataObject(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"channel": "orderbook",
		"data": map[string]any{
			"market": "m1",
			"bid":    0.40,
		},
	})

	require.NotNil(t, ev)
	assert.Equal(t, "m1", ev.MarketID)
	assert.Equal(t, 0.40, *ev.Bid)
}

func TestNormalizeTradeMapsPriceToLastTrade(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":    "trades",
		"market":  "m1",
		"outcome": "no",
		"price":   0.61,
		"size":    3.0,
	})

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventTrade, ev.Type)
	assert.Equal(t, 0.61, *ev.LastTrade)
	assert.Equal(t, 3.0, *ev.Size)
}

func TestNormalizeMetadataAcceptsBareID(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":      "markets",
		"id":        "m9",
		"fee_bps":   25.0,
		"liquidity": 1000.0,
	})

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventMetadata, ev.Type)
	assert.Equal(t, "m9", ev.MarketID)
	assert.Equal(t, 25, *ev.FeeBps)
	assert.Equal(t, 1000.0, *ev.Liquidity)
}

func TestNormalizeRejectsUnknownTypesAndMissingMarkets(t *testing.T) {
	n := newTestNormalizer()

	assert.Nil(t, n.Normalize(map[string]any{"type": "heartbeat"}))
	assert.Nil(t, n.Normalize(map[string]any{"type": "orderbook", "bid": 0.4}))
	assert.Nil(t, n.Normalize(map[string]any{"type": "trade"}))
}

func TestNormalizeCoercesNumericMarketIDs(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":   "orderbook",
		"market": 123.0,
	})

	require.NotNil(t, ev)
	assert.Equal(t, "123", ev.MarketID)
}

func TestTimingFromEpochSeconds(t *testing.T) {
	n := newTestNormalizer()

	// Ten seconds behind the injected clock.
	ts := float64(normalizeNow.Add(-10 * time.Second).Unix())
	ev := n.Normalize(map[string]any{
		"type":      "orderbook",
		"market":    "m1",
		"timestamp": ts,
	})

	require.NotNil(t, ev)
	require.NotNil(t, ev.LagSec)
	require.NotNil(t, ev.LatencyMs)
	assert.InDelta(t, 10.0, *ev.LagSec, 0.001)
	assert.InDelta(t, 10_000.0, *ev.LatencyMs, 1.0)
}

func TestTimingFromEpochMilliseconds(t *testing.T) {
	n := newTestNormalizer()

	ts := float64(normalizeNow.Add(-2*time.Second).UnixNano()) / 1e6
	ev := n.Normalize(map[string]any{
		"type":   "orderbook",
		"market": "m1",
		"ts":     ts,
	})

	require.NotNil(t, ev)
	require.NotNil(t, ev.LagSec)
	assert.InDelta(t, 2.0, *ev.LagSec, 0.001)
}

func TestTimingFromISOTimestamp(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":   "orderbook",
		"market": "m1",
		"time":   normalizeNow.Add(-3 * time.Second).Format(time.RFC3339),
	})

	require.NotNil(t, ev)
	require.NotNil(t, ev.LagSec)
	assert.InDelta(t, 3.0, *ev.LagSec, 0.001)
}

func TestTimingAbsentForUnparsableTimestamps(t *testing.T) {
	n := newTestNormalizer()

	ev := n.Normalize(map[string]any{
		"type":      "orderbook",
		"market":    "m1",
		"timestamp": "not-a-time",
	})

	require.NotNil(t, ev)
	assert.Nil(t, ev.LagSec)
	assert.Nil(t, ev.LatencyMs)
}
