package feed

import (
	"strconv"
	"time"

	"github.com/polyarb/setbot/internal/domain"
)

// Field alias lists, in lookup order. Venue payloads drift between snake and
// camel case and between synonyms; each logical attribute is read through its
// ordered candidate list and the first present value wins. Treat these as
// configuration data, not branching logic.
var (
	marketAliases     = []string{"market", "market_id"}
	metaMarketAliases = []string{"id", "market", "market_id"}
	outcomeAliases    = []string{"outcome", "outcome_id"}
	bidAliases        = []string{"bid"}
	askAliases        = []string{"ask"}
	priceAliases      = []string{"price"}
	sizeAliases       = []string{"size", "quantity"}
	lastTradeAliases  = []string{"last_trade"}
	feeAliases        = []string{"fee_bps", "feeBps"}
	liquidityAliases  = []string{"liquidity"}
	sequenceAliases   = []string{"sequence", "seq"}
	timestampAliases  = []string{"timestamp", "ts", "time"}
)

// Channel discriminator values accepted on inbound frames.
var (
	orderBookTypes = map[string]bool{"orderbook": true, "book": true, "l2": true}
	tradeTypes     = map[string]bool{"trade": true, "trades": true}
	metadataTypes  = map[string]bool{"market": true, "markets": true, "metadata": true}
)

// normalizer converts raw wire frames into NormalizedEvents. It is stateless
// apart from the injected clock.
type normalizer struct {
	now domain.Clock
}

// Normalize maps a decoded wire frame to a NormalizedEvent, or nil when the
// frame is not one of the recognized channels or lacks a market id.
func (n normalizer) Normalize(message map[string]any) *domain.NormalizedEvent {
	eventType, _ := firstString(message, []string{"type", "channel"})
	data := message
	if nested, ok := message["data"].(map[string]any); ok {
		data = nested
	}

	switch {
	case orderBookTypes[eventType]:
		return n.normalizeOrderBook(data)
	case tradeTypes[eventType]:
		return n.normalizeTrade(data)
	case metadataTypes[eventType]:
		return n.normalizeMetadata(data)
	default:
		return nil
	}
}

func (n normalizer) normalizeOrderBook(data map[string]any) *domain.NormalizedEvent {
	marketID, ok := firstString(data, marketAliases)
	if !ok || marketID == "" {
		return nil
	}
	outcomeID, _ := firstString(data, outcomeAliases)
	latency, lag := n.timing(data)

	return &domain.NormalizedEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Bid:       firstFloat(data, bidAliases),
		Ask:       firstFloat(data, askAliases),
		Size:      firstFloat(data, sizeAliases),
		LastTrade: firstFloat(data, lastTradeAliases),
		FeeBps:    firstInt(data, feeAliases),
		Liquidity: firstFloat(data, liquidityAliases),
		Type:      domain.EventOrderBook,
		Sequence:  firstSeq(data, sequenceAliases),
		LatencyMs: latency,
		LagSec:    lag,
		Raw:       data,
	}
}

func (n normalizer) normalizeTrade(data map[string]any) *domain.NormalizedEvent {
	marketID, ok := firstString(data, marketAliases)
	if !ok || marketID == "" {
		return nil
	}
	outcomeID, _ := firstString(data, outcomeAliases)
	latency, lag := n.timing(data)

	return &domain.NormalizedEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Size:      firstFloat(data, sizeAliases),
		LastTrade: firstFloat(data, priceAliases),
		FeeBps:    firstInt(data, feeAliases),
		Liquidity: firstFloat(data, liquidityAliases),
		Type:      domain.EventTrade,
		Sequence:  firstSeq(data, sequenceAliases),
		LatencyMs: latency,
		LagSec:    lag,
		Raw:       data,
	}
}

func (n normalizer) normalizeMetadata(data map[string]any) *domain.NormalizedEvent {
	marketID, ok := firstString(data, metaMarketAliases)
	if !ok || marketID == "" {
		return nil
	}
	latency, lag := n.timing(data)

	return &domain.NormalizedEvent{
		MarketID:  marketID,
		LastTrade: firstFloat(data, lastTradeAliases),
		FeeBps:    firstInt(data, feeAliases),
		Liquidity: firstFloat(data, liquidityAliases),
		Type:      domain.EventMetadata,
		Sequence:  firstSeq(data, sequenceAliases),
		LatencyMs: latency,
		LagSec:    lag,
		Raw:       data,
	}
}

// timing derives latency and lag from the frame's timestamp. Unparsable or
// missing timestamps yield nil values, never an error.
func (n normalizer) timing(data map[string]any) (latencyMs, lagSec *float64) {
	raw, ok := firstValue(data, timestampAliases)
	if !ok {
		return nil, nil
	}
	parsed, ok := parseTimestamp(raw)
	if !ok {
		return nil, nil
	}
	delta := n.now().Sub(parsed)
	ms := delta.Seconds() * 1000.0
	sec := delta.Seconds()
	return &ms, &sec
}

// parseTimestamp accepts epoch seconds, epoch milliseconds (magnitude above
// 1e12), and ISO-8601 strings.
func parseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case float64:
		return fromEpoch(v), true
	case int64:
		return fromEpoch(float64(v)), true
	case int:
		return fromEpoch(float64(v)), true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return fromEpoch(f), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(v float64) time.Time {
	if v > 1e12 {
		v /= 1000.0
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// firstValue returns the first present value under any of the candidate keys.
func firstValue(data map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first present value coerced to a string.
func firstString(data map[string]any, keys []string) (string, bool) {
	v, ok := firstValue(data, keys)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

// firstFloat returns the first present value coerced to a float64, or nil
// when absent or unconvertible.
func firstFloat(data map[string]any, keys []string) *float64 {
	v, ok := firstValue(data, keys)
	if !ok {
		return nil
	}
	switch f := v.(type) {
	case float64:
		return &f
	case int:
		out := float64(f)
		return &out
	case int64:
		out := float64(f)
		return &out
	case string:
		if parsed, err := strconv.ParseFloat(f, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// firstInt returns the first present value coerced to an int, or nil.
func firstInt(data map[string]any, keys []string) *int {
	f := firstFloat(data, keys)
	if f == nil {
		return nil
	}
	out := int(*f)
	return &out
}

// firstSeq returns the first present value coerced to an int64, or nil.
func firstSeq(data map[string]any, keys []string) *int64 {
	f := firstFloat(data, keys)
	if f == nil {
		return nil
	}
	out := int64(*f)
	return &out
}
