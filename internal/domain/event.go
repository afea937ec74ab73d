// Package domain defines the core data types shared across the feed,
// detector, and execution layers.
package domain

import "time"

// EventType tags a NormalizedEvent with its origin channel and whether it
// came from the live stream or a REST recovery snapshot.
type EventType string

const (
	EventOrderBook         EventType = "order_book"
	EventOrderBookSnapshot EventType = "order_book_snapshot"
	EventTrade             EventType = "trade"
	EventTradeSnapshot     EventType = "trade_snapshot"
	EventMetadata          EventType = "metadata"
	EventMetadataSnapshot  EventType = "metadata_snapshot"
)

// IsOrderBook reports whether the event carries order-book data (live or
// recovered snapshot).
func (t EventType) IsOrderBook() bool {
	return t == EventOrderBook || t == EventOrderBookSnapshot
}

// IsTrade reports whether the event carries trade data.
func (t EventType) IsTrade() bool {
	return t == EventTrade || t == EventTradeSnapshot
}

// NormalizedEvent is the venue-agnostic market data shape produced by the
// feed and consumed by the detector. Optional fields are nil when the wire
// message did not carry them. Events are immutable once built.
type NormalizedEvent struct {
	MarketID  string
	OutcomeID string // empty when the event is market-wide
	Bid       *float64
	Ask       *float64
	Size      *float64
	LastTrade *float64
	FeeBps    *int
	Liquidity *float64
	Type      EventType
	Sequence  *int64
	LatencyMs *float64
	LagSec    *float64
	Raw       map[string]any
}

// Float returns a pointer to v. Convenience for building events.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Seq returns a pointer to v.
func Seq(v int64) *int64 { return &v }

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time
