package domain

import "time"

// OutcomeQuote is the top-of-book view for a single outcome. Fields are only
// overwritten when an incoming event carries a value for them, so the quote
// always reflects the latest known value per field.
type OutcomeQuote struct {
	OutcomeID string
	Bid       *float64
	Ask       *float64
	Size      *float64
	FeeBps    *int
	UpdatedAt time.Time
}

// ApplyEvent sparsely merges an order-book event into the quote.
func (q *OutcomeQuote) ApplyEvent(ev NormalizedEvent, now time.Time) {
	if ev.Bid != nil {
		q.Bid = ev.Bid
	}
	if ev.Ask != nil {
		q.Ask = ev.Ask
	}
	if ev.Size != nil {
		q.Size = ev.Size
	}
	if ev.FeeBps != nil {
		q.FeeBps = ev.FeeBps
	}
	q.UpdatedAt = now
}

// MarketBook aggregates per-outcome quotes for one market. It is exclusively
// owned and mutated by the detector; everything else reads it through the
// detector's snapshot.
type MarketBook struct {
	MarketID   string
	Outcomes   map[string]*OutcomeQuote
	FeeBps     *int
	LastUpdate time.Time
}

// NewMarketBook creates an empty book for the given market.
func NewMarketBook(marketID string) *MarketBook {
	return &MarketBook{
		MarketID: marketID,
		Outcomes: map[string]*OutcomeQuote{},
	}
}

// ApplyEvent merges an order-book event into the appropriate outcome quote.
// Events with no outcome id land on the "default" outcome.
func (b *MarketBook) ApplyEvent(ev NormalizedEvent, now time.Time) {
	outcomeID := ev.OutcomeID
	if outcomeID == "" {
		outcomeID = "default"
	}
	quote, ok := b.Outcomes[outcomeID]
	if !ok {
		quote = &OutcomeQuote{OutcomeID: outcomeID}
		b.Outcomes[outcomeID] = quote
	}
	quote.ApplyEvent(ev, now)
	if ev.FeeBps != nil {
		b.FeeBps = ev.FeeBps
	}
	b.LastUpdate = now
}

// FeeMultiplier returns 1 + fee_bps/10000, defaulting to 1 when the market
// fee is unknown.
func (b *MarketBook) FeeMultiplier() float64 {
	if b.FeeBps == nil {
		return 1.0
	}
	return 1.0 + float64(*b.FeeBps)/10_000
}

// Direction indicates which side of the complete set the opportunity trades.
type Direction string

const (
	// DirectionBuySet buys one unit of every outcome (sum of asks < 1).
	DirectionBuySet Direction = "buy_set"
	// DirectionSellSet mints a complete set and sells every outcome
	// (sum of bids > 1).
	DirectionSellSet Direction = "sell_set"
)

// CompleteSetOpportunity is an immutable detected mispricing: the cost of a
// full outcome set departs from $1 by more than the configured edge.
type CompleteSetOpportunity struct {
	MarketID  string
	Direction Direction
	Edge      float64 // fraction, e.g. 0.10 for 10%
	Notional  float64 // fee-adjusted set cost (buy) or proceeds (sell)
	MaxSize   float64 // min outcome size with the relevant side present
	Details   map[string]float64
}
