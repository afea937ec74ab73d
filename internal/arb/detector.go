// Package arb detects same-market complete-set mispricings: the aggregate
// cost of one share of every outcome departing from the $1 settlement value.
package arb

import (
	"log/slog"
	"sync"
	"time"

	"github.com/polyarb/setbot/internal/domain"
)

// Detector consumes order-book events, maintains a MarketBook per market, and
// reports a CompleteSetOpportunity whenever the fee-adjusted set cost crosses
// the configured edge threshold. It is outcome-agnostic: binary YES/NO and
// multi-outcome markets share the same evaluation.
type Detector struct {
	minEdgeBps float64
	logger     *slog.Logger
	now        domain.Clock

	mu      sync.Mutex
	markets map[string]*domain.MarketBook
}

// NewDetector creates a detector with the given edge threshold in basis
// points.
func NewDetector(minEdgeBps float64, logger *slog.Logger) *Detector {
	return &Detector{
		minEdgeBps: minEdgeBps,
		logger:     logger.With(slog.String("component", "arbitrage_detector")),
		now:        time.Now,
		markets:    map[string]*domain.MarketBook{},
	}
}

// Ingest merges an order-book event into the per-market state and re-evaluates
// that single market. Non-order-book events are ignored. Returns nil when no
// opportunity clears the threshold.
func (d *Detector) Ingest(ev domain.NormalizedEvent) *domain.CompleteSetOpportunity {
	if !ev.Type.IsOrderBook() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	book, ok := d.markets[ev.MarketID]
	if !ok {
		book = domain.NewMarketBook(ev.MarketID)
		d.markets[ev.MarketID] = book
	}
	book.ApplyEvent(ev, d.now())

	opp := d.evaluate(book)
	if opp != nil {
		d.logger.Info("opportunity detected",
			slog.String("market_id", opp.MarketID),
			slog.String("direction", string(opp.Direction)),
			slog.Float64("edge", opp.Edge),
			slog.Float64("max_size", opp.MaxSize),
		)
	}
	return opp
}

// evaluate prices both directions of the complete set. Buying pays each ask
// plus fees; minting and selling receives each bid with the same fee fraction
// haircut (bid * (2 - feeMultiplier) approximates bid less fees). Caller must
// hold d.mu.
func (d *Detector) evaluate(book *domain.MarketBook) *domain.CompleteSetOpportunity {
	if len(book.Outcomes) < 2 {
		return nil
	}

	feeMultiplier := book.FeeMultiplier()
	askSum := 0.0
	bidSum := 0.0
	sizes := make([]float64, 0, len(book.Outcomes))

	for _, quote := range book.Outcomes {
		if quote.Ask != nil {
			askSum += *quote.Ask * feeMultiplier
		}
		if quote.Bid != nil {
			bidSum += *quote.Bid * (2 - feeMultiplier)
		}
		if quote.Size != nil {
			sizes = append(sizes, *quote.Size)
		}
	}

	maxSize := 0.0
	if len(sizes) > 0 {
		maxSize = sizes[0]
		for _, s := range sizes[1:] {
			if s < maxSize {
				maxSize = s
			}
		}
	}
	if maxSize <= 0 {
		return nil
	}

	feeBps := 0.0
	if book.FeeBps != nil {
		feeBps = float64(*book.FeeBps)
	}

	var best *domain.CompleteSetOpportunity
	if buyEdge := 1.0 - askSum; d.meetsThreshold(buyEdge) {
		best = &domain.CompleteSetOpportunity{
			MarketID:  book.MarketID,
			Direction: domain.DirectionBuySet,
			Edge:      buyEdge,
			Notional:  askSum,
			MaxSize:   maxSize,
			Details:   map[string]float64{"ask_sum": askSum, "fee_bps": feeBps},
		}
	}
	if sellEdge := bidSum - 1.0; d.meetsThreshold(sellEdge) {
		// On equal edges the buy side stands.
		if best == nil || sellEdge > best.Edge {
			best = &domain.CompleteSetOpportunity{
				MarketID:  book.MarketID,
				Direction: domain.DirectionSellSet,
				Edge:      sellEdge,
				Notional:  bidSum,
				MaxSize:   maxSize,
				Details:   map[string]float64{"bid_sum": bidSum, "fee_bps": feeBps},
			}
		}
	}
	return best
}

func (d *Detector) meetsThreshold(edge float64) bool {
	return edge >= d.minEdgeBps/10_000
}

// Book returns the tracked book for one market, or nil when the market has
// not been seen. The book is shared; callers must treat it as read-only.
func (d *Detector) Book(marketID string) *domain.MarketBook {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.markets[marketID]
}

// Snapshot returns a copy of the per-market books for diagnostics. The books
// themselves are shared; callers must treat them as read-only.
func (d *Detector) Snapshot() map[string]*domain.MarketBook {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]*domain.MarketBook, len(d.markets))
	for id, book := range d.markets {
		out[id] = book
	}
	return out
}
