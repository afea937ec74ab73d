package risk

import (
	"sync"

	"github.com/polyarb/setbot/internal/domain"
)

// PnLTracker aggregates realized and unrealized profit and loss per symbol.
// Realized values accumulate; unrealized values are replaced on each mark.
type PnLTracker struct {
	mu        sync.Mutex
	positions map[string]*domain.PositionPnL
}

// NewPnLTracker creates an empty tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{positions: map[string]*domain.PositionPnL{}}
}

// AddRealized accumulates realized PnL for a symbol.
func (t *PnLTracker) AddRealized(symbol string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(symbol).Realized += value
}

// UpdateUnrealized sets the current unrealized PnL for a symbol.
func (t *PnLTracker) UpdateUnrealized(symbol string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(symbol).Unrealized = value
}

// TotalPnL returns the portfolio-level sum of realized and unrealized PnL.
func (t *PnLTracker) TotalPnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0.0
	for _, p := range t.positions {
		total += p.Total()
	}
	return total
}

// Positions returns a copy of the per-symbol PnL entries.
func (t *PnLTracker) Positions() map[string]domain.PositionPnL {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.PositionPnL, len(t.positions))
	for symbol, p := range t.positions {
		out[symbol] = *p
	}
	return out
}

// entry returns the tracked PnL for symbol, creating it if needed. Caller
// must hold t.mu.
func (t *PnLTracker) entry(symbol string) *domain.PositionPnL {
	p, ok := t.positions[symbol]
	if !ok {
		p = &domain.PositionPnL{Symbol: symbol}
		t.positions[symbol] = p
	}
	return p
}
