package domain

// Position tracks signed quantity and volume-weighted average entry price for
// one symbol. Positive quantity is long, negative is short.
type Position struct {
	Symbol   string
	Quantity float64
	AvgPrice float64
}

// PositionPnL holds realized and unrealized profit for one symbol. Realized
// accumulates monotonically; unrealized is overwritten on each mark.
type PositionPnL struct {
	Symbol     string
	Realized   float64
	Unrealized float64
}

// Total returns combined realized and unrealized PnL.
func (p PositionPnL) Total() float64 {
	return p.Realized + p.Unrealized
}
