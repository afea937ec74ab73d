// Package risk holds the pre-trade limit checks and PnL bookkeeping the
// execution engine consults before and after every complete-set attempt.
package risk

import "math"

// Limits defines position and loss ceilings. A symbol with no configured
// maximum is unauthorized: any proposed size for it fails validation.
type Limits struct {
	MaxNotionalUSD    float64
	MaxPositionSizes  map[string]float64
	DailyLossLimitUSD float64
}

// ValidatePosition reports whether the proposed absolute position size stays
// within the symbol's configured maximum.
func (l Limits) ValidatePosition(symbol string, proposedSize float64) bool {
	maxSize, ok := l.MaxPositionSizes[symbol]
	return ok && math.Abs(proposedSize) <= maxSize
}

// ValidateLoss reports whether the realized loss is still under the daily
// cap. The loss is passed as a positive magnitude.
func (l Limits) ValidateLoss(realizedLossUSD float64) bool {
	return realizedLossUSD <= l.DailyLossLimitUSD
}

// InventoryCaps bounds per-symbol inventory independently of position limits.
// An uncapped symbol fails the check.
type InventoryCaps struct {
	MaxInventory map[string]float64
}

// WithinCaps reports whether the projected absolute inventory stays under the
// symbol's cap.
func (c InventoryCaps) WithinCaps(symbol string, proposedInventory float64) bool {
	ceiling, ok := c.MaxInventory[symbol]
	return ok && math.Abs(proposedInventory) <= ceiling
}
