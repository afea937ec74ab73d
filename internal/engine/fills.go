package engine

import (
	"strings"

	"github.com/polyarb/setbot/internal/domain"
)

// applyFill folds a fill into a signed position and returns the updated
// position plus the realized PnL it produced. Fills first close any opposite
// exposure, realizing PnL over the closed quantity; a remainder then opens or
// extends in the fill's direction. Opening from flat (or after a full flip)
// replaces the average price; extending blends it by weighted average cost.
func applyFill(position domain.Position, side domain.OrderSide, quantity, price float64) (domain.Position, float64) {
	realized := 0.0
	remaining := quantity
	newQty := position.Quantity
	avgPrice := position.AvgPrice

	if side == domain.OrderSideBuy && newQty < 0 {
		closing := remaining
		if short := -newQty; short < closing {
			closing = short
		}
		realized += (avgPrice - price) * closing
		newQty += closing
		remaining -= closing
	}
	if side == domain.OrderSideSell && newQty > 0 {
		closing := remaining
		if newQty < closing {
			closing = newQty
		}
		realized += (price - avgPrice) * closing
		newQty -= closing
		remaining -= closing
	}

	if remaining > 0 {
		if side == domain.OrderSideBuy {
			if newQty <= 0 {
				newQty += remaining
				avgPrice = price
			} else {
				cost := newQty*avgPrice + remaining*price
				newQty += remaining
				avgPrice = cost / newQty
			}
		} else {
			if newQty >= 0 {
				newQty -= remaining
				avgPrice = price
			} else {
				short := -newQty
				newQty -= remaining
				avgPrice = (short*avgPrice + remaining*price) / -newQty
			}
		}
	}

	return domain.Position{Symbol: position.Symbol, Quantity: newQty, AvgPrice: avgPrice}, realized
}

// markPrice returns the mid price for the outcome referenced by symbol, the
// single available side when only one of bid/ask is quoted, or nil when the
// symbol does not resolve to a quoted outcome in this book.
func markPrice(symbol string, book *domain.MarketBook) *float64 {
	marketID, outcomeID, ok := splitSymbol(symbol)
	if !ok || marketID != book.MarketID {
		return nil
	}
	quote, ok := book.Outcomes[outcomeID]
	if !ok {
		return nil
	}
	switch {
	case quote.Bid != nil && quote.Ask != nil:
		mid := (*quote.Bid + *quote.Ask) / 2
		return &mid
	case quote.Bid != nil:
		return quote.Bid
	case quote.Ask != nil:
		return quote.Ask
	default:
		return nil
	}
}

// splitSymbol splits "marketID:outcomeID". Bare market ids (mint positions)
// do not resolve.
func splitSymbol(symbol string) (marketID, outcomeID string, ok bool) {
	parts := strings.Split(symbol, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
