package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/polyarb/setbot/internal/domain"
)

// Venue response field aliases. Responses are schemaless maps; the first
// alias carrying a coercible value wins.
var (
	filledAliases    = []string{"filled", "filled_size", "filled_qty", "fill", "filledQuantity", "minted"}
	fillPriceAliases = []string{"price", "avg_price", "average_price", "fill_price"}
)

// rejectionStates are the status/state values that mark an order as rejected.
var rejectionStates = map[string]struct{}{
	"reject":   {},
	"rejected": {},
	"error":    {},
}

// extractFilledQuantity returns the filled quantity reported by the venue, or
// 0 when the response carries none.
func extractFilledQuantity(response domain.VenueResponse) float64 {
	for _, key := range filledAliases {
		if v, ok := response[key]; ok && v != nil {
			if f, ok := coerceFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

// extractFillPrice returns the venue-reported fill price, falling back to the
// request's limit price and finally to 1.0.
func extractFillPrice(response domain.VenueResponse, request domain.OrderRequest) float64 {
	for _, key := range fillPriceAliases {
		if v, ok := response[key]; ok && v != nil {
			if f, ok := coerceFloat(v); ok {
				return f
			}
		}
	}
	if request.Price != nil {
		return *request.Price
	}
	return 1.0
}

// isRejected reports whether the venue marked the order as rejected, either
// via a status/state string or an explicit rejected flag.
func isRejected(response domain.VenueResponse) bool {
	for _, key := range []string{"status", "state"} {
		if v, ok := response[key]; ok && v != nil {
			if s, ok := v.(string); ok {
				if _, bad := rejectionStates[strings.ToLower(s)]; bad {
					return true
				}
			}
		}
	}
	if v, ok := response["rejected"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	return false
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
