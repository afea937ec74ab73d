package engine

// RoutePreference is the preferred venue order for a symbol.
type RoutePreference struct {
	Primary   string
	Secondary string
}

// Router selects a hedge venue under a latency budget, honoring per-symbol
// preferences before falling back to the fastest eligible venue. The
// HedgeExecutor consults it for actions that do not name a venue.
type Router struct {
	latencyBudgetMs int
	preferences     map[string]RoutePreference
}

// NewRouter creates a router with the given latency budget in milliseconds.
func NewRouter(latencyBudgetMs int, preferences map[string]RoutePreference) *Router {
	return &Router{latencyBudgetMs: latencyBudgetMs, preferences: preferences}
}

// ChooseVenue returns the venue to route symbol to given current venue
// latencies, or "" when no venue is under budget.
func (r *Router) ChooseVenue(symbol string, venueLatenciesMs map[string]int) string {
	if preference, ok := r.preferences[symbol]; ok {
		for _, name := range []string{preference.Primary, preference.Secondary} {
			if name == "" {
				continue
			}
			if latency, ok := venueLatenciesMs[name]; ok && latency <= r.latencyBudgetMs {
				return name
			}
		}
	}
	return r.fastestWithinBudget(venueLatenciesMs)
}

func (r *Router) fastestWithinBudget(venueLatenciesMs map[string]int) string {
	best := ""
	bestLatency := 0
	for name, latency := range venueLatenciesMs {
		if latency > r.latencyBudgetMs {
			continue
		}
		if best == "" || latency < bestLatency || (latency == bestLatency && name < best) {
			best = name
			bestLatency = latency
		}
	}
	return best
}
