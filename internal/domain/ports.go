package domain

import "context"

// VenueResponse is the raw decoded JSON body returned by a trading venue.
// Fields are read via alias lists rather than a fixed schema so that venue
// drift does not break the executor.
type VenueResponse map[string]any

// TradingClient is the minimal trading surface the execution engine needs.
// Venue authentication and transport details live behind this interface.
type TradingClient interface {
	// PlaceOrder submits a single marketable order for one outcome.
	PlaceOrder(ctx context.Context, marketID, outcomeID string, side OrderSide, size float64, limitPrice *float64, clientOrderID string) (VenueResponse, error)
	// MintCompleteSet acquires size units of every outcome directly from
	// the venue, bypassing the order book.
	MintCompleteSet(ctx context.Context, marketID string, size float64, clientOrderID string) (VenueResponse, error)
}

// HedgeTradingClient is the minimal surface required for hedge submission on
// a secondary venue.
type HedgeTradingClient interface {
	PlaceOrder(ctx context.Context, symbol string, side OrderSide, size float64, price *float64, orderType OrderType, clientOrderID string) (VenueResponse, error)
}

// SnapshotStore persists opaque state snapshots. Implementations must treat
// the payload as a blob; the engine logs and ignores persistence failures.
type SnapshotStore interface {
	// PersistSnapshot writes payload under a key derived from name and the
	// current time, returning the storage key.
	PersistSnapshot(ctx context.Context, name string, payload []byte) (string, error)
}

// SignalBus publishes raw payloads to named channels for external consumers
// (dashboard, alerting). Implementations are best-effort.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// MetricsFunc is an optional instrumentation callback. Implementations may
// panic or misbehave; callers must isolate them so failures never propagate
// into the data path.
type MetricsFunc func(name string, values map[string]float64)
