package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyarb/setbot/internal/domain"
	"github.com/polyarb/setbot/internal/risk"
)

type stubTradingClient struct {
	callCount int
	place     func(side domain.OrderSide, size float64, limitPrice *float64) (domain.VenueResponse, error)
	mint      func(size float64) (domain.VenueResponse, error)
}

func (c *stubTradingClient) PlaceOrder(_ context.Context, _, _ string, side domain.OrderSide, size float64, limitPrice *float64, _ string) (domain.VenueResponse, error) {
	c.callCount++
	if c.place != nil {
		return c.place(side, size, limitPrice)
	}
	response := domain.VenueResponse{"filled": size}
	if limitPrice != nil {
		response["price"] = *limitPrice
	}
	return response, nil
}

func (c *stubTradingClient) MintCompleteSet(_ context.Context, _ string, size float64, _ string) (domain.VenueResponse, error) {
	c.callCount++
	if c.mint != nil {
		return c.mint(size)
	}
	return domain.VenueResponse{"minted": size, "price": 1.0}, nil
}

type memorySnapshotStore struct {
	saves int
	last  []byte
}

func (s *memorySnapshotStore) PersistSnapshot(_ context.Context, _ string, payload []byte) (string, error) {
	s.saves++
	s.last = append([]byte(nil), payload...)
	return "memory", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultConfig() Config {
	return Config{
		MaxSlippagePct:  0.01,
		Timeout:         time.Second,
		IdempotencyTTL:  time.Minute,
		MaxStaleness:    10 * time.Second,
		MaxRejectStreak: 3,
		SnapshotName:    "risk_state",
	}
}

func quoteEvent(marketID, outcomeID string, bid, ask, size float64) domain.NormalizedEvent {
	return domain.NormalizedEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Bid:       domain.Float(bid),
		Ask:       domain.Float(ask),
		Size:      domain.Float(size),
		FeeBps:    domain.Int(0),
		Type:      domain.EventOrderBook,
	}
}

func buildBook(now time.Time, events ...domain.NormalizedEvent) *domain.MarketBook {
	book := domain.NewMarketBook(events[0].MarketID)
	for _, ev := range events {
		book.ApplyEvent(ev, now)
	}
	return book
}

func buyOpportunity(marketID string, edge, maxSize float64) domain.CompleteSetOpportunity {
	return domain.CompleteSetOpportunity{
		MarketID:  marketID,
		Direction: domain.DirectionBuySet,
		Edge:      edge,
		MaxSize:   maxSize,
	}
}

func TestDryRunExecutesWithoutVenueCalls(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("dry", "yes", 0.60, 0.40, 3),
		quoteEvent("dry", "no", 0.60, 0.40, 3),
	)
	client := &stubTradingClient{}
	store := &memorySnapshotStore{}
	cfg := defaultConfig()
	cfg.DryRun = true
	orders := NewOrderManager()
	e := New(client, orders, nil, nil, risk.NewPnLTracker(), store, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("dry", 0.20, 3), book, 2)

	require.False(t, report.Skipped)
	require.Len(t, report.Orders, 2)
	for _, order := range report.Orders {
		assert.Equal(t, domain.OrderStatusFilled, order.Status)
		assert.Equal(t, 2.0, order.FilledQuantity)
	}
	assert.Zero(t, client.callCount)
	assert.Len(t, orders.ListOrders(), 2)

	positions := e.Positions()
	require.Contains(t, positions, "dry:yes")
	assert.Equal(t, 2.0, positions["dry:yes"].Quantity)
	assert.InDelta(t, 0.404, positions["dry:yes"].AvgPrice, 1e-9)
	assert.Positive(t, store.saves)
}

func TestBuySetRecordsFillsAndMarksPnL(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("m1", "yes", 0.60, 0.40, 5),
		quoteEvent("m1", "no", 0.60, 0.40, 5),
	)
	client := &stubTradingClient{}
	pnl := risk.NewPnLTracker()
	e := New(client, NewOrderManager(), nil, nil, pnl, nil, nil, defaultConfig(), discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("m1", 0.20, 5), book, 5)

	require.False(t, report.Skipped)
	require.Len(t, report.Orders, 2)
	assert.Equal(t, 2, client.callCount)

	// Filled at the slippage-adjusted limit 0.404 against a 0.50 mid.
	entries := pnl.Positions()
	require.Contains(t, entries, "m1:yes")
	assert.InDelta(t, (0.50-0.404)*5, entries["m1:yes"].Unrealized, 1e-9)
}

func TestSellSetMintsThenSellsInOutcomeOrder(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("m2", "yes", 0.55, 0.90, 6),
		quoteEvent("m2", "no", 0.55, 0.90, 6),
	)
	client := &stubTradingClient{}
	e := New(client, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, defaultConfig(), discardLogger())

	opp := domain.CompleteSetOpportunity{
		MarketID:  "m2",
		Direction: domain.DirectionSellSet,
		Edge:      0.10,
		MaxSize:   6,
	}
	report := e.ExecuteCompleteSet(context.Background(), opp, book, 6)

	require.False(t, report.Skipped)
	require.Len(t, report.Orders, 3)
	assert.Equal(t, "m2", report.Orders[0].Request.Symbol)
	assert.Equal(t, domain.OrderSideBuy, report.Orders[0].Request.Side)
	assert.Equal(t, "m2:no", report.Orders[1].Request.Symbol)
	assert.Equal(t, "m2:yes", report.Orders[2].Request.Symbol)

	positions := e.Positions()
	assert.Equal(t, 6.0, positions["m2"].Quantity)
	assert.Equal(t, 1.0, positions["m2"].AvgPrice)
	assert.Equal(t, -6.0, positions["m2:yes"].Quantity)
	// Sells fill at the bid less the slippage allowance.
	assert.InDelta(t, 0.55*0.99, positions["m2:yes"].AvgPrice, 1e-9)
}

func TestRiskGateBlocksWhenNotionalExceedsLimit(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("risk", "yes", 0.25, 0.30, 10),
		quoteEvent("risk", "no", 0.25, 0.30, 10),
	)
	client := &stubTradingClient{}
	limits := &risk.Limits{
		MaxNotionalUSD:    5.0,
		MaxPositionSizes:  map[string]float64{"risk:yes": 100, "risk:no": 100},
		DailyLossLimitUSD: 1000,
	}
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(client, NewOrderManager(), limits, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("risk", 0.40, 10), book, 10)

	require.True(t, report.Skipped)
	assert.Equal(t, SkipRiskBlocked, report.Reason)
	assert.Zero(t, client.callCount)
}

func TestSlippageAllowanceErasesThinEdge(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("slip", "yes", 0.48, 0.49, 5),
		quoteEvent("slip", "no", 0.48, 0.49, 5),
	)
	client := &stubTradingClient{}
	cfg := defaultConfig()
	cfg.MaxSlippagePct = 0.05
	cfg.DryRun = true
	e := New(client, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("slip", 0.02, 5), book, 5)

	require.True(t, report.Skipped)
	assert.Equal(t, SkipEdgeErased, report.Reason)
	assert.Zero(t, client.callCount)
}

func TestDuplicateOpportunitySkippedUntilTTLExpires(t *testing.T) {
	start := time.Now()
	clock := start
	book := buildBook(start,
		quoteEvent("dup", "yes", 0.60, 0.40, 3),
		quoteEvent("dup", "no", 0.60, 0.40, 3),
	)
	cfg := defaultConfig()
	cfg.DryRun = true
	cfg.IdempotencyTTL = time.Minute
	cfg.MaxStaleness = time.Hour
	e := New(&stubTradingClient{}, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())
	e.now = func() time.Time { return clock }

	opp := buyOpportunity("dup", 0.20, 3)
	first := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	require.False(t, first.Skipped)

	second := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	require.True(t, second.Skipped)
	assert.Equal(t, SkipDuplicate, second.Reason)

	clock = start.Add(2 * time.Minute)
	third := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	assert.False(t, third.Skipped)
}

func TestStaleBookTripsCircuitUntilReset(t *testing.T) {
	now := time.Now()
	staleBook := buildBook(now.Add(-time.Hour),
		quoteEvent("old", "yes", 0.60, 0.40, 3),
		quoteEvent("old", "no", 0.60, 0.40, 3),
	)
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("old", 0.20, 3), staleBook, 1)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipStale, report.Reason)
	assert.Equal(t, SkipStale, e.HaltedReason())

	// Fresh data does not matter while the circuit is open.
	freshBook := buildBook(time.Now(),
		quoteEvent("old", "yes", 0.60, 0.40, 3),
		quoteEvent("old", "no", 0.60, 0.40, 3),
	)
	blocked := e.ExecuteCompleteSet(context.Background(), buyOpportunity("old", 0.20, 3), freshBook, 1)
	require.True(t, blocked.Skipped)
	assert.Equal(t, SkipStale, blocked.Reason)

	e.ResetCircuit()
	resumed := e.ExecuteCompleteSet(context.Background(), buyOpportunity("old", 0.20, 3), freshBook, 1)
	assert.False(t, resumed.Skipped)
}

func TestRejectStreakTripsCircuit(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("rej", "yes", 0.60, 0.40, 3),
		quoteEvent("rej", "no", 0.60, 0.40, 3),
	)
	client := &stubTradingClient{
		place: func(domain.OrderSide, float64, *float64) (domain.VenueResponse, error) {
			return domain.VenueResponse{"status": "rejected"}, nil
		},
	}
	cfg := defaultConfig()
	cfg.IdempotencyTTL = 0
	cfg.MaxRejectStreak = 3
	e := New(client, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	opp := buyOpportunity("rej", 0.20, 3)
	first := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	require.False(t, first.Skipped)
	assert.Equal(t, domain.OrderStatusRejected, first.Orders[0].Status)
	assert.Empty(t, e.HaltedReason())

	second := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	require.False(t, second.Skipped)
	assert.Equal(t, "reject_streak", e.HaltedReason())

	blocked := e.ExecuteCompleteSet(context.Background(), opp, book, 1)
	require.True(t, blocked.Skipped)
	assert.Equal(t, "reject_streak", blocked.Reason)
}

func TestFillResetsRejectStreak(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("mix", "yes", 0.60, 0.40, 3),
		quoteEvent("mix", "no", 0.60, 0.40, 3),
	)
	rejectFirst := true
	client := &stubTradingClient{
		place: func(_ domain.OrderSide, size float64, limitPrice *float64) (domain.VenueResponse, error) {
			if rejectFirst {
				rejectFirst = false
				return domain.VenueResponse{"status": "rejected"}, nil
			}
			return domain.VenueResponse{"filled": size, "price": *limitPrice}, nil
		},
	}
	cfg := defaultConfig()
	cfg.MaxRejectStreak = 2
	e := New(client, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("mix", 0.20, 3), book, 1)
	require.False(t, report.Skipped)
	assert.Equal(t, domain.OrderStatusRejected, report.Orders[0].Status)
	assert.Equal(t, domain.OrderStatusFilled, report.Orders[1].Status)
	assert.Empty(t, e.HaltedReason())
	assert.Zero(t, e.rejectStreak)
}

func TestNoSizeAvailable(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("tiny", "yes", 0.60, 0.40, 0),
		quoteEvent("tiny", "no", 0.60, 0.40, 0),
	)
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("tiny", 0.20, 0), book, 0)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipNoSize, report.Reason)
}

func TestNegativeRequestedSizeSkipped(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("neg", "yes", 0.60, 0.40, 10),
		quoteEvent("neg", "no", 0.60, 0.40, 10),
	)
	cfg := defaultConfig()
	cfg.DryRun = false
	client := &stubTradingClient{}
	e := New(client, NewOrderManager(), nil, nil, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("neg", 0.20, 10), book, -5)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipNoSize, report.Reason)
	assert.Zero(t, client.callCount)
}

func TestDailyLossLimitTripsCircuit(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("loss", "yes", 0.60, 0.40, 3),
		quoteEvent("loss", "no", 0.60, 0.40, 3),
	)
	limits := &risk.Limits{
		MaxNotionalUSD:    1000,
		MaxPositionSizes:  map[string]float64{"loss:yes": 100, "loss:no": 100},
		DailyLossLimitUSD: 5,
	}
	pnl := risk.NewPnLTracker()
	pnl.AddRealized("loss:yes", -6)
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, NewOrderManager(), limits, nil, pnl, nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("loss", 0.20, 3), book, 1)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipRiskBlocked, report.Reason)
	assert.Equal(t, "daily_loss_limit", e.HaltedReason())
}

func TestInventoryCapBlocksExecution(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("cap", "yes", 0.60, 0.40, 10),
		quoteEvent("cap", "no", 0.60, 0.40, 10),
	)
	caps := &risk.InventoryCaps{MaxInventory: map[string]float64{"cap:yes": 5, "cap:no": 5}}
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, NewOrderManager(), nil, caps, risk.NewPnLTracker(), nil, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("cap", 0.20, 10), book, 10)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipRiskBlocked, report.Reason)
}

func TestHedgeCircuitBlocksExecution(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("hc", "yes", 0.60, 0.40, 3),
		quoteEvent("hc", "no", 0.60, 0.40, 3),
	)
	orders := NewOrderManager()
	hedge := NewHedgeExecutor(orders, failingHedgeClient{}, time.Second, 1, discardLogger())
	hedge.SubmitHedges(context.Background(), []HedgeAction{{Symbol: "hc:yes", Side: domain.OrderSideSell, Size: 1}})
	require.True(t, hedge.CircuitOpen())

	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, orders, nil, nil, risk.NewPnLTracker(), nil, hedge, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("hc", 0.20, 3), book, 1)
	require.True(t, report.Skipped)
	assert.Equal(t, SkipHedge, report.Reason)
	assert.Equal(t, SkipHedge, e.HaltedReason())
}

func TestSnapshotPayloadShape(t *testing.T) {
	now := time.Now()
	book := buildBook(now,
		quoteEvent("snap", "yes", 0.60, 0.40, 3),
		quoteEvent("snap", "no", 0.60, 0.40, 3),
	)
	store := &memorySnapshotStore{}
	cfg := defaultConfig()
	cfg.DryRun = true
	e := New(&stubTradingClient{}, NewOrderManager(), nil, nil, risk.NewPnLTracker(), store, nil, cfg, discardLogger())

	report := e.ExecuteCompleteSet(context.Background(), buyOpportunity("snap", 0.20, 3), book, 2)
	require.False(t, report.Skipped)
	require.NotEmpty(t, store.last)

	var payload struct {
		Positions map[string]struct {
			Quantity float64 `json:"quantity"`
			AvgPrice float64 `json:"avg_price"`
		} `json:"positions"`
		Inventory map[string]float64 `json:"inventory"`
		PnL       map[string]struct {
			Realized   float64 `json:"realized"`
			Unrealized float64 `json:"unrealized"`
			Total      float64 `json:"total"`
		} `json:"pnl"`
	}
	require.NoError(t, json.Unmarshal(store.last, &payload))
	assert.Equal(t, 2.0, payload.Positions["snap:yes"].Quantity)
	assert.Equal(t, 2.0, payload.Inventory["snap:no"])
	assert.Contains(t, payload.PnL, "snap:yes")
}
