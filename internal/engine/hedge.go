package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyarb/setbot/internal/domain"
)

// HedgeAction instructs the hedge executor to offset exposure on a secondary
// venue.
type HedgeAction struct {
	Symbol string
	Side   domain.OrderSide
	Size   float64
	Price  *float64
	Type   domain.OrderType
	Venue  string
}

// NoopHedgeClient records intent without touching a venue. It stands in when
// no hedge venue is configured so the pipeline never gates on availability.
type NoopHedgeClient struct{}

var _ domain.HedgeTradingClient = NoopHedgeClient{}

func (NoopHedgeClient) PlaceOrder(_ context.Context, _ string, _ domain.OrderSide, _ float64, _ *float64, _ domain.OrderType, clientOrderID string) (domain.VenueResponse, error) {
	return domain.VenueResponse{"client_order_id": clientOrderID, "submitted": false, "filled": 0.0}, nil
}

// HedgeExecutor submits hedge actions through the configured client and
// trips its own circuit after maxFailures consecutive failed submissions.
// The execution engine refuses new opportunities while that circuit is open.
type HedgeExecutor struct {
	orders      *OrderManager
	client      domain.HedgeTradingClient
	logger      *slog.Logger
	timeout     time.Duration
	maxFailures int

	mu        sync.Mutex
	failures  int
	router    *Router
	latencies map[string]int
}

// NewHedgeExecutor creates a hedge executor. A nil client degrades to the
// no-op implementation.
func NewHedgeExecutor(orders *OrderManager, client domain.HedgeTradingClient, timeout time.Duration, maxFailures int, logger *slog.Logger) *HedgeExecutor {
	if client == nil {
		client = NoopHedgeClient{}
	}
	return &HedgeExecutor{
		orders:      orders,
		client:      client,
		logger:      logger.With(slog.String("component", "hedge_executor")),
		timeout:     timeout,
		maxFailures: maxFailures,
		latencies:   make(map[string]int),
	}
}

// SetRouter enables latency-aware venue routing for actions that do not name
// a venue explicitly.
func (h *HedgeExecutor) SetRouter(router *Router) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.router = router
}

// SubmitHedges submits all actions in order, returning their tracked order
// states. Actions with non-positive size are skipped. Returns
// domain.ErrCircuitOpen without submitting anything while the failure
// circuit is tripped.
func (h *HedgeExecutor) SubmitHedges(ctx context.Context, actions []HedgeAction) ([]domain.OrderState, error) {
	if h.CircuitOpen() {
		return nil, domain.ErrCircuitOpen
	}
	states := make([]domain.OrderState, 0, len(actions))
	for _, action := range actions {
		if action.Size <= 0 {
			h.logger.Info("skipping hedge with non-positive size",
				slog.String("symbol", action.Symbol),
				slog.Float64("size", action.Size),
			)
			continue
		}
		states = append(states, h.submit(ctx, action))
	}
	return states, nil
}

func (h *HedgeExecutor) submit(ctx context.Context, action HedgeAction) domain.OrderState {
	orderType := action.Type
	if orderType == "" {
		orderType = domain.OrderTypeLimit
	}
	orderID := newOrderID("hedge")
	request := domain.OrderRequest{
		Symbol:   action.Symbol,
		Side:     action.Side,
		Type:     orderType,
		Quantity: action.Size,
		Price:    action.Price,
	}

	venue := h.resolveVenue(action)

	state := domain.OrderState{OrderID: orderID, Request: request, Status: domain.OrderStatusNew}
	h.orders.RecordSubmission(state)

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	start := time.Now()
	response, err := h.client.PlaceOrder(callCtx, action.Symbol, action.Side, action.Size, action.Price, orderType, orderID)
	h.observeLatency(venue, time.Since(start))
	if err != nil {
		status := domain.OrderStatusRejected
		if errors.Is(err, context.DeadlineExceeded) {
			status = domain.OrderStatusTimeout
		}
		h.logger.Warn("hedge order failed",
			slog.String("symbol", action.Symbol),
			slog.String("venue", venue),
			slog.String("order_id", orderID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		h.orders.SetStatus(orderID, status)
		h.recordFailure()
		return h.orders.GetOrder(orderID)
	}

	if filled := extractFilledQuantity(response); filled > 0 {
		h.orders.UpdateFill(orderID, filled)
		h.resetFailures()
	}
	return h.orders.GetOrder(orderID)
}

// resolveVenue returns the action's explicit venue, or asks the router to
// pick one from observed submission latencies when routing is enabled.
func (h *HedgeExecutor) resolveVenue(action HedgeAction) string {
	if action.Venue != "" {
		return action.Venue
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.router == nil {
		return ""
	}
	return h.router.ChooseVenue(action.Symbol, h.latencies)
}

func (h *HedgeExecutor) observeLatency(venue string, elapsed time.Duration) {
	if venue == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latencies[venue] = int(elapsed.Milliseconds())
}

// CircuitOpen reports whether consecutive hedge failures have reached the
// configured threshold.
func (h *HedgeExecutor) CircuitOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxFailures > 0 && h.failures >= h.maxFailures
}

func (h *HedgeExecutor) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
}

func (h *HedgeExecutor) resetFailures() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
}

// newOrderID produces client order ids like "buy-9f31c0…".
func newOrderID(prefix string) string {
	id := uuid.New()
	return prefix + "-" + hex.EncodeToString(id[:])
}
