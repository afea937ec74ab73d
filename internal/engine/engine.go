// Package engine executes detected complete-set opportunities against the
// venue. It is deliberately conservative: every attempt passes an admission
// pipeline (circuit breaker, data freshness, idempotency, edge re-validation,
// risk limits) before any order leaves the process, and every order is
// recorded before its network call is made.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/polyarb/setbot/internal/domain"
	"github.com/polyarb/setbot/internal/risk"
)

// Skip reasons reported in ExecutionReport.Reason.
const (
	SkipStale       = "stale_data"
	SkipHedge       = "hedge_circuit"
	SkipDuplicate   = "duplicate"
	SkipEdgeErased  = "edge_erased"
	SkipNoSize      = "no_size_available"
	SkipRiskBlocked = "risk_blocked"
)

// Circuit trip reasons not also used as skip reasons.
const (
	tripRejectStreak   = "reject_streak"
	tripDailyLossLimit = "daily_loss_limit"
)

// Config holds the runtime safety parameters for execution.
type Config struct {
	MaxSlippagePct  float64
	Timeout         time.Duration
	IdempotencyTTL  time.Duration
	MaxStaleness    time.Duration
	MaxRejectStreak int
	DryRun          bool
	SnapshotName    string
}

// ExecutionReport is the outcome of one execution attempt. Skipped attempts
// carry the admission stage that refused them in Reason.
type ExecutionReport struct {
	Orders  []domain.OrderState
	Skipped bool
	Reason  string
}

// Engine orchestrates complete-set execution. Attempts are serialized: one
// opportunity is in flight at a time, and its legs are submitted
// sequentially.
type Engine struct {
	client    domain.TradingClient
	orders    *OrderManager
	limits    *risk.Limits
	caps      *risk.InventoryCaps
	pnl       *risk.PnLTracker
	snapshots domain.SnapshotStore
	hedge     *HedgeExecutor
	cfg       Config
	logger    *slog.Logger
	now       domain.Clock

	mu           sync.Mutex
	recent       map[string]time.Time
	positions    map[string]domain.Position
	inventory    map[string]float64
	rejectStreak int
	haltedReason string
}

// New creates an execution engine. limits, caps, snapshots, and hedge may be
// nil; pnl must not be.
func New(client domain.TradingClient, orders *OrderManager, limits *risk.Limits, caps *risk.InventoryCaps, pnl *risk.PnLTracker, snapshots domain.SnapshotStore, hedge *HedgeExecutor, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		client:    client,
		orders:    orders,
		limits:    limits,
		caps:      caps,
		pnl:       pnl,
		snapshots: snapshots,
		hedge:     hedge,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "execution_engine")),
		now:       time.Now,
		recent:    map[string]time.Time{},
		positions: map[string]domain.Position{},
		inventory: map[string]float64{},
	}
}

// ExecuteCompleteSet runs the admission pipeline and, if it passes, submits
// the opportunity's legs. size caps the trade size; pass 0 to trade the
// opportunity's full MaxSize.
func (e *Engine) ExecuteCompleteSet(ctx context.Context, opportunity domain.CompleteSetOpportunity, book *domain.MarketBook, size float64) ExecutionReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.haltedReason != "" {
		return ExecutionReport{Skipped: true, Reason: e.haltedReason}
	}

	if e.isStale(book) {
		e.trip(SkipStale, book.MarketID)
		return ExecutionReport{Skipped: true, Reason: SkipStale}
	}

	if e.hedge != nil && e.hedge.CircuitOpen() {
		e.trip(SkipHedge, book.MarketID)
		return ExecutionReport{Skipped: true, Reason: SkipHedge}
	}

	if !e.claimIdempotency(opportunityKey(opportunity)) {
		e.logger.Info("skipping duplicate opportunity",
			slog.String("market_id", opportunity.MarketID),
			slog.String("direction", string(opportunity.Direction)),
		)
		return ExecutionReport{Skipped: true, Reason: SkipDuplicate}
	}

	if !e.edgeSurvivesCosts(opportunity, book) {
		e.logger.Info("edge eliminated by projected costs",
			slog.String("market_id", opportunity.MarketID),
			slog.String("direction", string(opportunity.Direction)),
		)
		return ExecutionReport{Skipped: true, Reason: SkipEdgeErased}
	}

	// Any non-zero requested size stands, capped by the opportunity; zero
	// means trade the full MaxSize. Non-positive outcomes are refused.
	tradeSize := opportunity.MaxSize
	if size != 0 && size < tradeSize {
		tradeSize = size
	}
	if tradeSize <= 0 {
		return ExecutionReport{Skipped: true, Reason: SkipNoSize}
	}

	projectedNotional := e.estimateNotional(opportunity, book, tradeSize)
	if !e.passesRiskLimits(opportunity, book, tradeSize, projectedNotional) {
		return ExecutionReport{Skipped: true, Reason: SkipRiskBlocked}
	}

	var orders []domain.OrderState
	if opportunity.Direction == domain.DirectionBuySet {
		orders = e.buyCompleteSet(ctx, opportunity.MarketID, book, tradeSize)
	} else {
		orders = e.sellCompleteSet(ctx, opportunity.MarketID, book, tradeSize)
	}
	return ExecutionReport{Orders: orders}
}

// ResetCircuit clears the halt reason and reject streak after operator
// intervention.
func (e *Engine) ResetCircuit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.haltedReason = ""
	e.rejectStreak = 0
	e.logger.Info("circuit reset")
}

// HaltedReason returns the open circuit's reason, or "" when execution is
// live.
func (e *Engine) HaltedReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.haltedReason
}

// Positions returns a copy of the current signed positions.
func (e *Engine) Positions() map[string]domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.Position, len(e.positions))
	for symbol, p := range e.positions {
		out[symbol] = p
	}
	return out
}

// Inventory returns a copy of the current per-symbol inventory.
func (e *Engine) Inventory() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.inventory))
	for symbol, qty := range e.inventory {
		out[symbol] = qty
	}
	return out
}

// buyCompleteSet buys one unit of every quoted outcome at ask plus the
// slippage allowance.
func (e *Engine) buyCompleteSet(ctx context.Context, marketID string, book *domain.MarketBook, size float64) []domain.OrderState {
	var orders []domain.OrderState
	for _, quote := range outcomesWithAsk(book) {
		limitPrice := *quote.Ask * (1 + e.cfg.MaxSlippagePct)
		outcomeID := quote.OutcomeID
		orderID := newOrderID("buy")
		request := domain.OrderRequest{
			Symbol:   marketID + ":" + outcomeID,
			Side:     domain.OrderSideBuy,
			Type:     domain.OrderTypeMarket,
			Quantity: size,
			Price:    &limitPrice,
		}
		state := e.submitOrder(ctx, request, book, orderID, func(callCtx context.Context) (domain.VenueResponse, error) {
			return e.client.PlaceOrder(callCtx, marketID, outcomeID, domain.OrderSideBuy, size, &limitPrice, orderID)
		})
		orders = append(orders, state)
	}
	return orders
}

// sellCompleteSet mints the set, then sells every quoted outcome at bid less
// the slippage allowance.
func (e *Engine) sellCompleteSet(ctx context.Context, marketID string, book *domain.MarketBook, size float64) []domain.OrderState {
	var orders []domain.OrderState

	mintID := newOrderID("mint")
	mintRequest := domain.OrderRequest{
		Symbol:   marketID,
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeMarket,
		Quantity: size,
	}
	mintState := e.submitOrder(ctx, mintRequest, book, mintID, func(callCtx context.Context) (domain.VenueResponse, error) {
		return e.client.MintCompleteSet(callCtx, marketID, size, mintID)
	})
	orders = append(orders, mintState)

	for _, quote := range outcomesWithBid(book) {
		limitPrice := *quote.Bid * (1 - e.cfg.MaxSlippagePct)
		outcomeID := quote.OutcomeID
		orderID := newOrderID("sell")
		request := domain.OrderRequest{
			Symbol:   marketID + ":" + outcomeID,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeMarket,
			Quantity: size,
			Price:    &limitPrice,
		}
		state := e.submitOrder(ctx, request, book, orderID, func(callCtx context.Context) (domain.VenueResponse, error) {
			return e.client.PlaceOrder(callCtx, marketID, outcomeID, domain.OrderSideSell, size, &limitPrice, orderID)
		})
		orders = append(orders, state)
	}
	return orders
}

// submitOrder records the order, performs the venue call under the configured
// timeout, and folds the response into order, position, and PnL state. In dry
// run mode the venue is never reached and the order is treated as fully
// filled at its limit price.
func (e *Engine) submitOrder(ctx context.Context, request domain.OrderRequest, book *domain.MarketBook, orderID string, call func(context.Context) (domain.VenueResponse, error)) domain.OrderState {
	e.orders.RecordSubmission(domain.OrderState{OrderID: orderID, Request: request, Status: domain.OrderStatusNew})

	var response domain.VenueResponse
	if e.cfg.DryRun {
		response = e.simulateFill(request, orderID)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		var err error
		response, err = call(callCtx)
		cancel()
		if err != nil {
			status := domain.OrderStatusRejected
			if errors.Is(err, context.DeadlineExceeded) {
				status = domain.OrderStatusTimeout
			}
			e.logger.Warn("order failed",
				slog.String("order_id", orderID),
				slog.String("symbol", request.Symbol),
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
			e.orders.SetStatus(orderID, status)
			e.handleReject()
			return e.orders.GetOrder(orderID)
		}
	}

	if isRejected(response) {
		e.logger.Warn("order rejected by venue",
			slog.String("order_id", orderID),
			slog.String("symbol", request.Symbol),
		)
		e.orders.SetStatus(orderID, domain.OrderStatusRejected)
		e.handleReject()
		return e.orders.GetOrder(orderID)
	}

	if filled := extractFilledQuantity(response); filled > 0 {
		e.orders.UpdateFill(orderID, filled)
		e.recordFill(ctx, request, filled, response, book)
		e.rejectStreak = 0
	}
	return e.orders.GetOrder(orderID)
}

// simulateFill fabricates a complete fill for dry run mode.
func (e *Engine) simulateFill(request domain.OrderRequest, orderID string) domain.VenueResponse {
	response := domain.VenueResponse{
		"status": "filled",
		"filled": request.Quantity,
	}
	if request.Price != nil {
		response["price"] = *request.Price
	}
	e.logger.Info("dry run fill",
		slog.String("order_id", orderID),
		slog.String("symbol", request.Symbol),
		slog.Float64("quantity", request.Quantity),
	)
	return response
}

// recordFill updates the signed position, realizes PnL on closed quantity,
// re-marks unrealized PnL, and persists the risk snapshot.
func (e *Engine) recordFill(ctx context.Context, request domain.OrderRequest, filledQuantity float64, response domain.VenueResponse, book *domain.MarketBook) {
	symbol := request.Symbol
	price := extractFillPrice(response, request)

	position, ok := e.positions[symbol]
	if !ok {
		position = domain.Position{Symbol: symbol}
	}
	updated, realized := applyFill(position, request.Side, filledQuantity, price)
	e.positions[symbol] = updated
	e.inventory[symbol] = updated.Quantity

	if realized != 0 {
		e.pnl.AddRealized(symbol, realized)
	}

	if mark := markPrice(symbol, book); mark != nil {
		e.pnl.UpdateUnrealized(symbol, (*mark-updated.AvgPrice)*updated.Quantity)
	} else {
		e.pnl.UpdateUnrealized(symbol, 0)
	}

	e.persistSnapshot(ctx)
}

type snapshotPosition struct {
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

type snapshotPnL struct {
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Total      float64 `json:"total"`
}

type snapshotPayload struct {
	Positions map[string]snapshotPosition `json:"positions"`
	Inventory map[string]float64          `json:"inventory"`
	PnL       map[string]snapshotPnL      `json:"pnl"`
}

// persistSnapshot writes the current risk state. Persistence failures are
// logged and ignored so they can never block execution.
func (e *Engine) persistSnapshot(ctx context.Context) {
	if e.snapshots == nil {
		return
	}

	payload := snapshotPayload{
		Positions: make(map[string]snapshotPosition, len(e.positions)),
		Inventory: make(map[string]float64, len(e.inventory)),
		PnL:       map[string]snapshotPnL{},
	}
	for symbol, position := range e.positions {
		payload.Positions[symbol] = snapshotPosition{Quantity: position.Quantity, AvgPrice: position.AvgPrice}
	}
	for symbol, qty := range e.inventory {
		payload.Inventory[symbol] = qty
	}
	for symbol, pnl := range e.pnl.Positions() {
		payload.PnL[symbol] = snapshotPnL{Realized: pnl.Realized, Unrealized: pnl.Unrealized, Total: pnl.Total()}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("snapshot encoding failed", slog.String("error", err.Error()))
		return
	}
	if _, err := e.snapshots.PersistSnapshot(ctx, e.cfg.SnapshotName, encoded); err != nil {
		e.logger.Warn("snapshot persistence failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) isStale(book *domain.MarketBook) bool {
	age := e.now().Sub(book.LastUpdate)
	if age <= e.cfg.MaxStaleness {
		return false
	}
	e.logger.Error("market data is stale",
		slog.String("market_id", book.MarketID),
		slog.Float64("age_seconds", age.Seconds()),
	)
	return true
}

// trip opens the circuit. All subsequent attempts are refused until
// ResetCircuit. Caller must hold e.mu.
func (e *Engine) trip(reason, marketID string) {
	e.haltedReason = reason
	e.logger.Error("execution halted",
		slog.String("reason", reason),
		slog.String("market_id", marketID),
	)
}

func (e *Engine) handleReject() {
	e.rejectStreak++
	if e.rejectStreak >= e.cfg.MaxRejectStreak {
		e.trip(tripRejectStreak, "")
	}
}

// edgeSurvivesCosts re-prices the set with the slippage allowance and fees
// applied, using the book as it stands now rather than the quotes that
// produced the opportunity.
func (e *Engine) edgeSurvivesCosts(opportunity domain.CompleteSetOpportunity, book *domain.MarketBook) bool {
	feeMultiplier := book.FeeMultiplier()
	if opportunity.Direction == domain.DirectionBuySet {
		askSum := sumAsks(book)
		if askSum <= 0 {
			return false
		}
		projected := askSum * (1 + e.cfg.MaxSlippagePct) * feeMultiplier
		return projected < 1.0
	}

	bidSum := sumBids(book)
	if bidSum <= 0 {
		return false
	}
	projected := bidSum * (1 - e.cfg.MaxSlippagePct) / feeMultiplier
	return projected > 1.0
}

// estimateNotional projects the per-set cost (buy) or proceeds (sell) at the
// slippage-adjusted prices, scaled by size.
func (e *Engine) estimateNotional(opportunity domain.CompleteSetOpportunity, book *domain.MarketBook, size float64) float64 {
	var unit float64
	if opportunity.Direction == domain.DirectionBuySet {
		unit = sumAsks(book) * (1 + e.cfg.MaxSlippagePct)
	} else {
		unit = sumBids(book) * (1 - e.cfg.MaxSlippagePct)
	}
	return math.Max(unit, 0) * size
}

func (e *Engine) passesRiskLimits(opportunity domain.CompleteSetOpportunity, book *domain.MarketBook, tradeSize, projectedNotional float64) bool {
	if e.limits != nil && projectedNotional > e.limits.MaxNotionalUSD {
		e.logger.Warn("projected notional exceeds maximum",
			slog.String("market_id", opportunity.MarketID),
			slog.Float64("projected_notional", projectedNotional),
			slog.Float64("max_notional", e.limits.MaxNotionalUSD),
		)
		return false
	}

	if !e.positionsWithinLimits(opportunity, book, tradeSize) {
		return false
	}

	if e.limits != nil && !e.limits.ValidateLoss(e.currentRealizedLoss()) {
		e.trip(tripDailyLossLimit, opportunity.MarketID)
		return false
	}
	return true
}

func (e *Engine) positionsWithinLimits(opportunity domain.CompleteSetOpportunity, book *domain.MarketBook, tradeSize float64) bool {
	for symbol, projected := range e.projectedInventory(opportunity, book, tradeSize) {
		if e.caps != nil && !e.caps.WithinCaps(symbol, projected) {
			e.logger.Warn("inventory cap breached",
				slog.String("symbol", symbol),
				slog.Float64("projected", projected),
			)
			return false
		}
		if e.limits != nil && !e.limits.ValidatePosition(symbol, projected) {
			e.logger.Warn("position limit breached",
				slog.String("symbol", symbol),
				slog.Float64("projected", projected),
			)
			return false
		}
	}
	return true
}

// projectedInventory computes post-trade inventory per symbol: the outcome
// legs move by the trade size in the trade's direction, and a sell adds the
// minted set under the bare market symbol.
func (e *Engine) projectedInventory(opportunity domain.CompleteSetOpportunity, book *domain.MarketBook, tradeSize float64) map[string]float64 {
	projections := map[string]float64{}

	delta := tradeSize
	quotes := outcomesWithAsk(book)
	if opportunity.Direction == domain.DirectionSellSet {
		delta = -tradeSize
		quotes = outcomesWithBid(book)
	}
	for _, quote := range quotes {
		symbol := book.MarketID + ":" + quote.OutcomeID
		projections[symbol] = e.positions[symbol].Quantity + delta
	}

	if opportunity.Direction == domain.DirectionSellSet {
		mintSymbol := book.MarketID
		projections[mintSymbol] = e.positions[mintSymbol].Quantity + tradeSize
	}
	return projections
}

// currentRealizedLoss sums realized losses across symbols, as a positive
// magnitude. Gains on other symbols do not offset it.
func (e *Engine) currentRealizedLoss() float64 {
	loss := 0.0
	for _, pnl := range e.pnl.Positions() {
		if pnl.Realized < 0 {
			loss += -pnl.Realized
		}
	}
	return loss
}

func (e *Engine) claimIdempotency(key string) bool {
	now := e.now()
	if claimed, ok := e.recent[key]; ok && now.Sub(claimed) < e.cfg.IdempotencyTTL {
		return false
	}
	e.recent[key] = now
	return true
}

// opportunityKey identifies an opportunity by market, direction, and edge
// rounded to six decimals, so quote flutter does not defeat deduplication.
func opportunityKey(opportunity domain.CompleteSetOpportunity) string {
	edge := math.Round(opportunity.Edge*1e6) / 1e6
	return fmt.Sprintf("%s:%s:%s", opportunity.MarketID, opportunity.Direction, strconv.FormatFloat(edge, 'f', -1, 64))
}

// outcomesWithAsk returns the book's quotes carrying an ask, in outcome id
// order so leg submission is deterministic.
func outcomesWithAsk(book *domain.MarketBook) []*domain.OutcomeQuote {
	return sortedOutcomes(book, func(q *domain.OutcomeQuote) bool { return q.Ask != nil })
}

// outcomesWithBid returns the book's quotes carrying a bid, in outcome id
// order.
func outcomesWithBid(book *domain.MarketBook) []*domain.OutcomeQuote {
	return sortedOutcomes(book, func(q *domain.OutcomeQuote) bool { return q.Bid != nil })
}

func sortedOutcomes(book *domain.MarketBook, keep func(*domain.OutcomeQuote) bool) []*domain.OutcomeQuote {
	quotes := make([]*domain.OutcomeQuote, 0, len(book.Outcomes))
	for _, quote := range book.Outcomes {
		if keep(quote) {
			quotes = append(quotes, quote)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].OutcomeID < quotes[j].OutcomeID })
	return quotes
}

func sumAsks(book *domain.MarketBook) float64 {
	total := 0.0
	for _, quote := range outcomesWithAsk(book) {
		total += *quote.Ask
	}
	return total
}

func sumBids(book *domain.MarketBook) float64 {
	total := 0.0
	for _, quote := range outcomesWithBid(book) {
		total += *quote.Bid
	}
	return total
}
