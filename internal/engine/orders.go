package engine

import (
	"sync"

	"github.com/polyarb/setbot/internal/domain"
)

// OrderManager is the in-memory system of record for submitted orders. Every
// order is recorded before its network call goes out, so the log is complete
// even when the venue response is lost. Updating an order that was never
// recorded is a programming error and panics.
type OrderManager struct {
	mu     sync.Mutex
	orders map[string]*domain.OrderState
	ids    []string
}

// NewOrderManager creates an empty manager.
func NewOrderManager() *OrderManager {
	return &OrderManager{orders: map[string]*domain.OrderState{}}
}

// RecordSubmission registers a newly submitted order.
func (m *OrderManager) RecordSubmission(state domain.OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[state.OrderID]; !exists {
		m.ids = append(m.ids, state.OrderID)
	}
	copied := state
	m.orders[state.OrderID] = &copied
}

// UpdateFill applies a fill to a tracked order, moving it to partial_fill or
// filled depending on the cumulative quantity.
func (m *OrderManager) UpdateFill(orderID string, fillQuantity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.mustGet(orderID)
	order.FilledQuantity += fillQuantity
	if order.FilledQuantity >= order.Request.Quantity {
		order.Status = domain.OrderStatusFilled
	} else {
		order.Status = domain.OrderStatusPartialFill
	}
}

// SetStatus overwrites a tracked order's status.
func (m *OrderManager) SetStatus(orderID string, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mustGet(orderID).Status = status
}

// GetOrder returns a copy of the tracked order.
func (m *OrderManager) GetOrder(orderID string) domain.OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.mustGet(orderID)
}

// ListOrders returns copies of all tracked orders in submission order.
func (m *OrderManager) ListOrders() []domain.OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderState, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, *m.orders[id])
	}
	return out
}

// mustGet panics on an unknown order id. Caller must hold m.mu.
func (m *OrderManager) mustGet(orderID string) *domain.OrderState {
	order, ok := m.orders[orderID]
	if !ok {
		panic("engine: unknown order id " + orderID)
	}
	return order
}
