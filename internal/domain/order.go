package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates how the order interacts with the book.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks the order lifecycle. Timeout and rejected are terminal
// for the attempt; no automatic retry is performed.
type OrderStatus string

const (
	OrderStatusNew         OrderStatus = "new"
	OrderStatusPartialFill OrderStatus = "partial_fill"
	OrderStatusFilled      OrderStatus = "filled"
	OrderStatusRejected    OrderStatus = "rejected"
	OrderStatusTimeout     OrderStatus = "timeout"
)

// OrderRequest describes an order to be placed on the venue. Symbol is
// "marketID:outcomeID" for outcome legs and the bare market id for mints.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    *float64 // limit price, nil for pure market orders
}

// OrderState tracks the lifecycle of a submitted order. It is created on
// submission and mutated only on fill, timeout, or rejection.
type OrderState struct {
	OrderID        string
	Request        OrderRequest
	Status         OrderStatus
	FilledQuantity float64
}
