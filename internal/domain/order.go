package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the order abstraction exposed to the exchange gateway.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Resolved reports whether the order has reached a terminal state.
func (s OrderStatus) Resolved() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest is what the execution coordinator hands to the exchange
// gateway. ClientID is a client-supplied idempotency key: resubmitting the
// same ClientID must not create a second order.
type OrderRequest struct {
	ClientID string
	Symbol   string
	Venue    string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    *float64 // nil for market orders
}

// OrderResult wraps the gateway response for a submitted or queried order.
type OrderResult struct {
	OrderID   string
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
	Message   string
}

// Order is the persisted record of a submitted order. ExchangeID is the
// venue-assigned identifier used for cancels and status queries.
type Order struct {
	ID          string
	ClientID    string
	ExchangeID  string
	PortfolioID string
	PositionID  string
	Symbol      string
	Venue       string
	Side        OrderSide
	Type        OrderType
	Quantity    float64
	Price       *float64
	Status      OrderStatus
	FilledQty   float64
	AvgPrice    float64
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Trade is the record of an executed fill, written by the execution
// coordinator when an order resolves.
type Trade struct {
	ID          string
	PortfolioID string
	PositionID  string
	OrderID     string
	Symbol      string
	Venue       string
	Side        OrderSide
	Quantity    float64
	Price       float64
	Reason      string
	ExecutedAt  time.Time
}
