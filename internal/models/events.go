package models

import "time"

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderAwaitingPayment = "ORDER_AWAITING_PAYMENT"
	EventTypeOrderFulfilled       = "ORDER_FULFILLED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderExpired         = "ORDER_EXPIRED"
	EventTypePaymentNoStock       = "PAYMENT_NO_STOCK"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	TradeNo     string `json:"trade_no"`
	ProductID   int64  `json:"product_id"`
	Quantity    int    `json:"quantity"`
	TotalAmount int64  `json:"total_amount"`
}

// OrderAwaitingPaymentEvent published when a gateway is selected for an order
type OrderAwaitingPaymentEvent struct {
	BaseEvent
	OrderID   int64 `json:"order_id"`
	GatewayID int64 `json:"gateway_id"`
}

// OrderFulfilledEvent published when keys are assigned after settlement.
// Carries key ids only; the delivery worker loads the secrets itself so
// they never travel through the broker.
type OrderFulfilledEvent struct {
	BaseEvent
	OrderID int64   `json:"order_id"`
	TradeNo string  `json:"trade_no"`
	Email   string  `json:"email"`
	KeyIDs  []int64 `json:"key_ids"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderExpiredEvent published when an unpaid order times out
type OrderExpiredEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}

// PaymentNoStockEvent published when a genuine payment arrives for a product
// whose key pool is exhausted. Consumed by ops tooling for manual refund or
// restock; the payment itself is already on the ledger.
type PaymentNoStockEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	TradeNo    string `json:"trade_no"`
	ProductID  int64  `json:"product_id"`
	GatewayID  int64  `json:"gateway_id"`
	AccessCode string `json:"access_code"`
	Amount     int64  `json:"amount"`
}
