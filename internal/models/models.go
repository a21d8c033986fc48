package models

import "time"

// Product represents a sellable item in the catalog
type Product struct {
	ID        int64     `db:"id" json:"id"`
	GroupID   int64     `db:"group_id" json:"group_id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"` // minor units
	Enabled   bool      `db:"enabled" json:"enabled"`
	Hidden    bool      `db:"hidden" json:"hidden"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Sellable reports whether the product can be ordered
func (p *Product) Sellable() bool {
	return p.Enabled && !p.Hidden
}

// Key represents a single access code in a product's inventory pool
type Key struct {
	ID         int64      `db:"id" json:"id"`
	ProductID  int64      `db:"product_id" json:"product_id"`
	Secret     string     `db:"secret" json:"-"`
	Status     string     `db:"status" json:"status"`
	OrderID    int64      `db:"order_id" json:"order_id,omitempty"` // 0 until assigned
	AssignedAt *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Order represents a purchase intent for one product
type Order struct {
	ID          int64     `db:"id" json:"id"`
	TradeNo     string    `db:"trade_no" json:"trade_no"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   int64     `db:"unit_price" json:"unit_price"`     // snapshot at creation
	TotalAmount int64     `db:"total_amount" json:"total_amount"` // unit_price * quantity
	Email       string    `db:"email" json:"email"`
	UserID      string    `db:"user_id" json:"user_id,omitempty"` // empty for guest orders
	GatewayID   int64     `db:"gateway_id" json:"gateway_id,omitempty"`
	Status      string    `db:"status" json:"status"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Gateway represents a configured payment provider
type Gateway struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Provider   string    `db:"provider" json:"provider"`
	MerchantID string    `db:"merchant_id" json:"-"`
	Secret     string    `db:"secret" json:"-"`
	Endpoint   string    `db:"endpoint" json:"-"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Transaction is an append-only ledger entry for one settled payment event.
// (gateway_id, access_code) is unique at the storage layer; that constraint
// is what guarantees exactly-once settlement under concurrent callbacks.
type Transaction struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	GatewayID  int64     `db:"gateway_id" json:"gateway_id"`
	AccessCode string    `db:"access_code" json:"access_code"`
	Amount     int64     `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending         = "PENDING"
	OrderStatusAwaitingPayment = "AWAITING_PAYMENT"
	OrderStatusPaid            = "PAID"
	OrderStatusFulfilled       = "FULFILLED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusNoStock         = "PAYMENT_RECEIVED_NO_STOCK"
)

// Key statuses
const (
	KeyStatusUnassigned = "UNASSIGNED"
	KeyStatusReserved   = "RESERVED"
	KeyStatusAssigned   = "ASSIGNED"
	KeyStatusRevoked    = "REVOKED"
)

// allowedOrderTransitions is the order state machine. Terminal states have no
// outgoing edges. PAYMENT_RECEIVED_NO_STOCK is not terminal: it is resolved
// manually, either by restock fulfillment or by a refund cancellation.
var allowedOrderTransitions = map[string]map[string]bool{
	OrderStatusPending: {
		OrderStatusAwaitingPayment: true,
		OrderStatusCancelled:       true,
	},
	OrderStatusAwaitingPayment: {
		OrderStatusPaid:      true,
		OrderStatusCancelled: true,
		OrderStatusExpired:   true,
	},
	OrderStatusPaid: {
		OrderStatusFulfilled: true,
		OrderStatusNoStock:   true,
	},
	OrderStatusNoStock: {
		OrderStatusFulfilled: true,
		OrderStatusCancelled: true,
	},
}

// CanTransitionOrder reports whether an order may move between two statuses
func CanTransitionOrder(from, to string) bool {
	return allowedOrderTransitions[from][to]
}

// IsTerminalOrderStatus reports whether the status has no outgoing transitions
func IsTerminalOrderStatus(status string) bool {
	return len(allowedOrderTransitions[status]) == 0
}
