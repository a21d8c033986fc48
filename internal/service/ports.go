package service

import (
	"context"
	"time"

	"keyshop-service/internal/models"
)

// Store ports consumed by the services. *store.Store satisfies all of them;
// tests substitute in-memory fakes.

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByTradeNo(ctx context.Context, tradeNo string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error)
	SetOrderGateway(ctx context.Context, orderID, gatewayID int64) error
	FindExpiredOrders(ctx context.Context, now time.Time) ([]models.Order, error)
}

type KeyStore interface {
	AllocateKeys(ctx context.Context, productID, orderID int64, quantity int) ([]models.Key, error)
	ReleaseKeys(ctx context.Context, keyIDs []int64) error
	RevokeKey(ctx context.Context, keyID int64) error
	ImportKeys(ctx context.Context, productID int64, secrets []string) (int, error)
	CountUnassignedKeys(ctx context.Context, productID int64) (int, error)
	GetKeysByOrderID(ctx context.Context, orderID int64) ([]models.Key, error)
	GetKeyByID(ctx context.Context, keyID int64) (*models.Key, error)
}

type LedgerStore interface {
	RecordTransaction(ctx context.Context, txn *models.Transaction) error
	TransactionExists(ctx context.Context, gatewayID int64, accessCode string) (bool, error)
	GetTransactionsByOrderID(ctx context.Context, orderID int64) ([]models.Transaction, error)
}

type CatalogStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetGatewayByID(ctx context.Context, id int64) (*models.Gateway, error)
	ListEnabledGateways(ctx context.Context) ([]models.Gateway, error)
}

// AvailabilityCache is the advisory per-product available-count cache
// (redisclient.Client). May be nil; every read falls back to the store.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, productID int64) (int, bool, error)
	SetAvailable(ctx context.Context, productID int64, count int, ttl time.Duration) error
	InvalidateAvailable(ctx context.Context, productID int64) error
}

// IdempotencyCache is the fast-path dedup marker store for callbacks
// (redisclient.Client). May be nil; the transaction ledger remains the
// durable dedup record either way.
type IdempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// EventPublisher publishes domain events to the broker
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderAwaitingPayment(ctx context.Context, event *models.OrderAwaitingPaymentEvent) error
	PublishOrderFulfilled(ctx context.Context, event *models.OrderFulfilledEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderExpired(ctx context.Context, event *models.OrderExpiredEvent) error
	PublishPaymentNoStock(ctx context.Context, event *models.PaymentNoStockEvent) error
}
