package worker

import (
	"context"
	"log"
	"time"

	"keyshop-service/internal/broker"
	"keyshop-service/internal/models"
	"keyshop-service/internal/notifier"
	"keyshop-service/internal/service"
	"keyshop-service/internal/util"

	"go.uber.org/zap"
)

// DeliveryWorker consumes OrderFulfilled events and triggers key delivery.
// Secrets are loaded from the store at delivery time so they never pass
// through the broker.
type DeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	allocator    *service.Allocator
	notifier     notifier.Notifier
	logger       *zap.Logger
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(
	consumer *broker.Consumer,
	allocator *service.Allocator,
	n notifier.Notifier,
) *DeliveryWorker {
	w := &DeliveryWorker{
		consumer:  consumer,
		allocator: allocator,
		notifier:  n,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderFulfilled(w.handleFulfilled)
	w.eventHandler = eventHandler
	return w
}

func (w *DeliveryWorker) handleFulfilled(ctx context.Context, event *models.OrderFulfilledEvent) error {
	keys, err := w.allocator.KeysForOrder(ctx, event.OrderID)
	if err != nil {
		return err
	}

	secrets := make([]string, len(keys))
	for i, k := range keys {
		secrets[i] = k.Secret
	}

	return w.notifier.DeliverKeys(ctx, event.Email, event.TradeNo, secrets)
}

// Start starts the worker
func (w *DeliveryWorker) Start(ctx context.Context) error {
	log.Println("Starting delivery worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryWorker) Stop() error {
	log.Println("Stopping delivery worker...")
	return w.consumer.Close()
}

// LockClient is the distributed lock used to keep expiry sweeps from
// running on several instances at once (redisclient.Client).
type LockClient interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// ExpiryWorker periodically expires unpaid orders past their deadline
type ExpiryWorker struct {
	orders   *service.OrderService
	locks    LockClient
	interval time.Duration
	logger   *zap.Logger
}

const expiryLockKey = "order-expiry-sweep"

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(orders *service.OrderService, locks LockClient, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		orders:   orders,
		locks:    locks,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *ExpiryWorker) Start(ctx context.Context) {
	log.Println("Starting expiry worker...")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	if w.locks != nil {
		acquired, err := w.locks.AcquireLock(ctx, expiryLockKey, w.interval)
		if err != nil {
			w.logger.Warn("Failed to acquire expiry lock", zap.Error(err))
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := w.locks.ReleaseLock(ctx, expiryLockKey); err != nil {
				w.logger.Warn("Failed to release expiry lock", zap.Error(err))
			}
		}()
	}

	if err := w.orders.ExpireStale(ctx); err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
	}
}
