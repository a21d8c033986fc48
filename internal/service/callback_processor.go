package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keyshop-service/internal/gateway"
	"keyshop-service/internal/models"
	"keyshop-service/internal/util"

	"go.uber.org/zap"
)

// Result classifies the outcome of processing one gateway callback
type Result string

const (
	ResultFulfilled         Result = "FULFILLED"
	ResultAlreadyProcessed  Result = "ALREADY_PROCESSED"
	ResultRejected          Result = "REJECTED"
	ResultInvalidOrderState Result = "INVALID_ORDER_STATE"
	ResultNoStock           Result = "NO_STOCK"
	ResultRetry             Result = "RETRY"
)

const idempotencyTTL = 24 * time.Hour

// CallbackProcessor settles payment gateway callbacks idempotently. The
// transaction ledger's unique (gateway_id, access_code) constraint is the
// durable dedup record; the redis marker is only a fast path.
type CallbackProcessor struct {
	orders    OrderStore
	catalog   CatalogStore
	ledger    LedgerStore
	allocator *Allocator
	registry  *gateway.Registry
	cache     IdempotencyCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCallbackProcessor creates a new callback processor
func NewCallbackProcessor(
	orders OrderStore,
	catalog CatalogStore,
	ledger LedgerStore,
	allocator *Allocator,
	registry *gateway.Registry,
	cache IdempotencyCache,
	publisher EventPublisher,
) *CallbackProcessor {
	return &CallbackProcessor{
		orders:    orders,
		catalog:   catalog,
		ledger:    ledger,
		allocator: allocator,
		registry:  registry,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleCallback verifies and settles one raw provider payload. Safe to
// call any number of times with the same payload: replays are answered
// with ResultAlreadyProcessed and no further mutation.
func (p *CallbackProcessor) HandleCallback(ctx context.Context, gatewayID int64, raw []byte) (Result, error) {
	ctx, span := util.StartSpan(ctx, "CallbackProcessor.HandleCallback")
	defer span.End()

	start := time.Now()
	result, err := p.process(ctx, gatewayID, raw)
	util.CallbackLatency.Observe(time.Since(start).Seconds())
	util.CallbacksTotal.WithLabelValues(string(result)).Inc()
	return result, err
}

func (p *CallbackProcessor) process(ctx context.Context, gatewayID int64, raw []byte) (Result, error) {
	gw, err := p.catalog.GetGatewayByID(ctx, gatewayID)
	if err != nil {
		return ResultRejected, err
	}

	adapter, err := p.registry.Lookup(gw.Provider)
	if err != nil {
		return ResultRejected, err
	}

	cb, err := adapter.VerifyCallback(raw, gw)
	if err != nil {
		p.logger.Warn("Callback verification failed",
			zap.Int64("gateway_id", gatewayID),
			zap.Error(err))
		return ResultRejected, err
	}
	if !cb.Succeeded {
		p.logger.Info("Callback reports unsuccessful payment",
			zap.String("trade_no", cb.TradeNo))
		return ResultRejected, nil
	}

	order, err := p.orders.GetOrderByTradeNo(ctx, cb.TradeNo)
	if err != nil {
		return ResultRejected, err
	}

	if processed, err := p.alreadyProcessed(ctx, gw.ID, cb.AccessCode); err != nil {
		return ResultRetry, err
	} else if processed {
		return ResultAlreadyProcessed, nil
	}

	// Guards stale or forged callbacks targeting an order that moved on,
	// including expiry: a late payment for an expired order is a refund
	// case, handled off the ledger, never a silent fulfillment.
	if order.Status != models.OrderStatusAwaitingPayment || order.GatewayID != gw.ID {
		p.logger.Warn("Callback for order in unexpected state",
			zap.Int64("order_id", order.ID),
			zap.String("status", order.Status))
		return ResultInvalidOrderState, nil
	}

	if cb.Amount != order.TotalAmount {
		p.logger.Error("Callback amount mismatch, leaving order for manual review",
			zap.Int64("order_id", order.ID),
			zap.Int64("expected", order.TotalAmount),
			zap.Int64("received", cb.Amount))
		return ResultRejected, models.ErrAmountMismatch
	}

	keys, err := p.allocator.Allocate(ctx, order.ProductID, order.ID, order.Quantity)
	if errors.Is(err, models.ErrInsufficientInventory) {
		return p.settleWithoutStock(ctx, order, gw, cb)
	}
	if err != nil {
		return ResultRetry, fmt.Errorf("allocation failed: %w", err)
	}

	txn := &models.Transaction{
		OrderID:    order.ID,
		GatewayID:  gw.ID,
		AccessCode: cb.AccessCode,
		Amount:     cb.Amount,
	}
	if err := p.ledger.RecordTransaction(ctx, txn); err != nil {
		// Either way the keys go back: a duplicate means a concurrent
		// attempt already settled this payment, anything else means we
		// must let the gateway retry from scratch.
		p.releaseKeys(ctx, order.ProductID, keys)
		if errors.Is(err, models.ErrDuplicateAccessCode) {
			return ResultAlreadyProcessed, nil
		}
		return ResultRetry, fmt.Errorf("ledger write failed: %w", err)
	}

	applied, err := p.orders.TransitionOrder(ctx, order.ID, models.OrderStatusAwaitingPayment, models.OrderStatusPaid)
	if err == nil && applied {
		_, err = p.orders.TransitionOrder(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusFulfilled)
	}
	if err != nil {
		p.logger.Error("Failed to advance order after settlement",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return ResultRetry, err
	}
	if !applied {
		// The expiry sweep won the race after our state check. The payment
		// is on the ledger for the refund; the keys must not stay assigned
		// to an expired order.
		p.logger.Error("Order left awaiting-payment during settlement, payment kept on ledger for refund",
			zap.Int64("order_id", order.ID))
		p.releaseKeys(ctx, order.ProductID, keys)
		return ResultInvalidOrderState, nil
	}

	p.markProcessed(ctx, gw.ID, cb.AccessCode)
	util.OrdersFulfilledTotal.Inc()
	p.logger.Info("Order fulfilled",
		zap.Int64("order_id", order.ID),
		zap.String("trade_no", order.TradeNo),
		zap.Int("keys", len(keys)))

	keyIDs := make([]int64, len(keys))
	for i, k := range keys {
		keyIDs[i] = k.ID
	}
	event := &models.OrderFulfilledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderFulfilled),
		OrderID:   order.ID,
		TradeNo:   order.TradeNo,
		Email:     order.Email,
		KeyIDs:    keyIDs,
	}
	if err := p.publisher.PublishOrderFulfilled(ctx, event); err != nil {
		// delivery is retried independently, a fulfilled order never rolls back
		p.logger.Error("Failed to publish OrderFulfilled event", zap.Error(err))
	}

	return ResultFulfilled, nil
}

// settleWithoutStock records a genuine payment for which no keys remain.
// The transaction still goes on the ledger and the order lands in
// PAYMENT_RECEIVED_NO_STOCK for manual restock or refund.
func (p *CallbackProcessor) settleWithoutStock(ctx context.Context, order *models.Order, gw *models.Gateway, cb *gateway.VerifiedCallback) (Result, error) {
	txn := &models.Transaction{
		OrderID:    order.ID,
		GatewayID:  gw.ID,
		AccessCode: cb.AccessCode,
		Amount:     cb.Amount,
	}
	if err := p.ledger.RecordTransaction(ctx, txn); err != nil {
		if errors.Is(err, models.ErrDuplicateAccessCode) {
			return ResultAlreadyProcessed, nil
		}
		return ResultRetry, fmt.Errorf("ledger write failed: %w", err)
	}

	if applied, err := p.orders.TransitionOrder(ctx, order.ID, models.OrderStatusAwaitingPayment, models.OrderStatusPaid); err != nil || !applied {
		p.logger.Error("Failed to mark no-stock order paid",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	} else if _, err := p.orders.TransitionOrder(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusNoStock); err != nil {
		p.logger.Error("Failed to mark order no-stock", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	p.markProcessed(ctx, gw.ID, cb.AccessCode)
	util.NoStockSettlementsTotal.Inc()
	p.logger.Error("Payment received for exhausted key pool",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", order.ProductID),
		zap.String("access_code", cb.AccessCode))

	event := &models.PaymentNoStockEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentNoStock),
		OrderID:    order.ID,
		TradeNo:    order.TradeNo,
		ProductID:  order.ProductID,
		GatewayID:  gw.ID,
		AccessCode: cb.AccessCode,
		Amount:     cb.Amount,
	}
	if err := p.publisher.PublishPaymentNoStock(ctx, event); err != nil {
		p.logger.Error("Failed to publish PaymentNoStock event", zap.Error(err))
	}

	return ResultNoStock, nil
}

func (p *CallbackProcessor) alreadyProcessed(ctx context.Context, gatewayID int64, accessCode string) (bool, error) {
	if p.cache != nil {
		hit, err := p.cache.CheckIdempotencyKey(ctx, idempotencyKey(gatewayID, accessCode))
		if err != nil {
			p.logger.Warn("Idempotency cache check failed", zap.Error(err))
		} else if hit {
			return true, nil
		}
	}
	return p.ledger.TransactionExists(ctx, gatewayID, accessCode)
}

func (p *CallbackProcessor) markProcessed(ctx context.Context, gatewayID int64, accessCode string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetIdempotencyKey(ctx, idempotencyKey(gatewayID, accessCode), idempotencyTTL); err != nil {
		p.logger.Warn("Failed to set idempotency marker", zap.Error(err))
	}
}

func (p *CallbackProcessor) releaseKeys(ctx context.Context, productID int64, keys []models.Key) {
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	if err := p.allocator.Release(ctx, productID, ids); err != nil {
		p.logger.Error("Failed to release keys after settlement failure",
			zap.Int64s("key_ids", ids),
			zap.Error(err))
	}
}

func idempotencyKey(gatewayID int64, accessCode string) string {
	return fmt.Sprintf("callback:%d:%s", gatewayID, accessCode)
}
