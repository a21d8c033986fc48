package service

import (
	"context"
	"fmt"
	"time"

	"keyshop-service/internal/gateway"
	"keyshop-service/internal/models"
	"keyshop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService manages the order lifecycle
type OrderService struct {
	orders    OrderStore
	catalog   CatalogStore
	ledger    LedgerStore
	allocator *Allocator
	registry  *gateway.Registry
	publisher EventPublisher
	logger    *zap.Logger
	expiry    time.Duration
	returnURL string
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	catalog CatalogStore,
	ledger LedgerStore,
	allocator *Allocator,
	registry *gateway.Registry,
	publisher EventPublisher,
	expiry time.Duration,
	returnURL string,
) *OrderService {
	return &OrderService{
		orders:    orders,
		catalog:   catalog,
		ledger:    ledger,
		allocator: allocator,
		registry:  registry,
		publisher: publisher,
		logger:    util.GetLogger(),
		expiry:    expiry,
		returnURL: returnURL,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Email     string `json:"email" binding:"required,email"`
	UserID    string `json:"user_id,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID int64  `json:"order_id"`
	TradeNo string `json:"trade_no"`
	Status  string `json:"status"`
}

// Create validates product availability and persists a new pending order.
// The availability check is a soft gate: no keys are reserved here, the
// final claim happens at settlement.
func (s *OrderService) Create(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	product, err := s.catalog.GetProductByID(ctx, req.ProductID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, err
	}
	if !product.Sellable() {
		util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
		return nil, models.ErrProductNotFound
	}

	available, err := s.allocator.Available(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if available < req.Quantity {
		util.OrdersFailedTotal.WithLabelValues("insufficient_inventory").Inc()
		return nil, models.ErrInsufficientInventory
	}

	order := &models.Order{
		TradeNo:     uuid.New().String(),
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		UnitPrice:   product.Price,
		TotalAmount: product.Price * int64(req.Quantity),
		Email:       req.Email,
		UserID:      req.UserID,
		Status:      models.OrderStatusPending,
		ExpiresAt:   time.Now().Add(s.expiry),
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("trade_no", order.TradeNo),
		zap.Int64("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity))

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		TradeNo:     order.TradeNo,
		ProductID:   order.ProductID,
		Quantity:    order.Quantity,
		TotalAmount: order.TotalAmount,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID: order.ID,
		TradeNo: order.TradeNo,
		Status:  order.Status,
	}, nil
}

// SelectGateway transitions a pending order to awaiting payment and builds
// the provider payment intent. Building the intent has no side effects on
// the order beyond the state transition.
func (s *OrderService) SelectGateway(ctx context.Context, orderID, gatewayID int64) (*gateway.PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SelectGateway")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	gw, err := s.catalog.GetGatewayByID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if !gw.Enabled {
		return nil, models.ErrGatewayUnavailable
	}

	adapter, err := s.registry.Lookup(gw.Provider)
	if err != nil {
		return nil, err
	}

	applied, err := s.orders.TransitionOrder(ctx, order.ID, models.OrderStatusPending, models.OrderStatusAwaitingPayment)
	if err != nil {
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	if !applied {
		return nil, models.ErrInvalidStateTransition
	}

	if err := s.orders.SetOrderGateway(ctx, order.ID, gw.ID); err != nil {
		return nil, fmt.Errorf("failed to set order gateway: %w", err)
	}

	intent, err := adapter.BuildIntent(order, gw, s.returnURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build payment intent: %w", err)
	}

	event := &models.OrderAwaitingPaymentEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderAwaitingPayment),
		OrderID:   order.ID,
		GatewayID: gw.ID,
	}
	if err := s.publisher.PublishOrderAwaitingPayment(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderAwaitingPayment event", zap.Error(err))
	}

	return intent, nil
}

// Cancel cancels an order that has not been paid yet
func (s *OrderService) Cancel(ctx context.Context, orderID int64, reason string) error {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !models.CanTransitionOrder(order.Status, models.OrderStatusCancelled) {
		return models.ErrInvalidStateTransition
	}

	applied, err := s.orders.TransitionOrder(ctx, orderID, order.Status, models.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrInvalidStateTransition
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return nil
}

// Expire times out an unpaid order. A no-op, not an error, for orders in
// any other state: a callback that already settled the order wins.
func (s *OrderService) Expire(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusAwaitingPayment {
		return nil
	}

	applied, err := s.orders.TransitionOrder(ctx, orderID, models.OrderStatusAwaitingPayment, models.OrderStatusExpired)
	if err != nil {
		return err
	}
	if !applied {
		// lost the race against a settlement; nothing to do
		return nil
	}

	util.OrdersExpiredTotal.Inc()
	s.logger.Info("Order expired", zap.Int64("order_id", orderID))

	event := &models.OrderExpiredEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderExpired),
		OrderID:   orderID,
	}
	if err := s.publisher.PublishOrderExpired(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderExpired event", zap.Error(err))
	}
	return nil
}

// ExpireStale expires all awaiting-payment orders past their deadline
func (s *OrderService) ExpireStale(ctx context.Context) error {
	orders, err := s.orders.FindExpiredOrders(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to find expired orders: %w", err)
	}

	for _, order := range orders {
		if err := s.Expire(ctx, order.ID); err != nil {
			s.logger.Error("Failed to expire order",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Get retrieves an order and, once fulfilled, its assigned keys
func (s *OrderService) Get(ctx context.Context, orderID int64) (*models.Order, []models.Key, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if order.Status != models.OrderStatusFulfilled {
		return order, nil, nil
	}

	keys, err := s.allocator.KeysForOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, keys, nil
}

// ListGateways returns the gateways a buyer can pick from
func (s *OrderService) ListGateways(ctx context.Context) ([]models.Gateway, error) {
	return s.catalog.ListEnabledGateways(ctx)
}

// ListForUser returns a user's order history
func (s *OrderService) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.GetOrdersByUserID(ctx, userID)
}

// Inspect returns an order with its keys and ledger entries, for admin review
// of no-stock settlements and refund cases. Unlike Get, keys are included in
// any state.
func (s *OrderService) Inspect(ctx context.Context, orderID int64) (*models.Order, []models.Key, []models.Transaction, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	keys, err := s.allocator.KeysForOrder(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	txns, err := s.ledger.GetTransactionsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, keys, txns, nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
