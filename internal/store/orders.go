package store

import (
	"context"
	"database/sql"
	"time"

	"keyshop-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (trade_no, product_id, quantity, unit_price, total_amount, email, user_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.TradeNo, order.ProductID, order.Quantity, order.UnitPrice,
		order.TotalAmount, order.Email, order.UserID, order.Status, order.ExpiresAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByTradeNo retrieves an order by its trade number
func (s *Store) GetOrderByTradeNo(ctx context.Context, tradeNo string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE trade_no = $1", tradeNo)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrder moves an order from one status to another as a single
// conditional update. Returns false if the order was no longer in the
// expected status, which is how concurrent transitions (an expiry sweep
// racing a settlement, a replayed callback) lose cleanly.
func (s *Store) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetOrderGateway records the selected gateway for an order
func (s *Store) SetOrderGateway(ctx context.Context, orderID, gatewayID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET gateway_id = $1, updated_at = NOW() WHERE id = $2",
		gatewayID, orderID)
	return err
}

// FindExpiredOrders returns orders awaiting payment past their deadline
func (s *Store) FindExpiredOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 AND expires_at < $2 ORDER BY expires_at",
		models.OrderStatusAwaitingPayment, now)
	return orders, err
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}
