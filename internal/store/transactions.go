package store

import (
	"context"
	"errors"

	"keyshop-service/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// RecordTransaction appends a settlement entry to the ledger. The table's
// unique constraint on (gateway_id, access_code) is the system's sole
// defense against duplicate settlement; a conflicting insert is mapped to
// ErrDuplicateAccessCode so callers can treat the replay as already done.
func (s *Store) RecordTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (order_id, gateway_id, access_code, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, txn, query,
		txn.OrderID, txn.GatewayID, txn.AccessCode, txn.Amount)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateAccessCode
		}
		return err
	}
	return nil
}

// TransactionExists checks whether a gateway payment event was already settled
func (s *Store) TransactionExists(ctx context.Context, gatewayID int64, accessCode string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM transactions WHERE gateway_id = $1 AND access_code = $2)",
		gatewayID, accessCode)
	return exists, err
}

// GetTransactionsByOrderID retrieves ledger entries for an order
func (s *Store) GetTransactionsByOrderID(ctx context.Context, orderID int64) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.SelectContext(ctx, &txns,
		"SELECT * FROM transactions WHERE order_id = $1 ORDER BY created_at", orderID)
	return txns, err
}
