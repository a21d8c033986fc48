package store

import (
	"context"
	"database/sql"
	"fmt"

	"keyshop-service/internal/models"

	"github.com/lib/pq"
)

// AllocateKeys atomically claims exactly quantity unassigned keys for an
// order. The claim and state flip happen in one transaction; SKIP LOCKED
// makes concurrent claimers for the same product pass over each other's
// rows instead of blocking, so two callers can never receive the same key.
// Returns ErrInsufficientInventory without side effects if fewer than
// quantity keys are claimable.
func (s *Store) AllocateKeys(ctx context.Context, productID, orderID int64, quantity int) ([]models.Key, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var ids []int64
	err = tx.SelectContext(ctx, &ids,
		`SELECT id FROM keys
		 WHERE product_id = $1 AND status = $2
		 ORDER BY id
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		productID, models.KeyStatusUnassigned, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to lock keys: %w", err)
	}

	if len(ids) < quantity {
		return nil, models.ErrInsufficientInventory
	}

	var keys []models.Key
	err = tx.SelectContext(ctx, &keys,
		`UPDATE keys
		 SET status = $1, order_id = $2, assigned_at = NOW()
		 WHERE id = ANY($3)
		 RETURNING *`,
		models.KeyStatusAssigned, orderID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to assign keys: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}

// ReleaseKeys reverses an allocation (compensation for a failed settlement).
// Only keys still in ASSIGNED state are touched.
func (s *Store) ReleaseKeys(ctx context.Context, keyIDs []int64) error {
	if len(keyIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE keys
		 SET status = $1, order_id = 0, assigned_at = NULL
		 WHERE id = ANY($2) AND status = $3`,
		models.KeyStatusUnassigned, pq.Array(keyIDs), models.KeyStatusAssigned)
	return err
}

// RevokeKey permanently removes a key from circulation. Revoking an already
// revoked key is a no-op.
func (s *Store) RevokeKey(ctx context.Context, keyID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE keys SET status = $1 WHERE id = $2 AND status <> $1",
		models.KeyStatusRevoked, keyID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM keys WHERE id = $1)", keyID); err != nil {
		return err
	}
	if !exists {
		return models.ErrKeyNotFound
	}
	return nil
}

// ImportKeys bulk-inserts new unassigned keys for a product
func (s *Store) ImportKeys(ctx context.Context, productID int64, secrets []string) (int, error) {
	if len(secrets) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		"INSERT INTO keys (product_id, secret, status) VALUES ($1, $2, $3)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, secret := range secrets {
		if _, err := stmt.ExecContext(ctx, productID, secret, models.KeyStatusUnassigned); err != nil {
			return 0, fmt.Errorf("failed to import key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(secrets), nil
}

// CountUnassignedKeys returns the available key count for a product
func (s *Store) CountUnassignedKeys(ctx context.Context, productID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM keys WHERE product_id = $1 AND status = $2",
		productID, models.KeyStatusUnassigned)
	return count, err
}

// GetKeysByOrderID retrieves the keys assigned to an order
func (s *Store) GetKeysByOrderID(ctx context.Context, orderID int64) ([]models.Key, error) {
	var keys []models.Key
	err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM keys WHERE order_id = $1 AND status = $2 ORDER BY id",
		orderID, models.KeyStatusAssigned)
	return keys, err
}

// GetKeyByID retrieves a single key
func (s *Store) GetKeyByID(ctx context.Context, keyID int64) (*models.Key, error) {
	var key models.Key
	err := s.db.GetContext(ctx, &key, "SELECT * FROM keys WHERE id = $1", keyID)
	if err == sql.ErrNoRows {
		return nil, models.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}
