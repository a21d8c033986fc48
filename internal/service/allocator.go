package service

import (
	"context"
	"errors"
	"time"

	"keyshop-service/internal/models"
	"keyshop-service/internal/util"

	"go.uber.org/zap"
)

// Allocator owns all mutation of key state. Atomicity of the claim itself
// lives in the key store; the allocator adds metrics and keeps the advisory
// availability cache coherent.
type Allocator struct {
	keys     KeyStore
	cache    AvailabilityCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAllocator creates a new key inventory allocator
func NewAllocator(keys KeyStore, cache AvailabilityCache, cacheTTL time.Duration) *Allocator {
	return &Allocator{
		keys:     keys,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// Available returns the unassigned key count for a product. Served from the
// cache when possible; this is only ever a soft signal, the claim enforces
// the real count.
func (a *Allocator) Available(ctx context.Context, productID int64) (int, error) {
	if a.cache != nil {
		count, ok, err := a.cache.GetAvailable(ctx, productID)
		if err != nil {
			a.logger.Warn("Availability cache read failed, falling back to store",
				zap.Int64("product_id", productID),
				zap.Error(err))
		} else if ok {
			return count, nil
		}
	}

	count, err := a.keys.CountUnassignedKeys(ctx, productID)
	if err != nil {
		return 0, err
	}

	if a.cache != nil {
		if err := a.cache.SetAvailable(ctx, productID, count, a.cacheTTL); err != nil {
			a.logger.Warn("Failed to populate availability cache", zap.Error(err))
		}
	}
	return count, nil
}

// Allocate atomically claims quantity keys for an order
func (a *Allocator) Allocate(ctx context.Context, productID, orderID int64, quantity int) ([]models.Key, error) {
	ctx, span := util.StartSpan(ctx, "Allocator.Allocate")
	defer span.End()

	start := time.Now()
	keys, err := a.keys.AllocateKeys(ctx, productID, orderID, quantity)
	util.KeyAllocationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, models.ErrInsufficientInventory) {
			util.KeyAllocationsFailed.WithLabelValues("insufficient_inventory").Inc()
		} else {
			util.KeyAllocationsFailed.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	util.KeysAllocatedTotal.Add(float64(len(keys)))
	a.invalidate(ctx, productID)
	return keys, nil
}

// Release returns assigned keys to the pool. Used only to compensate a
// settlement that failed after allocation; never after keys were disclosed.
func (a *Allocator) Release(ctx context.Context, productID int64, keyIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "Allocator.Release")
	defer span.End()

	if err := a.keys.ReleaseKeys(ctx, keyIDs); err != nil {
		return err
	}
	util.KeysReleasedTotal.Add(float64(len(keyIDs)))
	a.invalidate(ctx, productID)
	return nil
}

// Revoke permanently removes a key from circulation; idempotent
func (a *Allocator) Revoke(ctx context.Context, keyID int64) error {
	key, err := a.keys.GetKeyByID(ctx, keyID)
	if err != nil {
		return err
	}

	if err := a.keys.RevokeKey(ctx, keyID); err != nil {
		return err
	}
	a.invalidate(ctx, key.ProductID)
	return nil
}

// Import bulk-loads new unassigned keys for a product
func (a *Allocator) Import(ctx context.Context, productID int64, secrets []string) (int, error) {
	count, err := a.keys.ImportKeys(ctx, productID, secrets)
	if err != nil {
		return 0, err
	}
	a.invalidate(ctx, productID)
	a.logger.Info("Keys imported",
		zap.Int64("product_id", productID),
		zap.Int("count", count))
	return count, nil
}

// KeysForOrder returns the keys assigned to an order
func (a *Allocator) KeysForOrder(ctx context.Context, orderID int64) ([]models.Key, error) {
	return a.keys.GetKeysByOrderID(ctx, orderID)
}

func (a *Allocator) invalidate(ctx context.Context, productID int64) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateAvailable(ctx, productID); err != nil {
		a.logger.Warn("Failed to invalidate availability cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}
