package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetAvailable reads the cached unassigned-key count for a product.
// Returns (0, false, nil) on a cache miss. The cache is advisory: the
// authoritative count lives in the key rows and is enforced at claim time.
func (c *Client) GetAvailable(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, availabilityKey(productID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt availability cache entry: %w", err)
	}
	return count, true, nil
}

// SetAvailable caches the unassigned-key count for a product with a TTL
func (c *Client) SetAvailable(ctx context.Context, productID int64, count int, ttl time.Duration) error {
	return c.rdb.Set(ctx, availabilityKey(productID), count, ttl).Err()
}

// InvalidateAvailable drops the cached count after any key state mutation
func (c *Client) InvalidateAvailable(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, availabilityKey(productID)).Err()
}

func availabilityKey(productID int64) string {
	return fmt.Sprintf("keys:available:%d", productID)
}

// SetIdempotencyKey stores a processed-callback marker with TTL. A fast
// path only; the transactions table is the durable dedup record.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), "1", ttl).Err()
}

// CheckIdempotencyKey checks if a processed-callback marker exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
