// Package readmodel maintains a redis-cached projection of per-owner
// ownership summaries. The ledger stores stay authoritative; the cache only
// serves hot readers and is refreshed by a worker consuming audit
// notifications.
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shareledger/internal/shares/models"
)

// Cache stores and serves ownership summaries.
type Cache interface {
	GetSummary(ctx context.Context, owner models.OwnerRef) (*models.OwnershipSummary, bool, error)
	SetSummary(ctx context.Context, summary *models.OwnershipSummary) error
	InvalidateSummary(ctx context.Context, owner models.OwnerRef) error
}

// RedisCache keeps summaries as JSON values with a TTL, so a missed refresh
// only ever leaves a stale entry until expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func summaryKey(owner models.OwnerRef) string {
	return fmt.Sprintf("shareledger:summary:%s:%s", owner.Type, owner.ID)
}

func (c *RedisCache) GetSummary(ctx context.Context, owner models.OwnerRef) (*models.OwnershipSummary, bool, error) {
	data, err := c.client.Get(ctx, summaryKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get summary: %w", err)
	}
	var summary models.OwnershipSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		// A corrupt entry is treated as a miss; the next refresh rewrites it.
		_ = c.client.Del(ctx, summaryKey(owner)).Err()
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *RedisCache) SetSummary(ctx context.Context, summary *models.OwnershipSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(summary.Owner), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateSummary(ctx context.Context, owner models.OwnerRef) error {
	if err := c.client.Del(ctx, summaryKey(owner)).Err(); err != nil {
		return fmt.Errorf("invalidate summary: %w", err)
	}
	return nil
}
