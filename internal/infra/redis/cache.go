package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
	"github.com/dpin8449/KOMBUCHAS/internal/service"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = 5 * time.Minute

	batchKeyPrefix = "batch:"
	listKey        = "batch:list"
)

var _ service.BatchCache = (*RedisBatchCache)(nil)

// RedisBatchCache caches batch lookups as JSON values with a TTL. A miss is
// reported through the bool return, never as an error.
type RedisBatchCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisBatchCache(client *goredis.Client, ttl time.Duration) (*RedisBatchCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &RedisBatchCache{client: client, ttl: ttl}, nil
}

func (c *RedisBatchCache) GetList(ctx context.Context) ([]domain.Batch, bool, error) {
	raw, err := c.client.Get(ctx, listKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read batch list from cache: %w", err)
	}

	var batches []domain.Batch
	if err := json.Unmarshal(raw, &batches); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached batch list: %w", err)
	}
	return batches, true, nil
}

func (c *RedisBatchCache) SetList(ctx context.Context, batches []domain.Batch) error {
	raw, err := json.Marshal(batches)
	if err != nil {
		return fmt.Errorf("failed to encode batch list for cache: %w", err)
	}
	if err := c.client.Set(ctx, listKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write batch list to cache: %w", err)
	}
	return nil
}

func (c *RedisBatchCache) GetBatch(ctx context.Context, id string) (*domain.Batch, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, batchKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read batch from cache: %w", err)
	}

	var b domain.Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached batch: %w", err)
	}
	return &b, true, nil
}

func (c *RedisBatchCache) SetBatch(ctx context.Context, b *domain.Batch) error {
	if b == nil || strings.TrimSpace(b.ID) == "" {
		return nil
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch for cache: %w", err)
	}
	if err := c.client.Set(ctx, batchKeyPrefix+b.ID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write batch to cache: %w", err)
	}
	return nil
}

// Invalidate drops the list entry and the entries of the given batch ids.
// Any write to the table changes list ordering, so the list always goes.
func (c *RedisBatchCache) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, listKey)
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			keys = append(keys, batchKeyPrefix+id)
		}
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate batch cache: %w", err)
	}
	return nil
}
