// Package cache holds read-through caches in front of the ticket store.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helpdeskhq/support-desk/internal/domain"
)

const (
	// PriorityStatsKey is the Redis key of the cached priority breakdown.
	PriorityStatsKey = "tickets:stats:priority"
	// PriorityStatsGenerationKey counts invalidations. An entry is only served while it
	// carries the current generation.
	PriorityStatsGenerationKey = "tickets:stats:priority:generation"
)

// StatsCache stores the priority statistics between ticket writes.
//
// Get reports the generation observed before the store is read; Set must be given that
// generation so that counts read before a concurrent Invalidate are never served.
type StatsCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context) (counts []domain.PriorityCount, generation int64, ok bool, err error)
	Set(ctx context.Context, generation int64, counts []domain.PriorityCount) error
	Invalidate(ctx context.Context) error
}

type statsEntry struct {
	Generation int64                  `json:"generation"`
	Counts     []domain.PriorityCount `json:"counts"`
}

type redisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache builds a cache backed by client. A nil client yields a cache that
// never hits.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) StatsCache {
	if client == nil {
		return NopStatsCache{}
	}
	return &redisStatsCache{client: client, ttl: ttl}
}

func (c *redisStatsCache) Get(ctx context.Context) ([]domain.PriorityCount, int64, bool, error) {
	values, err := c.client.MGet(ctx, PriorityStatsGenerationKey, PriorityStatsKey).Result()
	if err != nil {
		return nil, 0, false, err
	}
	return decodeEntry(values)
}

func (c *redisStatsCache) Set(ctx context.Context, generation int64, counts []domain.PriorityCount) error {
	raw, err := json.Marshal(statsEntry{Generation: generation, Counts: counts})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, PriorityStatsKey, raw, c.ttl).Err()
}

func (c *redisStatsCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, PriorityStatsGenerationKey)
		pipe.Del(ctx, PriorityStatsKey)
		return nil
	})
	return err
}

// decodeEntry interprets an MGET of the generation and entry keys. Missing keys read as
// generation 0 and a miss.
func decodeEntry(values []any) ([]domain.PriorityCount, int64, bool, error) {
	var generation int64
	if len(values) > 0 {
		if raw, ok := values[0].(string); ok {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, 0, false, err
			}
			generation = parsed
		}
	}
	if len(values) < 2 {
		return nil, generation, false, nil
	}
	raw, ok := values[1].(string)
	if !ok {
		return nil, generation, false, nil
	}
	var entry statsEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, generation, false, err
	}
	if entry.Generation != generation {
		return nil, generation, false, nil
	}
	return entry.Counts, generation, true, nil
}

// NopStatsCache never stores anything.
type NopStatsCache struct{}

func (NopStatsCache) Get(context.Context) ([]domain.PriorityCount, int64, bool, error) {
	return nil, 0, false, nil
}

func (NopStatsCache) Set(context.Context, int64, []domain.PriorityCount) error {
	return nil
}

func (NopStatsCache) Invalidate(context.Context) error {
	return nil
}
