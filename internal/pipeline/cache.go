package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
)

// Cache keeps the latest reading per room and device in Redis so dashboards
// can read current values without touching the fact table. Keys expire so
// readings from dead sensors age out on their own.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache connects to Redis and verifies connectivity.
func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Update writes the latest numeric value for each metric under room- and
// device-scoped keys. The first error aborts the batch; callers treat any
// failure as non-fatal.
func (c *Cache) Update(ctx context.Context, p normalize.Payload) error {
	for _, m := range p.Metrics {
		if m.Value == nil {
			continue
		}
		if p.Room != "" {
			key := fmt.Sprintf("room:last:%s:%s", p.Room, m.Name)
			if err := c.rdb.Set(ctx, key, *m.Value, c.ttl).Err(); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		if p.Device != "" {
			key := fmt.Sprintf("device:last:%s:%s", p.Device, m.Name)
			if err := c.rdb.Set(ctx, key, *m.Value, c.ttl).Err(); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
