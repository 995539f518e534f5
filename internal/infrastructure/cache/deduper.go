package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/application/port"
)

// DefaultRetention is how long a processed update key is remembered
const DefaultRetention = 24 * time.Hour

// MemoryDeduper remembers update keys in process memory
type MemoryDeduper struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
	lastPrune time.Time
}

// NewMemoryDeduper creates an in-memory deduper
func NewMemoryDeduper(retention time.Duration) *MemoryDeduper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryDeduper{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// FirstSeen implements port.UpdateDeduper
func (d *MemoryDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastPrune) > d.retention/4 {
		for k, at := range d.seen {
			if now.Sub(at) > d.retention {
				delete(d.seen, k)
			}
		}
		d.lastPrune = now
	}

	if at, ok := d.seen[key]; ok && now.Sub(at) <= d.retention {
		return false, nil
	}
	d.seen[key] = now
	return true, nil
}

// Len returns the number of remembered keys
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// RedisDeduper shares update keys across replicas with SET NX. When Redis is
// unreachable it falls back to process memory.
type RedisDeduper struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	fallback  *MemoryDeduper
	logger    *zap.Logger
}

// NewRedisDeduper creates a Redis backed deduper
func NewRedisDeduper(client *redis.Client, prefix string, retention time.Duration, logger *zap.Logger) *RedisDeduper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if prefix == "" {
		prefix = "approval-gateway:updates"
	}
	return &RedisDeduper{
		client:    client,
		prefix:    prefix,
		retention: retention,
		fallback:  NewMemoryDeduper(retention),
		logger:    logger,
	}
}

// FirstSeen implements port.UpdateDeduper
func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, time.Now().Unix(), d.retention).Result()
	if err != nil {
		d.logger.Warn("Redis dedupe unavailable, using memory", zap.String("key", key), zap.Error(err))
		return d.fallback.FirstSeen(ctx, key)
	}
	return ok, nil
}

// Ping checks the Redis connection
func (d *RedisDeduper) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

var (
	_ port.UpdateDeduper = (*MemoryDeduper)(nil)
	_ port.UpdateDeduper = (*RedisDeduper)(nil)
)
