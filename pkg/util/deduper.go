package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewDeduperWithLogger creates a deduper with logger support.
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given scope + key.
// Returns true if this is the FIRST time processing, false on a
// duplicate. When Redis is unavailable processing is allowed through:
// the durable idempotency latches remain the authority.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	dedupKey := fmt.Sprintf("dedup:%s:%s", scope, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("scope", scope),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.String("dedup_key", dedupKey),
		)
	}

	return ok
}

// Release drops an acquired dedup key so the work it covered can be
// retried before the TTL expires. Callers release after a failed
// attempt; a successful attempt keeps the key until it expires.
func (d *Deduper) Release(ctx context.Context, scope, key string) {
	dedupKey := fmt.Sprintf("dedup:%s:%s", scope, key)

	if err := d.rdb.Del(ctx, dedupKey).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("scope", scope),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
