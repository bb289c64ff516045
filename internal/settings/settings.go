// Package settings holds the administrative switches. Source enable
// flags live in Redis so operators can flip a misbehaving source off
// without a deploy; the configured default applies when Redis has no
// opinion or is unavailable.
package settings

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sourceEnabledPrefix = "settings:source:enabled:"

type Settings struct {
	rdb      *redis.Client
	defaults map[string]bool
	logger   *zap.Logger
}

func New(rdb *redis.Client, defaults map[string]bool, logger *zap.Logger) *Settings {
	return &Settings{
		rdb:      rdb,
		defaults: defaults,
		logger:   logger,
	}
}

// IsSourceEnabled reports whether syncing is enabled for a source.
func (s *Settings) IsSourceEnabled(ctx context.Context, name string) bool {
	if s.rdb == nil {
		return s.defaults[name]
	}

	val, err := s.rdb.Get(ctx, sourceEnabledPrefix+name).Result()
	if err == redis.Nil {
		return s.defaults[name]
	}
	if err != nil {
		s.logger.Warn("Settings lookup failed, using configured default",
			zap.String("source", name),
			zap.Error(err),
		)
		return s.defaults[name]
	}
	return val == "1" || val == "true"
}

// SetSourceEnabled stores an operator override for a source.
func (s *Settings) SetSourceEnabled(ctx context.Context, name string, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	return s.rdb.Set(ctx, sourceEnabledPrefix+name, val, 0).Err()
}
