package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/config"
)

// New returns the locker selected by cfg. When Redis is enabled but cannot
// be reached the in-memory locker is used and a warning is logged. The
// returned close function releases the Redis client, if any.
func New(cfg config.RedisConfig, logger *zap.Logger) (shared.KeyedLocker, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }
	if !cfg.Enabled {
		logger.Info("Using in-memory record locks")
		return NewMemoryLocker(), noop, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("Redis unavailable, falling back to in-memory record locks",
			zap.String("addr", cfg.Addr()), zap.Error(err))
		return NewMemoryLocker(), noop, nil
	}

	if cfg.LockTTL <= 0 {
		return nil, noop, fmt.Errorf("redis.lock_ttl must be positive")
	}
	logger.Info("Using Redis record locks", zap.String("addr", cfg.Addr()), zap.Duration("ttl", cfg.LockTTL))
	return NewRedisLocker(client, "", cfg.LockTTL, logger), client.Close, nil
}
