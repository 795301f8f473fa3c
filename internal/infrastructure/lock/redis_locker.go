package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/domain/shared"
)

const (
	defaultKeyPrefix = "chessreg:lock:"
	minRetryDelay    = 10 * time.Millisecond
	maxRetryDelay    = 250 * time.Millisecond
	unlockTimeout    = 3 * time.Second
)

// unlockScript deletes the key only when it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements shared.KeyedLocker with SET NX PX leases. A lease
// expires after ttl even if its holder never releases it.
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a locker over an existing client
func NewRedisLocker(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

// Lock acquires every key in sorted order, retrying until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func(key string) { l.release(key, token) }

	for _, key := range keys {
		if err := l.acquire(ctx, key, token); err != nil {
			releaseAll(held, release)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { releaseAll(held, release) })
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	delay := minRetryDelay
	for {
		ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", shared.ErrLockTimeout, key, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := unlockScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Err(); err != nil {
		l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
	}
}

// Ensure RedisLocker implements shared.KeyedLocker
var _ shared.KeyedLocker = (*RedisLocker)(nil)
