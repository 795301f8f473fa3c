package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/config"
)

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalizeKeys([]string{"c", "", "a", "b", "a"}))
	assert.Empty(t, normalizeKeys(nil))
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "registrant:12345678")
			require.NoError(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, l.size())
}

func TestMemoryLocker_OverlappingKeySetsDoNotDeadlock(t *testing.T) {
	l := NewMemoryLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		keys := []string{"a", "b", "c"}
		if i%2 == 0 {
			keys = []string{"c", "b", "a"}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock, err := l.Lock(ctx, keys...)
			require.NoError(t, err)
			unlock()
		}(keys)
	}
	wg.Wait()
	assert.Zero(t, l.size())
}

func TestMemoryLocker_Timeout(t *testing.T) {
	l := NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "a", "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "b", "z")
	assert.ErrorIs(t, err, shared.ErrLockTimeout)

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, l.size())

	again, err := l.Lock(context.Background(), "b", "z")
	require.NoError(t, err)
	again()
}

func TestNew_DisabledUsesMemory(t *testing.T) {
	locker, closeFn, err := New(config.RedisConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, locker)
	assert.NoError(t, closeFn())
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	locker, closeFn, err := New(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1, LockTTL: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, locker)
	assert.NoError(t, closeFn())
}
