// Package lock provides shared.KeyedLocker implementations: an in-process
// keyed mutex for single-instance deployments and a Redis-backed lock for
// deployments that run several instances against one database.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/chessreg/backend/internal/domain/shared"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker implements shared.KeyedLocker with per-key mutexes held in
// process memory. Entries are dropped once no caller holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker creates a new in-memory keyed locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in sorted order, waiting until ctx is done
func (l *MemoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			releaseAll(held, l.release)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { releaseAll(held, l.release) })
	}, nil
}

func (l *MemoryLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(key, kl)
		l.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", shared.ErrLockTimeout, key, ctx.Err())
	}
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		return
	}
	<-kl.ch
	l.drop(key, kl)
}

// drop must be called with l.mu held
func (l *MemoryLocker) drop(key string, kl *keyLock) {
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many keys are currently tracked
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// normalizeKeys drops blanks and duplicates and sorts what is left
func normalizeKeys(keys []string) []string {
	out := lo.Uniq(lo.Compact(keys))
	sort.Strings(out)
	return out
}

func releaseAll(keys []string, release func(string)) {
	for i := len(keys) - 1; i >= 0; i-- {
		release(keys[i])
	}
}

// Ensure MemoryLocker implements shared.KeyedLocker
var _ shared.KeyedLocker = (*MemoryLocker)(nil)
