// Package lock serializes writers of the same job ledger.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/piecework/internal/domain/models"
)

const keyPrefix = "lock:job:"

// Locker grants exclusive access to a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker is a Locker shared across service instances.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker builds a Redis-backed locker. ttl bounds how long a crashed
// holder keeps the lock; wait bounds how long Acquire retries.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, wait: wait, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lk, err := l.client.Obtain(waitCtx, keyPrefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, &models.ConflictError{Resource: "job", ID: key, Reason: "another update is in progress, retry later"}
	}
	if err != nil {
		return nil, &models.DependencyError{Dependency: "redis lock", Err: err}
	}

	return func() {
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release job lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// LocalLocker is a per-process Locker used when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

// NewLocalLocker returns an in-process locker.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timer.C:
		return nil, &models.ConflictError{Resource: "job", ID: key, Reason: "another update is in progress, retry later"}
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire job lock %s: %w", key, ctx.Err())
	}
}
