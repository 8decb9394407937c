package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("provider lock not acquired")
)

// Locker serializes booking attempts per provider. The callback runs inside
// the critical section; once it starts it is not interrupted by caller
// cancellation, only bounded by the lease TTL.
type Locker interface {
	WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error
}

type providerLocker struct {
	client         *redis.Client
	ttl            time.Duration
	acquireTimeout time.Duration
	retryDelay     time.Duration
}

// NewProviderLocker creates a locker backed by a per-provider Redis key.
// Contenders poll until the holder releases or acquireTimeout elapses, so a
// losing booking attempt observes the winner's committed state rather than
// bouncing with a transient "busy" error.
func NewProviderLocker(client *redis.Client, ttl, acquireTimeout time.Duration) Locker {
	return &providerLocker{
		client:         client,
		ttl:            ttl,
		acquireTimeout: acquireTimeout,
		retryDelay:     10 * time.Millisecond,
	}
}

func (l *providerLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:provider:%s", providerID.String())
	token := uuid.NewString()

	deadline := time.Now().Add(l.acquireTimeout)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire provider lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	// Once inside the critical section the operation runs to completion.
	// Caller cancellation no longer applies; the lease TTL is the bound.
	lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *providerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release provider lock: %w", err)
	}
	return nil
}
