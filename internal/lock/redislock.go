package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is already held by another owner.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the lock key only when the stored token matches the
// owner's token, so an expired lock held by someone else is never released.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker provides best-effort distributed mutual exclusion backed by Redis.
type Locker struct {
	client       redis.UniversalClient
	ttl          time.Duration
	retryBackoff time.Duration
}

// NewLocker builds a Locker. ttl bounds how long a crashed holder can block
// other workers.
func NewLocker(client redis.UniversalClient, ttl, retryBackoff time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retryBackoff <= 0 {
		retryBackoff = 50 * time.Millisecond
	}
	return &Locker{client: client, ttl: ttl, retryBackoff: retryBackoff}
}

// Acquire attempts to take the lock once. The returned token must be passed
// to Release.
func (l *Locker) Acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Release frees the lock if it is still held with the given token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

// WithLock runs fn while holding the lock, retrying acquisition until the
// context is cancelled.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	var token string
	for {
		var err error
		token, err = l.Acquire(ctx, key)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNotAcquired) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryBackoff):
		}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, key, token)
	}()
	return fn(ctx)
}
