package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payone-gateway/internal/lock"
)

func newLocker(t *testing.T) *lock.Locker {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewLocker(client, time.Second, 2*time.Millisecond)
}

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	locker := newLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "tx-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = locker.Acquire(ctx, "tx-1")
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, locker.Release(ctx, "tx-1", token))
	_, err = locker.Acquire(ctx, "tx-1")
	require.NoError(t, err)
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	t.Parallel()

	locker := newLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "tx-1")
	require.NoError(t, err)

	require.NoError(t, locker.Release(ctx, "tx-1", "someone-else"))
	_, err = locker.Acquire(ctx, "tx-1")
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, locker.Release(ctx, "tx-1", token))
}

func TestWithLockSerialisesWork(t *testing.T) {
	t.Parallel()

	locker := newLocker(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
		runs    int
		errs    []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "tx-1", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				runs++
				mu.Unlock()

				time.Sleep(3 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 8, runs)
	require.Equal(t, 1, maxSeen)
}

func TestWithLockHonoursContext(t *testing.T) {
	t.Parallel()

	locker := newLocker(t)
	ctx := context.Background()

	token, err := locker.Acquire(ctx, "tx-1")
	require.NoError(t, err)
	defer func() { _ = locker.Release(ctx, "tx-1", token) }()

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err = locker.WithLock(cancelled, "tx-1", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
