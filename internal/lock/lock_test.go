package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
)

type recordingObserver struct {
	mu       sync.Mutex
	acquired int
	failed   int
}

func (r *recordingObserver) ObserveLockWait(_ time.Duration, acquired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acquired {
		r.acquired++
	} else {
		r.failed++
	}
}

func newTestExecutor(t *testing.T) (*Executor, *miniredis.Miniredis, *recordingObserver) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	obs := &recordingObserver{}
	exec, err := NewExecutor(ExecutorParams{Redis: rdb, RetryInterval: 5 * time.Millisecond, Observer: obs})
	require.NoError(t, err)
	return exec, mr, obs
}

func TestWithLockReleasesAfterBody(t *testing.T) {
	exec, mr, obs := newTestExecutor(t)
	ctx := context.Background()

	got, err := WithLock(ctx, exec, "k", 0, time.Second, func(context.Context) (string, error) {
		assert.True(t, mr.Exists("k"), "lock held while body runs")
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.False(t, mr.Exists("k"))
	assert.Equal(t, 1, obs.acquired)
}

func TestWithLockReleasesOnErrorAndPanic(t *testing.T) {
	exec, mr, _ := newTestExecutor(t)
	ctx := context.Background()

	_, err := WithLock(ctx, exec, "k", 0, time.Second, func(context.Context) (int, error) {
		return 0, errors.New("body failed")
	})
	assert.ErrorContains(t, err, "body failed")
	assert.False(t, mr.Exists("k"))

	func() {
		defer func() { assert.NotNil(t, recover()) }()
		_, _ = WithLock(ctx, exec, "k", 0, time.Second, func(context.Context) (int, error) {
			panic("boom")
		})
	}()
	assert.False(t, mr.Exists("k"))
}

func TestZeroWaitFailsImmediatelyWhenHeld(t *testing.T) {
	exec, mr, obs := newTestExecutor(t)
	require.NoError(t, mr.Set("k", "someone-else"))

	ran := false
	started := time.Now()
	_, err := WithLock(context.Background(), exec, "k", 0, time.Second, func(context.Context) (bool, error) {
		ran = true
		return true, nil
	})
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.False(t, ran)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLockUnavailable))
	assert.Equal(t, 1, obs.failed)

	value, _ := mr.Get("k")
	assert.Equal(t, "someone-else", value, "foreign lock untouched")
}

func TestAcquisitionFailedCarriesRetryHint(t *testing.T) {
	exec, mr, _ := newTestExecutor(t)
	require.NoError(t, mr.Set("k", "someone-else"))
	ctx := context.Background()

	_, err := exec.Acquire(ctx, "k", 40*time.Millisecond, 5*time.Second)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(40), details["retry_after_ms"])

	_, err = exec.Acquire(ctx, "k", 0, 5*time.Second)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok = typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(5000), details["retry_after_ms"])
}

func TestAcquireWaitsForRelease(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ctx := context.Background()

	first, err := exec.Acquire(ctx, "k", 0, time.Second)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		first.Release(ctx)
	}()

	second, err := exec.Acquire(ctx, "k", time.Second, time.Second)
	require.NoError(t, err)
	second.Release(ctx)
}

func TestReleaseAfterLeaseLostLeavesNewOwner(t *testing.T) {
	exec, mr, _ := newTestExecutor(t)
	ctx := context.Background()

	held, err := exec.Acquire(ctx, "k", 0, time.Second)
	require.NoError(t, err)
	require.NoError(t, mr.Set("k", "new-owner"))

	held.Release(ctx)
	value, _ := mr.Get("k")
	assert.Equal(t, "new-owner", value)
}

func TestWithLockSerializesBodies(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := WithLock(ctx, exec, "k", 2*time.Second, time.Second, func(context.Context) (struct{}, error) {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxSeen) {
					atomic.StoreInt32(&maxSeen, n)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestMutexAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	a, err := NewMutex(rdb, "ft:cron:leader:dev", time.Minute)
	require.NoError(t, err)
	b, err := NewMutex(rdb, "ft:cron:leader:dev", time.Minute)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, b.Release(ctx), "releasing an unowned mutex is a no-op")
	assert.True(t, mr.Exists("ft:cron:leader:dev"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("ft:cron:leader:dev"))
}

func TestNewMutexValidation(t *testing.T) {
	_, err := NewMutex(nil, "k", 0)
	assert.Error(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	_, err = NewMutex(rdb, "", 0)
	assert.Error(t, err)
}
