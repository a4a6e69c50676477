package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/flashticket-backend/pkg/errors"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
)

const (
	DefaultWait          = 3 * time.Second
	DefaultLease         = 5 * time.Second
	DefaultRetryInterval = 25 * time.Millisecond
)

const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// WaitObserver records how long callers waited for a lock.
type WaitObserver interface {
	ObserveLockWait(wait time.Duration, acquired bool)
}

// ExecutorParams configure the lock executor.
type ExecutorParams struct {
	Redis         redis.Cmdable
	Logger        *logger.Logger
	RetryInterval time.Duration
	Observer      WaitObserver
}

// Executor hands out owner-tagged leases on named keys.
type Executor struct {
	rdb           redis.Cmdable
	logg          *logger.Logger
	retryInterval time.Duration
	observer      WaitObserver
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	exec     *Executor
	key      string
	owner    string
	released bool
}

func NewExecutor(params ExecutorParams) (*Executor, error) {
	if params.Redis == nil {
		return nil, errors.New("redis client required for lock executor")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	interval := params.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &Executor{
		rdb:           params.Redis,
		logg:          logg,
		retryInterval: interval,
		observer:      params.Observer,
	}, nil
}

// AcquisitionFailed builds the retryable error returned when wait elapses.
func AcquisitionFailed(key string, retryAfter time.Duration) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeLockUnavailable, "lock acquisition failed").
		WithDetails(map[string]any{
			"lock":           key,
			"retry_after_ms": retryAfter.Milliseconds(),
		})
}

// Acquire polls SET NX PX until it owns key or wait elapses. A zero wait tries
// once. A failed acquisition suggests retrying after wait, or after lease when
// wait is zero.
func (e *Executor) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	owner := uuid.NewString()
	started := time.Now()
	deadline := started.Add(wait)
	retryAfter := wait
	if retryAfter <= 0 {
		retryAfter = lease
	}

	for {
		ok, err := e.rdb.SetNX(ctx, key, owner, lease).Result()
		if err != nil {
			e.observe(started, false)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			e.observe(started, true)
			return &Lease{exec: e, key: key, owner: owner}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			e.observe(started, false)
			return nil, AcquisitionFailed(key, retryAfter)
		}
		sleep := e.retryInterval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.observe(started, false)
			return nil, AcquisitionFailed(key, retryAfter)
		case <-timer.C:
		}
	}
}

func (e *Executor) observe(started time.Time, acquired bool) {
	if e.observer != nil {
		e.observer.ObserveLockWait(time.Since(started), acquired)
	}
}

// Release deletes the key only while this lease still owns it. A lease that
// already expired (or was taken over) is logged, never surfaced.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.released {
		return
	}
	l.released = true
	ctx = context.WithoutCancel(ctx)
	deleted, err := l.exec.rdb.Eval(ctx, releaseScript, []string{l.key}, l.owner).Int64()
	if err != nil {
		l.exec.logg.Error(l.exec.logg.WithField(ctx, "lock", l.key), "lock release failed", err)
		return
	}
	if deleted == 0 {
		l.exec.logg.Warn(l.exec.logg.WithField(ctx, "lock", l.key), "lock lease lost before release")
	}
}

// Key returns the locked key.
func (l *Lease) Key() string {
	return l.key
}

// WithLock runs body while holding key. The lease is released on every exit
// path, including panics. The lease is not extended, so it must outlast body.
func WithLock[T any](ctx context.Context, exec *Executor, key string, wait, lease time.Duration, body func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if exec == nil {
		return zero, fmt.Errorf("lock executor required")
	}
	held, err := exec.Acquire(ctx, key, wait, lease)
	if err != nil {
		return zero, err
	}
	defer held.Release(ctx)
	return body(ctx)
}
