package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultMutexTTL = 2 * time.Minute

// Mutex is a single named lock held across a whole unit of work, such as a
// cron cycle. Acquire never waits.
type Mutex struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration

	mu    sync.Mutex
	owner string
}

func NewMutex(rdb redis.Cmdable, key string, ttl time.Duration) (*Mutex, error) {
	if rdb == nil {
		return nil, errors.New("redis client required for mutex")
	}
	if key == "" {
		return nil, errors.New("mutex key is required")
	}
	if ttl <= 0 {
		ttl = defaultMutexTTL
	}
	return &Mutex{rdb: rdb, key: key, ttl: ttl}, nil
}

// Acquire tries to own the mutex for its TTL.
func (m *Mutex) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, m.key, owner, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		m.mu.Lock()
		m.owner = owner
		m.mu.Unlock()
	}
	return ok, nil
}

// Release frees the mutex only if the owner value still matches.
func (m *Mutex) Release(ctx context.Context) error {
	m.mu.Lock()
	owner := m.owner
	m.owner = ""
	m.mu.Unlock()
	if owner == "" {
		return nil
	}
	if err := m.rdb.Eval(context.WithoutCancel(ctx), releaseScript, []string{m.key}, owner).Err(); err != nil {
		return fmt.Errorf("release mutex: %w", err)
	}
	return nil
}
