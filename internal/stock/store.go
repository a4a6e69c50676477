package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ftredis "github.com/angelmondragon/flashticket-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a hydrated counter may drift from the durable stock.
const DefaultTTL = 30 * time.Minute

const decrementIfPresentScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0, 0}
end
return {1, redis.call('DECR', KEYS[1])}
`

const incrementIfPresentScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0, 0}
end
return {1, redis.call('INCR', KEYS[1])}
`

// Loader reads the authoritative stock for a ticket from the durable store.
type Loader func(ctx context.Context, ticketID string) (int64, error)

// Store is the fast, non-authoritative stock counter shared by all API replicas.
type Store struct {
	rdb  redis.Cmdable
	keys *ftredis.Client
	ttl  time.Duration
}

// NewStore builds a counter store. A non-positive ttl falls back to DefaultTTL.
func NewStore(client *ftredis.Client, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: client.Cmdable(), keys: client, ttl: ttl}, nil
}

// Peek returns the cached counter without hydrating it.
func (s *Store) Peek(ctx context.Context, ticketID string) (int64, bool, error) {
	raw, err := s.rdb.Get(ctx, s.keys.StockKey(ticketID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read stock counter: %w", err)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse stock counter %q: %w", raw, err)
	}
	return value, true, nil
}

// GetOrInit returns the cached counter, hydrating it from loader when absent.
// Concurrent hydrations never overwrite a value another caller already set.
func (s *Store) GetOrInit(ctx context.Context, ticketID string, loader Loader) (int64, error) {
	if value, ok, err := s.Peek(ctx, ticketID); err != nil || ok {
		return value, err
	}
	if loader == nil {
		return 0, errors.New("stock loader required")
	}
	durable, err := loader(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	set, err := s.rdb.SetNX(ctx, s.keys.StockKey(ticketID), durable, s.ttl).Result()
	if err != nil {
		return 0, fmt.Errorf("hydrate stock counter: %w", err)
	}
	if set {
		return durable, nil
	}
	value, ok, err := s.Peek(ctx, ticketID)
	if err != nil {
		return 0, err
	}
	if !ok {
		// expired between SETNX and GET
		return durable, nil
	}
	return value, nil
}

// DecrementIfPositive decrements the counter in one round trip. found is false
// when the key is cold; the caller hydrates and retries. A negative result is
// left for the caller to compensate.
func (s *Store) DecrementIfPositive(ctx context.Context, ticketID string) (int64, bool, error) {
	return s.evalPresent(ctx, decrementIfPresentScript, ticketID)
}

// Increment restores one unit. A cold key is left alone so the next hydration
// reads the durable stock.
func (s *Store) Increment(ctx context.Context, ticketID string) error {
	_, _, err := s.evalPresent(ctx, incrementIfPresentScript, ticketID)
	return err
}

// Invalidate drops the cached counter.
func (s *Store) Invalidate(ctx context.Context, ticketID string) error {
	if err := s.rdb.Del(ctx, s.keys.StockKey(ticketID)).Err(); err != nil {
		return fmt.Errorf("invalidate stock counter: %w", err)
	}
	return nil
}

func (s *Store) evalPresent(ctx context.Context, script, ticketID string) (int64, bool, error) {
	res, err := s.rdb.Eval(ctx, script, []string{s.keys.StockKey(ticketID)}).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("stock counter script: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("stock counter script: unexpected reply %v", res)
	}
	found, _ := res[0].(int64)
	value, _ := res[1].(int64)
	return value, found == 1, nil
}
