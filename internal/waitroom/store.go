package waitroom

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ftredis "github.com/angelmondragon/flashticket-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// Scores are arrival milliseconds * 1000 plus a per-queue sequence, clamped
// above the last issued score so same-millisecond arrivals keep FIFO order.
// The sequence and last-score keys expire after ARGV[2] ms without arrivals.
const enterScript = `
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  local arrived = redis.call('HGET', KEYS[4], ARGV[1]) or ''
  return {0, redis.call('ZRANK', KEYS[1], ARGV[1]), redis.call('ZCARD', KEYS[1]), arrived}
end
local now = redis.call('TIME')
local ms = tonumber(now[1]) * 1000 + math.floor(tonumber(now[2]) / 1000)
local seq = redis.call('INCR', KEYS[2]) % 1000
redis.call('PEXPIRE', KEYS[2], ARGV[2])
local score = ms * 1000 + seq
local last = tonumber(redis.call('GET', KEYS[3]) or '0')
if score <= last then
  score = last + 1
end
local encoded = string.format('%d', score)
redis.call('SET', KEYS[3], encoded, 'PX', ARGV[2])
redis.call('ZADD', KEYS[1], 'NX', encoded, ARGV[1])
local arrived = string.format('%d', ms)
redis.call('HSET', KEYS[4], ARGV[1], arrived)
return {1, redis.call('ZRANK', KEYS[1], ARGV[1]), redis.call('ZCARD', KEYS[1]), arrived}
`

// sequenceTTL bounds how long an idle queue keeps its tiebreak keys.
const sequenceTTL = 24 * time.Hour

const statusScript = `
local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
local total = redis.call('ZCARD', KEYS[1])
if not rank then
  return {-1, total, ''}
end
local arrived = redis.call('HGET', KEYS[2], ARGV[1])
if not arrived then
  arrived = ''
end
return {rank, total, arrived}
`

const exitScript = `
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return removed
`

const admitScript = `
local popped = redis.call('ZPOPMIN', KEYS[1], ARGV[1])
local tokens = {}
for i = 1, #popped, 2 do
  tokens[#tokens + 1] = popped[i]
  redis.call('HDEL', KEYS[2], popped[i])
end
return tokens
`

// Placement is a token's 0-based rank within a queue.
type Placement struct {
	Rank      int64
	Total     int64
	Inserted  bool
	ArrivedAt time.Time
}

// Store is the sorted-set backed admission queue.
type Store struct {
	rdb  redis.Cmdable
	keys *ftredis.Client
}

func NewStore(client *ftredis.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &Store{rdb: client.Cmdable(), keys: client}, nil
}

// Enter queues token, keeping the original arrival when it is already queued.
func (s *Store) Enter(ctx context.Context, resourceID, token string) (Placement, error) {
	keys := []string{
		s.keys.QueueKey(resourceID),
		s.keys.QueueSeqKey(resourceID),
		s.keys.QueueLastScoreKey(resourceID),
		s.keys.QueueArrivalsKey(resourceID),
	}
	res, err := s.rdb.Eval(ctx, enterScript, keys, token, sequenceTTL.Milliseconds()).Slice()
	if err != nil {
		return Placement{}, fmt.Errorf("enter queue: %w", err)
	}
	if len(res) != 4 {
		return Placement{}, fmt.Errorf("enter queue: unexpected reply %v", res)
	}
	inserted, _ := res[0].(int64)
	rank, _ := res[1].(int64)
	total, _ := res[2].(int64)
	return Placement{Rank: rank, Total: total, Inserted: inserted == 1, ArrivedAt: arrival(res[3])}, nil
}

// Status reports a token's placement. found is false when the token is not queued.
func (s *Store) Status(ctx context.Context, resourceID, token string) (Placement, bool, error) {
	keys := []string{s.keys.QueueKey(resourceID), s.keys.QueueArrivalsKey(resourceID)}
	res, err := s.rdb.Eval(ctx, statusScript, keys, token).Slice()
	if err != nil {
		return Placement{}, false, fmt.Errorf("queue status: %w", err)
	}
	if len(res) != 3 {
		return Placement{}, false, fmt.Errorf("queue status: unexpected reply %v", res)
	}
	rank, _ := res[0].(int64)
	total, _ := res[1].(int64)
	if rank < 0 {
		return Placement{Total: total}, false, nil
	}
	return Placement{Rank: rank, Total: total, ArrivedAt: arrival(res[2])}, true, nil
}

// arrival decodes a stored millisecond timestamp; missing values yield zero.
func arrival(raw any) time.Time {
	str, _ := raw.(string)
	if str == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Exit removes token. Removing an absent token is not an error.
func (s *Store) Exit(ctx context.Context, resourceID, token string) (bool, error) {
	keys := []string{s.keys.QueueKey(resourceID), s.keys.QueueArrivalsKey(resourceID)}
	removed, err := s.rdb.Eval(ctx, exitScript, keys, token).Int64()
	if err != nil {
		return false, fmt.Errorf("exit queue: %w", err)
	}
	return removed == 1, nil
}

// AdmitNext pops up to n tokens from the head in arrival order.
func (s *Store) AdmitNext(ctx context.Context, resourceID string, n int64) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	keys := []string{s.keys.QueueKey(resourceID), s.keys.QueueArrivalsKey(resourceID)}
	res, err := s.rdb.Eval(ctx, admitScript, keys, n).Slice()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admit from queue: %w", err)
	}
	tokens := make([]string, 0, len(res))
	for _, item := range res {
		if token, ok := item.(string); ok {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// Size returns the number of waiting tokens.
func (s *Store) Size(ctx context.Context, resourceID string) (int64, error) {
	size, err := s.rdb.ZCard(ctx, s.keys.QueueKey(resourceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return size, nil
}
