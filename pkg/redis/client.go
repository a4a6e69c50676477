package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/flashticket-backend/pkg/config"
	"github.com/angelmondragon/flashticket-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace = "ft"
	ticketPrefix = "ticket"
	queuePrefix  = "queue"
	cronPrefix   = "cron"
)

var errNotInitialized = errors.New("redis client not initialized")

// Client wraps the redis connection and the key layout shared by the
// counter, lock and waitroom stores.
type Client struct {
	store redis.Cmdable
	raw   *redis.Client
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// NewFromCmdable wraps an existing go-redis handle, typically a miniredis or
// redismock client in tests.
func NewFromCmdable(store redis.Cmdable) *Client {
	client := &Client{store: store}
	if raw, ok := store.(*redis.Client); ok {
		client.raw = raw
	}
	return client
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Cmdable exposes the underlying command surface for stores that run scripts.
func (c *Client) Cmdable() redis.Cmdable {
	return c.store
}

// StockKey is the fast stock counter for a ticket.
func (c *Client) StockKey(ticketID string) string {
	return c.buildKey(ticketPrefix, "stock", ticketID)
}

// LockKey guards a single user's claim on a ticket.
func (c *Client) LockKey(ticketID, userID string) string {
	return c.buildKey(ticketPrefix, "lock", ticketID, "user", userID)
}

// QueueKey is the waitroom sorted set for a ticket.
func (c *Client) QueueKey(ticketID string) string {
	return c.buildKey(queuePrefix, ticketPrefix, ticketID)
}

// QueueSeqKey holds the per-queue tiebreak sequence.
func (c *Client) QueueSeqKey(ticketID string) string {
	return c.buildKey(queuePrefix, ticketPrefix, ticketID, "seq")
}

// QueueLastScoreKey holds the highest score handed out for the queue.
func (c *Client) QueueLastScoreKey(ticketID string) string {
	return c.buildKey(queuePrefix, ticketPrefix, ticketID, "last")
}

// QueueArrivalsKey maps waitroom tokens to their arrival timestamps.
func (c *Client) QueueArrivalsKey(ticketID string) string {
	return c.buildKey(queuePrefix, ticketPrefix, ticketID, "arrivals")
}

// CronLockKey is the leader lock for a cron worker environment.
func (c *Client) CronLockKey(env string) string {
	return c.buildKey(cronPrefix, "leader", env)
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
