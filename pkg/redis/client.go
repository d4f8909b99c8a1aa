package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by reads of missing keys
const Nil = redis.Nil

type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 0
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	dur := time.Since(start)
	if err != nil {
		c.log.Info("redis_ping",
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_ping", zap.Duration("duration", dur))
	}
	return err
}

// TxPipelined queues commands inside MULTI/EXEC so they apply as one unit
func (c *Client) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	start := time.Now()
	cmds, err := c.rdb.TxPipelined(ctx, fn)
	dur := time.Since(start)
	if err != nil && err != redis.Nil {
		c.log.Info("redis_tx",
			zap.Int("commands", len(cmds)),
			zap.Duration("duration", dur),
			zap.Error(err))
	} else {
		c.log.Debug("redis_tx",
			zap.Int("commands", len(cmds)),
			zap.Duration("duration", dur))
	}
	return cmds, err
}

// TxFailedErr is returned by Watch when a watched key changed before EXEC
var TxFailedErr = redis.TxFailedErr

// Watch runs fn with keys under WATCH; writes queued through tx.TxPipelined
// apply only if none of the keys changed in the meantime
func (c *Client) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	start := time.Now()
	err := c.rdb.Watch(ctx, fn, keys...)
	dur := time.Since(start)
	if err == redis.TxFailedErr {
		c.log.Debug("redis_watch_conflict",
			zap.Strings("keys", keys),
			zap.Duration("duration", dur))
	} else if err != nil {
		c.log.Info("redis_watch",
			zap.Strings("keys", keys),
			zap.Duration("duration", dur),
			zap.Error(err))
	}
	return err
}
