// Package redis provides the Redis client and the services built on
// it: API rate limiting, idempotent submission, and per-user frequency
// caps. All of it is best-effort; callers are expected to keep working
// when Redis is down.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps go-redis with the service logger. The raw client stays
// unexported so every Redis access goes through one of the services in
// this package.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New dials Redis and verifies connectivity before returning. Timeouts
// are kept short: a slow Redis must not stall notification sends.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr()))

	return &Client{rdb: rdb, logger: logger}, nil
}

// NewFromAddr builds a client against a bare address without pool
// tuning or a connectivity check. Used by tests running miniredis.
func NewFromAddr(addr string, logger *zap.Logger) *Client {
	return &Client{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
