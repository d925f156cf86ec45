package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "courier:rl:"

// RateLimitConfig sets the budget for one API caller.
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // sliding window length
}

// RateLimitResult reports the outcome of a rate limit check, including
// the values surfaced in X-RateLimit-* response headers.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter enforces a sliding-window limit per caller key. Each
// request is a member in a sorted set scored by its arrival time, so
// the window slides continuously instead of resetting on a boundary.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
	seq    atomic.Uint64 // disambiguates members that share a timestamp
}

// NewRateLimiter builds a limiter on top of the shared Redis client.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Allow charges one request against the key's budget.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	return r.AllowN(ctx, key, 1)
}

// AllowN charges n requests against the key's budget. The charge is
// optimistic: the members are written first, then rolled back if the
// window turns out to be full.
func (r *RateLimiter) AllowN(ctx context.Context, key string, n int) (*RateLimitResult, error) {
	now := time.Now()
	setKey := rateLimitPrefix + key
	cutoff := strconv.FormatInt(now.Add(-r.config.Window).UnixNano(), 10)

	members := make([]redis.Z, n)
	for i := range members {
		members[i] = redis.Z{
			Score:  float64(now.UnixNano()),
			Member: strconv.FormatInt(now.UnixNano(), 10) + ":" + strconv.FormatUint(r.seq.Add(1), 10),
		}
	}

	pipe := r.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, setKey, "0", cutoff)
	pipe.ZAdd(ctx, setKey, members...)
	sizeCmd := pipe.ZCard(ctx, setKey)
	pipe.Expire(ctx, setKey, r.config.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit window update: %w", err)
	}

	inWindow := int(sizeCmd.Val())
	resetAt := now.Add(r.config.Window)

	if inWindow > r.config.Limit {
		rollback := make([]interface{}, n)
		for i, m := range members {
			rollback[i] = m.Member
		}
		if err := r.client.rdb.ZRem(ctx, setKey, rollback...).Err(); err != nil {
			return nil, fmt.Errorf("rate limit rollback: %w", err)
		}

		r.logger.Debug("caller over rate limit",
			zap.String("key", key),
			zap.Int("in_window", inWindow-n),
			zap.Int("limit", r.config.Limit),
		)
		return &RateLimitResult{
			Allowed:   false,
			Limit:     r.config.Limit,
			Remaining: max(0, r.config.Limit-(inWindow-n)),
			ResetAt:   resetAt,
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Limit:     r.config.Limit,
		Remaining: r.config.Limit - inWindow,
		ResetAt:   resetAt,
	}, nil
}
