package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FrequencyCaps enforces per-user delivery caps from notification
// preferences (e.g. max emails per day, max pushes per hour) with the
// same sliding-window sorted sets the API rate limiter uses. The window
// is per check because each user carries their own limits.
type FrequencyCaps struct {
	client *Client
	logger *zap.Logger
}

// NewFrequencyCaps creates a frequency cap service.
func NewFrequencyCaps(client *Client, logger *zap.Logger) *FrequencyCaps {
	return &FrequencyCaps{client: client, logger: logger}
}

// Allow reports whether sending one more message on a channel keeps the
// user under their cap, and records the send when it does. A limit of 0
// means uncapped.
func (f *FrequencyCaps) Allow(ctx context.Context, userID, channel string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	now := time.Now()
	redisKey := fmt.Sprintf("courier:freq:%s:%s", userID, channel)

	pipe := f.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline failed: %w", err)
	}

	if int(countCmd.Val()) >= limit {
		f.logger.Debug("frequency cap reached",
			zap.String("user_id", userID),
			zap.String("channel", channel),
			zap.Int("limit", limit),
		)
		return false, nil
	}

	pipe2 := f.client.rdb.Pipeline()
	pipe2.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe2.Expire(ctx, redisKey, window+time.Second)
	if _, err := pipe2.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis zadd failed: %w", err)
	}

	return true, nil
}
