package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"auth-notify-service/internal/client"
	"auth-notify-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache keeps fixed-window counters shared by every process that
// talks to the same Redis.
type RateLimitCache struct {
	client *client.RedisClient
	now    func() time.Time
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client, now: time.Now}
}

// IncrementWindow bumps the counter for key in the current wall-clock window
// and returns the new count. Windows are numbered by unix time divided by the
// window length, so all processes agree on boundaries.
func (c *RateLimitCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("rate limit window must be positive")
	}

	index := c.now().UnixNano() / int64(window)
	windowKey := rateLimitPrefix + key + ":" + strconv.FormatInt(index, 10)

	// Keep the key a little longer than the window so a late INCR does not
	// resurrect a counter without expiry.
	count, err := c.client.IncrWithExpire(ctx, windowKey, window+time.Second)
	if err != nil {
		util.Error("Failed to increment rate limit window",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	util.Debug("Rate limit window incremented",
		zap.String("key", key),
		zap.Int64("count", count))

	return count, nil
}
