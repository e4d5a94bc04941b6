package goEnroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errCodeRateLimited        = errors.New("code attempts rate limited")
	errCodeLimiterUnavailable = errors.New("code limiter unavailable")
)

// codeLimiter is a fixed-window failure counter in Redis. The first failure
// in a window creates the key with the cooldown as TTL; once the counter
// reaches the cap, Check rejects until the window expires. Scope separates
// independent limiters (confirmation vs. post-enrollment verification).
type codeLimiter struct {
	redis       *redis.Client
	prefix      string
	scope       string
	maxAttempts int64
	cooldown    time.Duration
}

func newCodeLimiter(rdb *redis.Client, prefix, scope string, maxAttempts int, cooldown time.Duration) *codeLimiter {
	return &codeLimiter{
		redis:       rdb,
		prefix:      prefix,
		scope:       scope,
		maxAttempts: int64(maxAttempts),
		cooldown:    cooldown,
	}
}

func (l *codeLimiter) key(tenantID, userID string) string {
	return l.prefix + ":" + l.scope + ":" + tenantID + ":" + userID
}

// Check returns errCodeRateLimited when the user is over the cap for the
// current window.
func (l *codeLimiter) Check(ctx context.Context, tenantID, userID string) error {
	count, err := l.redis.Get(ctx, l.key(tenantID, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errCodeLimiterUnavailable, err)
	}
	if count >= l.maxAttempts {
		return errCodeRateLimited
	}
	return nil
}

// RecordFailure increments the window counter, creating it with the cooldown
// TTL on first failure.
func (l *codeLimiter) RecordFailure(ctx context.Context, tenantID, userID string) error {
	key := l.key(tenantID, userID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errCodeLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", errCodeLimiterUnavailable, err)
		}
	}
	return nil
}

// Reset clears the window after a successful code check.
func (l *codeLimiter) Reset(ctx context.Context, tenantID, userID string) error {
	if err := l.redis.Del(ctx, l.key(tenantID, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCodeLimiterUnavailable, err)
	}
	return nil
}
