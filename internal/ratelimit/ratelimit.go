// Package ratelimit implements the request-frequency policy consulted before
// a verification request is written.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Quota decides whether sender may send another request to receiver.
type Quota interface {
	Allow(ctx context.Context, sender, receiver string) (bool, error)
}

// RedisLimiter counts requests per (sender, receiver) in Redis. The window
// restarts with every request, so a sender has to stay quiet for a whole
// window before the counter drops.
type RedisLimiter struct {
	R      *redis.Client
	Limit  int64
	Window time.Duration
}

func NewRedisLimiter(r *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{R: r, Limit: int64(limit), Window: window}
}

// Key is the Redis key of the counter for one ordered pair. The sender is
// length-prefixed so ids containing ':' cannot share a counter.
func Key(sender, receiver string) string {
	return "rl:meetup:" + strconv.Itoa(len(sender)) + ":" + sender + ":" + receiver
}

func (l *RedisLimiter) Allow(ctx context.Context, sender, receiver string) (bool, error) {
	k := Key(sender, receiver)
	pipe := l.R.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.Limit, nil
}

// Unlimited allows every request.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, string) (bool, error) { return true, nil }
