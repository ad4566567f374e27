// Package health provides readiness checks for the feed service's
// dependencies: the Postgres signal store, the Redis snapshot tier and the
// signal store circuit breaker.
package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker checks the shared snapshot and rate limit tier.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a checker over client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends PING.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping at %s: %w", r.client.Options().Addr, err)
	}
	return nil
}
