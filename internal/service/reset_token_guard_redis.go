package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResetTokenGuard shares used-token state across replicas.
type RedisResetTokenGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisResetTokenGuard(client redis.UniversalClient, prefix string) *RedisResetTokenGuard {
	if prefix == "" {
		prefix = "reset_token_used"
	}
	return &RedisResetTokenGuard{client: client, prefix: prefix}
}

func (g *RedisResetTokenGuard) MarkUsed(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if g.client == nil {
		return true, nil
	}
	return g.client.SetNX(ctx, g.prefix+":"+hashResetToken(token), "1", ttl).Result()
}
