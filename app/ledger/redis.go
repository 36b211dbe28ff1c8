package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "payment_request:"

// RedisLedger shares the idempotency ledger across gateway instances through
// a single SETNX per request id. Keys are written without expiry.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Accept(ctx context.Context, requestID uuid.UUID) (bool, error) {
	accepted, err := l.client.SetNX(ctx, redisKeyPrefix+requestID.String(), "1", 0).Result()
	if err != nil {
		return false, err
	}
	return accepted, nil
}
