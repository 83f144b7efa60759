package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const lockKeyPrefix = "lock:"

// RedisLocker holds ledger keys across processes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logrus.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger *logrus.Logger) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = uniqueSorted(keys)
	held := make([]*redislock.Lock, 0, len(keys))

	obtainCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(10 * time.Millisecond)}
	for _, key := range keys {
		lock, err := r.client.Obtain(obtainCtx, lockKeyPrefix+key, r.ttl, opts)
		if err != nil {
			r.release(held)
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("could not obtain lock for %s: %w", key, err)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, lock)
	}

	return func() { r.release(held) }, nil
}

func (r *RedisLocker) release(held []*redislock.Lock) {
	ctx := context.Background()
	for i := len(held) - 1; i >= 0; i-- {
		if err := held[i].Release(ctx); err != nil && r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"module": "storage",
				"lock":   held[i].Key(),
			}).Warn("release redis lock: " + err.Error())
		}
	}
}
