package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

const (
	stockKeyPrefix   = "snapshot:"
	DefaultChannel   = "ledger:movements"
	snapshotFieldQty = "qty"
)

// Keeps the newest balance per key. Workers may deliver out of order, so an
// older movement never overwrites a newer snapshot.
var snapshotScript = redis.NewScript(`
local key = KEYS[1]
local qty = ARGV[1]
local at = tonumber(ARGV[2])

local current = redis.call('HGET', key, 'at')
if current and tonumber(current) > at then
	return 0
end

redis.call('HSET', key, 'qty', qty, 'at', at)
return 1
`)

// MovementEvent is the wire form of a committed movement.
type MovementEvent struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	LocationID   string    `json:"location_id"`
	ProductID    string    `json:"product_id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       string    `json:"reason"`
	ActorID      string    `json:"actor_id,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewMovementEvent(mv domain.Movement) MovementEvent {
	return MovementEvent{
		ID:           mv.ID,
		TenantID:     mv.TenantID,
		LocationID:   mv.LocationID,
		ProductID:    mv.ProductID,
		Delta:        mv.Delta,
		BalanceAfter: mv.BalanceAfter,
		Reason:       string(mv.Reason),
		ActorID:      mv.ActorID,
		Reference:    mv.Reference,
		CreatedAt:    mv.CreatedAt,
	}
}

// RedisAdapter publishes committed movements and keeps a read-only stock
// snapshot for storefront reads. The ledger never reads it back.
type RedisAdapter struct {
	client  *redis.Client
	channel string
}

func NewRedisAdapter(client *redis.Client, channel string) *RedisAdapter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisAdapter{client: client, channel: channel}
}

func (r *RedisAdapter) Deliver(ctx context.Context, movements []domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, mv := range movements {
		payload, err := json.Marshal(NewMovementEvent(mv))
		if err != nil {
			return fmt.Errorf("encode movement %s: %w", mv.ID, err)
		}
		pipe.Publish(ctx, r.channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish movements: %w", err)
	}

	for _, mv := range movements {
		key := snapshotKey(mv.Key())
		if err := snapshotScript.Run(ctx, r.client, []string{key}, mv.BalanceAfter, mv.CreatedAt.UnixNano()).Err(); err != nil {
			return fmt.Errorf("update snapshot %s: %w", key, err)
		}
	}
	return nil
}

// Snapshot returns the last published balance for key.
func (r *RedisAdapter) Snapshot(ctx context.Context, key domain.StockKey) (int64, bool, error) {
	qty, err := r.client.HGet(ctx, snapshotKey(key), snapshotFieldQty).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

// Subscribe opens a subscription on the movement channel.
func (r *RedisAdapter) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, r.channel)
}

func snapshotKey(k domain.StockKey) string {
	return fmt.Sprintf("%s%s:%s:%s", stockKeyPrefix, k.TenantID, k.LocationID, k.ProductID)
}
