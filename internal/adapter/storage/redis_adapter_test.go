package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisAdapter_DeliverPublishesAndSnapshots(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, "test:movements:"+uuid.NewString())
	key := domain.NewStockKey(testTenant(), "loc-1", "sku-x")
	defer client.Del(ctx, snapshotKey(key))

	sub := adapter.Subscribe(ctx)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	mv := movement(key, -3, 7)
	if err := adapter.Deliver(ctx, []domain.Movement{mv}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var ev MovementEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.ID != mv.ID || ev.Delta != -3 || ev.BalanceAfter != 7 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	qty, ok, err := adapter.Snapshot(ctx, key)
	if err != nil || !ok {
		t.Fatalf("snapshot missing: ok=%v err=%v", ok, err)
	}
	if qty != 7 {
		t.Errorf("expected snapshot 7, got %d", qty)
	}
}

func TestRedisAdapter_SnapshotIgnoresOlderMovement(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, "")
	key := domain.NewStockKey(testTenant(), "loc-1", "sku-x")
	defer client.Del(ctx, snapshotKey(key))

	newer := movement(key, 1, 10)
	older := movement(key, 1, 9)
	older.CreatedAt = newer.CreatedAt.Add(-time.Second)

	adapter.Deliver(ctx, []domain.Movement{newer})
	adapter.Deliver(ctx, []domain.Movement{older})

	qty, _, _ := adapter.Snapshot(ctx, key)
	if qty != 10 {
		t.Errorf("expected newest balance 10, got %d", qty)
	}
}

func TestRedisAdapter_SnapshotMissing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client, "")
	_, ok, err := adapter.Snapshot(context.Background(), domain.NewStockKey(testTenant(), "loc-1", "none"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no snapshot")
	}
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	locker := NewRedisLocker(client, 5*time.Second, 5*time.Second, config.NopLogger())
	key := "test:" + uuid.NewString()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), []string{key})
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("expected one holder at a time, saw %d", peak.Load())
	}
}

func TestRedisLocker_NotObtained(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	key := "test:" + uuid.NewString()
	holder := NewRedisLocker(client, 5*time.Second, time.Second, config.NopLogger())
	unlock, err := holder.Lock(context.Background(), []string{key})
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	waiter := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond, config.NopLogger())
	_, err = waiter.Lock(context.Background(), []string{key})
	if !errors.Is(err, redislock.ErrNotObtained) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected lock to be refused, got %v", err)
	}
}
