package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/retail-ledger/internal/adapter/storage"
	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/core/service"
	"github.com/rl1809/retail-ledger/internal/port"
)

const (
	initialStock  = 49
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	logger := config.NewLogger("warn")

	// MYSQL_DSN switches the drill to the persistent backend.
	var store port.Store = storage.NewMemoryAdapter(nil)
	backend := config.BackendMemory
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(totalRequests)

		mysqlAdapter := storage.NewMySQLAdapter(db, nil)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		store = mysqlAdapter
		backend = config.BackendMySQL
	}

	// Each run gets its own tenant, so reruns never see old data.
	tenant := "stress-" + uuid.NewString()[:8]
	ctx = domain.WithActor(ctx, domain.Actor{TenantID: tenant, ActorID: "stress"})

	// REDIS_ADDR routes movements through the Redis sink and checks what a
	// storefront subscriber sees.
	var (
		events     port.EventPublisher
		dispatcher *service.EventDispatcher
		feed       *storage.RedisAdapter
		sub        *redis.PubSub
	)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()

		feed = storage.NewRedisAdapter(rdb, "")
		sub = feed.Subscribe(ctx)
		defer sub.Close()
		if _, err := sub.Receive(ctx); err != nil {
			log.Fatalf("failed to subscribe: %v", err)
		}

		dispatcher = service.NewEventDispatcher(feed, totalRequests, logger)
		dispatcher.Start(4)
		events = dispatcher
	}

	catalog := service.NewCatalogService(store, logger, "")
	stock := service.NewStockService(store, events, logger)
	sales := service.NewSaleService(store, events, logger, "USD")

	loc, err := catalog.CreateLocation(ctx, domain.Location{Name: "Stress Store", Code: "STRESS"})
	if err != nil {
		log.Fatalf("failed to create location: %v", err)
	}
	product, err := catalog.CreateProduct(ctx, domain.Product{
		SKU:       "STRESS-SKU",
		Name:      "Stress Item",
		UnitPrice: decimal.NewFromInt(10),
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	if _, err := stock.CreateStockEntry(ctx, loc.ID, []domain.StockItem{{ProductID: product.ID, Quantity: initialStock}}, "stress"); err != nil {
		log.Fatalf("failed to receive stock: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent sales
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := sales.CreateSale(ctx, domain.SaleRequest{
				LocationID:    loc.ID,
				Items:         []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
				PaymentMethod: "cash",
				OfflineID:     fmt.Sprintf("till-%d", n),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("sale %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	insufficient := insufficientCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Backend:          %s\n", backend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficient)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && insufficient == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d sales succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, insufficient)
	}

	// Verify the ledger
	finalStock, err := stock.GetStock(ctx, loc.ID, product.ID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)
	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}

	c, err := stock.CheckConsistency(ctx, loc.ID, product.ID)
	if err != nil {
		log.Fatalf("failed to check consistency: %v", err)
	}
	if c.Consistent() {
		fmt.Println("PASS: Stock equals the sum of movements")
	} else {
		fmt.Printf("FAIL: cached %d, movements %d\n", c.Cached, c.MovementSum)
	}

	if dispatcher == nil {
		return
	}
	dispatcher.Close()

	published := countSaleEvents(sub, tenant, int(success))
	if published == int(success) {
		fmt.Printf("PASS: %d sale movements published\n", published)
	} else {
		fmt.Printf("FAIL: Expected %d published sale movements, got %d\n", success, published)
	}

	snapshot, ok, err := feed.Snapshot(ctx, domain.NewStockKey(tenant, loc.ID, product.ID))
	switch {
	case err != nil:
		log.Fatalf("failed to read snapshot: %v", err)
	case ok && snapshot == finalStock:
		fmt.Println("PASS: Redis snapshot matches the ledger")
	default:
		fmt.Printf("FAIL: snapshot %d (present %v), ledger %d\n", snapshot, ok, finalStock)
	}
}

// countSaleEvents reads the movement channel until want sale events for
// tenant arrive or the feed goes quiet.
func countSaleEvents(sub *redis.PubSub, tenant string, want int) int {
	ch := sub.Channel()
	got := 0
	for got < want {
		select {
		case msg := <-ch:
			var ev storage.MovementEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("bad event payload: %v", err)
				continue
			}
			if ev.TenantID == tenant && ev.Reason == string(domain.ReasonSale) {
				got++
			}
		case <-time.After(2 * time.Second):
			return got
		}
	}
	return got
}
