package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/ledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db, nil)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return adapter, db
}

// Every test runs in a fresh tenant so no cleanup is needed.
func testTenant() string {
	return "test-" + uuid.NewString()[:8]
}

func TestMySQL_ApplyAndCheck(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	key := domain.NewStockKey(testTenant(), "loc-1", "sku-x")

	for _, delta := range []int64{10, -3} {
		err := adapter.Do(ctx, []domain.StockKey{key}, func(tx port.Tx) error {
			return applyAndRecord(ctx, tx, key, delta)
		})
		if err != nil {
			t.Fatalf("apply %d failed: %v", delta, err)
		}
	}

	adapter.Do(ctx, nil, func(tx port.Tx) error {
		c, err := tx.Check(ctx, key)
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if c.Cached != 7 || !c.Consistent() {
			t.Errorf("expected consistent 7, got %+v", c)
		}
		return nil
	})
}

func TestMySQL_ApplyOverflow(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	assertOverflowRejected(t, adapter, domain.NewStockKey(testTenant(), "loc-1", "sku-x"))
}

func TestMySQL_RollbackOnError(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	key := domain.NewStockKey(testTenant(), "loc-1", "sku-x")
	boom := errors.New("boom")

	err := adapter.Do(ctx, []domain.StockKey{key}, func(tx port.Tx) error {
		if err := applyAndRecord(ctx, tx, key, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	adapter.Do(ctx, nil, func(tx port.Tx) error {
		if qty, _ := tx.Get(ctx, key); qty != 0 {
			t.Errorf("expected 0 after rollback, got %d", qty)
		}
		return nil
	})
}

func TestMySQL_ConcurrentApply(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	key := domain.NewStockKey(testTenant(), "loc-1", "sku-x")

	// Seed the row so every scope locks it.
	adapter.Do(ctx, []domain.StockKey{key}, func(tx port.Tx) error {
		return applyAndRecord(ctx, tx, key, 1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.Do(ctx, []domain.StockKey{key}, func(tx port.Tx) error {
				return applyAndRecord(ctx, tx, key, 1)
			})
			if err != nil {
				t.Errorf("apply failed: %v", err)
			}
		}()
	}
	wg.Wait()

	adapter.Do(ctx, nil, func(tx port.Tx) error {
		c, _ := tx.Check(ctx, key)
		if c.Cached != 21 || !c.Consistent() {
			t.Errorf("expected consistent 21, got %+v", c)
		}
		return nil
	})
}

func TestMySQL_DuplicateSKU(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	tenant := testTenant()
	now := time.Now()

	save := func(id string) error {
		return adapter.Do(ctx, nil, func(tx port.Tx) error {
			return tx.SaveProduct(ctx, domain.Product{
				ID: id, TenantID: tenant, SKU: "SKU-1", Name: "n",
				UnitPrice: decimal.NewFromInt(1), Active: true, Policy: domain.PolicyShared,
				CreatedAt: now, UpdatedAt: now,
			})
		})
	}
	if err := save("p-1"); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := save("p-2"); !errors.Is(err, port.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestMySQL_SaleRoundTrip(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	tenant := testTenant()
	sale := domain.Sale{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		LocationID: "loc-1",
		Items: []domain.SaleLineItem{
			{ProductID: "sku-x", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99"), Discount: decimal.Zero},
		},
		Payments:  []domain.Payment{{Method: "cash", Amount: decimal.RequireFromString("59.97")}},
		Total:     decimal.RequireFromString("59.97"),
		Currency:  "USD",
		OfflineID: "till-1",
		CreatedAt: time.Now(),
	}

	if err := adapter.Do(ctx, nil, func(tx port.Tx) error { return tx.CreateSale(ctx, sale) }); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	dup := sale
	dup.ID = uuid.NewString()
	err := adapter.Do(ctx, nil, func(tx port.Tx) error { return tx.CreateSale(ctx, dup) })
	if !errors.Is(err, port.ErrConflict) {
		t.Errorf("expected ErrConflict on reused offline id, got %v", err)
	}

	adapter.Do(ctx, nil, func(tx port.Tx) error {
		got, err := tx.SaleByOfflineID(ctx, tenant, "till-1")
		if err != nil || got == nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got.ID != sale.ID || !got.Total.Equal(sale.Total) || len(got.Items) != 1 || len(got.Payments) != 1 {
			t.Errorf("unexpected sale %+v", got)
		}
		return nil
	})
}

func TestMySQL_TransferOptimisticStatus(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	tr := domain.Transfer{
		ID:               uuid.NewString(),
		TenantID:         testTenant(),
		SourceLocationID: "loc-1",
		DestLocationID:   "loc-2",
		Items:            []domain.TransferLineItem{{ProductID: "sku-x", Quantity: 2}},
		Status:           domain.TransferCreated,
		CreatedAt:        time.Now(),
	}
	if err := adapter.Do(ctx, nil, func(tx port.Tx) error { return tx.CreateTransfer(ctx, tr) }); err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}

	next := tr
	next.Status = domain.TransferInTransit
	sent := time.Now()
	next.SentAt = &sent

	if err := adapter.Do(ctx, nil, func(tx port.Tx) error {
		return tx.UpdateTransferStatus(ctx, next, domain.TransferCreated)
	}); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	err := adapter.Do(ctx, nil, func(tx port.Tx) error {
		return tx.UpdateTransferStatus(ctx, next, domain.TransferCreated)
	})
	if !errors.Is(err, port.ErrConflict) {
		t.Errorf("expected ErrConflict on stale status, got %v", err)
	}
}
