package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/retail-ledger/internal/adapter/storage"
	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

const testTenant = "tenant-1"

// recordingPublisher captures published movements.
type recordingPublisher struct {
	mu        sync.Mutex
	movements []domain.Movement
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, movements []domain.Movement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.movements = append(p.movements, movements...)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.movements)
}

type fixture struct {
	ctx       context.Context
	tenant    string
	store     port.Store
	mem       *storage.MemoryAdapter // nil on MySQL
	events    *recordingPublisher
	catalog   *CatalogService
	stock     *StockService
	sales     *SaleService
	transfers *TransferService
	reserve   *ReservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemoryAdapter(nil)
	f := newStoreFixture(mem, testTenant)
	f.mem = mem
	return f
}

// newMySQLFixture runs against MYSQL_DSN in a fresh tenant, so tests never
// see each other's rows.
func newMySQLFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/ledger?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewMySQLAdapter(db, nil)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return newStoreFixture(store, "test-"+uuid.NewString()[:8])
}

func newStoreFixture(store port.Store, tenant string) *fixture {
	events := &recordingPublisher{}
	return &fixture{
		ctx:       domain.WithActor(context.Background(), domain.Actor{TenantID: tenant, ActorID: "cashier-1", Role: "staff"}),
		tenant:    tenant,
		store:     store,
		events:    events,
		catalog:   NewCatalogService(store, nil, ""),
		stock:     NewStockService(store, events, nil),
		sales:     NewSaleService(store, events, nil, "USD"),
		transfers: NewTransferService(store, events, nil),
		reserve:   NewReservationService(store, events, nil, ""),
	}
}

// eachBackend runs the same test against the memory and MySQL backends.
func eachBackend(t *testing.T, run func(t *testing.T, f *fixture)) {
	backends := []struct {
		name string
		open func(*testing.T) *fixture
	}{
		{"memory", newFixture},
		{"mysql", newMySQLFixture},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			run(t, b.open(t))
		})
	}
}

func (f *fixture) location(t *testing.T, id string) {
	t.Helper()
	if _, err := f.catalog.CreateLocation(f.ctx, domain.Location{ID: id, Name: id}); err != nil {
		t.Fatalf("create location %s: %v", id, err)
	}
}

func (f *fixture) product(t *testing.T, id, price string) *domain.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(f.ctx, domain.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      id,
		UnitPrice: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("create product %s: %v", id, err)
	}
	return p
}

func (f *fixture) receive(t *testing.T, locationID, productID string, qty int64) {
	t.Helper()
	if _, err := f.stock.CreateStockEntry(f.ctx, locationID, []domain.StockItem{{ProductID: productID, Quantity: qty}}, "seed"); err != nil {
		t.Fatalf("receive %d %s at %s: %v", qty, productID, locationID, err)
	}
}

func (f *fixture) qty(t *testing.T, locationID, productID string) int64 {
	t.Helper()
	q, err := f.stock.GetStock(f.ctx, locationID, productID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	return q
}

// assertConsistent checks that the cached total equals the movement fold.
func (f *fixture) assertConsistent(t *testing.T, locationID, productID string) {
	t.Helper()
	c, err := f.stock.CheckConsistency(f.ctx, locationID, productID)
	if err != nil {
		t.Fatalf("check consistency: %v", err)
	}
	if !c.Consistent() {
		t.Errorf("ledger drift at %s/%s: cached %d, movements %d", locationID, productID, c.Cached, c.MovementSum)
	}
}

func TestMissingTenantRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.stock.GetStock(context.Background(), "loc-1", "sku-x")
	if !errors.Is(err, domain.ErrNoTenant) {
		t.Errorf("expected ErrNoTenant, got %v", err)
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.location(t, "loc-1")
	f.product(t, "sku-x", "1")
	f.product(t, "sku-y", "1")

	f.mem.InjectFault(func(op string) error {
		if op == "record" {
			return errors.New("audit log unavailable")
		}
		return nil
	})
	_, err := f.stock.CreateStockEntry(f.ctx, "loc-1", []domain.StockItem{
		{ProductID: "sku-x", Quantity: 5},
		{ProductID: "sku-y", Quantity: 5},
	}, "po-1")
	f.mem.InjectFault(nil)

	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if q := f.qty(t, "loc-1", "sku-x"); q != 0 {
		t.Errorf("expected no stock applied, got %d", q)
	}
	if f.events.count() != 0 {
		t.Errorf("nothing should be published, got %d", f.events.count())
	}
}

func TestCommitFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.location(t, "loc-1")
	f.product(t, "sku-x", "1")
	f.receive(t, "loc-1", "sku-x", 10)

	f.mem.InjectFault(func(op string) error {
		if op == "commit" {
			return errors.New("connection reset")
		}
		return nil
	})
	_, err := f.sales.CreateSale(f.ctx, domain.SaleRequest{
		LocationID: "loc-1",
		Items:      []domain.SaleLine{{ProductID: "sku-x", Quantity: 2}},
	})
	f.mem.InjectFault(nil)

	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if q := f.qty(t, "loc-1", "sku-x"); q != 10 {
		t.Errorf("expected stock untouched at 10, got %d", q)
	}
	f.assertConsistent(t, "loc-1", "sku-x")
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.location(t, "loc-1")
	f.product(t, "sku-x", "1")
	f.events.err = errors.New("queue closed")

	if _, err := f.stock.AdjustStock(f.ctx, "loc-1", "sku-x", 3, "found in back room"); err != nil {
		t.Fatalf("adjustment should succeed, got %v", err)
	}
	if q := f.qty(t, "loc-1", "sku-x"); q != 3 {
		t.Errorf("expected 3, got %d", q)
	}
}
