package service

import (
	"errors"
	"testing"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

func (f *fixture) dedicated(t *testing.T, productID string, online int64) {
	t.Helper()
	if _, err := f.catalog.SetEcommercePolicy(f.ctx, productID, domain.PolicyDedicated, ""); err != nil {
		t.Fatalf("set dedicated policy: %v", err)
	}
	if _, err := f.catalog.SetOnlineStock(f.ctx, productID, online); err != nil {
		t.Fatalf("set online stock: %v", err)
	}
}

func (f *fixture) shared(t *testing.T, productID, locationID string) {
	t.Helper()
	if _, err := f.catalog.SetEcommercePolicy(f.ctx, productID, domain.PolicyShared, locationID); err != nil {
		t.Fatalf("set shared policy: %v", err)
	}
}

func (f *fixture) online(t *testing.T, productID string) int64 {
	t.Helper()
	p, err := f.catalog.GetProduct(f.ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.OnlineStockQty
}

func orderReq(id string, items ...domain.StockItem) domain.OrderRequest {
	return domain.OrderRequest{OrderID: id, Items: items}
}

func TestReserve_DedicatedInsufficient(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.location(t, "warehouse")
		f.product(t, "sku-x", "1")
		f.receive(t, "warehouse", "sku-x", 50)
		f.dedicated(t, "sku-x", 2)

		_, err := f.reserve.Reserve(f.ctx, orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 3}))

		var ise *domain.InsufficientStockError
		if !errors.As(err, &ise) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if ise.LocationID != domain.OnlineLocation || ise.Available != 2 {
			t.Errorf("unexpected error detail %+v", ise)
		}
		if n := f.online(t, "sku-x"); n != 2 {
			t.Errorf("online counter must stay 2, got %d", n)
		}
		if q := f.qty(t, "warehouse", "sku-x"); q != 50 {
			t.Errorf("physical stock must not be used for dedicated products, got %d", q)
		}
		if _, err := f.reserve.GetOrder(f.ctx, "ord-1"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("no order may be stored, got %v", err)
		}
	})
}

func TestReserve_DedicatedCancelReleasesOnce(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.product(t, "sku-x", "1")
		f.dedicated(t, "sku-x", 5)

		o, err := f.reserve.Reserve(f.ctx, orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 3}))
		if err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		if o.Status != domain.OrderPrepared || o.Items[0].Policy != domain.PolicyDedicated {
			t.Errorf("unexpected order %+v", o)
		}
		if n := f.online(t, "sku-x"); n != 2 {
			t.Errorf("expected 2 online after reserve, got %d", n)
		}

		if _, err := f.reserve.Cancel(f.ctx, "ord-1"); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		if n := f.online(t, "sku-x"); n != 5 {
			t.Errorf("expected 5 online after cancel, got %d", n)
		}

		if _, err := f.reserve.Cancel(f.ctx, "ord-1"); !errors.Is(err, domain.ErrInvalidOrderState) {
			t.Errorf("second cancel: expected InvalidOrderState, got %v", err)
		}
		if n := f.online(t, "sku-x"); n != 5 {
			t.Errorf("second cancel must not release again, got %d", n)
		}
	})
}

func TestReserve_SharedUsesPhysicalStock(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.location(t, "warehouse")
		f.product(t, "sku-x", "1")
		f.receive(t, "warehouse", "sku-x", 10)
		f.shared(t, "sku-x", "warehouse")

		o, err := f.reserve.Reserve(f.ctx, orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 4}))
		if err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		if o.Items[0].LocationID != "warehouse" {
			t.Errorf("line must remember its pool, got %+v", o.Items[0])
		}
		if q := f.qty(t, "warehouse", "sku-x"); q != 6 {
			t.Errorf("expected 6 after reserve, got %d", q)
		}

		history, _ := f.stock.History(f.ctx, "sku-x", 1)
		if len(history) != 1 || history[0].Reason != domain.ReasonEcomReserve || history[0].Reference != "ord-1" {
			t.Errorf("expected ecom_reserve movement, got %+v", history)
		}

		if _, err := f.reserve.Reserve(f.ctx, orderReq("ord-2", domain.StockItem{ProductID: "sku-x", Quantity: 7})); !errors.Is(err, domain.ErrInsufficientStock) {
			t.Errorf("expected insufficient stock, got %v", err)
		}
		f.assertConsistent(t, "warehouse", "sku-x")
	})
}

func TestReserve_ReplayReturnsStoredOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.product(t, "sku-x", "1")
		f.dedicated(t, "sku-x", 5)

		req := orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 2})
		first, err := f.reserve.Reserve(f.ctx, req)
		if err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		second, err := f.reserve.Reserve(f.ctx, req)
		if err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected the stored order, got %s", second.ID)
		}
		if n := f.online(t, "sku-x"); n != 3 {
			t.Errorf("expected a single reservation, got %d online", n)
		}

		generated, err := f.reserve.Reserve(f.ctx, orderReq("", domain.StockItem{ProductID: "sku-x", Quantity: 1}))
		if err != nil || generated.ID == "" {
			t.Errorf("expected a generated order id, got %+v, %v", generated, err)
		}
	})
}

func TestReserve_MixedLinesAllOrNothing(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.location(t, "warehouse")
		f.product(t, "sku-d", "1")
		f.product(t, "sku-s", "1")
		f.dedicated(t, "sku-d", 5)
		f.receive(t, "warehouse", "sku-s", 1)
		f.shared(t, "sku-s", "warehouse")

		_, err := f.reserve.Reserve(f.ctx, orderReq("ord-1",
			domain.StockItem{ProductID: "sku-d", Quantity: 2},
			domain.StockItem{ProductID: "sku-s", Quantity: 2},
		))
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if n := f.online(t, "sku-d"); n != 5 {
			t.Errorf("dedicated line must not be reserved, got %d", n)
		}
	})
}

func TestReserve_ReleaseGoesToOriginalPool(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.location(t, "warehouse")
		f.product(t, "sku-x", "1")
		f.receive(t, "warehouse", "sku-x", 10)
		f.shared(t, "sku-x", "warehouse")

		if _, err := f.reserve.Reserve(f.ctx, orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 3})); err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		f.dedicated(t, "sku-x", 0)

		if _, err := f.reserve.Cancel(f.ctx, "ord-1"); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		if q := f.qty(t, "warehouse", "sku-x"); q != 10 {
			t.Errorf("release must go back to the warehouse, got %d", q)
		}
		if n := f.online(t, "sku-x"); n != 0 {
			t.Errorf("online counter must not receive the release, got %d", n)
		}
	})
}

func TestOrder_ShipDeliverReturn(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		f.location(t, "warehouse")
		f.product(t, "sku-x", "1")
		f.receive(t, "warehouse", "sku-x", 10)
		f.shared(t, "sku-x", "warehouse")

		if _, err := f.reserve.Reserve(f.ctx, orderReq("ord-1", domain.StockItem{ProductID: "sku-x", Quantity: 2})); err != nil {
			t.Fatalf("reserve failed: %v", err)
		}
		if _, err := f.reserve.Ship(f.ctx, "ord-1"); err != nil {
			t.Fatalf("ship failed: %v", err)
		}
		if q := f.qty(t, "warehouse", "sku-x"); q != 8 {
			t.Errorf("shipping must not release stock, got %d", q)
		}
		if _, err := f.reserve.Cancel(f.ctx, "ord-1"); !errors.Is(err, domain.ErrInvalidOrderState) {
			t.Errorf("cancel after ship: expected InvalidOrderState, got %v", err)
		}
		if _, err := f.reserve.Deliver(f.ctx, "ord-1"); err != nil {
			t.Fatalf("deliver failed: %v", err)
		}

		o, err := f.reserve.Return(f.ctx, "ord-1")
		if err != nil {
			t.Fatalf("return failed: %v", err)
		}
		if o.Status != domain.OrderReturned {
			t.Errorf("expected returned, got %s", o.Status)
		}
		if q := f.qty(t, "warehouse", "sku-x"); q != 10 {
			t.Errorf("return must give stock back, got %d", q)
		}
		if _, err := f.reserve.Return(f.ctx, "ord-1"); !errors.Is(err, domain.ErrInvalidOrderState) {
			t.Errorf("second return: expected InvalidOrderState, got %v", err)
		}
		f.assertConsistent(t, "warehouse", "sku-x")

		if _, err := f.reserve.Ship(f.ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestReserve_Rejections(t *testing.T) {
	f := newFixture(t)
	f.product(t, "sku-x", "1")
	f.product(t, "sku-old", "1")
	f.dedicated(t, "sku-old", 5)
	f.catalog.DeactivateProduct(f.ctx, "sku-old")

	if _, err := f.reserve.Reserve(f.ctx, orderReq("o1")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty order: expected InvalidArgument, got %v", err)
	}
	if _, err := f.reserve.Reserve(f.ctx, orderReq("o2", domain.StockItem{ProductID: "sku-old", Quantity: 1})); !errors.Is(err, domain.ErrInvalidProduct) {
		t.Errorf("inactive product: expected InvalidProduct, got %v", err)
	}
	// Shared with no online location and no default.
	if _, err := f.reserve.Reserve(f.ctx, orderReq("o3", domain.StockItem{ProductID: "sku-x", Quantity: 1})); !errors.Is(err, domain.ErrInvalidLocation) {
		t.Errorf("no pool: expected InvalidLocation, got %v", err)
	}
}
