package domain

import (
	"fmt"
	"math"
	"time"
)

// OnlineLocation is the synthetic location id used to lock a product's
// dedicated online counter. It never holds physical stock.
const OnlineLocation = "@online"

// StockKey identifies one ledger row. Tenant is part of the key.
type StockKey struct {
	TenantID   string
	LocationID string
	ProductID  string
}

func NewStockKey(tenantID, locationID, productID string) StockKey {
	return StockKey{TenantID: tenantID, LocationID: locationID, ProductID: productID}
}

// OnlineKey returns the lock key guarding a product's row: its dedicated
// online counter and its catalog fields.
func OnlineKey(tenantID, productID string) StockKey {
	return StockKey{TenantID: tenantID, LocationID: OnlineLocation, ProductID: productID}
}

func (k StockKey) IsOnline() bool {
	return k.LocationID == OnlineLocation
}

func (k StockKey) String() string {
	return fmt.Sprintf("stock:%s:%s:%s", k.TenantID, k.LocationID, k.ProductID)
}

// Less orders keys so that multi-key locks are always taken in the same order.
func (k StockKey) Less(o StockKey) bool {
	if k.TenantID != o.TenantID {
		return k.TenantID < o.TenantID
	}
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.ProductID < o.ProductID
}

// Consistency is the result of comparing a cached total with its movement fold.
type Consistency struct {
	Key         StockKey
	Cached      int64
	MovementSum int64
}

func (c Consistency) Consistent() bool {
	return c.Cached == c.MovementSum
}

// StockItem is one (product, quantity) line used by entries and transfers.
type StockItem struct {
	ProductID string
	Quantity  int64
}

// StockEntry is the result of a receiving operation.
type StockEntry struct {
	LocationID string
	Reference  string
	Movements  []Movement
	CreatedAt  time.Time
}

// SumItems folds duplicate product lines, preserving first-seen order. It
// fails when a folded quantity leaves the int64 range.
func SumItems(items []StockItem) ([]StockItem, error) {
	idx := make(map[string]int, len(items))
	out := make([]StockItem, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			sum, err := AddQuantity(out[i].Quantity, it.Quantity)
			if err != nil {
				return nil, InvalidArgument("total quantity for product %s is too large", it.ProductID)
			}
			out[i].Quantity = sum
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

// AddQuantity returns a+b, or InvalidArgument when the result would not fit
// in an int64.
func AddQuantity(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, InvalidArgument("quantity %d%+d overflows", a, b)
	}
	return a + b, nil
}
