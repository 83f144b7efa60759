package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockPolicy string

const (
	// PolicyShared draws online orders from a designated location's StockLevel.
	PolicyShared StockPolicy = "shared"
	// PolicyDedicated draws online orders from Product.OnlineStockQty.
	PolicyDedicated StockPolicy = "dedicated"
)

func (p StockPolicy) Valid() bool {
	return p == PolicyShared || p == PolicyDedicated
}

type Product struct {
	ID               string
	TenantID         string
	SKU              string
	Name             string
	UnitPrice        decimal.Decimal
	UnitCost         decimal.Decimal
	Active           bool
	Policy           StockPolicy
	OnlineLocationID string
	OnlineStockQty   int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Location is a store, warehouse or boutique.
type Location struct {
	ID        string
	TenantID  string
	Name      string
	Code      string
	CreatedAt time.Time
}

// ProductUpdate carries the editable fields of a product. Nil means unchanged.
type ProductUpdate struct {
	Name      *string
	UnitPrice *decimal.Decimal
	UnitCost  *decimal.Decimal
}
