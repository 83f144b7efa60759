package domain

import "time"

type Reason string

const (
	ReasonEntry        Reason = "entry"
	ReasonAdjustment   Reason = "adjustment"
	ReasonSale         Reason = "sale"
	ReasonSaleReversal Reason = "sale_reversal"
	ReasonTransferOut  Reason = "transfer_out"
	ReasonTransferIn   Reason = "transfer_in"
	ReasonEcomReserve  Reason = "ecom_reserve"
	ReasonEcomRelease  Reason = "ecom_release"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonEntry, ReasonAdjustment, ReasonSale, ReasonSaleReversal,
		ReasonTransferOut, ReasonTransferIn, ReasonEcomReserve, ReasonEcomRelease:
		return true
	}
	return false
}

// Movement is one append-only audit entry. Never updated or deleted.
type Movement struct {
	ID           string
	TenantID     string
	LocationID   string
	ProductID    string
	Delta        int64
	BalanceAfter int64
	Reason       Reason
	ActorID      string // empty when the change has no actor
	Reference    string
	Note         string
	CreatedAt    time.Time
}

func (m Movement) Key() StockKey {
	return NewStockKey(m.TenantID, m.LocationID, m.ProductID)
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// ClampHistoryLimit applies the default and the hard cap of audit queries.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
