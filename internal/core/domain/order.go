package domain

import "time"

type OrderStatus string

const (
	OrderPrepared  OrderStatus = "prepared"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderReturned  OrderStatus = "returned"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPrepared:  {OrderShipped, OrderCancelled},
	OrderShipped:   {OrderDelivered, OrderReturned},
	OrderDelivered: {OrderReturned},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Releases reports whether reaching this status gives stock back.
func (s OrderStatus) Releases() bool {
	return s == OrderCancelled || s == OrderReturned
}

// OrderLineItem records which pool a line was reserved from, so the release
// goes back to the same pool even if the product policy changes later.
type OrderLineItem struct {
	ProductID  string
	Quantity   int64
	Policy     StockPolicy
	LocationID string // set for shared lines
}

// OnlineOrder is a storefront order as seen by the ledger.
type OnlineOrder struct {
	ID        string
	TenantID  string
	Items     []OrderLineItem
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderRequest struct {
	OrderID string
	Items   []StockItem
}
