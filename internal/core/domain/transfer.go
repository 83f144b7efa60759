package domain

import "time"

type TransferStatus string

const (
	TransferCreated   TransferStatus = "created"
	TransferInTransit TransferStatus = "in_transit"
	TransferReceived  TransferStatus = "received"
)

type TransferLineItem struct {
	ProductID string
	Quantity  int64
}

// Transfer moves goods between two locations. Items are fixed at creation;
// only Status and its timestamps change afterwards.
type Transfer struct {
	ID               string
	TenantID         string
	SourceLocationID string
	DestLocationID   string
	Items            []TransferLineItem
	Status           TransferStatus
	Reference        string
	CreatedBy        string
	CreatedAt        time.Time
	SentAt           *time.Time
	ReceivedAt       *time.Time
}

// Next returns the status reached by the named action, or false when the
// action is not legal from the current status.
func (t *Transfer) Next(action string) (TransferStatus, bool) {
	switch {
	case action == "send" && t.Status == TransferCreated:
		return TransferInTransit, true
	case action == "receive" && t.Status == TransferInTransit:
		return TransferReceived, true
	}
	return t.Status, false
}

// InTransit lists the quantities that have left the source but not arrived.
func (t *Transfer) InTransit() []TransferLineItem {
	if t.Status != TransferInTransit {
		return nil
	}
	return t.Items
}
