package port

import (
	"context"
	"errors"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

// ErrConflict is returned when a write loses a race: a duplicate unique key or
// a status that changed since it was read.
var ErrConflict = errors.New("write conflict")

type StockStore interface {
	// Get returns the current total for key, 0 when nothing was ever applied
	Get(ctx context.Context, key domain.StockKey) (int64, error)

	// Apply adds delta to the total and returns the new total; no sign policy
	Apply(ctx context.Context, key domain.StockKey, delta int64) (int64, error)

	// Check compares the cached total with the sum of recorded movements
	Check(ctx context.Context, key domain.StockKey) (domain.Consistency, error)
}

type AuditLog interface {
	// Record appends a movement; failure must fail the enclosing operation
	Record(ctx context.Context, m domain.Movement) error

	// Query returns movements of a product, most recent first, at most limit
	Query(ctx context.Context, tenantID, productID string, limit int) ([]domain.Movement, error)
}

type CatalogRepository interface {
	// Product returns nil when the product does not exist
	Product(ctx context.Context, tenantID, id string) (*domain.Product, error)
	SaveProduct(ctx context.Context, p domain.Product) error

	// ApplyOnlineStock adds delta to the dedicated online counter and returns it
	ApplyOnlineStock(ctx context.Context, tenantID, productID string, delta int64) (int64, error)

	// Location returns nil when the location does not exist
	Location(ctx context.Context, tenantID, id string) (*domain.Location, error)
	SaveLocation(ctx context.Context, l domain.Location) error
}

type SaleRepository interface {
	// CreateSale stores header, lines and payments; ErrConflict on a reused offline id
	CreateSale(ctx context.Context, s domain.Sale) error
	Sale(ctx context.Context, tenantID, id string) (*domain.Sale, error)
	SaleByOfflineID(ctx context.Context, tenantID, offlineID string) (*domain.Sale, error)
}

type TransferRepository interface {
	CreateTransfer(ctx context.Context, t domain.Transfer) error

	// Transfer loads a transfer, locking it for the rest of the scope where supported
	Transfer(ctx context.Context, tenantID, id string) (*domain.Transfer, error)

	// UpdateTransferStatus persists status and timestamps; ErrConflict if status is no longer from
	UpdateTransferStatus(ctx context.Context, t domain.Transfer, from domain.TransferStatus) error
}

type OrderRepository interface {
	// CreateOrder returns ErrConflict when the order id already exists
	CreateOrder(ctx context.Context, o domain.OnlineOrder) error
	Order(ctx context.Context, tenantID, id string) (*domain.OnlineOrder, error)
	UpdateOrderStatus(ctx context.Context, o domain.OnlineOrder, from domain.OrderStatus) error
}

type SessionRepository interface {
	CreateInventorySession(ctx context.Context, s domain.InventorySession) error
	InventorySession(ctx context.Context, tenantID, id string) (*domain.InventorySession, error)
}

// Tx is the set of repositories visible inside one atomic scope.
type Tx interface {
	StockStore
	AuditLog
	CatalogRepository
	SaleRepository
	TransferRepository
	OrderRepository
	SessionRepository
}

// Store is the backend-agnostic unit of work. Do locks keys for the whole
// scope, runs fn and commits everything fn wrote, or nothing if fn fails.
type Store interface {
	Do(ctx context.Context, keys []domain.StockKey, fn func(tx Tx) error) error
}
