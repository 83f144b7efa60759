package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is. Detail types below match their sentinel.
var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidProduct       = errors.New("invalid product")
	ErrInvalidLocation      = errors.New("invalid location")
	ErrInvalidTransferState = errors.New("invalid transfer state")
	ErrInvalidOrderState    = errors.New("invalid order state")
	ErrPaymentMismatch      = errors.New("payment mismatch")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("duplicate")
	ErrNoTenant             = errors.New("missing tenant context")
)

type InsufficientStockError struct {
	ProductID  string
	LocationID string
	Available  int64
	Requested  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s at %s: available %d, requested %d",
		e.ProductID, e.LocationID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidProductError struct {
	ProductID string
}

func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product %s", e.ProductID)
}

func (e *InvalidProductError) Is(target error) bool { return target == ErrInvalidProduct }

type InvalidLocationError struct {
	LocationID string
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid location %s", e.LocationID)
}

func (e *InvalidLocationError) Is(target error) bool { return target == ErrInvalidLocation }

type InvalidTransferStateError struct {
	TransferID   string
	CurrentState TransferStatus
	Attempted    string
}

func (e *InvalidTransferStateError) Error() string {
	return fmt.Sprintf("cannot %s transfer %s in state %s", e.Attempted, e.TransferID, e.CurrentState)
}

func (e *InvalidTransferStateError) Is(target error) bool { return target == ErrInvalidTransferState }

type InvalidOrderStateError struct {
	OrderID      string
	CurrentState OrderStatus
	Attempted    OrderStatus
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("cannot move order %s from %s to %s", e.OrderID, e.CurrentState, e.Attempted)
}

func (e *InvalidOrderStateError) Is(target error) bool { return target == ErrInvalidOrderState }

type PaymentMismatchError struct {
	Expected decimal.Decimal
	Received decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payments total %s does not match sale total %s", e.Received, e.Expected)
}

func (e *PaymentMismatchError) Is(target error) bool { return target == ErrPaymentMismatch }

// PersistenceError means the backing store could not durably record a
// mutation. It is always surfaced to the caller as-is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it already carries a domain classification.
func Persistence(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// IsDomainError reports whether err belongs to the caller-facing taxonomy.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInsufficientStock, ErrInvalidProduct, ErrInvalidLocation, ErrInvalidTransferState,
		ErrInvalidOrderState, ErrPaymentMismatch, ErrPersistence, ErrInvalidArgument,
		ErrNotFound, ErrDuplicate, ErrNoTenant,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
