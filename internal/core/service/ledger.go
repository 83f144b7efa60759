package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

var now = func() time.Time { return time.Now().UTC() }

// errReplay aborts a scope whose result already exists.
var errReplay = errors.New("replayed request")

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []domain.Movement) error { return nil }

// ledger holds what every service shares: the store, the event pipeline and
// the logger.
type ledger struct {
	store  port.Store
	events port.EventPublisher
	logger *logrus.Logger
}

func newLedger(store port.Store, events port.EventPublisher, logger *logrus.Logger) ledger {
	if events == nil {
		events = nopPublisher{}
	}
	if logger == nil {
		logger = config.NopLogger()
	}
	return ledger{store: store, events: events, logger: logger}
}

// run executes fn in one atomic scope. Backend failures come back as
// PersistenceError; domain errors, ErrConflict and errReplay pass through.
func (l *ledger) run(ctx context.Context, op string, keys []domain.StockKey, fn func(tx port.Tx) error) error {
	err := l.store.Do(ctx, keys, fn)
	if err == nil || errors.Is(err, errReplay) || errors.Is(err, port.ErrConflict) {
		return err
	}
	if domain.IsDomainError(err) {
		if errors.Is(err, domain.ErrPersistence) {
			config.LogError(l.logger, "service", op, "persistence failure", nil, err)
		}
		return err
	}
	config.LogError(l.logger, "service", op, "persistence failure", nil, err)
	return domain.Persistence(op, err)
}

func (l *ledger) publish(ctx context.Context, movements []domain.Movement) {
	if len(movements) == 0 {
		return
	}
	if err := l.events.Publish(ctx, movements); err != nil {
		l.logger.WithFields(logrus.Fields{
			"module":    "service",
			"movements": len(movements),
		}).Warn("publish movements: " + err.Error())
	}
}

// post applies delta to key and records the matching movement in the same
// scope. It is the only path that changes a stock total.
func post(ctx context.Context, tx port.Tx, actor domain.Actor, key domain.StockKey, delta int64, reason domain.Reason, reference, note string) (domain.Movement, error) {
	balance, err := tx.Apply(ctx, key, delta)
	if err != nil {
		return domain.Movement{}, domain.Persistence("apply stock", err)
	}

	mv := domain.Movement{
		ID:           uuid.NewString(),
		TenantID:     key.TenantID,
		LocationID:   key.LocationID,
		ProductID:    key.ProductID,
		Delta:        delta,
		BalanceAfter: balance,
		Reason:       reason,
		ActorID:      actor.ActorID,
		Reference:    reference,
		Note:         note,
		CreatedAt:    now(),
	}
	if err := tx.Record(ctx, mv); err != nil {
		return domain.Movement{}, domain.Persistence("record movement", err)
	}
	return mv, nil
}

func requireLocation(ctx context.Context, tx port.Tx, tenantID, id string) (*domain.Location, error) {
	if id == "" {
		return nil, &domain.InvalidLocationError{LocationID: id}
	}
	l, err := tx.Location(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, &domain.InvalidLocationError{LocationID: id}
	}
	return l, nil
}

// requireProduct loads a product; active rejects deactivated products too.
func requireProduct(ctx context.Context, tx port.Tx, tenantID, id string, active bool) (*domain.Product, error) {
	if id == "" {
		return nil, &domain.InvalidProductError{ProductID: id}
	}
	p, err := tx.Product(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p == nil || (active && !p.Active) {
		return nil, &domain.InvalidProductError{ProductID: id}
	}
	return p, nil
}

// ensureAvailable fails with InsufficientStock unless key covers quantity.
func ensureAvailable(ctx context.Context, tx port.Tx, key domain.StockKey, quantity int64) error {
	available, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	if available < quantity {
		return &domain.InsufficientStockError{
			ProductID:  key.ProductID,
			LocationID: key.LocationID,
			Available:  available,
			Requested:  quantity,
		}
	}
	return nil
}

func validateItems(items []domain.StockItem) error {
	if len(items) == 0 {
		return domain.InvalidArgument("at least one item is required")
	}
	for _, it := range items {
		if it.ProductID == "" {
			return domain.InvalidArgument("product id is required")
		}
		if it.Quantity <= 0 {
			return domain.InvalidArgument("quantity for product %s must be positive", it.ProductID)
		}
	}
	return nil
}

func stockKeys(tenantID, locationID string, items []domain.StockItem) []domain.StockKey {
	keys := make([]domain.StockKey, 0, len(items))
	for _, it := range items {
		keys = append(keys, domain.NewStockKey(tenantID, locationID, it.ProductID))
	}
	return keys
}
