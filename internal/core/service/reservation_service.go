package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

// planAttempts bounds how often Reserve re-plans when a product's policy
// changes between planning and locking.
const planAttempts = 3

var errPlanChanged = errors.New("stock policy changed during reservation")

// ReservationService reserves stock for storefront orders and releases it on
// cancellation or return.
type ReservationService struct {
	ledger
	defaultLocation string
}

// defaultLocation is used for shared products without their own online
// location.
func NewReservationService(store port.Store, events port.EventPublisher, logger *logrus.Logger, defaultLocation string) *ReservationService {
	return &ReservationService{ledger: newLedger(store, events, logger), defaultLocation: defaultLocation}
}

// Reserve creates the order in prepared and takes every line out of its
// pool. Every line is validated before anything is reserved. A known order
// id returns the stored order.
func (s *ReservationService) Reserve(ctx context.Context, req domain.OrderRequest) (*domain.OnlineOrder, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}
	items, err := domain.SumItems(req.Items)
	if err != nil {
		return nil, err
	}

	existing, err := s.find(ctx, actor.TenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	for attempt := 1; ; attempt++ {
		order, err := s.reserve(ctx, actor, req.OrderID, items)
		if errors.Is(err, errPlanChanged) && attempt < planAttempts {
			continue
		}
		if errors.Is(err, errPlanChanged) {
			return nil, domain.Persistence("Reserve", err)
		}
		return order, err
	}
}

func (s *ReservationService) reserve(ctx context.Context, actor domain.Actor, orderID string, items []domain.StockItem) (*domain.OnlineOrder, error) {
	var planned []domain.OrderLineItem
	err := s.run(ctx, "Reserve.plan", nil, func(tx port.Tx) error {
		var err error
		planned, err = s.plan(ctx, tx, actor.TenantID, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	var order *domain.OnlineOrder
	var movements []domain.Movement
	err = s.run(ctx, "Reserve", poolKeys(actor.TenantID, planned), func(tx port.Tx) error {
		movements = movements[:0]
		cur, err := tx.Order(ctx, actor.TenantID, orderID)
		if err != nil {
			return err
		}
		if cur != nil {
			order = cur
			return errReplay
		}

		lines, err := s.plan(ctx, tx, actor.TenantID, items)
		if err != nil {
			return err
		}
		for i := range lines {
			if lines[i] != planned[i] {
				return errPlanChanged
			}
		}

		for _, l := range lines {
			if l.Policy == domain.PolicyDedicated {
				p, err := requireProduct(ctx, tx, actor.TenantID, l.ProductID, true)
				if err != nil {
					return err
				}
				if p.OnlineStockQty < l.Quantity {
					return &domain.InsufficientStockError{
						ProductID:  l.ProductID,
						LocationID: domain.OnlineLocation,
						Available:  p.OnlineStockQty,
						Requested:  l.Quantity,
					}
				}
				continue
			}
			if err := ensureAvailable(ctx, tx, domain.NewStockKey(actor.TenantID, l.LocationID, l.ProductID), l.Quantity); err != nil {
				return err
			}
		}

		for _, l := range lines {
			mv, err := s.move(ctx, tx, actor, l, -l.Quantity, domain.ReasonEcomReserve, orderID)
			if err != nil {
				return err
			}
			if mv != nil {
				movements = append(movements, *mv)
			}
		}

		stamp := now()
		next := &domain.OnlineOrder{
			ID:        orderID,
			TenantID:  actor.TenantID,
			Items:     lines,
			Status:    domain.OrderPrepared,
			CreatedAt: stamp,
			UpdatedAt: stamp,
		}
		if err := tx.CreateOrder(ctx, *next); err != nil {
			return err
		}
		order = next
		return nil
	})

	switch {
	case errors.Is(err, errReplay):
		return order, nil
	case errors.Is(err, port.ErrConflict):
		existing, findErr := s.find(ctx, actor.TenantID, orderID)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, domain.Persistence("Reserve", err)
	case err != nil:
		return nil, err
	}

	s.publish(ctx, movements)
	s.logger.WithFields(logrus.Fields{
		"module":    "reservation",
		"tenant_id": actor.TenantID,
		"order_id":  orderID,
		"lines":     len(order.Items),
	}).Info("order reserved")
	return order, nil
}

// plan resolves which pool each line draws from.
func (s *ReservationService) plan(ctx context.Context, tx port.Tx, tenantID string, items []domain.StockItem) ([]domain.OrderLineItem, error) {
	lines := make([]domain.OrderLineItem, 0, len(items))
	for _, it := range items {
		p, err := requireProduct(ctx, tx, tenantID, it.ProductID, true)
		if err != nil {
			return nil, err
		}
		line := domain.OrderLineItem{ProductID: it.ProductID, Quantity: it.Quantity, Policy: p.Policy}
		if p.Policy != domain.PolicyDedicated {
			line.Policy = domain.PolicyShared
			line.LocationID = p.OnlineLocationID
			if line.LocationID == "" {
				line.LocationID = s.defaultLocation
			}
			if _, err := requireLocation(ctx, tx, tenantID, line.LocationID); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// move changes the pool of one line. Dedicated lines have no audit entry.
func (s *ReservationService) move(ctx context.Context, tx port.Tx, actor domain.Actor, l domain.OrderLineItem, delta int64, reason domain.Reason, orderID string) (*domain.Movement, error) {
	if l.Policy == domain.PolicyDedicated {
		if _, err := tx.ApplyOnlineStock(ctx, actor.TenantID, l.ProductID, delta); err != nil {
			return nil, domain.Persistence("apply online stock", err)
		}
		return nil, nil
	}
	mv, err := post(ctx, tx, actor, domain.NewStockKey(actor.TenantID, l.LocationID, l.ProductID), delta, reason, orderID, "")
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func (s *ReservationService) Ship(ctx context.Context, orderID string) (*domain.OnlineOrder, error) {
	return s.transition(ctx, orderID, domain.OrderShipped)
}

func (s *ReservationService) Deliver(ctx context.Context, orderID string) (*domain.OnlineOrder, error) {
	return s.transition(ctx, orderID, domain.OrderDelivered)
}

// Cancel releases the reservation of a prepared order.
func (s *ReservationService) Cancel(ctx context.Context, orderID string) (*domain.OnlineOrder, error) {
	return s.transition(ctx, orderID, domain.OrderCancelled)
}

// Return gives back the stock of a shipped or delivered order.
func (s *ReservationService) Return(ctx context.Context, orderID string) (*domain.OnlineOrder, error) {
	return s.transition(ctx, orderID, domain.OrderReturned)
}

func (s *ReservationService) GetOrder(ctx context.Context, orderID string) (*domain.OnlineOrder, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.find(ctx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFound("order", orderID)
	}
	return o, nil
}

func (s *ReservationService) find(ctx context.Context, tenantID, orderID string) (*domain.OnlineOrder, error) {
	var o *domain.OnlineOrder
	err := s.run(ctx, "GetOrder", nil, func(tx port.Tx) error {
		var err error
		o, err = tx.Order(ctx, tenantID, orderID)
		return err
	})
	return o, err
}

func (s *ReservationService) transition(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.OnlineOrder, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	o, err := s.find(ctx, actor.TenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFound("order", orderID)
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, CurrentState: o.Status, Attempted: next}
	}

	var keys []domain.StockKey
	if next.Releases() {
		keys = poolKeys(actor.TenantID, o.Items)
	}

	var movements []domain.Movement
	err = s.run(ctx, "Order."+string(next), keys, func(tx port.Tx) error {
		movements = movements[:0]
		cur, err := tx.Order(ctx, actor.TenantID, orderID)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.NotFound("order", orderID)
		}
		if !cur.Status.CanTransitionTo(next) {
			return &domain.InvalidOrderStateError{OrderID: orderID, CurrentState: cur.Status, Attempted: next}
		}

		if next.Releases() {
			// Lines remember their pool, so a later policy change does not
			// redirect the release.
			for _, l := range cur.Items {
				mv, err := s.move(ctx, tx, actor, l, l.Quantity, domain.ReasonEcomRelease, orderID)
				if err != nil {
					return err
				}
				if mv != nil {
					movements = append(movements, *mv)
				}
			}
		}

		from := cur.Status
		cur.Status = next
		cur.UpdatedAt = now()
		if err := tx.UpdateOrderStatus(ctx, *cur, from); err != nil {
			return err
		}
		o = cur
		return nil
	})
	if errors.Is(err, port.ErrConflict) {
		latest, findErr := s.find(ctx, actor.TenantID, orderID)
		if findErr != nil {
			return nil, findErr
		}
		state := domain.OrderStatus("")
		if latest != nil {
			state = latest.Status
		}
		return nil, &domain.InvalidOrderStateError{OrderID: orderID, CurrentState: state, Attempted: next}
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, movements)
	s.logger.WithFields(logrus.Fields{
		"module":    "reservation",
		"tenant_id": actor.TenantID,
		"order_id":  orderID,
		"status":    string(next),
	}).Info("order status changed")
	return o, nil
}

func poolKeys(tenantID string, lines []domain.OrderLineItem) []domain.StockKey {
	keys := make([]domain.StockKey, 0, len(lines))
	for _, l := range lines {
		if l.Policy == domain.PolicyDedicated {
			keys = append(keys, domain.OnlineKey(tenantID, l.ProductID))
			continue
		}
		keys = append(keys, domain.NewStockKey(tenantID, l.LocationID, l.ProductID))
	}
	return keys
}
