package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

// StockService covers receiving, manual corrections and count reports.
type StockService struct {
	ledger
}

func NewStockService(store port.Store, events port.EventPublisher, logger *logrus.Logger) *StockService {
	return &StockService{ledger: newLedger(store, events, logger)}
}

// CreateStockEntry receives goods at a location. Either every item is
// applied or none is.
func (s *StockService) CreateStockEntry(ctx context.Context, locationID string, items []domain.StockItem, reference string) (*domain.StockEntry, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if items, err = domain.SumItems(items); err != nil {
		return nil, err
	}

	entry := &domain.StockEntry{LocationID: locationID, Reference: reference, CreatedAt: now()}
	err = s.run(ctx, "CreateStockEntry", stockKeys(actor.TenantID, locationID, items), func(tx port.Tx) error {
		entry.Movements = entry.Movements[:0]
		if _, err := requireLocation(ctx, tx, actor.TenantID, locationID); err != nil {
			return err
		}
		for _, it := range items {
			if _, err := requireProduct(ctx, tx, actor.TenantID, it.ProductID, false); err != nil {
				return err
			}
			mv, err := post(ctx, tx, actor, domain.NewStockKey(actor.TenantID, locationID, it.ProductID),
				it.Quantity, domain.ReasonEntry, reference, "")
			if err != nil {
				return err
			}
			entry.Movements = append(entry.Movements, mv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, entry.Movements)
	s.logger.WithFields(logrus.Fields{
		"module":      "stock",
		"tenant_id":   actor.TenantID,
		"location_id": locationID,
		"items":       len(items),
		"reference":   reference,
	}).Info("stock entry created")
	return entry, nil
}

// AdjustStock applies a signed correction and returns the new total. The
// total may go negative.
func (s *StockService) AdjustStock(ctx context.Context, locationID, productID string, delta int64, note string) (int64, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, domain.InvalidArgument("adjustment delta must be non-zero")
	}

	key := domain.NewStockKey(actor.TenantID, locationID, productID)
	var mv domain.Movement
	err = s.run(ctx, "AdjustStock", []domain.StockKey{key}, func(tx port.Tx) error {
		if _, err := requireLocation(ctx, tx, actor.TenantID, locationID); err != nil {
			return err
		}
		if _, err := requireProduct(ctx, tx, actor.TenantID, productID, false); err != nil {
			return err
		}
		mv, err = post(ctx, tx, actor, key, delta, domain.ReasonAdjustment, "", note)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, []domain.Movement{mv})
	entry := s.logger.WithFields(logrus.Fields{
		"module":      "stock",
		"tenant_id":   actor.TenantID,
		"location_id": locationID,
		"product_id":  productID,
		"delta":       delta,
		"balance":     mv.BalanceAfter,
	})
	if mv.BalanceAfter < 0 {
		entry.Warn("stock adjusted below zero")
	} else {
		entry.Info("stock adjusted")
	}
	return mv.BalanceAfter, nil
}

// CreateInventorySession compares physical counts with the ledger and stores
// the report. Stock is not touched.
func (s *StockService) CreateInventorySession(ctx context.Context, locationID string, counts []domain.InventoryCount) (*domain.InventorySession, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, domain.InvalidArgument("at least one count is required")
	}
	seen := make(map[string]bool, len(counts))
	keys := make([]domain.StockKey, 0, len(counts))
	for _, c := range counts {
		if c.ProductID == "" {
			return nil, domain.InvalidArgument("product id is required")
		}
		if c.Counted < 0 {
			return nil, domain.InvalidArgument("counted quantity for product %s must not be negative", c.ProductID)
		}
		if seen[c.ProductID] {
			return nil, domain.InvalidArgument("product %s counted twice", c.ProductID)
		}
		seen[c.ProductID] = true
		keys = append(keys, domain.NewStockKey(actor.TenantID, locationID, c.ProductID))
	}

	session := &domain.InventorySession{
		ID:         uuid.NewString(),
		TenantID:   actor.TenantID,
		LocationID: locationID,
		ActorID:    actor.ActorID,
		CreatedAt:  now(),
	}
	err = s.run(ctx, "CreateInventorySession", keys, func(tx port.Tx) error {
		session.Lines = session.Lines[:0]
		session.TotalValueDelta = decimal.Zero
		if _, err := requireLocation(ctx, tx, actor.TenantID, locationID); err != nil {
			return err
		}
		for _, c := range counts {
			p, err := requireProduct(ctx, tx, actor.TenantID, c.ProductID, false)
			if err != nil {
				return err
			}
			expected, err := tx.Get(ctx, domain.NewStockKey(actor.TenantID, locationID, c.ProductID))
			if err != nil {
				return err
			}
			line, err := domain.NewSessionLine(c.ProductID, expected, c.Counted, p.UnitPrice)
			if err != nil {
				return err
			}
			session.Lines = append(session.Lines, line)
			session.TotalValueDelta = session.TotalValueDelta.Add(line.ValueDelta)
		}
		return tx.CreateInventorySession(ctx, *session)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"module":        "stock",
		"tenant_id":     actor.TenantID,
		"location_id":   locationID,
		"session_id":    session.ID,
		"discrepancies": len(session.Discrepancies()),
	}).Info("inventory session recorded")
	return session, nil
}

func (s *StockService) GetInventorySession(ctx context.Context, id string) (*domain.InventorySession, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var session *domain.InventorySession
	err = s.run(ctx, "GetInventorySession", nil, func(tx port.Tx) error {
		session, err = tx.InventorySession(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if session == nil {
			return domain.NotFound("inventory session", id)
		}
		return nil
	})
	return session, err
}

// GetStock returns the current total, 0 when nothing was ever recorded.
func (s *StockService) GetStock(ctx context.Context, locationID, productID string) (int64, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return 0, err
	}
	var qty int64
	err = s.run(ctx, "GetStock", nil, func(tx port.Tx) error {
		if _, err := requireLocation(ctx, tx, actor.TenantID, locationID); err != nil {
			return err
		}
		if _, err := requireProduct(ctx, tx, actor.TenantID, productID, false); err != nil {
			return err
		}
		qty, err = tx.Get(ctx, domain.NewStockKey(actor.TenantID, locationID, productID))
		return err
	})
	return qty, err
}

// History returns the product's movements across locations, newest first.
func (s *StockService) History(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Movement
	err = s.run(ctx, "History", nil, func(tx port.Tx) error {
		out, err = tx.Query(ctx, actor.TenantID, productID, domain.ClampHistoryLimit(limit))
		return err
	})
	return out, err
}

// CheckConsistency folds the recorded movements of one key and compares them
// with the cached total.
func (s *StockService) CheckConsistency(ctx context.Context, locationID, productID string) (domain.Consistency, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return domain.Consistency{}, err
	}
	key := domain.NewStockKey(actor.TenantID, locationID, productID)
	var c domain.Consistency
	err = s.run(ctx, "CheckConsistency", []domain.StockKey{key}, func(tx port.Tx) error {
		c, err = tx.Check(ctx, key)
		return err
	})
	if err != nil {
		return domain.Consistency{}, err
	}
	if !c.Consistent() {
		s.logger.WithFields(logrus.Fields{
			"module":       "stock",
			"key":          key.String(),
			"cached":       c.Cached,
			"movement_sum": c.MovementSum,
		}).Error("ledger drift detected")
	}
	return c, nil
}
