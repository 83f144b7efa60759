package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

// CatalogService keeps the minimal product and location records the ledger
// validates against.
type CatalogService struct {
	ledger
	defaultOnlineLocation string
}

// defaultOnlineLocation backs shared products configured without their own
// location; it may be empty.
func NewCatalogService(store port.Store, logger *logrus.Logger, defaultOnlineLocation string) *CatalogService {
	return &CatalogService{
		ledger:                newLedger(store, nil, logger),
		defaultOnlineLocation: defaultOnlineLocation,
	}
}

func (s *CatalogService) CreateLocation(ctx context.Context, l domain.Location) (*domain.Location, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.Name) == "" {
		return nil, domain.InvalidArgument("location name is required")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.TenantID = actor.TenantID
	l.CreatedAt = now()

	if err := s.run(ctx, "CreateLocation", nil, func(tx port.Tx) error {
		return tx.SaveLocation(ctx, l)
	}); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *CatalogService) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var l *domain.Location
	err = s.run(ctx, "GetLocation", nil, func(tx port.Tx) error {
		l, err = requireLocation(ctx, tx, actor.TenantID, id)
		return err
	})
	return l, err
}

// CreateProduct registers a product, active and shared by default.
func (s *CatalogService) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.SKU) == "" {
		return nil, domain.InvalidArgument("sku is required")
	}
	if p.UnitPrice.IsNegative() || p.UnitCost.IsNegative() {
		return nil, domain.InvalidArgument("price and cost must not be negative")
	}
	if p.Policy == "" {
		p.Policy = domain.PolicyShared
	}
	if !p.Policy.Valid() {
		return nil, domain.InvalidArgument("unknown stock policy %q", p.Policy)
	}
	if p.OnlineStockQty < 0 {
		return nil, domain.InvalidArgument("online stock must not be negative")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.TenantID = actor.TenantID
	p.Active = true
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	err = s.run(ctx, "CreateProduct", nil, func(tx port.Tx) error {
		existing, err := tx.Product(ctx, p.TenantID, p.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: product %s", domain.ErrDuplicate, p.ID)
		}
		return tx.SaveProduct(ctx, p)
	})
	if errors.Is(err, port.ErrConflict) {
		return nil, fmt.Errorf("%w: sku %s", domain.ErrDuplicate, p.SKU)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"module":     "catalog",
		"tenant_id":  p.TenantID,
		"product_id": p.ID,
		"sku":        p.SKU,
	}).Info("product created")
	return &p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var p *domain.Product
	err = s.run(ctx, "GetProduct", nil, func(tx port.Tx) error {
		p, err = requireProduct(ctx, tx, actor.TenantID, id, false)
		return err
	})
	return p, err
}

// UpdateProduct edits name, price or cost. SKU and identity never change.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, upd domain.ProductUpdate) (*domain.Product, error) {
	if upd.UnitPrice != nil && upd.UnitPrice.IsNegative() {
		return nil, domain.InvalidArgument("price must not be negative")
	}
	if upd.UnitCost != nil && upd.UnitCost.IsNegative() {
		return nil, domain.InvalidArgument("cost must not be negative")
	}
	return s.modify(ctx, "UpdateProduct", id, func(p *domain.Product) error {
		if upd.Name != nil {
			p.Name = *upd.Name
		}
		if upd.UnitPrice != nil {
			p.UnitPrice = *upd.UnitPrice
		}
		if upd.UnitCost != nil {
			p.UnitCost = *upd.UnitCost
		}
		return nil
	})
}

// DeactivateProduct hides a product from sales and reservations. Products
// are never deleted.
func (s *CatalogService) DeactivateProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.modify(ctx, "DeactivateProduct", id, func(p *domain.Product) error {
		p.Active = false
		return nil
	})
}

func (s *CatalogService) SetEcommercePolicy(ctx context.Context, id string, policy domain.StockPolicy, onlineLocationID string) (*domain.Product, error) {
	if !policy.Valid() {
		return nil, domain.InvalidArgument("unknown stock policy %q", policy)
	}
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, "SetEcommercePolicy", id, func(p *domain.Product) error {
		p.Policy = policy
		if policy != domain.PolicyShared {
			return nil
		}
		if onlineLocationID != "" {
			p.OnlineLocationID = onlineLocationID
		}
		if p.OnlineLocationID == "" && s.defaultOnlineLocation == "" {
			return domain.InvalidArgument("shared policy needs an online location for product %s", p.ID)
		}
		return nil
	}, func(tx port.Tx) error {
		if policy != domain.PolicyShared || onlineLocationID == "" {
			return nil
		}
		_, err := requireLocation(ctx, tx, actor.TenantID, onlineLocationID)
		return err
	})
}

// SetOnlineStock overwrites the dedicated online counter.
func (s *CatalogService) SetOnlineStock(ctx context.Context, id string, qty int64) (*domain.Product, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if qty < 0 {
		return nil, domain.InvalidArgument("online stock must not be negative")
	}

	var p *domain.Product
	err = s.run(ctx, "SetOnlineStock", []domain.StockKey{domain.OnlineKey(actor.TenantID, id)}, func(tx port.Tx) error {
		cur, err := requireProduct(ctx, tx, actor.TenantID, id, false)
		if err != nil {
			return err
		}
		if qty == cur.OnlineStockQty {
			p = cur
			return nil
		}
		total, err := tx.ApplyOnlineStock(ctx, actor.TenantID, id, qty-cur.OnlineStockQty)
		if err != nil {
			return err
		}
		cur.OnlineStockQty = total
		p = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *CatalogService) modify(ctx context.Context, op, id string, edit func(p *domain.Product) error, checks ...func(tx port.Tx) error) (*domain.Product, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	// The product row lock serializes edits, so concurrent writers never
	// overwrite each other's fields.
	var p *domain.Product
	err = s.run(ctx, op, []domain.StockKey{domain.OnlineKey(actor.TenantID, id)}, func(tx port.Tx) error {
		for _, check := range checks {
			if err := check(tx); err != nil {
				return err
			}
		}
		cur, err := requireProduct(ctx, tx, actor.TenantID, id, false)
		if err != nil {
			return err
		}
		if err := edit(cur); err != nil {
			return err
		}
		cur.UpdatedAt = now()
		p = cur
		return tx.SaveProduct(ctx, *cur)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
