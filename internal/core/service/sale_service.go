package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

type SaleService struct {
	ledger
	currency string
}

// currency is used for sales that do not name one.
func NewSaleService(store port.Store, events port.EventPublisher, logger *logrus.Logger, currency string) *SaleService {
	if currency == "" {
		currency = "USD"
	}
	return &SaleService{ledger: newLedger(store, events, logger), currency: strings.ToUpper(currency)}
}

// CreateSale deducts stock for every line and stores the sale in one scope.
// A request carrying a known OfflineID returns the stored sale untouched.
func (s *SaleService) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateSaleRequest(req); err != nil {
		return nil, err
	}

	if req.OfflineID != "" {
		existing, err := s.saleByOfflineID(ctx, actor.TenantID, req.OfflineID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}

	wanted := make([]domain.StockItem, 0, len(req.Items))
	for _, l := range req.Items {
		wanted = append(wanted, domain.StockItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if wanted, err = domain.SumItems(wanted); err != nil {
		return nil, err
	}

	var sale *domain.Sale
	var movements []domain.Movement
	err = s.run(ctx, "CreateSale", stockKeys(actor.TenantID, req.LocationID, wanted), func(tx port.Tx) error {
		movements = movements[:0]
		if req.OfflineID != "" {
			existing, err := tx.SaleByOfflineID(ctx, actor.TenantID, req.OfflineID)
			if err != nil {
				return err
			}
			if existing != nil {
				sale = existing
				return errReplay
			}
		}

		if _, err := requireLocation(ctx, tx, actor.TenantID, req.LocationID); err != nil {
			return err
		}

		items := make([]domain.SaleLineItem, 0, len(req.Items))
		for _, l := range req.Items {
			p, err := requireProduct(ctx, tx, actor.TenantID, l.ProductID, true)
			if err != nil {
				return err
			}
			item := domain.SaleLineItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: p.UnitPrice,
				Discount:  l.Discount,
			}
			if l.UnitPrice != nil {
				item.UnitPrice = *l.UnitPrice
			}
			gross := item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
			if item.Discount.GreaterThan(gross) {
				return domain.InvalidArgument("discount %s exceeds line amount %s for product %s",
					item.Discount, gross, item.ProductID)
			}
			items = append(items, item)
		}

		for _, w := range wanted {
			if err := ensureAvailable(ctx, tx, domain.NewStockKey(actor.TenantID, req.LocationID, w.ProductID), w.Quantity); err != nil {
				return err
			}
		}

		total := domain.SaleTotal(items)
		payments := req.Payments
		switch {
		case len(payments) > 0:
			if !domain.PaymentsReconcile(total, payments, currency) {
				return &domain.PaymentMismatchError{Expected: total, Received: domain.SumPayments(payments)}
			}
		case req.PaymentMethod != "":
			payments = []domain.Payment{{Method: req.PaymentMethod, Amount: total}}
		}

		next := &domain.Sale{
			ID:             uuid.NewString(),
			TenantID:       actor.TenantID,
			LocationID:     req.LocationID,
			Items:          items,
			Payments:       append([]domain.Payment(nil), payments...),
			Total:          total,
			Currency:       currency,
			OfflineID:      req.OfflineID,
			CashierActorID: actor.ActorID,
			CreatedAt:      now(),
		}
		for _, w := range wanted {
			mv, err := post(ctx, tx, actor, domain.NewStockKey(actor.TenantID, req.LocationID, w.ProductID),
				-w.Quantity, domain.ReasonSale, next.ID, "")
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}
		if err := tx.CreateSale(ctx, *next); err != nil {
			return err
		}
		sale = next
		return nil
	})

	switch {
	case errors.Is(err, errReplay):
		return sale, nil
	case errors.Is(err, port.ErrConflict) && req.OfflineID != "":
		// Lost the insert race on the same offline id.
		existing, lookupErr := s.saleByOfflineID(ctx, actor.TenantID, req.OfflineID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, domain.Persistence("CreateSale", err)
	case errors.Is(err, port.ErrConflict):
		return nil, domain.Persistence("CreateSale", err)
	case err != nil:
		return nil, err
	}

	s.publish(ctx, movements)
	s.logger.WithFields(logrus.Fields{
		"module":      "sale",
		"tenant_id":   actor.TenantID,
		"location_id": req.LocationID,
		"sale_id":     sale.ID,
		"offline_id":  req.OfflineID,
		"total":       sale.Total.String(),
		"currency":    sale.Currency,
	}).Info("sale created")
	return sale, nil
}

func (s *SaleService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var sale *domain.Sale
	err = s.run(ctx, "GetSale", nil, func(tx port.Tx) error {
		sale, err = tx.Sale(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if sale == nil {
			return domain.NotFound("sale", id)
		}
		return nil
	})
	return sale, err
}

func (s *SaleService) saleByOfflineID(ctx context.Context, tenantID, offlineID string) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.run(ctx, "SaleByOfflineID", nil, func(tx port.Tx) error {
		var err error
		sale, err = tx.SaleByOfflineID(ctx, tenantID, offlineID)
		return err
	})
	return sale, err
}

func validateSaleRequest(req domain.SaleRequest) error {
	if len(req.Items) == 0 {
		return domain.InvalidArgument("a sale needs at least one item")
	}
	for _, l := range req.Items {
		if l.ProductID == "" {
			return domain.InvalidArgument("product id is required")
		}
		if l.Quantity <= 0 {
			return domain.InvalidArgument("quantity for product %s must be positive", l.ProductID)
		}
		if l.Discount.IsNegative() {
			return domain.InvalidArgument("discount for product %s must not be negative", l.ProductID)
		}
		if l.UnitPrice != nil && l.UnitPrice.IsNegative() {
			return domain.InvalidArgument("unit price for product %s must not be negative", l.ProductID)
		}
	}
	for _, p := range req.Payments {
		if p.Amount.IsNegative() {
			return domain.InvalidArgument("payment amounts must not be negative")
		}
	}
	return nil
}
