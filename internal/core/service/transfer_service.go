package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

const (
	actionSend    = "send"
	actionReceive = "receive"
)

// TransferService moves goods between locations in two steps: send takes
// them out of the source, receive adds them to the destination.
type TransferService struct {
	ledger
}

func NewTransferService(store port.Store, events port.EventPublisher, logger *logrus.Logger) *TransferService {
	return &TransferService{ledger: newLedger(store, events, logger)}
}

// CreateTransfer records the transfer with status created. Stock is not
// touched until Send.
func (s *TransferService) CreateTransfer(ctx context.Context, sourceID, destID string, items []domain.StockItem, reference string) (*domain.Transfer, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if sourceID == destID {
		return nil, domain.InvalidArgument("source and destination must differ")
	}

	folded, err := domain.SumItems(items)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.TransferLineItem, 0, len(folded))
	for _, it := range folded {
		lines = append(lines, domain.TransferLineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	t := domain.Transfer{
		ID:               uuid.NewString(),
		TenantID:         actor.TenantID,
		SourceLocationID: sourceID,
		DestLocationID:   destID,
		Items:            lines,
		Status:           domain.TransferCreated,
		Reference:        reference,
		CreatedBy:        actor.ActorID,
		CreatedAt:        now(),
	}

	err = s.run(ctx, "CreateTransfer", nil, func(tx port.Tx) error {
		if _, err := requireLocation(ctx, tx, actor.TenantID, sourceID); err != nil {
			return err
		}
		if _, err := requireLocation(ctx, tx, actor.TenantID, destID); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := requireProduct(ctx, tx, actor.TenantID, l.ProductID, false); err != nil {
				return err
			}
		}
		return tx.CreateTransfer(ctx, t)
	})
	if errors.Is(err, port.ErrConflict) {
		return nil, domain.Persistence("CreateTransfer", err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"module":      "transfer",
		"tenant_id":   actor.TenantID,
		"transfer_id": t.ID,
		"source":      sourceID,
		"dest":        destID,
	}).Info("transfer created")
	return &t, nil
}

// Send deducts every line from the source. Any short line aborts the whole
// send and the transfer stays created.
func (s *TransferService) Send(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.advance(ctx, actionSend, id)
}

// Receive adds every line to the destination. A received transfer cannot
// be received again.
func (s *TransferService) Receive(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.advance(ctx, actionReceive, id)
}

func (s *TransferService) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, actor.TenantID, id)
}

func (s *TransferService) load(ctx context.Context, tenantID, id string) (*domain.Transfer, error) {
	var t *domain.Transfer
	err := s.run(ctx, "GetTransfer", nil, func(tx port.Tx) error {
		var err error
		t, err = tx.Transfer(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.NotFound("transfer", id)
		}
		return nil
	})
	return t, err
}

func (s *TransferService) advance(ctx context.Context, action, id string) (*domain.Transfer, error) {
	actor, err := domain.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	// Items never change after creation, so the key set can be read up front.
	t, err := s.load(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if _, ok := t.Next(action); !ok {
		return nil, &domain.InvalidTransferStateError{TransferID: id, CurrentState: t.Status, Attempted: action}
	}

	locationID, reason := t.SourceLocationID, domain.ReasonTransferOut
	if action == actionReceive {
		locationID, reason = t.DestLocationID, domain.ReasonTransferIn
	}
	keys := make([]domain.StockKey, 0, len(t.Items))
	for _, it := range t.Items {
		keys = append(keys, domain.NewStockKey(actor.TenantID, locationID, it.ProductID))
	}

	var movements []domain.Movement
	err = s.run(ctx, "Transfer."+action, keys, func(tx port.Tx) error {
		movements = movements[:0]
		cur, err := tx.Transfer(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.NotFound("transfer", id)
		}
		next, ok := cur.Next(action)
		if !ok {
			return &domain.InvalidTransferStateError{TransferID: id, CurrentState: cur.Status, Attempted: action}
		}

		if action == actionSend {
			for _, it := range cur.Items {
				if err := ensureAvailable(ctx, tx, domain.NewStockKey(actor.TenantID, locationID, it.ProductID), it.Quantity); err != nil {
					return err
				}
			}
		}

		sign := int64(1)
		if action == actionSend {
			sign = -1
		}
		for _, it := range cur.Items {
			mv, err := post(ctx, tx, actor, domain.NewStockKey(actor.TenantID, locationID, it.ProductID),
				sign*it.Quantity, reason, cur.ID, "")
			if err != nil {
				return err
			}
			movements = append(movements, mv)
		}

		from := cur.Status
		stamp := now()
		cur.Status = next
		if action == actionSend {
			cur.SentAt = &stamp
		} else {
			cur.ReceivedAt = &stamp
		}
		if err := tx.UpdateTransferStatus(ctx, *cur, from); err != nil {
			return err
		}
		t = cur
		return nil
	})
	if errors.Is(err, port.ErrConflict) {
		// Another caller moved the transfer first.
		latest, loadErr := s.load(ctx, actor.TenantID, id)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, &domain.InvalidTransferStateError{TransferID: id, CurrentState: latest.Status, Attempted: action}
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, movements)
	s.logger.WithFields(logrus.Fields{
		"module":      "transfer",
		"tenant_id":   actor.TenantID,
		"transfer_id": id,
		"status":      string(t.Status),
	}).Info("transfer " + action)
	return t, nil
}
