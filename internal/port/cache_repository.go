package port

import (
	"context"

	"github.com/rl1809/retail-ledger/internal/core/domain"
)

type KeyLocker interface {
	// Lock acquires every key, in a stable order, and returns the release func
	Lock(ctx context.Context, keys []string) (func(), error)
}

type EventPublisher interface {
	// Publish hands committed movements to the event pipeline; best effort
	Publish(ctx context.Context, movements []domain.Movement) error
}

type EventSink interface {
	// Deliver pushes a batch of committed movements to a downstream consumer
	Deliver(ctx context.Context, movements []domain.Movement) error
}

type StockSnapshot interface {
	// Snapshot returns the last published balance for key; ok is false when nothing was published yet
	Snapshot(ctx context.Context, key domain.StockKey) (qty int64, ok bool, err error)
}
