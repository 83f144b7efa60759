package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/retail-ledger/internal/config"
	"github.com/rl1809/retail-ledger/internal/core/domain"
	"github.com/rl1809/retail-ledger/internal/port"
)

const deliverTimeout = 5 * time.Second

var ErrDispatcherClosed = errors.New("event dispatcher closed")

// EventDispatcher queues committed movements and hands them to a sink from a
// pool of workers. Delivery is best effort: the ledger is already committed.
type EventDispatcher struct {
	sink   port.EventSink
	queue  chan []domain.Movement
	logger *logrus.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventDispatcher(sink port.EventSink, queueSize int, logger *logrus.Logger) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = config.NopLogger()
	}
	return &EventDispatcher{
		sink:   sink,
		queue:  make(chan []domain.Movement, queueSize),
		logger: logger,
	}
}

func (d *EventDispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.WithField("workers", workers).Info("event dispatcher started")
}

// Publish blocks while the queue is full, until ctx is done.
func (d *EventDispatcher) Publish(ctx context.Context, movements []domain.Movement) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	batch := append([]domain.Movement(nil), movements...)
	select {
	case d.queue <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting movements and waits until the queue is drained.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("event dispatcher stopped")
}

func (d *EventDispatcher) workerLoop(id int) {
	for batch := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := d.sink.Deliver(ctx, batch); err != nil {
			config.LogError(d.logger, "dispatcher", "workerLoop", "deliver movements",
				logrus.Fields{"worker": id, "movements": len(batch)}, err)
		} else {
			d.logger.WithFields(logrus.Fields{
				"worker":    id,
				"movements": len(batch),
			}).Debug("movements delivered")
		}
		cancel()
	}
}

// LogSink writes movements to the logger. Used when no Redis is configured.
type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = config.NopLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, movements []domain.Movement) error {
	for _, mv := range movements {
		s.logger.WithFields(logrus.Fields{
			"module":        "events",
			"tenant_id":     mv.TenantID,
			"location_id":   mv.LocationID,
			"product_id":    mv.ProductID,
			"delta":         mv.Delta,
			"balance_after": mv.BalanceAfter,
			"reason":        string(mv.Reason),
			"reference":     mv.Reference,
		}).Info("movement")
	}
	return nil
}
