package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventStore is the repository slice the dispatcher needs.
type EventStore interface {
	ListPending(ctx context.Context, limit int) ([]*Event, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, maxRetries int) error
}

// WirePublisher delivers one event body to the broker. The payload is
// already JSON, so it goes out as-is.
type WirePublisher interface {
	Publish(routingKey string, payload any) error
}

// Dispatcher drains pending outbox events to the broker on a fixed
// interval.
type Dispatcher struct {
	store      EventStore
	publisher  WirePublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store EventStore, publisher WirePublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start runs the drain loop until the context is cancelled. Meant to
// run in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain publishes one batch of due events. A failed publish only marks
// that event; the rest of the batch still goes out.
func (d *Dispatcher) drain(ctx context.Context) {
	events, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to list pending outbox events", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	for _, event := range events {
		if err := d.publisher.Publish(event.RoutingKey, event.Payload); err != nil {
			d.logger.Error("Failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			if err := d.store.MarkFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to record outbox delivery failure",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := d.store.MarkSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark outbox event sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
}
