package outbox

import (
	"context"
	"fmt"
)

// ReplayStore is the repository slice replay needs.
type ReplayStore interface {
	GetByID(ctx context.Context, id int64) (*Event, error)
	ListFailed(ctx context.Context, limit int) ([]*Event, error)
	MarkSent(ctx context.Context, id int64) error
	Reset(ctx context.Context, id int64) error
}

// Replayer pushes failed events back onto the wire on demand, for
// operator-driven recovery after an extended broker outage.
type Replayer struct {
	store     ReplayStore
	publisher WirePublisher
}

func NewReplayer(store ReplayStore, publisher WirePublisher) *Replayer {
	return &Replayer{store: store, publisher: publisher}
}

// ReplayEvent publishes one event immediately. On publish failure the
// event is reset to pending so the dispatcher picks it up again.
func (r *Replayer) ReplayEvent(ctx context.Context, id int64) error {
	event, err := r.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.publisher.Publish(event.RoutingKey, event.Payload); err != nil {
		if resetErr := r.store.Reset(ctx, id); resetErr != nil {
			return fmt.Errorf("failed to publish and to reset event %d: %w (reset: %v)", id, err, resetErr)
		}
		return fmt.Errorf("failed to publish event %d, reset to pending: %w", id, err)
	}

	return r.store.MarkSent(ctx, id)
}

// ReplayFailed replays up to limit failed events and reports how many
// went out. A single event's failure does not stop the rest.
func (r *Replayer) ReplayFailed(ctx context.Context, limit int) (int, error) {
	events, err := r.store.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, event := range events {
		if err := r.ReplayEvent(ctx, event.ID); err != nil {
			continue
		}
		sent++
	}
	return sent, nil
}
