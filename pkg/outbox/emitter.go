package outbox

import (
	"context"
	"encoding/json"
	"strings"
)

// EventInserter is the staging slice of the repository the emitter
// needs.
type EventInserter interface {
	Insert(ctx context.Context, e *Event) error
}

// Emitter satisfies the engines' event publisher contract by staging
// events in the outbox instead of talking to the broker directly. The
// dispatcher handles the actual delivery.
type Emitter struct {
	store EventInserter
}

func NewEmitter(store EventInserter) *Emitter {
	return &Emitter{store: store}
}

// Publish stages one event as pending. The aggregate type is the
// routing key's first segment ("sync.completed" stages as "sync").
func (e *Emitter) Publish(routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	aggregate := routingKey
	if i := strings.IndexByte(routingKey, '.'); i > 0 {
		aggregate = routingKey[:i]
	}

	return e.store.Insert(context.Background(), &Event{
		AggregateType: aggregate,
		RoutingKey:    routingKey,
		Payload:       body,
	})
}
