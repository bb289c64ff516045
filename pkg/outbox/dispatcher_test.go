package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeEventStore keeps staged events in memory with the same status
// and retry bookkeeping as the pgx repository.
type fakeEventStore struct {
	events map[int64]*Event
	nextID int64

	listErr error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[int64]*Event), nextID: 1}
}

func (s *fakeEventStore) Insert(ctx context.Context, e *Event) error {
	e.ID = s.nextID
	s.nextID++
	e.Status = StatusPending
	s.events[e.ID] = e
	return nil
}

func (s *fakeEventStore) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*Event
	for id := int64(1); id < s.nextID && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEventStore) ListFailed(ctx context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id < s.nextID && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeEventStore) GetByID(ctx context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, errors.New("record_not_found")
	}
	return e, nil
}

func (s *fakeEventStore) MarkSent(ctx context.Context, id int64) error {
	s.events[id].Status = StatusSent
	return nil
}

func (s *fakeEventStore) MarkFailed(ctx context.Context, id int64, maxRetries int) error {
	e := s.events[id]
	e.RetryCount++
	if e.RetryCount >= maxRetries {
		e.Status = StatusFailed
	}
	return nil
}

func (s *fakeEventStore) Reset(ctx context.Context, id int64) error {
	e := s.events[id]
	e.Status = StatusPending
	e.RetryCount = 0
	e.NextRetryAt = nil
	return nil
}

type fakeWirePublisher struct {
	keys     []string
	bodies   []json.RawMessage
	failKeys map[string]bool
}

func (f *fakeWirePublisher) Publish(routingKey string, payload any) error {
	if f.failKeys[routingKey] {
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, routingKey)
	if raw, ok := payload.(json.RawMessage); ok {
		f.bodies = append(f.bodies, raw)
	}
	return nil
}

func TestEmitterStagesPendingEvent(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	emitter := NewEmitter(store)

	if err := emitter.Publish("sync.completed", map[string]any{"source": "issues", "count": 3}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	e, err := store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("staged event missing: %v", err)
	}
	if e.Status != StatusPending {
		t.Errorf("status = %q, want pending", e.Status)
	}
	if e.AggregateType != "sync" {
		t.Errorf("aggregate = %q, want sync", e.AggregateType)
	}

	var body map[string]any
	if err := json.Unmarshal(e.Payload, &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if body["source"] != "issues" {
		t.Errorf("payload = %v, want the published body", body)
	}
}

func TestDispatcherDrainsAndMarksSent(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	emitter := NewEmitter(store)
	_ = emitter.Publish("sync.completed", map[string]int{"count": 1})
	_ = emitter.Publish("milestone.completed", map[string]int{"milestone_id": 7})

	pub := &fakeWirePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())
	d.drain(context.Background())

	if len(pub.keys) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.keys))
	}
	if pub.keys[0] != "sync.completed" || pub.keys[1] != "milestone.completed" {
		t.Errorf("routing keys = %v, want staging order", pub.keys)
	}
	for id := int64(1); id <= 2; id++ {
		if store.events[id].Status != StatusSent {
			t.Errorf("event %d status = %q, want sent", id, store.events[id].Status)
		}
	}

	// A drained outbox is a no-op on the next tick.
	d.drain(context.Background())
	if len(pub.keys) != 2 {
		t.Errorf("sent events were republished, total = %d", len(pub.keys))
	}
}

func TestDispatcherIsolatesPublishFailures(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	emitter := NewEmitter(store)
	_ = emitter.Publish("sync.completed", map[string]int{"count": 1})
	_ = emitter.Publish("milestone.completed", map[string]int{"milestone_id": 7})

	pub := &fakeWirePublisher{failKeys: map[string]bool{"sync.completed": true}}
	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(2)
	d.drain(context.Background())

	if len(pub.keys) != 1 || pub.keys[0] != "milestone.completed" {
		t.Errorf("healthy event should still go out, published = %v", pub.keys)
	}
	if store.events[1].Status != StatusPending || store.events[1].RetryCount != 1 {
		t.Errorf("failed event = %+v, want pending with one retry", store.events[1])
	}

	// Second failure hits the retry cap and parks the event.
	d.drain(context.Background())
	if store.events[1].Status != StatusFailed {
		t.Errorf("event status = %q, want failed after retry cap", store.events[1].Status)
	}
}

func TestReplayerRecoversFailedEvents(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	emitter := NewEmitter(store)
	_ = emitter.Publish("sync.completed", map[string]int{"count": 1})
	store.events[1].Status = StatusFailed
	store.events[1].RetryCount = 5

	pub := &fakeWirePublisher{}
	r := NewReplayer(store, pub)

	sent, err := r.ReplayFailed(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReplayFailed returned error: %v", err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if store.events[1].Status != StatusSent {
		t.Errorf("status = %q, want sent", store.events[1].Status)
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("published %d bodies, want 1", len(pub.bodies))
	}
}

func TestReplayerResetsOnPublishFailure(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	emitter := NewEmitter(store)
	_ = emitter.Publish("sync.completed", map[string]int{"count": 1})
	store.events[1].Status = StatusFailed
	store.events[1].RetryCount = 5

	pub := &fakeWirePublisher{failKeys: map[string]bool{"sync.completed": true}}
	r := NewReplayer(store, pub)

	if err := r.ReplayEvent(context.Background(), 1); err == nil {
		t.Fatal("expected error when the broker is still down")
	}
	if store.events[1].Status != StatusPending || store.events[1].RetryCount != 0 {
		t.Errorf("event = %+v, want reset to pending for the dispatcher", store.events[1])
	}
}
