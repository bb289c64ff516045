// Package sync reconciles the local task store with each external
// source's current truth, without ever mass-deleting local records on
// a transient empty or garbled response.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taskhub/internal/model"
	"taskhub/internal/source"
	"taskhub/pkg/logger"
	"taskhub/pkg/metrics"
)

// TaskStore is the row-store slice the engine needs. ApplySyncPass
// runs the upserts and, when purge is true, the staleness purge inside
// one transaction, so a crash mid-pass cannot leave the purge half
// applied.
type TaskStore interface {
	ApplySyncPass(ctx context.Context, src string, fresh []model.CanonicalTask, purge bool) (removed int, err error)
}

// Settings is the administrative on/off switch, checked once per pass.
type Settings interface {
	IsSourceEnabled(ctx context.Context, name string) bool
}

// EventPublisher receives a sync.completed event after each pass.
// Optional; nil disables publishing.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Result of one source's sync pass.
type Result struct {
	Source  string `json:"source"`
	Count   int    `json:"count"`
	Removed int    `json:"removed"`
	Err     string `json:"error,omitempty"`
}

// Filter narrows a live query.
type Filter struct {
	Statuses []string
	Category string
}

type Engine struct {
	adapters   map[string]source.Adapter
	order      []string
	store      TaskStore
	settings   Settings
	publisher  EventPublisher
	allowEmpty map[string]bool
	logger     *zap.Logger
}

// NewEngine builds a reconciliation engine over the given adapters.
// allowEmpty names the sources whose legitimate steady state is often
// zero items; only those may purge on an empty successful fetch.
func NewEngine(store TaskStore, settings Settings, publisher EventPublisher, allowEmpty map[string]bool, log *zap.Logger) *Engine {
	return &Engine{
		adapters:   make(map[string]source.Adapter),
		store:      store,
		settings:   settings,
		publisher:  publisher,
		allowEmpty: allowEmpty,
		logger:     log,
	}
}

// Register adds an adapter. Sync order follows registration order.
func (e *Engine) Register(a source.Adapter) {
	if _, dup := e.adapters[a.Name()]; dup {
		return
	}
	e.adapters[a.Name()] = a
	e.order = append(e.order, a.Name())
}

// Sources returns the registered source names in sync order.
func (e *Engine) Sources() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// SyncSource runs one reconciliation pass for the named source.
func (e *Engine) SyncSource(ctx context.Context, name string) Result {
	log := logger.WithTrace(ctx, e.logger)

	adapter, ok := e.adapters[name]
	if !ok {
		return Result{Source: name, Err: fmt.Sprintf("unknown source: %s", name)}
	}

	if !e.settings.IsSourceEnabled(ctx, name) {
		log.Debug("Source disabled, skipping sync", zap.String("source", name))
		return Result{Source: name}
	}

	start := time.Now()

	fresh, err := e.fetch(ctx, adapter)
	if err != nil {
		metrics.SyncFetchFailures.WithLabelValues(name).Inc()
		log.Error("Adapter fetch failed, local state untouched",
			zap.String("source", name),
			zap.Error(err),
		)
		return Result{Source: name, Err: err.Error()}
	}

	// Identity stamps only. Priority passes through untouched: 0 is a
	// legal value on the scale and the adapters own the defaulting.
	for i := range fresh {
		fresh[i].Source = name
		fresh[i].Transient = adapter.Transient()
	}

	// Purge decision. An empty success response from a normally
	// populated source is suspicious, not authoritative: upsert
	// nothing, delete nothing, warn.
	purge := true
	if len(fresh) == 0 && !e.allowEmpty[name] {
		purge = false
		metrics.SyncPurgeSkipped.WithLabelValues(name).Inc()
		log.Warn("Source returned zero items, skipping staleness purge",
			zap.String("source", name),
		)
	}

	removed, err := e.store.ApplySyncPass(ctx, name, fresh, purge)
	if err != nil {
		log.Error("Failed to persist sync pass",
			zap.String("source", name),
			zap.Error(err),
		)
		return Result{Source: name, Err: err.Error()}
	}

	metrics.RecordSyncPass(name, len(fresh), removed, time.Since(start))
	log.Info("Sync pass completed",
		zap.String("source", name),
		zap.Int("count", len(fresh)),
		zap.Int("removed", removed),
	)

	result := Result{Source: name, Count: len(fresh), Removed: removed}
	e.publishResult(result)
	return result
}

// SyncAll reconciles every registered source sequentially. One
// source's failure never aborts the others.
func (e *Engine) SyncAll(ctx context.Context) []Result {
	results := make([]Result, 0, len(e.order))
	for _, name := range e.order {
		results = append(results, e.SyncSource(ctx, name))
	}
	return results
}

// FetchLive runs one adapter's fetch for an interactive filtered view.
// Nothing is persisted and no purge is computed.
func (e *Engine) FetchLive(ctx context.Context, name string, filter Filter) ([]model.CanonicalTask, error) {
	adapter, ok := e.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}

	items, err := e.fetch(ctx, adapter)
	if err != nil {
		return nil, err
	}

	out := make([]model.CanonicalTask, 0, len(items))
	for _, t := range items {
		if !filter.matches(t) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// fetch invokes the adapter with panic containment, so a misbehaving
// adapter degrades to a per-source error.
func (e *Engine) fetch(ctx context.Context, adapter source.Adapter) (items []model.CanonicalTask, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("adapter %s panicked: %v", adapter.Name(), r)
		}
	}()
	return adapter.Fetch(ctx)
}

func (e *Engine) publishResult(r Result) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish("sync.completed", r); err != nil {
		e.logger.Warn("Failed to publish sync.completed event",
			zap.String("source", r.Source),
			zap.Error(err),
		)
	}
}

func (f Filter) matches(t model.CanonicalTask) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
