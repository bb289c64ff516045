// Package diag keeps a bounded in-memory ring of the most recent raw
// connector payloads for the debug screen, so adapters carry no global
// state.
package diag

import (
	"sync"
	"time"
)

// Entry is one recorded raw payload.
type Entry struct {
	Source  string    `json:"source"`
	Payload []byte    `json:"payload"`
	At      time.Time `json:"at"`
}

// Ring is a fixed-capacity ring buffer of raw payloads. Safe for
// concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 16
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Record stores a copy of payload, evicting the oldest entry when full.
func (r *Ring) Record(source string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = Entry{Source: source, Payload: cp, At: time.Now()}
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Snapshot returns all recorded entries, oldest first.
func (r *Ring) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	if r.full {
		out = append(out, r.entries[r.next:]...)
	}
	out = append(out, r.entries[:r.next]...)

	cp := make([]Entry, len(out))
	copy(cp, out)
	return cp
}

// SnapshotSource returns the recorded entries for one source, oldest
// first.
func (r *Ring) SnapshotSource(source string) []Entry {
	all := r.Snapshot()
	var out []Entry
	for _, e := range all {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}
