package model

import (
	"encoding/json"
	"time"
)

// Task status vocabulary every source normalizes into.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusDismissed  = "dismissed"
)

// DefaultPriority is assigned when a source has no native priority
// concept, so downstream sorting never branches on missingness.
const DefaultPriority = 50

// SourceMilestone is the source name of milestone-projected tasks.
const SourceMilestone = "milestone"

// CanonicalTask is the shared record shape all sources normalize into.
// Identity is the (Source, SourceID) tuple; the store key is their
// concatenation.
type CanonicalTask struct {
	Source       string          `json:"source"`
	SourceID     string          `json:"source_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"` // 0-100, always populated
	DueDate      *time.Time      `json:"due_date,omitempty"`
	SLABreachAt  *time.Time      `json:"sla_breach_at,omitempty"`
	Category     string          `json:"category,omitempty"`
	SourceURL    string          `json:"source_url,omitempty"`
	RawData      json.RawMessage `json:"raw_data,omitempty"` // opaque source payload, preserved verbatim
	IsPinned     bool            `json:"is_pinned"`
	SnoozedUntil *time.Time      `json:"snoozed_until,omitempty"`
	Transient    bool            `json:"transient"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Key returns the store key for the task.
func (t CanonicalTask) Key() string {
	return t.Source + ":" + t.SourceID
}
