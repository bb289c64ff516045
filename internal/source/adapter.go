// Package source holds the adapters that map external task systems
// onto the canonical task model. Adapters are pure fetch: they never
// persist and never decide purge policy.
package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"taskhub/internal/model"
)

// Adapter fetches the current items of one external system and maps
// them to canonical tasks.
//
// A returned error means the fetch itself failed (network, auth,
// parse): callers must treat the source state as unknown, never as
// empty. A nil error with zero items means the source was reachable
// and reported no current items.
type Adapter interface {
	Name() string
	// Transient reports the source durability class: transient sources
	// (calendars, mailboxes) legitimately drop and regrow their whole
	// record set between fetches.
	Transient() bool
	Fetch(ctx context.Context) ([]model.CanonicalTask, error)
}

// Recorder receives every raw payload an adapter sees. Implemented by
// the diag ring; nil disables recording.
type Recorder interface {
	Record(source string, payload []byte)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDate tries the date layouts external systems commonly emit.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// splitRow splits one pipe-delimited text row into trimmed cells,
// dropping the empty edge cells a leading/trailing pipe produces.
func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" && (i == 0 || i == len(parts)-1) {
			continue
		}
		cells = append(cells, p)
	}
	return cells
}

// fallbackID derives a synthetic source id from row content instead of
// row position, so a reordered rendering of the same payload keeps
// record identities across sync passes. Repeated content gets a
// numeric suffix to stay unique within one fetch.
func fallbackID(prefix, content string, seen map[string]int) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(content))))
	id := fmt.Sprintf("%s-%08x", prefix, h.Sum32())
	seen[id]++
	if n := seen[id]; n > 1 {
		id = fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

// isSeparatorRow reports whether a markdown table row is a header
// separator like "| --- | --- |".
func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}
