package source

import "strings"

// Column is one cell of a board-style item. Board schemas are
// user-configurable, so relevant fields are located by keyword rather
// than by fixed index.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Keyword sets used to discover board columns.
var (
	statusColumnKeywords     = []string{"status", "state", "phase"}
	priorityColumnKeywords   = []string{"priority", "severity", "urgency"}
	dateColumnKeywords       = []string{"date", "due", "deadline"}
	completionColumnKeywords = []string{"percent", "progress", "completion"}
)

// FindColumn returns the first column whose identifier or label
// contains one of the keywords (case-insensitive), or nil.
func FindColumn(cols []Column, keywords []string) *Column {
	for i := range cols {
		id := strings.ToLower(cols[i].ID)
		title := strings.ToLower(cols[i].Title)
		for _, kw := range keywords {
			if strings.Contains(id, kw) || strings.Contains(title, kw) {
				return &cols[i]
			}
		}
	}
	return nil
}

// FindHeaderIndex returns the index of the first header cell containing
// one of the keywords, or -1. Used by the markdown-table fallback where
// only header labels are available.
func FindHeaderIndex(headers []string, keywords []string) int {
	for i, h := range headers {
		hl := strings.ToLower(h)
		for _, kw := range keywords {
			if strings.Contains(hl, kw) {
				return i
			}
		}
	}
	return -1
}
