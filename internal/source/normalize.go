package source

import (
	"strings"

	"taskhub/internal/model"
)

// Normalization tables are explicit lookup/threshold tables on
// purpose: external systems use incompatible status and priority
// vocabularies, and the mapping must stay stable and testable.

var dismissedKeywords = []string{"cancel", "dismiss", "abandon", "won't do", "wont do"}
var doneKeywords = []string{"done", "closed", "resolved", "complete", "finished", "won"}
var inProgressKeywords = []string{"progress", "review", "doing", "active", "working", "started"}

// NormalizeStatus maps an arbitrary source status label onto the
// canonical vocabulary by case-insensitive substring matching.
func NormalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return model.StatusOpen
	}
	for _, kw := range dismissedKeywords {
		if strings.Contains(s, kw) {
			return model.StatusDismissed
		}
	}
	for _, kw := range doneKeywords {
		if strings.Contains(s, kw) {
			return model.StatusDone
		}
	}
	for _, kw := range inProgressKeywords {
		if strings.Contains(s, kw) {
			return model.StatusInProgress
		}
	}
	return model.StatusOpen
}

// StatusFromCompletion maps a numeric completion ratio (percent) by
// threshold: 100 is done, anything started is in progress.
func StatusFromCompletion(percent float64) string {
	switch {
	case percent >= 100:
		return model.StatusDone
	case percent > 0:
		return model.StatusInProgress
	default:
		return model.StatusOpen
	}
}

// PriorityFromKeyword maps a priority label onto the 0-100 scale via a
// keyword ladder. Unknown labels land on the default so priority is
// always populated.
func PriorityFromKeyword(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "highest"), strings.Contains(s, "critical"),
		strings.Contains(s, "urgent"), strings.Contains(s, "blocker"):
		return 95
	case strings.Contains(s, "lowest"), strings.Contains(s, "trivial"):
		return 15
	case strings.Contains(s, "high"):
		return 80
	case strings.Contains(s, "low"):
		return 30
	case strings.Contains(s, "medium"), strings.Contains(s, "normal"):
		return 50
	default:
		return model.DefaultPriority
	}
}

// PriorityFromBucket maps a numeric priority bucket where lower means
// more urgent (board-style 1..N scales).
func PriorityFromBucket(bucket int) int {
	switch {
	case bucket <= 1:
		return 90
	case bucket <= 3:
		return 70
	case bucket <= 5:
		return 50
	case bucket <= 7:
		return 30
	default:
		return 20
	}
}
