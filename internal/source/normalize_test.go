package source

import (
	"testing"

	"taskhub/internal/model"
)

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty defaults to open", "", model.StatusOpen},
		{"unknown defaults to open", "Backlog", model.StatusOpen},
		{"done", "Done", model.StatusDone},
		{"closed", "CLOSED", model.StatusDone},
		{"resolved substring", "Resolved (duplicate)", model.StatusDone},
		{"deal won", "Won", model.StatusDone},
		{"in progress", "In Progress", model.StatusInProgress},
		{"review", "In Review", model.StatusInProgress},
		{"doing", "Doing", model.StatusInProgress},
		{"cancelled", "Cancelled", model.StatusDismissed},
		{"dismissed", "dismissed", model.StatusDismissed},
		{"wont do beats won", "Won't Do", model.StatusDismissed},
		{"wont do without apostrophe", "wont do", model.StatusDismissed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeStatus(tt.raw); got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStatusFromCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		percent float64
		want    string
	}{
		{0, model.StatusOpen},
		{-5, model.StatusOpen},
		{0.5, model.StatusInProgress},
		{50, model.StatusInProgress},
		{99.9, model.StatusInProgress},
		{100, model.StatusDone},
		{120, model.StatusDone},
	}

	for _, tt := range tests {
		tt := tt
		if got := StatusFromCompletion(tt.percent); got != tt.want {
			t.Errorf("StatusFromCompletion(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestPriorityFromKeyword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want int
	}{
		{"", model.DefaultPriority},
		{"whatever", model.DefaultPriority},
		{"Highest", 95},
		{"Critical", 95},
		{"urgent", 95},
		{"Blocker", 95},
		{"High", 80},
		{"Lowest", 15},
		{"Trivial", 15},
		{"Low", 30},
		{"Medium", 50},
		{"normal", 50},
	}

	for _, tt := range tests {
		tt := tt
		if got := PriorityFromKeyword(tt.raw); got != tt.want {
			t.Errorf("PriorityFromKeyword(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestPriorityFromBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bucket int
		want   int
	}{
		{0, 90},
		{1, 90},
		{2, 70},
		{3, 70},
		{4, 50},
		{5, 50},
		{6, 30},
		{7, 30},
		{8, 20},
		{100, 20},
	}

	for _, tt := range tests {
		tt := tt
		if got := PriorityFromBucket(tt.bucket); got != tt.want {
			t.Errorf("PriorityFromBucket(%d) = %d, want %d", tt.bucket, got, tt.want)
		}
	}
}
