package source

import (
	"context"
	"testing"
	"time"
)

// fakeConnector returns a canned payload or error for every query.
type fakeConnector struct {
	payload []byte
	err     error
	calls   int
}

func (f *fakeConnector) FetchRaw(ctx context.Context, query string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

// fakeRecorder captures recorded payloads.
type fakeRecorder struct {
	sources  []string
	payloads [][]byte
}

func (f *fakeRecorder) Record(source string, payload []byte) {
	f.sources = append(f.sources, source)
	f.payloads = append(f.payloads, payload)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{"empty", "", nil},
		{"garbage", "soon", nil},
		{"date only", "2026-09-01", timePtr(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))},
		{"date and time", "2026-09-01 14:30", timePtr(time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC))},
		{"rfc3339", "2026-09-01T14:30:00Z", timePtr(time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC))},
		{"padded", "  2026-09-01  ", timePtr(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseDate(tt.raw)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("parseDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSplitRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain pipes", "a | b | c", []string{"a", "b", "c"}},
		{"markdown edges", "| a | b |", []string{"a", "b"}},
		{"no pipes", "just text", []string{"just text"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitRow(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("splitRow(%q) = %v, want %v", tt.line, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitRow(%q)[%d] = %q, want %q", tt.line, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsSeparatorRow(t *testing.T) {
	t.Parallel()

	if !isSeparatorRow([]string{"---", "---"}) {
		t.Error("expected --- row to be a separator")
	}
	if !isSeparatorRow([]string{":---", "---:"}) {
		t.Error("expected aligned separator row to be a separator")
	}
	if isSeparatorRow([]string{"a", "---"}) {
		t.Error("row with content must not be a separator")
	}
	if isSeparatorRow(nil) {
		t.Error("empty row must not be a separator")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
