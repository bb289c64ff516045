package source

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"taskhub/internal/model"
)

func TestBoardFetchColumnDiscovery(t *testing.T) {
	t.Parallel()

	payload := `{
		"items": [
			{
				"id": "42",
				"name": "Ship onboarding flow",
				"url": "https://board/42",
				"column_values": [
					{"id": "status_col", "title": "Status", "text": "Working on it"},
					{"id": "prio", "title": "Priority", "text": "2"},
					{"id": "due", "title": "Due Date", "text": "2026-09-15"}
				]
			},
			{
				"id": "43",
				"name": "Keyword priority",
				"column_values": [
					{"id": "x", "title": "Severity", "text": "high"}
				]
			},
			{
				"id": "44",
				"name": "Completion outranks status",
				"column_values": [
					{"id": "p", "title": "Progress", "text": "100%"},
					{"id": "s", "title": "Status", "text": "Stuck"}
				]
			}
		]
	}`

	a := NewBoardAdapter("board", &fakeConnector{payload: []byte(payload)}, "/q", nil, false, zap.NewNop())

	tasks, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}

	if tasks[0].Status != model.StatusInProgress {
		t.Errorf("status column mapping: got %q, want in_progress", tasks[0].Status)
	}
	if tasks[0].Priority != 70 {
		t.Errorf("numeric bucket 2 should map to 70, got %d", tasks[0].Priority)
	}
	if tasks[0].DueDate == nil {
		t.Error("expected due date from date column")
	}

	if tasks[1].Priority != 80 {
		t.Errorf("keyword priority fallback: got %d, want 80", tasks[1].Priority)
	}
	if tasks[1].Status != model.StatusOpen {
		t.Errorf("item without status column should stay open, got %q", tasks[1].Status)
	}

	if tasks[2].Status != model.StatusDone {
		t.Errorf("completion column must outrank status label, got %q", tasks[2].Status)
	}
}

func TestBoardFetchMarkdownFallback(t *testing.T) {
	t.Parallel()

	payload := "" +
		"| Item | Status | Priority | Due |\n" +
		"| --- | --- | --- | --- |\n" +
		"| Launch checklist | Done | 1 | 2026-08-20 |\n" +
		"| Draft comms | Working | high | 2026-09-02 |\n"

	a := NewBoardAdapter("board", &fakeConnector{payload: []byte(payload)}, "/q", nil, false, zap.NewNop())

	tasks, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	for _, task := range tasks {
		if !strings.HasPrefix(task.SourceID, "row-") {
			t.Errorf("expected synthetic row id, got %q", task.SourceID)
		}
	}
	if tasks[0].SourceID == tasks[1].SourceID {
		t.Errorf("row ids must be distinct, both are %q", tasks[0].SourceID)
	}
	if tasks[0].Status != model.StatusDone || tasks[0].Priority != 90 {
		t.Errorf("unexpected first row mapping: %+v", tasks[0])
	}
	if tasks[1].Status != model.StatusInProgress || tasks[1].Priority != 80 {
		t.Errorf("unexpected second row mapping: %+v", tasks[1])
	}
}

func TestBoardFallbackIDsSurviveReordering(t *testing.T) {
	t.Parallel()

	header := "| Item | Status |\n| --- | --- |\n"
	first := header +
		"| Launch checklist | Done |\n" +
		"| Draft comms | Working |\n"
	reordered := header +
		"| Draft comms | Working |\n" +
		"| Launch checklist | Done |\n"

	fetch := func(payload string) map[string]string {
		a := NewBoardAdapter("board", &fakeConnector{payload: []byte(payload)}, "/q", nil, false, zap.NewNop())
		tasks, err := a.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch returned error: %v", err)
		}
		ids := make(map[string]string, len(tasks))
		for _, task := range tasks {
			ids[task.Title] = task.SourceID
		}
		return ids
	}

	before := fetch(first)
	after := fetch(reordered)
	for title, id := range before {
		if after[title] != id {
			t.Errorf("id for %q changed across reorder: %q -> %q", title, id, after[title])
		}
	}
}

func TestBoardFallbackDuplicateTitlesStayUnique(t *testing.T) {
	t.Parallel()

	payload := "| Item | Status |\n| --- | --- |\n" +
		"| Follow up | Done |\n" +
		"| Follow up | Working |\n"

	a := NewBoardAdapter("board", &fakeConnector{payload: []byte(payload)}, "/q", nil, false, zap.NewNop())
	tasks, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].SourceID == tasks[1].SourceID {
		t.Errorf("duplicate titles must still get distinct ids, both are %q", tasks[0].SourceID)
	}
}

func TestBoardFetchUnparseable(t *testing.T) {
	t.Parallel()

	a := NewBoardAdapter("board", &fakeConnector{payload: []byte("<html>rate limited</html>")}, "/q", nil, false, zap.NewNop())

	if _, err := a.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for unparseable payload")
	}
}

func TestFindColumn(t *testing.T) {
	t.Parallel()

	cols := []Column{
		{ID: "text1", Title: "Notes", Text: "n/a"},
		{ID: "status9", Title: "Phase", Text: "done"},
	}

	if got := FindColumn(cols, statusColumnKeywords); got == nil || got.Text != "done" {
		t.Errorf("FindColumn(status) = %v, want the status9 column", got)
	}
	if got := FindColumn(cols, dateColumnKeywords); got != nil {
		t.Errorf("FindColumn(date) = %v, want nil", got)
	}
}
