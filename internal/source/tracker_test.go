package source

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"taskhub/internal/model"
)

func TestTrackerFetchStructured(t *testing.T) {
	t.Parallel()

	payload := `{
		"issues": [
			{
				"key": "OPS-1",
				"summary": "Fix pager rotation",
				"description": "rotation skipped a week",
				"status": "In Progress",
				"priority": "High",
				"due_date": "2026-09-10",
				"sla_due": "2026-09-12",
				"category": "ops",
				"url": "https://tracker/OPS-1"
			},
			{"key": "", "summary": "no key, skipped"},
			{"key": "OPS-2", "summary": "Rotate certs", "status": "Done", "priority": "Lowest"}
		]
	}`

	recorder := &fakeRecorder{}
	a := NewTrackerAdapter("issues", &fakeConnector{payload: []byte(payload)}, "/q", recorder, false, zap.NewNop())

	tasks, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	first := tasks[0]
	if first.SourceID != "OPS-1" || first.Title != "Fix pager rotation" {
		t.Errorf("unexpected first task identity: %+v", first)
	}
	if first.Status != model.StatusInProgress {
		t.Errorf("status = %q, want in_progress", first.Status)
	}
	if first.Priority != 80 {
		t.Errorf("priority = %d, want 80", first.Priority)
	}
	if first.DueDate == nil || first.SLABreachAt == nil {
		t.Error("expected due date and SLA date to be parsed")
	}
	if len(first.RawData) == 0 {
		t.Error("expected raw payload to be preserved")
	}

	if tasks[1].Status != model.StatusDone || tasks[1].Priority != 15 {
		t.Errorf("unexpected second task mapping: %+v", tasks[1])
	}

	if len(recorder.payloads) != 1 || recorder.sources[0] != "issues" {
		t.Errorf("expected one recorded payload for issues, got %v", recorder.sources)
	}
}

func TestTrackerFetchTextFallback(t *testing.T) {
	t.Parallel()

	payload := "" +
		"| Key | Summary | Status | Priority | Due |\n" +
		"| --- | --- | --- | --- | --- |\n" +
		"| OPS-7 | Patch bastion | In Review | Critical | 2026-09-03 |\n" +
		"| OPS-8 | Renew domain | Open |\n"

	a := NewTrackerAdapter("issues", &fakeConnector{payload: []byte(payload)}, "/q", nil, false, zap.NewNop())

	tasks, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	if tasks[0].SourceID != "OPS-7" || tasks[0].Status != model.StatusInProgress {
		t.Errorf("unexpected first row mapping: %+v", tasks[0])
	}
	if tasks[0].Priority != 95 {
		t.Errorf("priority = %d, want 95", tasks[0].Priority)
	}
	if tasks[0].DueDate == nil {
		t.Error("expected due date parsed from fifth cell")
	}
	if tasks[1].Priority != model.DefaultPriority {
		t.Errorf("row without priority cell should default, got %d", tasks[1].Priority)
	}
}

func TestTrackerFetchUnparseable(t *testing.T) {
	t.Parallel()

	a := NewTrackerAdapter("issues", &fakeConnector{payload: []byte("service temporarily unavailable")}, "/q", nil, false, zap.NewNop())

	tasks, err := a.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for unparseable payload")
	}
	if tasks != nil {
		t.Errorf("expected nil tasks on parse failure, got %v", tasks)
	}
}

func TestTrackerFetchConnectorError(t *testing.T) {
	t.Parallel()

	a := NewTrackerAdapter("issues", &fakeConnector{err: errors.New("dial tcp: connection refused")}, "/q", nil, false, zap.NewNop())

	if _, err := a.Fetch(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}
