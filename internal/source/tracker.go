package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskhub/internal/connector"
	"taskhub/internal/model"
)

// TrackerAdapter maps an issue-tracker source (keyed issues with a
// status and priority vocabulary) to canonical tasks.
type TrackerAdapter struct {
	name      string
	conn      connector.Connector
	query     string
	recorder  Recorder
	transient bool
	logger    *zap.Logger
}

func NewTrackerAdapter(name string, conn connector.Connector, query string, recorder Recorder, transient bool, logger *zap.Logger) *TrackerAdapter {
	return &TrackerAdapter{
		name:      name,
		conn:      conn,
		query:     query,
		recorder:  recorder,
		transient: transient,
		logger:    logger,
	}
}

func (a *TrackerAdapter) Name() string    { return a.name }
func (a *TrackerAdapter) Transient() bool { return a.transient }

type trackerIssue struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	SLADue      string `json:"sla_due"`
	Category    string `json:"category"`
	URL         string `json:"url"`
}

type trackerResponse struct {
	Issues []trackerIssue `json:"issues"`
}

func (a *TrackerAdapter) Fetch(ctx context.Context) ([]model.CanonicalTask, error) {
	raw, err := a.conn.FetchRaw(ctx, a.query)
	if err != nil {
		return nil, fmt.Errorf("tracker %s fetch failed: %w", a.name, err)
	}
	if a.recorder != nil {
		a.recorder.Record(a.name, raw)
	}

	var resp trackerResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		// The connector may hand back a text rendering of the same
		// data; try the line-oriented fallback before giving up.
		tasks, ok := a.parseText(string(raw))
		if !ok {
			return nil, fmt.Errorf("tracker %s payload unparseable: %w", a.name, jsonErr)
		}
		a.logger.Debug("Tracker payload parsed via text fallback",
			zap.String("source", a.name),
			zap.Int("count", len(tasks)),
		)
		return tasks, nil
	}

	tasks := make([]model.CanonicalTask, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		if issue.Key == "" {
			continue
		}
		rawIssue, _ := json.Marshal(issue)
		tasks = append(tasks, model.CanonicalTask{
			Source:      a.name,
			SourceID:    issue.Key,
			Title:       issue.Summary,
			Description: issue.Description,
			Status:      NormalizeStatus(issue.Status),
			Priority:    PriorityFromKeyword(issue.Priority),
			DueDate:     parseDate(issue.DueDate),
			SLABreachAt: parseDate(issue.SLADue),
			Category:    issue.Category,
			SourceURL:   issue.URL,
			RawData:     rawIssue,
			Transient:   a.transient,
		})
	}
	return tasks, nil
}

// parseText handles the markdown rendering of an issue list: one issue
// per row, "KEY | summary | status | priority | due".
func (a *TrackerAdapter) parseText(text string) ([]model.CanonicalTask, bool) {
	var tasks []model.CanonicalTask
	matched := false

	for _, line := range strings.Split(text, "\n") {
		cells := splitRow(line)
		if len(cells) < 3 || isSeparatorRow(cells) {
			continue
		}
		key := cells[0]
		// Issue keys look like "OPS-123"; skip header rows.
		if !strings.Contains(key, "-") {
			continue
		}
		matched = true

		task := model.CanonicalTask{
			Source:    a.name,
			SourceID:  key,
			Title:     cells[1],
			Status:    NormalizeStatus(cells[2]),
			Priority:  model.DefaultPriority,
			RawData:   json.RawMessage(fmt.Sprintf("%q", line)),
			Transient: a.transient,
		}
		if len(cells) > 3 {
			task.Priority = PriorityFromKeyword(cells[3])
		}
		if len(cells) > 4 {
			task.DueDate = parseDate(cells[4])
		}
		tasks = append(tasks, task)
	}

	return tasks, matched
}
