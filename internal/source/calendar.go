package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskhub/internal/connector"
	"taskhub/internal/model"
)

// CalendarAdapter maps a calendar/agenda source to canonical tasks.
// Calendar views are transient by nature: the current window is the
// only truth and legitimately empties out, so calendar sources belong
// on the purge allow-list.
type CalendarAdapter struct {
	name     string
	conn     connector.Connector
	query    string
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewCalendarAdapter(name string, conn connector.Connector, query string, recorder Recorder, logger *zap.Logger) *CalendarAdapter {
	return &CalendarAdapter{
		name:     name,
		conn:     conn,
		query:    query,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *CalendarAdapter) Name() string    { return a.name }
func (a *CalendarAdapter) Transient() bool { return true }

type calendarEvent struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
	URL      string `json:"url"`
}

type calendarResponse struct {
	Events []calendarEvent `json:"events"`
}

func (a *CalendarAdapter) Fetch(ctx context.Context) ([]model.CanonicalTask, error) {
	raw, err := a.conn.FetchRaw(ctx, a.query)
	if err != nil {
		return nil, fmt.Errorf("calendar %s fetch failed: %w", a.name, err)
	}
	if a.recorder != nil {
		a.recorder.Record(a.name, raw)
	}

	var resp calendarResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		tasks, ok := a.parseText(string(raw))
		if !ok {
			return nil, fmt.Errorf("calendar %s payload unparseable: %w", a.name, jsonErr)
		}
		a.logger.Debug("Calendar payload parsed via text fallback",
			zap.String("source", a.name),
			zap.Int("count", len(tasks)),
		)
		return tasks, nil
	}

	tasks := make([]model.CanonicalTask, 0, len(resp.Events))
	for _, ev := range resp.Events {
		if ev.ID == "" {
			continue
		}
		rawEvent, _ := json.Marshal(ev)
		task := model.CanonicalTask{
			Source:      a.name,
			SourceID:    ev.ID,
			Title:       ev.Summary,
			Description: ev.Location,
			Status:      a.eventStatus(ev),
			Priority:    model.DefaultPriority,
			DueDate:     parseDate(ev.Start),
			Category:    "event",
			SourceURL:   ev.URL,
			RawData:     rawEvent,
			Transient:   true,
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// eventStatus derives status from the event window: past events are
// done, in-window events are in progress.
func (a *CalendarAdapter) eventStatus(ev calendarEvent) string {
	now := a.now()
	start := parseDate(ev.Start)
	end := parseDate(ev.End)
	switch {
	case end != nil && end.Before(now):
		return model.StatusDone
	case start != nil && !start.After(now):
		return model.StatusInProgress
	default:
		return model.StatusOpen
	}
}

// parseText handles the plain-text agenda rendering: one event per
// line, "<start> <summary>".
func (a *CalendarAdapter) parseText(text string) ([]model.CanonicalTask, bool) {
	var tasks []model.CanonicalTask
	seen := make(map[string]int)
	matched := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) < 2 {
			continue
		}
		start := parseDate(fields[0])
		if start == nil {
			continue
		}
		matched = true
		tasks = append(tasks, model.CanonicalTask{
			Source:    a.name,
			SourceID:  fallbackID("line", line, seen),
			Title:     strings.TrimSpace(fields[1]),
			Status:    model.StatusOpen,
			Priority:  model.DefaultPriority,
			DueDate:   start,
			Category:  "event",
			RawData:   json.RawMessage(fmt.Sprintf("%q", line)),
			Transient: true,
		})
	}

	return tasks, matched
}
