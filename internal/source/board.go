package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"taskhub/internal/connector"
	"taskhub/internal/model"
)

// BoardAdapter maps a board/grid source to canonical tasks. Board
// schemas are user-configurable, so status, priority and date fields
// are discovered by scanning each item's column list for keyword
// matches instead of fixed indexes.
type BoardAdapter struct {
	name      string
	conn      connector.Connector
	query     string
	recorder  Recorder
	transient bool
	logger    *zap.Logger
}

func NewBoardAdapter(name string, conn connector.Connector, query string, recorder Recorder, transient bool, logger *zap.Logger) *BoardAdapter {
	return &BoardAdapter{
		name:      name,
		conn:      conn,
		query:     query,
		recorder:  recorder,
		transient: transient,
		logger:    logger,
	}
}

func (a *BoardAdapter) Name() string    { return a.name }
func (a *BoardAdapter) Transient() bool { return a.transient }

type boardItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	ColumnValues []Column `json:"column_values"`
}

type boardResponse struct {
	Items []boardItem `json:"items"`
}

func (a *BoardAdapter) Fetch(ctx context.Context) ([]model.CanonicalTask, error) {
	raw, err := a.conn.FetchRaw(ctx, a.query)
	if err != nil {
		return nil, fmt.Errorf("board %s fetch failed: %w", a.name, err)
	}
	if a.recorder != nil {
		a.recorder.Record(a.name, raw)
	}

	var resp boardResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		tasks, ok := a.parseMarkdownTable(string(raw))
		if !ok {
			return nil, fmt.Errorf("board %s payload unparseable: %w", a.name, jsonErr)
		}
		a.logger.Debug("Board payload parsed via markdown fallback",
			zap.String("source", a.name),
			zap.Int("count", len(tasks)),
		)
		return tasks, nil
	}

	tasks := make([]model.CanonicalTask, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID == "" {
			continue
		}
		rawItem, _ := json.Marshal(item)
		task := model.CanonicalTask{
			Source:    a.name,
			SourceID:  item.ID,
			Title:     item.Name,
			Status:    model.StatusOpen,
			Priority:  model.DefaultPriority,
			SourceURL: item.URL,
			RawData:   rawItem,
			Transient: a.transient,
		}

		// A completion column outranks the status label: the ratio is
		// the board's authoritative progress signal.
		if col := FindColumn(item.ColumnValues, completionColumnKeywords); col != nil {
			if pct, perr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(col.Text), "%"), 64); perr == nil {
				task.Status = StatusFromCompletion(pct)
			}
		} else if col := FindColumn(item.ColumnValues, statusColumnKeywords); col != nil {
			task.Status = NormalizeStatus(col.Text)
		}

		if col := FindColumn(item.ColumnValues, priorityColumnKeywords); col != nil {
			// Boards use numeric 1..N buckets; fall back to the keyword
			// ladder when the column holds a label instead.
			if bucket, berr := strconv.Atoi(strings.TrimSpace(col.Text)); berr == nil {
				task.Priority = PriorityFromBucket(bucket)
			} else {
				task.Priority = PriorityFromKeyword(col.Text)
			}
		}

		if col := FindColumn(item.ColumnValues, dateColumnKeywords); col != nil {
			task.DueDate = parseDate(col.Text)
		}

		tasks = append(tasks, task)
	}
	return tasks, nil
}

// parseMarkdownTable handles the markdown rendering of a board: a
// header row naming the columns, then one item per row. Columns are
// still discovered by keyword, only against header labels.
func (a *BoardAdapter) parseMarkdownTable(text string) ([]model.CanonicalTask, bool) {
	var headers []string
	statusIdx, priorityIdx, dateIdx := -1, -1, -1
	var tasks []model.CanonicalTask
	seen := make(map[string]int)

	for _, line := range strings.Split(text, "\n") {
		cells := splitRow(line)
		if len(cells) < 2 || isSeparatorRow(cells) {
			continue
		}
		if headers == nil {
			headers = cells
			statusIdx = FindHeaderIndex(headers, statusColumnKeywords)
			priorityIdx = FindHeaderIndex(headers, priorityColumnKeywords)
			dateIdx = FindHeaderIndex(headers, dateColumnKeywords)
			continue
		}

		task := model.CanonicalTask{
			Source:    a.name,
			SourceID:  fallbackID("row", cells[0], seen),
			Title:     cells[0],
			Status:    model.StatusOpen,
			Priority:  model.DefaultPriority,
			RawData:   json.RawMessage(fmt.Sprintf("%q", line)),
			Transient: a.transient,
		}
		if statusIdx >= 0 && statusIdx < len(cells) {
			task.Status = NormalizeStatus(cells[statusIdx])
		}
		if priorityIdx >= 0 && priorityIdx < len(cells) {
			if bucket, err := strconv.Atoi(cells[priorityIdx]); err == nil {
				task.Priority = PriorityFromBucket(bucket)
			} else {
				task.Priority = PriorityFromKeyword(cells[priorityIdx])
			}
		}
		if dateIdx >= 0 && dateIdx < len(cells) {
			task.DueDate = parseDate(cells[dateIdx])
		}
		tasks = append(tasks, task)
	}

	return tasks, headers != nil && len(tasks) > 0
}
