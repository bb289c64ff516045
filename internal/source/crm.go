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

// CRMAdapter maps a CRM source (deals with a pipeline stage and an SLA
// clock) to canonical tasks.
type CRMAdapter struct {
	name      string
	conn      connector.Connector
	query     string
	recorder  Recorder
	transient bool
	logger    *zap.Logger
}

func NewCRMAdapter(name string, conn connector.Connector, query string, recorder Recorder, transient bool, logger *zap.Logger) *CRMAdapter {
	return &CRMAdapter{
		name:      name,
		conn:      conn,
		query:     query,
		recorder:  recorder,
		transient: transient,
		logger:    logger,
	}
}

func (a *CRMAdapter) Name() string    { return a.name }
func (a *CRMAdapter) Transient() bool { return a.transient }

type crmDeal struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stage     string `json:"stage"`
	Priority  string `json:"priority"`
	CloseDate string `json:"close_date"`
	SLADue    string `json:"sla_due"`
	Owner     string `json:"owner"`
	URL       string `json:"url"`
}

type crmResponse struct {
	Deals []crmDeal `json:"deals"`
}

func (a *CRMAdapter) Fetch(ctx context.Context) ([]model.CanonicalTask, error) {
	raw, err := a.conn.FetchRaw(ctx, a.query)
	if err != nil {
		return nil, fmt.Errorf("crm %s fetch failed: %w", a.name, err)
	}
	if a.recorder != nil {
		a.recorder.Record(a.name, raw)
	}

	var resp crmResponse
	if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
		tasks, ok := a.parseText(string(raw))
		if !ok {
			return nil, fmt.Errorf("crm %s payload unparseable: %w", a.name, jsonErr)
		}
		a.logger.Debug("CRM payload parsed via text fallback",
			zap.String("source", a.name),
			zap.Int("count", len(tasks)),
		)
		return tasks, nil
	}

	tasks := make([]model.CanonicalTask, 0, len(resp.Deals))
	for _, deal := range resp.Deals {
		if deal.ID == "" {
			continue
		}
		rawDeal, _ := json.Marshal(deal)
		tasks = append(tasks, model.CanonicalTask{
			Source:      a.name,
			SourceID:    deal.ID,
			Title:       deal.Name,
			Description: deal.Owner,
			Status:      NormalizeStatus(deal.Stage),
			Priority:    PriorityFromKeyword(deal.Priority),
			DueDate:     parseDate(deal.CloseDate),
			SLABreachAt: parseDate(deal.SLADue),
			Category:    "deal",
			SourceURL:   deal.URL,
			RawData:     rawDeal,
			Transient:   a.transient,
		})
	}
	return tasks, nil
}

// parseText handles the text rendering of a deal list: one deal per
// row, "id | name | stage | priority".
func (a *CRMAdapter) parseText(text string) ([]model.CanonicalTask, bool) {
	var tasks []model.CanonicalTask
	matched := false

	for _, line := range strings.Split(text, "\n") {
		cells := splitRow(line)
		if len(cells) < 3 || isSeparatorRow(cells) {
			continue
		}
		// Deal rows lead with a numeric or prefixed identifier; header
		// rows do not.
		if strings.EqualFold(cells[0], "id") {
			continue
		}
		matched = true

		task := model.CanonicalTask{
			Source:    a.name,
			SourceID:  cells[0],
			Title:     cells[1],
			Status:    NormalizeStatus(cells[2]),
			Priority:  model.DefaultPriority,
			Category:  "deal",
			RawData:   json.RawMessage(fmt.Sprintf("%q", line)),
			Transient: a.transient,
		}
		if len(cells) > 3 {
			task.Priority = PriorityFromKeyword(cells[3])
		}
		tasks = append(tasks, task)
	}

	return tasks, matched
}
