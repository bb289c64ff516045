package model

import "time"

// Milestone status values.
const (
	MilestonePending    = "pending"
	MilestoneInProgress = "in_progress"
	MilestoneComplete   = "complete"
)

// Delivery is one unit of work a milestone chain is attached to.
type Delivery struct {
	ID             int       `json:"id"`
	TypeID         int       `json:"type_id"`
	Label          string    `json:"label"`
	Classification string    `json:"classification,omitempty"` // data the linked ticket groups need
	StartDate      time.Time `json:"start_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// MilestoneTemplate describes one dated milestone in the chain.
type MilestoneTemplate struct {
	ID                   int      `json:"id"`
	Name                 string   `json:"name"`
	DefaultDayOffset     int      `json:"default_day_offset"`
	SortOrder            int      `json:"sort_order"`
	Checklist            []string `json:"checklist"`
	LeadDays             int      `json:"lead_days"` // days before target_date the next-milestone trigger fires
	LinkedTicketGroupIDs []int    `json:"linked_ticket_group_ids"`
	Active               bool     `json:"active"`
}

// OffsetOverride replaces a template's default day offset for one
// delivery type.
type OffsetOverride struct {
	DeliveryTypeID int `json:"delivery_type_id"`
	TemplateID     int `json:"template_id"`
	DayOffset      int `json:"day_offset"`
}

// DeliveryMilestone is an instance of a template attached to one
// delivery. TemplateName is denormalized at creation time so
// historical labels survive template renames.
//
// TaskCreated and TicketsCreated are idempotency latches: monotonic,
// never reset by status changes, only by deleting the whole chain.
type DeliveryMilestone struct {
	ID             int        `json:"id"`
	DeliveryID     int        `json:"delivery_id"`
	TemplateID     int        `json:"template_id"`
	TemplateName   string     `json:"template_name"`
	SortOrder      int        `json:"sort_order"`
	TargetDate     *time.Time `json:"target_date,omitempty"`
	ActualDate     *time.Time `json:"actual_date,omitempty"` // non-nil iff Status == complete
	Status         string     `json:"status"`
	ChecklistState []bool     `json:"checklist_state"` // parallel to the template checklist
	TaskCreated    bool       `json:"workflow_task_created"`
	TicketsCreated bool       `json:"workflow_tickets_created"`
	TicketKeys     []string   `json:"workflow_ticket_keys"`
	LeadDays       int        `json:"lead_days"` // joined from the template on read
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ChecklistProgress returns how many checklist items are done out of
// the total.
func (m DeliveryMilestone) ChecklistProgress() (done, total int) {
	for _, checked := range m.ChecklistState {
		if checked {
			done++
		}
	}
	return done, len(m.ChecklistState)
}
