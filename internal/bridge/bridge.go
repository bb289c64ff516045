// Package bridge holds the deterministic mapping between a delivery
// milestone and its canonical-task projection. Both directions are
// pure functions so re-running them is idempotent by construction.
package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskhub/internal/model"
)

// Priority ladder for milestone-projected tasks. Overdue and near-due
// milestones outrank ordinary open work without a separate urgent flag.
const (
	priorityComplete = 20
	priorityOverdue  = 80
	priorityNear     = 70
	prioritySoon     = 60
	priorityDefault  = 50
)

// SourceID returns the stable composite key of a milestone's task
// projection. It is built from domain identifiers, not a database
// surrogate key, so re-projecting always lands on the same record.
func SourceID(deliveryID, templateID int) string {
	return fmt.Sprintf("milestone:%d:%d", deliveryID, templateID)
}

// ParseSourceID is the inverse of SourceID.
func ParseSourceID(sourceID string) (deliveryID, templateID int, err error) {
	parts := strings.Split(sourceID, ":")
	if len(parts) != 3 || parts[0] != "milestone" {
		return 0, 0, fmt.Errorf("not a milestone source id: %q", sourceID)
	}
	deliveryID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad delivery id in %q: %w", sourceID, err)
	}
	templateID, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad template id in %q: %w", sourceID, err)
	}
	return deliveryID, templateID, nil
}

type rawProjection struct {
	DeliveryID  int `json:"delivery_id"`
	TemplateID  int `json:"template_id"`
	MilestoneID int `json:"milestone_id"`
}

// Project maps a milestone onto its canonical-task projection. Called
// twice with unchanged inputs it produces identical tasks, so an
// upsert over the previous projection replaces rather than duplicates.
func Project(m model.DeliveryMilestone, d model.Delivery, now time.Time) model.CanonicalTask {
	raw, _ := json.Marshal(rawProjection{
		DeliveryID:  m.DeliveryID,
		TemplateID:  m.TemplateID,
		MilestoneID: m.ID,
	})

	return model.CanonicalTask{
		Source:      model.SourceMilestone,
		SourceID:    SourceID(m.DeliveryID, m.TemplateID),
		Title:       d.Label + " — " + m.TemplateName,
		Description: checklistSummary(m),
		Status:      taskStatus(m.Status),
		Priority:    CalculatePriority(m.TargetDate, m.Status, now),
		DueDate:     m.TargetDate,
		Category:    "milestone",
		RawData:     raw,
	}
}

// CalculatePriority derives the projected task priority from target
// date proximity.
func CalculatePriority(targetDate *time.Time, status string, now time.Time) int {
	if status == model.MilestoneComplete {
		return priorityComplete
	}
	if targetDate == nil {
		return priorityDefault
	}

	days := daysUntil(*targetDate, now)
	switch {
	case days < 0:
		return priorityOverdue
	case days <= 3:
		return priorityNear
	case days <= 7:
		return prioritySoon
	default:
		return priorityDefault
	}
}

// MilestoneUpdate is the reverse-mapping result: the fields to apply
// to a milestone after its projected task changed status externally.
type MilestoneUpdate struct {
	Status     string
	ActualDate *time.Time
}

// ApplyTaskStatus translates an external status change on a
// milestone-sourced task back onto the milestone. The second return is
// false when the task status has no milestone equivalent (dismissed)
// or the milestone already holds the target status.
//
// The actual-date invariant is enforced here: entering complete stamps
// the date, leaving complete clears it.
func ApplyTaskStatus(taskStatus string, m model.DeliveryMilestone, now time.Time) (MilestoneUpdate, bool) {
	var status string
	switch taskStatus {
	case model.StatusOpen:
		status = model.MilestonePending
	case model.StatusInProgress:
		status = model.MilestoneInProgress
	case model.StatusDone:
		status = model.MilestoneComplete
	default:
		return MilestoneUpdate{}, false
	}

	if status == m.Status {
		return MilestoneUpdate{}, false
	}

	update := MilestoneUpdate{Status: status}
	if status == model.MilestoneComplete {
		t := now
		update.ActualDate = &t
	}
	return update, true
}

func taskStatus(milestoneStatus string) string {
	switch milestoneStatus {
	case model.MilestoneComplete:
		return model.StatusDone
	case model.MilestoneInProgress:
		return model.StatusInProgress
	default:
		return model.StatusOpen
	}
}

func checklistSummary(m model.DeliveryMilestone) string {
	done, total := m.ChecklistProgress()
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("Checklist: %d/%d complete", done, total)
}

// daysUntil counts whole calendar days between now and target.
func daysUntil(target, now time.Time) int {
	ty, tm, td := target.Date()
	ny, nm, nd := now.Date()
	t0 := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	n0 := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(t0.Sub(n0).Hours() / 24)
}
