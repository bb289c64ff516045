package workflow

import (
	"context"
	"testing"
	"time"

	"taskhub/internal/model"
)

func TestCreateChainAppliesOffsets(t *testing.T) {
	t.Parallel()

	store := newFakeMilestoneStore()
	store.templates[1] = model.MilestoneTemplate{
		ID: 1, Name: "Kickoff", DefaultDayOffset: 0, SortOrder: 1,
		Checklist: []string{"intro call", "access granted"}, Active: true,
	}
	store.templates[2] = model.MilestoneTemplate{
		ID: 2, Name: "Go-live", DefaultDayOffset: 30, SortOrder: 2, Active: true,
	}
	store.templates[3] = model.MilestoneTemplate{
		ID: 3, Name: "Retired", DefaultDayOffset: 5, SortOrder: 3, Active: false,
	}
	store.offsets[offsetKey(7, 2)] = 45

	e, _, _, _ := newTestEngine(store)

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	delivery := model.Delivery{ID: 5, TypeID: 7, Label: "Acme rollout", StartDate: start}

	if err := e.CreateChain(context.Background(), delivery); err != nil {
		t.Fatalf("CreateChain returned error: %v", err)
	}

	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d milestones, want 2 (inactive template excluded)", len(store.inserted))
	}

	first := store.inserted[0]
	if first.TemplateName != "Kickoff" || !first.TargetDate.Equal(start) {
		t.Errorf("unexpected first milestone: %+v", first)
	}
	if len(first.ChecklistState) != 2 {
		t.Errorf("checklist state sized %d, want 2", len(first.ChecklistState))
	}
	if first.Status != model.MilestonePending {
		t.Errorf("status = %q, want pending", first.Status)
	}

	second := store.inserted[1]
	wantTarget := start.AddDate(0, 0, 45)
	if !second.TargetDate.Equal(wantTarget) {
		t.Errorf("override offset ignored: target = %v, want %v", second.TargetDate, wantTarget)
	}
}

func TestCreateChainFailsWithoutTemplates(t *testing.T) {
	t.Parallel()

	e, _, _, _ := newTestEngine(newFakeMilestoneStore())
	if err := e.CreateChain(context.Background(), model.Delivery{ID: 1}); err == nil {
		t.Fatal("expected error when no active templates exist")
	}
}

func TestDeleteChainRemovesProjectedTasks(t *testing.T) {
	t.Parallel()

	store := newFakeMilestoneStore()
	seedReadyMilestone(store, 1, 1, nil)
	seedReadyMilestone(store, 1, 2, nil)
	other := seedReadyMilestone(store, 2, 3, nil)

	e, tasks, _, _ := newTestEngine(store)

	// Project everything first so there are tasks to clean up.
	if _, err := e.EvaluateAll(context.Background()); err != nil {
		t.Fatalf("EvaluateAll returned error: %v", err)
	}
	if len(tasks.tasks) != 3 {
		t.Fatalf("projected %d tasks, want 3", len(tasks.tasks))
	}

	if err := e.DeleteChain(context.Background(), 1); err != nil {
		t.Fatalf("DeleteChain returned error: %v", err)
	}

	if len(tasks.tasks) != 1 {
		t.Errorf("%d tasks remain, want only the other delivery's", len(tasks.tasks))
	}
	if len(store.deletedChains) != 1 || store.deletedChains[0] != 1 {
		t.Errorf("deleted chains = %v, want [1]", store.deletedChains)
	}
	if _, err := store.GetMilestone(context.Background(), other.ID); err != nil {
		t.Error("other delivery's milestones must survive")
	}
}
