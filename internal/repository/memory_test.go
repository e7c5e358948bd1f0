package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iago/obra-back/internal/domain"
)

func seedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()

	ctx := context.Background()
	store := NewMemoryStore()
	created := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

	if err := store.CreateUser(ctx, &domain.User{ID: "e1", Name: "Ana", Role: domain.RoleEngineer}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.CreateSite(ctx, &domain.Site{ID: "s1", Name: "Tower", AssignedEngineerID: "e1", AssignedEngineerName: "Ana", CurrentWeekKey: "2024-W01", CreatedAt: created}); err != nil {
		t.Fatalf("create site: %v", err)
	}
	tasks := []domain.Task{
		{ID: "t1", SiteID: "s1", Status: domain.TaskStatusPending, WeekKey: "2024-W01", AssignedEngineerID: "e1", AssignedEngineerName: "Ana", CreatedAt: created},
		{ID: "t2", SiteID: "s1", Status: domain.TaskStatusDone, WeekKey: "2024-W01", AssignedEngineerID: "e1", AssignedEngineerName: "Ana", CreatedAt: created.Add(time.Minute)},
	}
	for i := range tasks {
		if err := store.CreateTask(ctx, &tasks[i]); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
	return store
}

func TestMemoryCommitCarryForwardAdvancesAtomically(t *testing.T) {
	ctx := context.Background()
	store := seedMemoryStore(t)
	at := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)

	err := store.CommitCarryForward(ctx, domain.CarryForwardBatch{
		SiteID:      "s1",
		FromWeekKey: "2024-W01",
		ToWeekKey:   "2024-W02",
		Clones:      []domain.Task{{ID: "c1", SiteID: "s1", Status: domain.TaskStatusPending, WeekKey: "2024-W02", CarriedFromTaskID: "t1", PendingWeeks: 1}},
		AdvancedAt:  at,
		AdvancedBy:  "admin",
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	site, _ := store.GetSite(ctx, "s1")
	if site.CurrentWeekKey != "2024-W02" {
		t.Fatalf("expected site advanced to 2024-W02, got %s", site.CurrentWeekKey)
	}
	if site.WeekAdvancedBy != "admin" || site.WeekAdvancedAt == nil || !site.WeekAdvancedAt.Equal(at) {
		t.Fatalf("expected advance audit fields, got %+v", site)
	}
	clones, _ := store.ListTasks(ctx, domain.TaskFilter{SiteID: "s1", WeekKey: "2024-W02"})
	if len(clones) != 1 || clones[0].CarriedFromTaskID != "t1" {
		t.Fatalf("expected one clone of t1, got %+v", clones)
	}
}

func TestMemoryCommitCarryForwardRejectsStaleWeek(t *testing.T) {
	ctx := context.Background()
	store := seedMemoryStore(t)

	err := store.CommitCarryForward(ctx, domain.CarryForwardBatch{
		SiteID:      "s1",
		FromWeekKey: "2023-W52",
		ToWeekKey:   "2023-W53",
		Clones:      []domain.Task{{ID: "c1", SiteID: "s1"}},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	site, _ := store.GetSite(ctx, "s1")
	if site.CurrentWeekKey != "2024-W01" {
		t.Fatalf("site week must be unchanged, got %s", site.CurrentWeekKey)
	}
	if _, err := store.GetTask(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("clone must not exist after rejected batch, got %v", err)
	}
}

func TestMemoryCommitCarryForwardIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := seedMemoryStore(t)

	err := store.CommitCarryForward(ctx, domain.CarryForwardBatch{
		SiteID:      "s1",
		FromWeekKey: "2024-W01",
		ToWeekKey:   "2024-W02",
		Clones: []domain.Task{
			{ID: "c1", SiteID: "s1"},
			{ID: "t2", SiteID: "s1"},
		},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for colliding id, got %v", err)
	}

	if _, err := store.GetTask(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first clone must not be written, got %v", err)
	}
	site, _ := store.GetSite(ctx, "s1")
	if site.CurrentWeekKey != "2024-W01" {
		t.Fatalf("site week must be unchanged, got %s", site.CurrentWeekKey)
	}
}

func TestMemoryUpdateSiteKeepsWeekPointer(t *testing.T) {
	ctx := context.Background()
	store := seedMemoryStore(t)

	site, _ := store.GetSite(ctx, "s1")
	site.Name = "Tower B"
	site.CurrentWeekKey = "2000-W01"
	if err := store.UpdateSite(ctx, site); err != nil {
		t.Fatalf("update site: %v", err)
	}

	stored, _ := store.GetSite(ctx, "s1")
	if stored.Name != "Tower B" || stored.CurrentWeekKey != "2024-W01" {
		t.Fatalf("expected rename without week change, got %+v", stored)
	}
}

func TestMemoryRenameUserFansOut(t *testing.T) {
	ctx := context.Background()
	store := seedMemoryStore(t)

	result, err := store.RenameUser(ctx, "e1", "Ana Souza", time.Now().UTC())
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if result.SitesUpdated != 1 || result.TasksUpdated != 2 {
		t.Fatalf("unexpected fan-out counts: %+v", result)
	}

	site, _ := store.GetSite(ctx, "s1")
	task, _ := store.GetTask(ctx, "t1")
	if site.AssignedEngineerName != "Ana Souza" || task.AssignedEngineerName != "Ana Souza" {
		t.Fatalf("denormalized names not updated: site=%q task=%q", site.AssignedEngineerName, task.AssignedEngineerName)
	}

	if _, err := store.RenameUser(ctx, "nobody", "x", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpsertSnapshotReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := domain.ReportSnapshot{WeekKey: "2024-W03", Summary: domain.SnapshotSummary{TotalTasks: 1}}
	second := domain.ReportSnapshot{WeekKey: "2024-W03", Summary: domain.SnapshotSummary{TotalTasks: 9}}
	_ = store.UpsertSnapshot(ctx, first)
	_ = store.UpsertSnapshot(ctx, second)

	snapshots, _ := store.ListSnapshots(ctx)
	if len(snapshots) != 1 {
		t.Fatalf("expected one stored snapshot, got %d", len(snapshots))
	}
	if snapshots[0].Summary.TotalTasks != 9 {
		t.Fatalf("expected latest values, got %+v", snapshots[0].Summary)
	}
}
