package carryforward

import (
	"fmt"
	"testing"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("clone-%d", n)
	}
}

func TestPlanClonesOnlyPendingTasksOfCurrentWeek(t *testing.T) {
	created := time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)
	site := domain.Site{ID: "s1", CurrentWeekKey: "2024-W01"}
	tasks := []domain.Task{
		{ID: "t2", SiteID: "s1", Title: "Pour slab", WeekKey: "2024-W01", Status: domain.TaskStatusPending, Priority: domain.PriorityHigh, PendingWeeks: 2, DayName: "Tuesday", CreatedAt: created.Add(time.Hour), CreatedBy: domain.CreatedByAdmin, CreatedByUID: "admin-1"},
		{ID: "t1", SiteID: "s1", Title: "Rebar", WeekKey: "2024-W01", Status: domain.TaskStatusPending, Priority: domain.PriorityNormal, CreatedAt: created, AssignedEngineerID: "e1", AssignedEngineerName: "Ana"},
		{ID: "t3", SiteID: "s1", Title: "Done", WeekKey: "2024-W01", Status: domain.TaskStatusDone},
		{ID: "t4", SiteID: "s1", Title: "Cancelled", WeekKey: "2024-W01", Status: domain.TaskStatusCancelled},
		{ID: "t5", SiteID: "s1", Title: "Old week", WeekKey: "2023-W52", Status: domain.TaskStatusPending},
		{ID: "t6", SiteID: "s2", Title: "Other site", WeekKey: "2024-W01", Status: domain.TaskStatusPending},
	}

	planner := Planner{Mode: weekkey.WrapFixed53, NewID: sequentialIDs()}
	batch, err := planner.Plan(site, tasks, now, "admin-9")
	require.NoError(t, err)

	assert.Equal(t, "s1", batch.SiteID)
	assert.Equal(t, weekkey.Key("2024-W01"), batch.FromWeekKey)
	assert.Equal(t, weekkey.Key("2024-W02"), batch.ToWeekKey)
	assert.Equal(t, "admin-9", batch.AdvancedBy)
	require.Len(t, batch.Clones, 2)

	first := batch.Clones[0]
	assert.Equal(t, "clone-1", first.ID)
	assert.Equal(t, "t1", first.CarriedFromTaskID)
	assert.Equal(t, 1, first.PendingWeeks)
	assert.Equal(t, weekkey.Key("2024-W02"), first.WeekKey)
	assert.Equal(t, domain.TaskStatusPending, first.Status)
	assert.Equal(t, "Ana", first.AssignedEngineerName)
	assert.Equal(t, now, first.CreatedAt)
	assert.Equal(t, now, first.StatusUpdatedAt)

	second := batch.Clones[1]
	assert.Equal(t, "t2", second.CarriedFromTaskID)
	assert.Equal(t, 3, second.PendingWeeks)
	assert.Equal(t, domain.PriorityHigh, second.Priority)
	assert.Equal(t, "Tuesday", second.DayName)
	assert.Equal(t, domain.CreatedByAdmin, second.CreatedBy)
	assert.Equal(t, "admin-1", second.CreatedByUID)

	// Sources are left untouched.
	assert.Equal(t, weekkey.Key("2024-W01"), tasks[0].WeekKey)
	assert.Equal(t, 2, tasks[0].PendingWeeks)
}

func TestPlanWithNoPendingStillAdvances(t *testing.T) {
	site := domain.Site{ID: "s1", CurrentWeekKey: "2020-W53"}
	planner := Planner{Mode: weekkey.WrapFixed53, NewID: sequentialIDs()}

	batch, err := planner.Plan(site, nil, time.Now(), "u")
	require.NoError(t, err)
	assert.Empty(t, batch.Clones)
	assert.Equal(t, weekkey.Key("2021-W01"), batch.ToWeekKey)
}

func TestPlanRequiresCurrentWeek(t *testing.T) {
	planner := Planner{Mode: weekkey.WrapFixed53, NewID: sequentialIDs()}
	_, err := planner.Plan(domain.Site{ID: "s1"}, nil, time.Now(), "u")
	assert.ErrorIs(t, err, ErrNoCurrentWeek)
}
