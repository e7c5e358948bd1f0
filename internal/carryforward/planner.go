// Package carryforward plans the weekly rollover of a site: which pending
// tasks are cloned into the next week and what the clones look like. It does
// no I/O; committing the plan atomically is the store's job.
package carryforward

import (
	"errors"
	"sort"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

var ErrNoCurrentWeek = errors.New("site has no current week")

// Planner builds carry-forward batches.
type Planner struct {
	Mode  weekkey.WrapMode
	NewID func() string
}

// Plan clones every PENDING task of the site's current week into the next
// week. Tasks from other sites, other weeks or in terminal states are
// ignored, so callers may pass a broader set than strictly needed.
func (p Planner) Plan(site domain.Site, tasks []domain.Task, now time.Time, actorUID string) (domain.CarryForwardBatch, error) {
	if site.CurrentWeekKey == "" {
		return domain.CarryForwardBatch{}, ErrNoCurrentWeek
	}

	now = now.UTC()
	from := site.CurrentWeekKey
	to := weekkey.Next(string(from), now, p.Mode)

	eligible := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.SiteID != site.ID || task.WeekKey != from || task.Status != domain.TaskStatusPending {
			continue
		}
		eligible = append(eligible, task)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	clones := make([]domain.Task, 0, len(eligible))
	for _, task := range eligible {
		clones = append(clones, p.clone(task, to, now))
	}

	return domain.CarryForwardBatch{
		SiteID:      site.ID,
		FromWeekKey: from,
		ToWeekKey:   to,
		Clones:      clones,
		AdvancedAt:  now,
		AdvancedBy:  actorUID,
	}, nil
}

func (p Planner) clone(source domain.Task, to weekkey.Key, now time.Time) domain.Task {
	return domain.Task{
		ID:                     p.NewID(),
		SiteID:                 source.SiteID,
		Title:                  source.Title,
		Status:                 domain.TaskStatusPending,
		Priority:               source.Priority,
		WeekKey:                to,
		DayName:                source.DayName,
		ExpectedCompletionDate: source.ExpectedCompletionDate,
		Notes:                  source.Notes,
		PendingWeeks:           source.PendingWeeks + 1,
		CarriedFromTaskID:      source.ID,
		AssignedEngineerID:     source.AssignedEngineerID,
		AssignedEngineerName:   source.AssignedEngineerName,
		CreatedBy:              source.CreatedBy,
		CreatedByUID:           source.CreatedByUID,
		CreatedByName:          source.CreatedByName,
		CreatedAt:              now,
		UpdatedAt:              now,
		StatusUpdatedAt:        now,
	}
}
