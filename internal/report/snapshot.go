package report

import (
	"sort"
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

// BuildWeeklySnapshot freezes the full-history report as of now. The range
// is now's Monday–Sunday calendar week in now's location.
func BuildWeeklySnapshot(sites []domain.Site, tasks []domain.Task, actorID string, now time.Time) domain.ReportSnapshot {
	from, to := weekkey.CalendarRange(now)
	index := IndexSites(sites)

	summary := domain.SnapshotSummary{
		TotalSites: len(sites),
		TotalTasks: len(tasks),
	}

	breakdown := make(map[string]*domain.EngineerBreakdown)
	row := func(id, name string) *domain.EngineerBreakdown {
		id = engineerKey(id)
		entry, ok := breakdown[id]
		if !ok {
			entry = &domain.EngineerBreakdown{EngineerUID: id}
			breakdown[id] = entry
		}
		if entry.Name == "" && name != "" {
			entry.Name = name
		}
		return entry
	}

	for _, site := range sites {
		row(site.AssignedEngineerID, site.AssignedEngineerName)
	}

	for _, task := range tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			summary.Pending++
		case domain.TaskStatusDone:
			summary.Done++
		case domain.TaskStatusCancelled:
			summary.Cancelled++
		}

		// Unassigned tasks add no row of their own; their counts follow the site.
		if strings.TrimSpace(task.AssignedEngineerID) != "" {
			row(task.AssignedEngineerID, task.AssignedEngineerName)
		}

		site, ok := index.Lookup(task.SiteID)
		if !ok {
			continue
		}
		if IsOverdue(task, site) {
			summary.Overdue++
		}
		entry := row(site.AssignedEngineerID, site.AssignedEngineerName)
		switch task.Status {
		case domain.TaskStatusPending:
			entry.Pending++
		case domain.TaskStatusDone:
			entry.Done++
		case domain.TaskStatusCancelled:
			entry.Cancelled++
		}
	}

	rows := make([]domain.EngineerBreakdown, 0, len(breakdown))
	for _, entry := range breakdown {
		if entry.Name == "" && entry.EngineerUID == UnknownEngineer {
			entry.Name = "Unassigned"
		}
		rows = append(rows, *entry)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Pending != rows[j].Pending {
			return rows[i].Pending > rows[j].Pending
		}
		if a, b := strings.ToLower(rows[i].Name), strings.ToLower(rows[j].Name); a != b {
			return a < b
		}
		return rows[i].EngineerUID < rows[j].EngineerUID
	})

	return domain.ReportSnapshot{
		WeekKey:           weekkey.Of(now),
		Range:             domain.DateRange{From: from, To: to},
		Summary:           summary,
		EngineerBreakdown: rows,
		CreatedBy:         actorID,
		CreatedAt:         now.UTC(),
	}
}
