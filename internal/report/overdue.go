package report

import (
	"sort"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

type OverdueTask struct {
	domain.Task
	SiteName           string      `json:"site_name"`
	SiteCurrentWeekKey weekkey.Key `json:"site_current_week_key"`
}

// RankOverdueTasks lists overdue tasks, most carried first and, among equals,
// the oldest created first. Tasks whose site cannot be resolved are dropped.
func RankOverdueTasks(tasks []domain.Task, sites SiteIndex) []OverdueTask {
	rows := make([]OverdueTask, 0)
	for _, task := range tasks {
		if task.Status != domain.TaskStatusPending || task.SiteID == "" || task.WeekKey == "" {
			continue
		}
		site, ok := sites.Lookup(task.SiteID)
		if !ok || !IsOverdue(task, site) {
			continue
		}
		rows = append(rows, OverdueTask{
			Task:               task,
			SiteName:           site.Name,
			SiteCurrentWeekKey: site.CurrentWeekKey,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PendingWeeks != rows[j].PendingWeeks {
			return rows[i].PendingWeeks > rows[j].PendingWeeks
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

func OverdueTaskFields(row OverdueTask) []string {
	return []string{row.SiteName, row.AssignedEngineerName, row.Title, string(row.WeekKey)}
}
