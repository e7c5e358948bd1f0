// Package report computes dashboard rollups and weekly snapshots from sites
// and tasks that were already fetched. Every function is pure: inputs are
// never mutated and unresolvable references are skipped rather than reported.
package report

import (
	"sort"
	"strings"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

// UnknownEngineer groups sites and tasks without an assigned engineer.
const UnknownEngineer = "UNKNOWN"

// SiteIndex resolves a task's owning site.
type SiteIndex map[string]domain.Site

func IndexSites(sites []domain.Site) SiteIndex {
	index := make(SiteIndex, len(sites))
	for _, site := range sites {
		index[site.ID] = site
	}
	return index
}

func (idx SiteIndex) Lookup(siteID string) (domain.Site, bool) {
	if siteID == "" {
		return domain.Site{}, false
	}
	site, ok := idx[siteID]
	return site, ok
}

// IsOverdue reports whether task is PENDING in a week strictly before the
// site's current week.
func IsOverdue(task domain.Task, site domain.Site) bool {
	return task.Status == domain.TaskStatusPending &&
		task.WeekKey != "" &&
		site.CurrentWeekKey != "" &&
		weekkey.Before(task.WeekKey, site.CurrentWeekKey)
}

type SiteSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Done      int `json:"done"`
	Cancelled int `json:"cancelled"`
	Overdue   int `json:"overdue"`
	Carried   int `json:"carried"`
}

func (s *SiteSummary) add(task domain.Task, site domain.Site) {
	s.Total++
	switch task.Status {
	case domain.TaskStatusPending:
		s.Pending++
	case domain.TaskStatusDone:
		s.Done++
	case domain.TaskStatusCancelled:
		s.Cancelled++
	}
	if IsOverdue(task, site) {
		s.Overdue++
	}
	if task.PendingWeeks >= 1 {
		s.Carried++
	}
}

// SummarizeSite counts the tasks belonging to site.
func SummarizeSite(site domain.Site, tasks []domain.Task) SiteSummary {
	var summary SiteSummary
	for _, task := range tasks {
		if task.SiteID != site.ID {
			continue
		}
		summary.add(task, site)
	}
	return summary
}

type SiteRow struct {
	SiteID         string      `json:"site_id"`
	SiteName       string      `json:"site_name"`
	EngineerID     string      `json:"engineer_id"`
	EngineerName   string      `json:"engineer_name"`
	CurrentWeekKey weekkey.Key `json:"current_week_key"`
	Active         bool        `json:"active"`
	SiteSummary
}

// SummarizeSites returns one row per site ordered by site name.
func SummarizeSites(sites []domain.Site, tasks []domain.Task) []SiteRow {
	index := IndexSites(sites)
	summaries := make(map[string]*SiteSummary, len(sites))
	for _, site := range sites {
		summaries[site.ID] = &SiteSummary{}
	}
	for _, task := range tasks {
		site, ok := index.Lookup(task.SiteID)
		if !ok {
			continue
		}
		summaries[site.ID].add(task, site)
	}

	rows := make([]SiteRow, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, SiteRow{
			SiteID:         site.ID,
			SiteName:       site.Name,
			EngineerID:     engineerKey(site.AssignedEngineerID),
			EngineerName:   site.AssignedEngineerName,
			CurrentWeekKey: site.CurrentWeekKey,
			Active:         site.Active(),
			SiteSummary:    *summaries[site.ID],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].SiteName) < strings.ToLower(rows[j].SiteName)
	})
	return rows
}

// SiteRowFields are the columns free-text search looks at on the site view.
func SiteRowFields(row SiteRow) []string {
	return []string{row.SiteName, row.EngineerName, string(row.CurrentWeekKey)}
}

func engineerKey(id string) string {
	if strings.TrimSpace(id) == "" {
		return UnknownEngineer
	}
	return id
}
