package report

import (
	"sort"
	"strings"

	"github.com/iago/obra-back/internal/domain"
)

type SortMode string

const (
	SortMostPending    SortMode = "MOST_PENDING"
	SortMostOverdue    SortMode = "MOST_OVERDUE"
	SortBestCompletion SortMode = "BEST_COMPLETION"
)

// ParseSortMode accepts the canonical names case-insensitively and defaults
// to SortMostPending.
func ParseSortMode(value string) SortMode {
	switch SortMode(strings.ToUpper(strings.TrimSpace(value))) {
	case SortMostOverdue:
		return SortMostOverdue
	case SortBestCompletion:
		return SortBestCompletion
	default:
		return SortMostPending
	}
}

type EngineerRow struct {
	EngineerID     string  `json:"engineer_id"`
	Name           string  `json:"name"`
	Sites          int     `json:"sites"`
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Done           int     `json:"done"`
	Cancelled      int     `json:"cancelled"`
	Overdue        int     `json:"overdue"`
	Carried        int     `json:"carried"`
	CompletionRate float64 `json:"completion_rate"`
}

// SummarizeByEngineer groups sites by assigned engineer and folds each task
// into the group of its site's engineer.
func SummarizeByEngineer(sites []domain.Site, tasks []domain.Task, mode SortMode) []EngineerRow {
	groups := make(map[string]*EngineerRow)
	order := make([]string, 0)
	group := func(id, name string) *EngineerRow {
		row, ok := groups[id]
		if !ok {
			row = &EngineerRow{EngineerID: id}
			groups[id] = row
			order = append(order, id)
		}
		if row.Name == "" && name != "" {
			row.Name = name
		}
		return row
	}

	index := IndexSites(sites)
	for _, site := range sites {
		group(engineerKey(site.AssignedEngineerID), site.AssignedEngineerName).Sites++
	}

	for _, task := range tasks {
		site, ok := index.Lookup(task.SiteID)
		if !ok {
			continue
		}
		row := group(engineerKey(site.AssignedEngineerID), site.AssignedEngineerName)
		row.Total++
		switch task.Status {
		case domain.TaskStatusPending:
			row.Pending++
		case domain.TaskStatusDone:
			row.Done++
		case domain.TaskStatusCancelled:
			row.Cancelled++
		}
		if IsOverdue(task, site) {
			row.Overdue++
		}
		if task.PendingWeeks >= 1 {
			row.Carried++
		}
	}

	rows := make([]EngineerRow, 0, len(order))
	for _, id := range order {
		row := groups[id]
		row.CompletionRate = completionRate(row.Done, row.Total)
		if row.Name == "" && id == UnknownEngineer {
			row.Name = "Unassigned"
		}
		rows = append(rows, *row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch mode {
		case SortMostOverdue:
			if a.Overdue != b.Overdue {
				return a.Overdue > b.Overdue
			}
		case SortBestCompletion:
			if a.CompletionRate != b.CompletionRate {
				return a.CompletionRate > b.CompletionRate
			}
		default:
			if a.Pending != b.Pending {
				return a.Pending > b.Pending
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return rows
}

func EngineerRowFields(row EngineerRow) []string {
	return []string{row.Name, row.EngineerID}
}

func completionRate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
