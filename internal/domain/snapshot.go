package domain

import (
	"time"

	"github.com/iago/obra-back/internal/weekkey"
)

type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type SnapshotSummary struct {
	TotalSites int `json:"total_sites"`
	TotalTasks int `json:"total_tasks"`
	Done       int `json:"done"`
	Pending    int `json:"pending"`
	Cancelled  int `json:"cancelled"`
	Overdue    int `json:"overdue"`
}

type EngineerBreakdown struct {
	EngineerUID string `json:"engineer_uid"`
	Name        string `json:"name"`
	Pending     int    `json:"pending"`
	Done        int    `json:"done"`
	Cancelled   int    `json:"cancelled"`
}

// ReportSnapshot freezes a weekly report. WeekKey identifies when it was
// taken, not any site's progress, and is the upsert key.
type ReportSnapshot struct {
	WeekKey           weekkey.Key         `json:"week_key"`
	Range             DateRange           `json:"range"`
	Summary           SnapshotSummary     `json:"summary"`
	EngineerBreakdown []EngineerBreakdown `json:"engineer_breakdown"`
	CreatedBy         string              `json:"created_by"`
	CreatedAt         time.Time           `json:"created_at"`
}
