package domain

import (
	"time"

	"github.com/iago/obra-back/internal/weekkey"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusDone      TaskStatus = "DONE"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh
}

// Provenance records which kind of user created a task.
type Provenance string

const (
	CreatedByEngineer Provenance = "ENGINEER"
	CreatedByAdmin    Provenance = "ADMIN"
)

// Task is one line on a site's weekly sheet. CarriedFromTaskID is a plain
// lineage reference to the task it was cloned from.
type Task struct {
	ID                     string      `json:"id"`
	SiteID                 string      `json:"site_id"`
	Title                  string      `json:"title"`
	Status                 TaskStatus  `json:"status"`
	Priority               Priority    `json:"priority"`
	WeekKey                weekkey.Key `json:"week_key"`
	DayName                string      `json:"day_name,omitempty"`
	ExpectedCompletionDate string      `json:"expected_completion_date,omitempty"`
	Notes                  string      `json:"notes,omitempty"`
	PendingWeeks           int         `json:"pending_weeks"`
	CarriedFromTaskID      string      `json:"carried_from_task_id,omitempty"`
	AssignedEngineerID     string      `json:"assigned_engineer_id,omitempty"`
	AssignedEngineerName   string      `json:"assigned_engineer_name,omitempty"`
	CreatedBy              Provenance  `json:"created_by"`
	CreatedByUID           string      `json:"created_by_uid,omitempty"`
	CreatedByName          string      `json:"created_by_name,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
	StatusUpdatedAt        time.Time   `json:"status_updated_at"`
}

// TaskFilter narrows task queries. Empty fields match everything.
type TaskFilter struct {
	SiteID  string
	WeekKey weekkey.Key
	Status  TaskStatus
}

func (f TaskFilter) Match(task Task) bool {
	if f.SiteID != "" && task.SiteID != f.SiteID {
		return false
	}
	if f.WeekKey != "" && task.WeekKey != f.WeekKey {
		return false
	}
	if f.Status != "" && task.Status != f.Status {
		return false
	}
	return true
}
