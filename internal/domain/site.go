package domain

import (
	"time"

	"github.com/iago/obra-back/internal/weekkey"
)

// Site owns a weekly stream of tasks. CurrentWeekKey only moves forward, and
// only through carry-forward.
type Site struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Location             string      `json:"location,omitempty"`
	AssignedEngineerID   string      `json:"assigned_engineer_id,omitempty"`
	AssignedEngineerName string      `json:"assigned_engineer_name,omitempty"`
	CurrentWeekKey       weekkey.Key `json:"current_week_key"`
	IsActive             *bool       `json:"is_active,omitempty"`
	WeekAdvancedAt       *time.Time  `json:"week_advanced_at,omitempty"`
	WeekAdvancedBy       string      `json:"week_advanced_by,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Active treats a missing flag as true.
func (s Site) Active() bool {
	return s.IsActive == nil || *s.IsActive
}

// CarryForwardBatch is everything one carry-forward writes. Stores must apply
// it all-or-nothing and only while the site is still on FromWeekKey.
type CarryForwardBatch struct {
	SiteID      string
	FromWeekKey weekkey.Key
	ToWeekKey   weekkey.Key
	Clones      []Task
	AdvancedAt  time.Time
	AdvancedBy  string
}

type CarryForwardResult struct {
	SiteID       string      `json:"site_id"`
	From         weekkey.Key `json:"from"`
	To           weekkey.Key `json:"to"`
	CarriedCount int         `json:"carried_count"`
}
