package domain

import "time"

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleEngineer   Role = "ENGINEER"
	RoleAccountant Role = "ACCOUNTANT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEngineer, RoleAccountant:
		return true
	}
	return false
}

// User is the source of truth for engineer display names cached on sites
// and tasks.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated caller threaded into write operations.
type Actor struct {
	UID  string
	Name string
	Role Role
}

func (a Actor) Is(roles ...Role) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

// RenameResult reports how many denormalized copies a rename touched.
type RenameResult struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	SitesUpdated int    `json:"sites_updated"`
	TasksUpdated int    `json:"tasks_updated"`
}
