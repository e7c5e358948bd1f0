package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/iago/obra-back/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState means the target exists but cannot accept the operation.
	ErrInvalidState = errors.New("invalid state")
	ErrForbidden    = errors.New("forbidden")
)

// Invalidator drops cached views after a write.
type Invalidator interface {
	Invalidate()
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

// Clock returns the current time in the deployment's site timezone.
type Clock func() time.Time

func SystemClock(location *time.Location) Clock {
	if location == nil {
		location = time.UTC
	}
	return func() time.Time { return time.Now().In(location) }
}

func newID() string {
	return uuid.NewString()
}

// canReadSite: admins and accountants see every site, engineers only their own.
func canReadSite(actor domain.Actor, site domain.Site) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleAccountant:
		return true
	case domain.RoleEngineer:
		return site.AssignedEngineerID != "" && site.AssignedEngineerID == actor.UID
	}
	return false
}

func canWriteSite(actor domain.Actor, site domain.Site) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleEngineer:
		return site.AssignedEngineerID != "" && site.AssignedEngineerID == actor.UID
	}
	return false
}

func provenanceOf(actor domain.Actor) domain.Provenance {
	if actor.Role == domain.RoleAdmin {
		return domain.CreatedByAdmin
	}
	return domain.CreatedByEngineer
}
