package service

import (
	"context"
	"fmt"

	"github.com/iago/obra-back/internal/audit"
	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/report"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/weekkey"
)

type SnapshotsService struct {
	store repository.Store
	audit *audit.Logger
	now   Clock
}

func NewSnapshotsService(store repository.Store, auditLog *audit.Logger, clock Clock) *SnapshotsService {
	if clock == nil {
		clock = SystemClock(nil)
	}
	return &SnapshotsService{store: store, audit: auditLog, now: clock}
}

// Save freezes the full-history report for the current week. Saving again
// in the same week replaces the stored snapshot.
func (s *SnapshotsService) Save(ctx context.Context, actor domain.Actor) (domain.ReportSnapshot, error) {
	if !actor.Is(domain.RoleAdmin) {
		return domain.ReportSnapshot{}, ErrForbidden
	}

	sites, tasks, err := loadPortfolio(ctx, s.store)
	if err != nil {
		return domain.ReportSnapshot{}, err
	}
	snapshot := report.BuildWeeklySnapshot(sites, tasks, actor.UID, s.now())

	event := audit.Event{Action: "save_snapshot", ActorUID: actor.UID, Role: string(actor.Role), Subject: string(snapshot.WeekKey)}
	if err := s.store.UpsertSnapshot(ctx, snapshot); err != nil {
		s.audit.Failure(event, err)
		return domain.ReportSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.audit.Record(event)
	return snapshot, nil
}

func (s *SnapshotsService) Get(ctx context.Context, actor domain.Actor, key weekkey.Key) (*domain.ReportSnapshot, error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleAccountant) {
		return nil, ErrForbidden
	}
	if !weekkey.Valid(string(key)) {
		return nil, fmt.Errorf("%w: week key must match YYYY-Www", ErrInvalidInput)
	}
	return s.store.GetSnapshot(ctx, key)
}

// List returns stored snapshots, newest week first.
func (s *SnapshotsService) List(ctx context.Context, actor domain.Actor) ([]domain.ReportSnapshot, error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleAccountant) {
		return nil, ErrForbidden
	}
	return s.store.ListSnapshots(ctx)
}
