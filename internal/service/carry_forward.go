package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iago/obra-back/internal/audit"
	"github.com/iago/obra-back/internal/carryforward"
	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/metrics"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/weekkey"
)

type CarryForwardRequest struct {
	SiteID string
	// ExpectedWeekKey, when set, must equal the site's current week or the
	// call fails with repository.ErrConflict before anything is planned.
	ExpectedWeekKey weekkey.Key
	Actor           domain.Actor
}

// CarryForwardService advances a site to its next week and clones the
// current week's pending tasks into it.
type CarryForwardService struct {
	store   repository.Store
	planner carryforward.Planner
	cache   Invalidator
	audit   *audit.Logger
	now     Clock
}

func NewCarryForwardService(
	store repository.Store,
	mode weekkey.WrapMode,
	cache Invalidator,
	auditLog *audit.Logger,
	clock Clock,
) *CarryForwardService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if clock == nil {
		clock = SystemClock(nil)
	}
	return &CarryForwardService{
		store:   store,
		planner: carryforward.Planner{Mode: mode, NewID: newID},
		cache:   cache,
		audit:   auditLog,
		now:     clock,
	}
}

// CarryForward is all-or-nothing: the clones and the new site week are one
// store write. Store errors are returned as is and never retried here.
func (s *CarryForwardService) CarryForward(ctx context.Context, request CarryForwardRequest) (domain.CarryForwardResult, error) {
	result, err := s.carryForward(ctx, request)
	metrics.RecordCarryForward(outcomeOf(err), result.CarriedCount)

	event := audit.Event{
		Action:   "carry_forward",
		ActorUID: request.Actor.UID,
		Role:     string(request.Actor.Role),
		Subject:  request.SiteID,
	}
	if err != nil {
		s.audit.Failure(event, err)
		return domain.CarryForwardResult{}, err
	}
	event.Details = map[string]any{"from": string(result.From), "to": string(result.To), "carried_count": result.CarriedCount}
	s.audit.Record(event)
	s.cache.Invalidate()
	return result, nil
}

func (s *CarryForwardService) carryForward(ctx context.Context, request CarryForwardRequest) (domain.CarryForwardResult, error) {
	site, err := s.store.GetSite(ctx, request.SiteID)
	if err != nil {
		return domain.CarryForwardResult{}, err
	}
	if !canWriteSite(request.Actor, *site) {
		return domain.CarryForwardResult{}, ErrForbidden
	}
	if site.CurrentWeekKey == "" {
		return domain.CarryForwardResult{}, fmt.Errorf("%w: site %s has no current week", ErrInvalidState, site.ID)
	}
	if request.ExpectedWeekKey != "" && request.ExpectedWeekKey != site.CurrentWeekKey {
		return domain.CarryForwardResult{}, fmt.Errorf(
			"site %s is on %s, expected %s: %w",
			site.ID, site.CurrentWeekKey, request.ExpectedWeekKey, repository.ErrConflict,
		)
	}

	pending, err := s.store.ListTasks(ctx, domain.TaskFilter{
		SiteID:  site.ID,
		WeekKey: site.CurrentWeekKey,
		Status:  domain.TaskStatusPending,
	})
	if err != nil {
		return domain.CarryForwardResult{}, err
	}

	batch, err := s.planner.Plan(*site, pending, s.now(), request.Actor.UID)
	if err != nil {
		if errors.Is(err, carryforward.ErrNoCurrentWeek) {
			return domain.CarryForwardResult{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return domain.CarryForwardResult{}, err
	}
	if err := s.store.CommitCarryForward(ctx, batch); err != nil {
		return domain.CarryForwardResult{}, err
	}

	return domain.CarryForwardResult{
		SiteID:       site.ID,
		From:         batch.FromWeekKey,
		To:           batch.ToWeekKey,
		CarriedCount: len(batch.Clones),
	}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repository.ErrConflict):
		return "conflict"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
