package service

import (
	"context"
	"fmt"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/queue"
	"github.com/iago/obra-back/internal/repository"
)

// RolloversService fans a weekly rollover out as one queued job per site.
type RolloversService struct {
	store    repository.Store
	producer queue.Producer
	now      Clock
	newID    func() string
}

func NewRolloversService(store repository.Store, producer queue.Producer, clock Clock) *RolloversService {
	if clock == nil {
		clock = SystemClock(nil)
	}
	return &RolloversService{store: store, producer: producer, now: clock, newID: newID}
}

// RequestRollover creates a carry-forward job for each listed site, or for
// every active site when siteIDs is empty. Each job pins the site's current
// week so a redelivered message can never advance a site twice.
func (s *RolloversService) RequestRollover(ctx context.Context, actor domain.Actor, siteIDs []string) ([]domain.Job, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}

	sites, err := s.targets(ctx, siteIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	jobs := make([]domain.Job, 0, len(sites))
	messages := make([]domain.QueueMessage, 0, len(sites))
	for _, site := range sites {
		if !site.Active() || site.CurrentWeekKey == "" {
			continue
		}
		job := domain.Job{
			ID:              s.newID(),
			Kind:            domain.JobKindCarryForward,
			SiteID:          site.ID,
			ExpectedWeekKey: site.CurrentWeekKey,
			RequestedBy:     actor.UID,
			Status:          domain.JobStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.CreateJob(ctx, &job); err != nil {
			err = fmt.Errorf("create job for site %s: %w", site.ID, err)
			s.failAll(ctx, jobs, err)
			return nil, err
		}
		jobs = append(jobs, job)
		messages = append(messages, domain.QueueMessage{
			JobID:           job.ID,
			Kind:            job.Kind,
			SiteID:          job.SiteID,
			ExpectedWeekKey: job.ExpectedWeekKey,
			RequestedBy:     job.RequestedBy,
			RequestedAt:     now,
		})
	}

	if err := queue.EnqueueAll(ctx, s.producer, messages); err != nil {
		s.failAll(ctx, jobs, err)
		return nil, fmt.Errorf("enqueue rollover: %w", err)
	}
	return jobs, nil
}

// failAll marks jobs that were created but never enqueued as failed so none
// is left pending forever.
func (s *RolloversService) failAll(ctx context.Context, jobs []domain.Job, cause error) {
	now := s.now().UTC()
	for i := range jobs {
		jobs[i].Status = domain.JobStatusFailed
		jobs[i].ErrorMessage = cause.Error()
		jobs[i].UpdatedAt = now
		_ = s.store.UpdateJob(ctx, &jobs[i])
	}
}

func (s *RolloversService) GetJob(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	return s.store.GetJob(ctx, jobID)
}

func (s *RolloversService) targets(ctx context.Context, siteIDs []string) ([]domain.Site, error) {
	if len(siteIDs) == 0 {
		sites, err := s.store.ListSites(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sites: %w", err)
		}
		return sites, nil
	}

	sites := make([]domain.Site, 0, len(siteIDs))
	for _, id := range siteIDs {
		site, err := s.store.GetSite(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load site %s: %w", id, err)
		}
		sites = append(sites, *site)
	}
	return sites, nil
}
