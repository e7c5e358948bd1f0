package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iago/obra-back/internal/audit"
	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/weekkey"
)

type CreateSiteInput struct {
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	EngineerID string      `json:"engineer_id"`
	WeekKey    weekkey.Key `json:"week_key"`
}

type CreateTaskInput struct {
	Title                  string          `json:"title"`
	Priority               domain.Priority `json:"priority"`
	DayName                string          `json:"day_name"`
	ExpectedCompletionDate string          `json:"expected_completion_date"`
	Notes                  string          `json:"notes"`
}

type CreateUserInput struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// SitesService owns site, task and user writes outside of carry-forward.
type SitesService struct {
	store repository.Store
	cache Invalidator
	audit *audit.Logger
	now   Clock
	newID func() string
}

func NewSitesService(store repository.Store, cache Invalidator, auditLog *audit.Logger, clock Clock) *SitesService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if clock == nil {
		clock = SystemClock(nil)
	}
	return &SitesService{store: store, cache: cache, audit: auditLog, now: clock, newID: newID}
}

func (s *SitesService) CreateSite(ctx context.Context, actor domain.Actor, input CreateSiteInput) (*domain.Site, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	now := s.now()
	week := input.WeekKey
	if week == "" {
		week = weekkey.Of(now)
	}
	if !weekkey.Valid(string(week)) {
		return nil, fmt.Errorf("%w: week_key must match YYYY-Www", ErrInvalidInput)
	}

	active := true
	site := &domain.Site{
		ID:             s.newID(),
		Name:           name,
		Location:       strings.TrimSpace(input.Location),
		CurrentWeekKey: week,
		IsActive:       &active,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	if input.EngineerID != "" {
		engineer, err := s.lookupEngineer(ctx, input.EngineerID)
		if err != nil {
			return nil, err
		}
		site.AssignedEngineerID = engineer.ID
		site.AssignedEngineerName = engineer.Name
	}

	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	s.cache.Invalidate()
	s.audit.Record(audit.Event{Action: "create_site", ActorUID: actor.UID, Role: string(actor.Role), Subject: site.ID})
	return site, nil
}

// ListSites returns the sites visible to actor, optionally only active ones.
func (s *SitesService) ListSites(ctx context.Context, actor domain.Actor, activeOnly bool) ([]domain.Site, error) {
	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	visible := make([]domain.Site, 0, len(sites))
	for _, site := range sites {
		if !canReadSite(actor, site) {
			continue
		}
		if activeOnly && !site.Active() {
			continue
		}
		visible = append(visible, site)
	}
	return visible, nil
}

func (s *SitesService) GetSite(ctx context.Context, actor domain.Actor, siteID string) (*domain.Site, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !canReadSite(actor, *site) {
		return nil, ErrForbidden
	}
	return site, nil
}

// AssignEngineer points the site at engineerID and caches the display name.
// An empty engineerID clears the assignment.
func (s *SitesService) AssignEngineer(ctx context.Context, actor domain.Actor, siteID, engineerID string) (*domain.Site, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	site.AssignedEngineerID = ""
	site.AssignedEngineerName = ""
	if engineerID = strings.TrimSpace(engineerID); engineerID != "" {
		engineer, err := s.lookupEngineer(ctx, engineerID)
		if err != nil {
			return nil, err
		}
		site.AssignedEngineerID = engineer.ID
		site.AssignedEngineerName = engineer.Name
	}
	site.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("assign engineer: %w", err)
	}
	s.cache.Invalidate()
	s.audit.Record(audit.Event{
		Action:   "assign_engineer",
		ActorUID: actor.UID,
		Role:     string(actor.Role),
		Subject:  site.ID,
		Details:  map[string]any{"engineer_id": site.AssignedEngineerID},
	})
	return site, nil
}

func (s *SitesService) DeactivateSite(ctx context.Context, actor domain.Actor, siteID string) (*domain.Site, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	inactive := false
	site.IsActive = &inactive
	site.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("deactivate site: %w", err)
	}
	s.cache.Invalidate()
	s.audit.Record(audit.Event{Action: "deactivate_site", ActorUID: actor.UID, Role: string(actor.Role), Subject: site.ID})
	return site, nil
}

// CreateTask adds a task to the site's current week. Engineer fields are
// copied from the site at creation time.
func (s *SitesService) CreateTask(ctx context.Context, actor domain.Actor, siteID string, input CreateTaskInput) (*domain.Task, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !canWriteSite(actor, *site) {
		return nil, ErrForbidden
	}
	if !site.Active() {
		return nil, fmt.Errorf("%w: site is inactive", ErrInvalidState)
	}
	if site.CurrentWeekKey == "" {
		return nil, fmt.Errorf("%w: site has no current week", ErrInvalidState)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority must be NORMAL or HIGH", ErrInvalidInput)
	}

	now := s.now().UTC()
	task := &domain.Task{
		ID:                     s.newID(),
		SiteID:                 site.ID,
		Title:                  title,
		Status:                 domain.TaskStatusPending,
		Priority:               priority,
		WeekKey:                site.CurrentWeekKey,
		DayName:                strings.TrimSpace(input.DayName),
		ExpectedCompletionDate: strings.TrimSpace(input.ExpectedCompletionDate),
		Notes:                  input.Notes,
		AssignedEngineerID:     site.AssignedEngineerID,
		AssignedEngineerName:   site.AssignedEngineerName,
		CreatedBy:              provenanceOf(actor),
		CreatedByUID:           actor.UID,
		CreatedByName:          actor.Name,
		CreatedAt:              now,
		UpdatedAt:              now,
		StatusUpdatedAt:        now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.cache.Invalidate()
	return task, nil
}

// ListTasks returns a site's tasks for weekKey, or for its current week when
// weekKey is empty.
func (s *SitesService) ListTasks(ctx context.Context, actor domain.Actor, siteID string, week weekkey.Key) ([]domain.Task, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !canReadSite(actor, *site) {
		return nil, ErrForbidden
	}
	if week == "" {
		week = site.CurrentWeekKey
	} else if !weekkey.Valid(string(week)) {
		return nil, fmt.Errorf("%w: week_key must match YYYY-Www", ErrInvalidInput)
	}
	return s.store.ListTasks(ctx, domain.TaskFilter{SiteID: site.ID, WeekKey: week})
}

func (s *SitesService) UpdateTaskStatus(ctx context.Context, actor domain.Actor, taskID string, status domain.TaskStatus) (*domain.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status must be PENDING, DONE or CANCELLED", ErrInvalidInput)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	site, err := s.store.GetSite(ctx, task.SiteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: task belongs to a missing site", ErrInvalidState)
		}
		return nil, err
	}
	if !canWriteSite(actor, *site) {
		return nil, ErrForbidden
	}

	updated, err := s.store.UpdateTaskStatus(ctx, taskID, status, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	s.cache.Invalidate()
	s.audit.Record(audit.Event{
		Action:   "task_status",
		ActorUID: actor.UID,
		Role:     string(actor.Role),
		Subject:  taskID,
		Details:  map[string]any{"from": string(task.Status), "to": string(status)},
	})
	return updated, nil
}

func (s *SitesService) SiteSummary(ctx context.Context, actor domain.Actor, siteID string) (*domain.Site, []domain.Task, error) {
	site, err := s.GetSite(ctx, actor, siteID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := s.store.ListTasks(ctx, domain.TaskFilter{SiteID: site.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("list site tasks: %w", err)
	}
	return site, tasks, nil
}

func (s *SitesService) CreateUser(ctx context.Context, actor domain.Actor, input CreateUserInput) (*domain.User, error) {
	if !actor.Is(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("%w: role must be ADMIN, ENGINEER or ACCOUNTANT", ErrInvalidInput)
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = s.newID()
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:        id,
		Name:      name,
		Email:     strings.TrimSpace(input.Email),
		Role:      input.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *SitesService) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if !actor.Is(domain.RoleAdmin, domain.RoleAccountant) {
		return nil, ErrForbidden
	}
	return s.store.ListUsers(ctx)
}

// RenameUser renames the user and every cached engineer name in one store
// write.
func (s *SitesService) RenameUser(ctx context.Context, actor domain.Actor, userID, name string) (domain.RenameResult, error) {
	if !actor.Is(domain.RoleAdmin) {
		return domain.RenameResult{}, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RenameResult{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	result, err := s.store.RenameUser(ctx, userID, name, s.now().UTC())
	event := audit.Event{Action: "rename_user", ActorUID: actor.UID, Role: string(actor.Role), Subject: userID}
	if err != nil {
		s.audit.Failure(event, err)
		return domain.RenameResult{}, err
	}
	s.cache.Invalidate()
	event.Details = map[string]any{"sites_updated": result.SitesUpdated, "tasks_updated": result.TasksUpdated}
	s.audit.Record(event)
	return result, nil
}

func (s *SitesService) lookupEngineer(ctx context.Context, engineerID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, engineerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: engineer %s does not exist", ErrInvalidInput, engineerID)
		}
		return nil, fmt.Errorf("load engineer: %w", err)
	}
	if user.Role != domain.RoleEngineer {
		return nil, fmt.Errorf("%w: user %s is not an engineer", ErrInvalidInput, engineerID)
	}
	return user, nil
}
