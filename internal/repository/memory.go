package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

// MemoryStore keeps everything in process for local development and tests.
// A single lock makes every multi-record write atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	sites     map[string]*domain.Site
	tasks     map[string]*domain.Task
	users     map[string]*domain.User
	snapshots map[weekkey.Key]*domain.ReportSnapshot
	jobs      map[string]*domain.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:     make(map[string]*domain.Site),
		tasks:     make(map[string]*domain.Task),
		users:     make(map[string]*domain.User),
		snapshots: make(map[weekkey.Key]*domain.ReportSnapshot),
		jobs:      make(map[string]*domain.Job),
	}
}

func (r *MemoryStore) Close() {}

func (r *MemoryStore) CreateSite(_ context.Context, site *domain.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sites[site.ID]; exists {
		return ErrConflict
	}
	r.sites[site.ID] = cloneSite(site)
	return nil
}

func (r *MemoryStore) UpdateSite(_ context.Context, site *domain.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sites[site.ID]
	if !ok {
		return ErrNotFound
	}
	updated := cloneSite(site)
	updated.CurrentWeekKey = current.CurrentWeekKey
	updated.WeekAdvancedAt = current.WeekAdvancedAt
	updated.WeekAdvancedBy = current.WeekAdvancedBy
	r.sites[site.ID] = updated
	return nil
}

func (r *MemoryStore) GetSite(_ context.Context, siteID string) (*domain.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	site, ok := r.sites[siteID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSite(site), nil
}

func (r *MemoryStore) ListSites(_ context.Context) ([]domain.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sites := make([]domain.Site, 0, len(r.sites))
	for _, site := range r.sites {
		sites = append(sites, *cloneSite(site))
	}
	sort.Slice(sites, func(i, j int) bool {
		return sites[i].CreatedAt.Before(sites[j].CreatedAt)
	})
	return sites, nil
}

func (r *MemoryStore) CreateTask(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return ErrConflict
	}
	clone := *task
	r.tasks[task.ID] = &clone
	return nil
}

func (r *MemoryStore) GetTask(_ context.Context, taskID string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (r *MemoryStore) ListTasks(_ context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]domain.Task, 0)
	for _, task := range r.tasks {
		if filter.Match(*task) {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func (r *MemoryStore) UpdateTaskStatus(
	_ context.Context,
	taskID string,
	status domain.TaskStatus,
	at time.Time,
) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	task.Status = status
	task.StatusUpdatedAt = at
	task.UpdatedAt = at
	clone := *task
	return &clone, nil
}

func (r *MemoryStore) CommitCarryForward(_ context.Context, batch domain.CarryForwardBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	site, ok := r.sites[batch.SiteID]
	if !ok {
		return ErrNotFound
	}
	if site.CurrentWeekKey != batch.FromWeekKey {
		return ErrConflict
	}

	// Validate the whole batch before touching anything.
	seen := make(map[string]struct{}, len(batch.Clones))
	for _, clone := range batch.Clones {
		if _, exists := r.tasks[clone.ID]; exists {
			return ErrConflict
		}
		if _, dup := seen[clone.ID]; dup {
			return ErrConflict
		}
		seen[clone.ID] = struct{}{}
	}

	for _, clone := range batch.Clones {
		task := clone
		r.tasks[task.ID] = &task
	}
	advancedAt := batch.AdvancedAt
	site.CurrentWeekKey = batch.ToWeekKey
	site.WeekAdvancedAt = &advancedAt
	site.WeekAdvancedBy = batch.AdvancedBy
	site.UpdatedAt = advancedAt
	return nil
}

func (r *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return ErrConflict
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Name < users[j].Name
	})
	return users, nil
}

func (r *MemoryStore) RenameUser(_ context.Context, userID, name string, at time.Time) (domain.RenameResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return domain.RenameResult{}, ErrNotFound
	}
	user.Name = name
	user.UpdatedAt = at

	result := domain.RenameResult{UserID: userID, Name: name}
	for _, site := range r.sites {
		if site.AssignedEngineerID == userID {
			site.AssignedEngineerName = name
			site.UpdatedAt = at
			result.SitesUpdated++
		}
	}
	for _, task := range r.tasks {
		if task.AssignedEngineerID == userID {
			task.AssignedEngineerName = name
			task.UpdatedAt = at
			result.TasksUpdated++
		}
	}
	return result, nil
}

func (r *MemoryStore) UpsertSnapshot(_ context.Context, snapshot domain.ReportSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshot.WeekKey] = cloneSnapshot(&snapshot)
	return nil
}

func (r *MemoryStore) GetSnapshot(_ context.Context, key weekkey.Key) (*domain.ReportSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.snapshots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSnapshot(snapshot), nil
}

func (r *MemoryStore) ListSnapshots(_ context.Context) ([]domain.ReportSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]domain.ReportSnapshot, 0, len(r.snapshots))
	for _, snapshot := range r.snapshots {
		snapshots = append(snapshots, *cloneSnapshot(snapshot))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].WeekKey > snapshots[j].WeekKey
	})
	return snapshots, nil
}

func (r *MemoryStore) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryStore) UpdateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func cloneSite(site *domain.Site) *domain.Site {
	clone := *site
	if site.IsActive != nil {
		active := *site.IsActive
		clone.IsActive = &active
	}
	if site.WeekAdvancedAt != nil {
		at := *site.WeekAdvancedAt
		clone.WeekAdvancedAt = &at
	}
	return &clone
}

func cloneSnapshot(snapshot *domain.ReportSnapshot) *domain.ReportSnapshot {
	clone := *snapshot
	clone.EngineerBreakdown = append([]domain.EngineerBreakdown(nil), snapshot.EngineerBreakdown...)
	return &clone
}

func cloneJob(job *domain.Job) *domain.Job {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Result = append([]byte(nil), job.Result...)
	return &clone
}
