package repository

import (
	"context"
	"errors"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrConflict means a guarded write lost a race or a key already exists.
	ErrConflict = errors.New("write conflict")
)

// SitesRepository persists sites. UpdateSite never moves CurrentWeekKey;
// only CommitCarryForward does.
type SitesRepository interface {
	CreateSite(ctx context.Context, site *domain.Site) error
	UpdateSite(ctx context.Context, site *domain.Site) error
	GetSite(ctx context.Context, siteID string) (*domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
}

type TasksRepository interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, at time.Time) (*domain.Task, error)
	// CommitCarryForward inserts every clone and advances the site in one
	// atomic write, only if the site is still on batch.FromWeekKey.
	// Otherwise it returns ErrConflict and writes nothing.
	CommitCarryForward(ctx context.Context, batch domain.CarryForwardBatch) error
}

type UsersRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// RenameUser updates the user and every denormalized engineer name on
	// sites and tasks in one atomic write.
	RenameUser(ctx context.Context, userID, name string, at time.Time) (domain.RenameResult, error)
}

// SnapshotsRepository stores report snapshots keyed by week. Upserting an
// existing week replaces it.
type SnapshotsRepository interface {
	UpsertSnapshot(ctx context.Context, snapshot domain.ReportSnapshot) error
	GetSnapshot(ctx context.Context, key weekkey.Key) (*domain.ReportSnapshot, error)
	ListSnapshots(ctx context.Context) ([]domain.ReportSnapshot, error)
}

// JobsRepository abstracts rollover job persistence.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

type Store interface {
	SitesRepository
	TasksRepository
	UsersRepository
	SnapshotsRepository
	JobsRepository
	Close()
}
