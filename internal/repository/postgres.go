package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (r *PostgresStore) Close() {
	r.pool.Close()
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const siteColumns = `id, name, location, assigned_engineer_id, assigned_engineer_name, current_week_key,
	is_active, week_advanced_at, week_advanced_by, created_at, updated_at`

func scanSite(row rowScanner) (*domain.Site, error) {
	var (
		site    domain.Site
		weekKey string
	)
	err := row.Scan(
		&site.ID,
		&site.Name,
		&site.Location,
		&site.AssignedEngineerID,
		&site.AssignedEngineerName,
		&weekKey,
		&site.IsActive,
		&site.WeekAdvancedAt,
		&site.WeekAdvancedBy,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	site.CurrentWeekKey = weekkey.Key(weekKey)
	return &site, nil
}

func (r *PostgresStore) CreateSite(ctx context.Context, site *domain.Site) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		site.ID,
		site.Name,
		site.Location,
		site.AssignedEngineerID,
		site.AssignedEngineerName,
		string(site.CurrentWeekKey),
		site.IsActive,
		site.WeekAdvancedAt,
		site.WeekAdvancedBy,
		site.CreatedAt,
		site.UpdatedAt,
	)
	if err != nil {
		return translateWriteError("insert site", err)
	}
	return nil
}

func (r *PostgresStore) UpdateSite(ctx context.Context, site *domain.Site) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE sites
		SET name = $2,
			location = $3,
			assigned_engineer_id = $4,
			assigned_engineer_name = $5,
			is_active = $6,
			updated_at = $7
		WHERE id = $1
	`, site.ID, site.Name, site.Location, site.AssignedEngineerID, site.AssignedEngineerName, site.IsActive, site.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	site, err := scanSite(r.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, siteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query site: %w", err)
	}
	return site, nil
}

func (r *PostgresStore) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	sites := make([]domain.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sites: %w", rows.Err())
	}
	return sites, nil
}

const taskColumns = `id, site_id, title, status, priority, week_key, day_name, expected_completion_date, notes,
	pending_weeks, carried_from_task_id, assigned_engineer_id, assigned_engineer_name,
	created_by, created_by_uid, created_by_name, created_at, updated_at, status_updated_at`

const insertTaskSQL = `INSERT INTO tasks (` + taskColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

func taskArgs(task *domain.Task) []any {
	return []any{
		task.ID,
		task.SiteID,
		task.Title,
		string(task.Status),
		string(task.Priority),
		string(task.WeekKey),
		task.DayName,
		task.ExpectedCompletionDate,
		task.Notes,
		task.PendingWeeks,
		task.CarriedFromTaskID,
		task.AssignedEngineerID,
		task.AssignedEngineerName,
		string(task.CreatedBy),
		task.CreatedByUID,
		task.CreatedByName,
		task.CreatedAt,
		task.UpdatedAt,
		task.StatusUpdatedAt,
	}
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task      domain.Task
		status    string
		priority  string
		weekKey   string
		createdBy string
	)
	err := row.Scan(
		&task.ID,
		&task.SiteID,
		&task.Title,
		&status,
		&priority,
		&weekKey,
		&task.DayName,
		&task.ExpectedCompletionDate,
		&task.Notes,
		&task.PendingWeeks,
		&task.CarriedFromTaskID,
		&task.AssignedEngineerID,
		&task.AssignedEngineerName,
		&createdBy,
		&task.CreatedByUID,
		&task.CreatedByName,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StatusUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	task.Priority = domain.Priority(priority)
	task.WeekKey = weekkey.Key(weekKey)
	task.CreatedBy = domain.Provenance(createdBy)
	return &task, nil
}

func (r *PostgresStore) CreateTask(ctx context.Context, task *domain.Task) error {
	if _, err := r.pool.Exec(ctx, insertTaskSQL, taskArgs(task)...); err != nil {
		return translateWriteError("insert task", err)
	}
	return nil
}

func (r *PostgresStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

func (r *PostgresStore) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	where, args := buildTaskFilters(filter)
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate tasks: %w", rows.Err())
	}
	return tasks, nil
}

func buildTaskFilters(filter domain.TaskFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if siteID := strings.TrimSpace(filter.SiteID); siteID != "" {
		args = append(args, siteID)
		clauses = append(clauses, fmt.Sprintf("site_id = $%d", len(args)))
	}
	if filter.WeekKey != "" {
		args = append(args, string(filter.WeekKey))
		clauses = append(clauses, fmt.Sprintf("week_key = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PostgresStore) UpdateTaskStatus(
	ctx context.Context,
	taskID string,
	status domain.TaskStatus,
	at time.Time,
) (*domain.Task, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = $2, status_updated_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING `+taskColumns,
		taskID, string(status), at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task status: %w", err)
	}
	return task, nil
}

func (r *PostgresStore) CommitCarryForward(ctx context.Context, batch domain.CarryForwardBatch) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		command, err := tx.Exec(ctx, `
			UPDATE sites
			SET current_week_key = $3,
				week_advanced_at = $4,
				week_advanced_by = $5,
				updated_at = $4
			WHERE id = $1 AND current_week_key = $2
		`, batch.SiteID, string(batch.FromWeekKey), string(batch.ToWeekKey), batch.AdvancedAt, batch.AdvancedBy)
		if err != nil {
			return fmt.Errorf("advance site week: %w", err)
		}
		if command.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, batch.SiteID).Scan(&exists); err != nil {
				return fmt.Errorf("check site: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		if len(batch.Clones) == 0 {
			return nil
		}

		queued := &pgx.Batch{}
		for i := range batch.Clones {
			queued.Queue(insertTaskSQL, taskArgs(&batch.Clones[i])...)
		}
		results := tx.SendBatch(ctx, queued)
		for range batch.Clones {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return translateWriteError("insert carried task", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close carry-forward batch: %w", err)
		}
		return nil
	})
}

func (r *PostgresStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return translateWriteError("insert user", err)
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

func (r *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, created_at, updated_at FROM users WHERE id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func (r *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, role, created_at, updated_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate users: %w", rows.Err())
	}
	return users, nil
}

func (r *PostgresStore) RenameUser(ctx context.Context, userID, name string, at time.Time) (domain.RenameResult, error) {
	result := domain.RenameResult{UserID: userID, Name: name}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		command, err := tx.Exec(ctx, `UPDATE users SET name = $2, updated_at = $3 WHERE id = $1`, userID, name, at)
		if err != nil {
			return fmt.Errorf("rename user: %w", err)
		}
		if command.RowsAffected() == 0 {
			return ErrNotFound
		}

		command, err = tx.Exec(ctx, `
			UPDATE sites SET assigned_engineer_name = $2, updated_at = $3 WHERE assigned_engineer_id = $1
		`, userID, name, at)
		if err != nil {
			return fmt.Errorf("rename site engineer: %w", err)
		}
		result.SitesUpdated = int(command.RowsAffected())

		command, err = tx.Exec(ctx, `
			UPDATE tasks SET assigned_engineer_name = $2, updated_at = $3 WHERE assigned_engineer_id = $1
		`, userID, name, at)
		if err != nil {
			return fmt.Errorf("rename task engineer: %w", err)
		}
		result.TasksUpdated = int(command.RowsAffected())
		return nil
	})
	if err != nil {
		return domain.RenameResult{}, err
	}
	return result, nil
}

func (r *PostgresStore) UpsertSnapshot(ctx context.Context, snapshot domain.ReportSnapshot) error {
	summary, err := json.Marshal(snapshot.Summary)
	if err != nil {
		return fmt.Errorf("encode snapshot summary: %w", err)
	}
	breakdown, err := json.Marshal(snapshot.EngineerBreakdown)
	if err != nil {
		return fmt.Errorf("encode engineer breakdown: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO report_snapshots (week_key, range_from, range_to, summary, engineer_breakdown, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (week_key) DO UPDATE
		SET range_from = EXCLUDED.range_from,
			range_to = EXCLUDED.range_to,
			summary = EXCLUDED.summary,
			engineer_breakdown = EXCLUDED.engineer_breakdown,
			created_by = EXCLUDED.created_by,
			created_at = EXCLUDED.created_at
	`,
		string(snapshot.WeekKey),
		snapshot.Range.From,
		snapshot.Range.To,
		summary,
		breakdown,
		snapshot.CreatedBy,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `week_key, range_from, range_to, summary, engineer_breakdown, created_by, created_at`

func scanSnapshot(row rowScanner) (*domain.ReportSnapshot, error) {
	var (
		snapshot  domain.ReportSnapshot
		key       string
		summary   []byte
		breakdown []byte
	)
	err := row.Scan(&key, &snapshot.Range.From, &snapshot.Range.To, &summary, &breakdown, &snapshot.CreatedBy, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	snapshot.WeekKey = weekkey.Key(key)
	if err := json.Unmarshal(summary, &snapshot.Summary); err != nil {
		return nil, fmt.Errorf("decode snapshot summary: %w", err)
	}
	if err := json.Unmarshal(breakdown, &snapshot.EngineerBreakdown); err != nil {
		return nil, fmt.Errorf("decode engineer breakdown: %w", err)
	}
	return &snapshot, nil
}

func (r *PostgresStore) GetSnapshot(ctx context.Context, key weekkey.Key) (*domain.ReportSnapshot, error) {
	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM report_snapshots WHERE week_key = $1`, string(key)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *PostgresStore) ListSnapshots(ctx context.Context) ([]domain.ReportSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+snapshotColumns+` FROM report_snapshots ORDER BY week_key DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.ReportSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", rows.Err())
	}
	return snapshots, nil
}

func (r *PostgresStore) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (
			id,
			kind,
			site_id,
			expected_week_key,
			requested_by,
			status,
			result,
			error_message,
			attempts,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		job.ID,
		string(job.Kind),
		job.SiteID,
		string(job.ExpectedWeekKey),
		job.RequestedBy,
		string(job.Status),
		nullableJSON(job.Result),
		job.ErrorMessage,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return translateWriteError("insert job", err)
	}
	return nil
}

func (r *PostgresStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			result = $3,
			error_message = $4,
			attempts = $5,
			updated_at = $6
		WHERE id = $1
	`, job.ID, string(job.Status), nullableJSON(job.Result), job.ErrorMessage, job.Attempts, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var (
		job             domain.Job
		kind            string
		expectedWeekKey string
		status          string
		result          []byte
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, site_id, expected_week_key, requested_by, status, result, error_message, attempts, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&kind,
		&job.SiteID,
		&expectedWeekKey,
		&job.RequestedBy,
		&status,
		&result,
		&job.ErrorMessage,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.ExpectedWeekKey = weekkey.Key(expectedWeekKey)
	job.Status = domain.JobStatus(status)
	job.Result = json.RawMessage(result)
	return &job, nil
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return []byte(value)
}

func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
