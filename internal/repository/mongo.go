package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection     = "users"
	sitesCollection     = "sites"
	tasksCollection     = "tasks"
	snapshotsCollection = "report_snapshots"
	jobsCollection      = "jobs"
)

// MongoStore is the document-database backend. Multi-document writes run in
// a session transaction, which requires a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &MongoStore{client: client, db: client.Database(database)}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (r *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.client.Disconnect(ctx)
}

func (r *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		tasksCollection: {
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "week_key", Value: 1}}},
			{Keys: bson.D{{Key: "assigned_engineer_id", Value: 1}}},
		},
		sitesCollection: {
			{Keys: bson.D{{Key: "assigned_engineer_id", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := r.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

// inTransaction runs fn inside a session transaction. Transient errors are
// returned to the caller rather than retried here.
func (r *MongoStore) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer session.EndSession(context.Background())

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		if err := fn(sc); err != nil {
			_ = sc.AbortTransaction(context.Background())
			return err
		}
		if err := sc.CommitTransaction(sc); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

type siteDocument struct {
	ID                   string     `bson:"_id"`
	Name                 string     `bson:"name"`
	Location             string     `bson:"location,omitempty"`
	AssignedEngineerID   string     `bson:"assigned_engineer_id,omitempty"`
	AssignedEngineerName string     `bson:"assigned_engineer_name,omitempty"`
	CurrentWeekKey       string     `bson:"current_week_key"`
	IsActive             *bool      `bson:"is_active,omitempty"`
	WeekAdvancedAt       *time.Time `bson:"week_advanced_at,omitempty"`
	WeekAdvancedBy       string     `bson:"week_advanced_by,omitempty"`
	CreatedAt            time.Time  `bson:"created_at"`
	UpdatedAt            time.Time  `bson:"updated_at"`
}

func toSiteDocument(site *domain.Site) siteDocument {
	return siteDocument{
		ID:                   site.ID,
		Name:                 site.Name,
		Location:             site.Location,
		AssignedEngineerID:   site.AssignedEngineerID,
		AssignedEngineerName: site.AssignedEngineerName,
		CurrentWeekKey:       string(site.CurrentWeekKey),
		IsActive:             site.IsActive,
		WeekAdvancedAt:       site.WeekAdvancedAt,
		WeekAdvancedBy:       site.WeekAdvancedBy,
		CreatedAt:            site.CreatedAt,
		UpdatedAt:            site.UpdatedAt,
	}
}

func (d siteDocument) toDomain() domain.Site {
	return domain.Site{
		ID:                   d.ID,
		Name:                 d.Name,
		Location:             d.Location,
		AssignedEngineerID:   d.AssignedEngineerID,
		AssignedEngineerName: d.AssignedEngineerName,
		CurrentWeekKey:       weekkey.Key(d.CurrentWeekKey),
		IsActive:             d.IsActive,
		WeekAdvancedAt:       d.WeekAdvancedAt,
		WeekAdvancedBy:       d.WeekAdvancedBy,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type taskDocument struct {
	ID                     string    `bson:"_id"`
	SiteID                 string    `bson:"site_id"`
	Title                  string    `bson:"title"`
	Status                 string    `bson:"status"`
	Priority               string    `bson:"priority"`
	WeekKey                string    `bson:"week_key"`
	DayName                string    `bson:"day_name,omitempty"`
	ExpectedCompletionDate string    `bson:"expected_completion_date,omitempty"`
	Notes                  string    `bson:"notes,omitempty"`
	PendingWeeks           int       `bson:"pending_weeks"`
	CarriedFromTaskID      string    `bson:"carried_from_task_id,omitempty"`
	AssignedEngineerID     string    `bson:"assigned_engineer_id,omitempty"`
	AssignedEngineerName   string    `bson:"assigned_engineer_name,omitempty"`
	CreatedBy              string    `bson:"created_by"`
	CreatedByUID           string    `bson:"created_by_uid,omitempty"`
	CreatedByName          string    `bson:"created_by_name,omitempty"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
	StatusUpdatedAt        time.Time `bson:"status_updated_at"`
}

func toTaskDocument(task *domain.Task) taskDocument {
	return taskDocument{
		ID:                     task.ID,
		SiteID:                 task.SiteID,
		Title:                  task.Title,
		Status:                 string(task.Status),
		Priority:               string(task.Priority),
		WeekKey:                string(task.WeekKey),
		DayName:                task.DayName,
		ExpectedCompletionDate: task.ExpectedCompletionDate,
		Notes:                  task.Notes,
		PendingWeeks:           task.PendingWeeks,
		CarriedFromTaskID:      task.CarriedFromTaskID,
		AssignedEngineerID:     task.AssignedEngineerID,
		AssignedEngineerName:   task.AssignedEngineerName,
		CreatedBy:              string(task.CreatedBy),
		CreatedByUID:           task.CreatedByUID,
		CreatedByName:          task.CreatedByName,
		CreatedAt:              task.CreatedAt,
		UpdatedAt:              task.UpdatedAt,
		StatusUpdatedAt:        task.StatusUpdatedAt,
	}
}

func (d taskDocument) toDomain() domain.Task {
	return domain.Task{
		ID:                     d.ID,
		SiteID:                 d.SiteID,
		Title:                  d.Title,
		Status:                 domain.TaskStatus(d.Status),
		Priority:               domain.Priority(d.Priority),
		WeekKey:                weekkey.Key(d.WeekKey),
		DayName:                d.DayName,
		ExpectedCompletionDate: d.ExpectedCompletionDate,
		Notes:                  d.Notes,
		PendingWeeks:           d.PendingWeeks,
		CarriedFromTaskID:      d.CarriedFromTaskID,
		AssignedEngineerID:     d.AssignedEngineerID,
		AssignedEngineerName:   d.AssignedEngineerName,
		CreatedBy:              domain.Provenance(d.CreatedBy),
		CreatedByUID:           d.CreatedByUID,
		CreatedByName:          d.CreatedByName,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
		StatusUpdatedAt:        d.StatusUpdatedAt,
	}
}

type userDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email,omitempty"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d userDocument) toDomain() domain.User {
	return domain.User{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		Role:      domain.Role(d.Role),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type snapshotDocument struct {
	WeekKey           string                     `bson:"_id"`
	Range             domain.DateRange           `bson:"range"`
	Summary           domain.SnapshotSummary     `bson:"summary"`
	EngineerBreakdown []domain.EngineerBreakdown `bson:"engineer_breakdown"`
	CreatedBy         string                     `bson:"created_by"`
	CreatedAt         time.Time                  `bson:"created_at"`
}

func (d snapshotDocument) toDomain() domain.ReportSnapshot {
	return domain.ReportSnapshot{
		WeekKey:           weekkey.Key(d.WeekKey),
		Range:             d.Range,
		Summary:           d.Summary,
		EngineerBreakdown: d.EngineerBreakdown,
		CreatedBy:         d.CreatedBy,
		CreatedAt:         d.CreatedAt,
	}
}

type jobDocument struct {
	ID              string    `bson:"_id"`
	Kind            string    `bson:"kind"`
	SiteID          string    `bson:"site_id"`
	ExpectedWeekKey string    `bson:"expected_week_key"`
	RequestedBy     string    `bson:"requested_by"`
	Status          string    `bson:"status"`
	Result          string    `bson:"result,omitempty"`
	ErrorMessage    string    `bson:"error_message,omitempty"`
	Attempts        int       `bson:"attempts"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toJobDocument(job *domain.Job) jobDocument {
	return jobDocument{
		ID:              job.ID,
		Kind:            string(job.Kind),
		SiteID:          job.SiteID,
		ExpectedWeekKey: string(job.ExpectedWeekKey),
		RequestedBy:     job.RequestedBy,
		Status:          string(job.Status),
		Result:          string(job.Result),
		ErrorMessage:    job.ErrorMessage,
		Attempts:        job.Attempts,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func (d jobDocument) toDomain() domain.Job {
	job := domain.Job{
		ID:              d.ID,
		Kind:            domain.JobKind(d.Kind),
		SiteID:          d.SiteID,
		ExpectedWeekKey: weekkey.Key(d.ExpectedWeekKey),
		RequestedBy:     d.RequestedBy,
		Status:          domain.JobStatus(d.Status),
		ErrorMessage:    d.ErrorMessage,
		Attempts:        d.Attempts,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.Result != "" {
		job.Result = json.RawMessage(d.Result)
	}
	return job
}

func (r *MongoStore) CreateSite(ctx context.Context, site *domain.Site) error {
	if _, err := r.db.Collection(sitesCollection).InsertOne(ctx, toSiteDocument(site)); err != nil {
		return translateMongoWriteError("insert site", err)
	}
	return nil
}

func (r *MongoStore) UpdateSite(ctx context.Context, site *domain.Site) error {
	set := bson.M{
		"name":                   site.Name,
		"location":               site.Location,
		"assigned_engineer_id":   site.AssignedEngineerID,
		"assigned_engineer_name": site.AssignedEngineerName,
		"updated_at":             site.UpdatedAt,
	}
	if site.IsActive != nil {
		set["is_active"] = *site.IsActive
	}

	result, err := r.db.Collection(sitesCollection).UpdateOne(ctx, bson.M{"_id": site.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoStore) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	var doc siteDocument
	if err := r.db.Collection(sitesCollection).FindOne(ctx, bson.M{"_id": siteID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query site: %w", err)
	}
	site := doc.toDomain()
	return &site, nil
}

func (r *MongoStore) ListSites(ctx context.Context) ([]domain.Site, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(sitesCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	var docs []siteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	sites := make([]domain.Site, 0, len(docs))
	for _, doc := range docs {
		sites = append(sites, doc.toDomain())
	}
	return sites, nil
}

func (r *MongoStore) CreateTask(ctx context.Context, task *domain.Task) error {
	if _, err := r.db.Collection(tasksCollection).InsertOne(ctx, toTaskDocument(task)); err != nil {
		return translateMongoWriteError("insert task", err)
	}
	return nil
}

func (r *MongoStore) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var doc taskDocument
	if err := r.db.Collection(tasksCollection).FindOne(ctx, bson.M{"_id": taskID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	task := doc.toDomain()
	return &task, nil
}

func (r *MongoStore) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	query := bson.M{}
	if filter.SiteID != "" {
		query["site_id"] = filter.SiteID
	}
	if filter.WeekKey != "" {
		query["week_key"] = string(filter.WeekKey)
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(tasksCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, doc.toDomain())
	}
	return tasks, nil
}

func (r *MongoStore) UpdateTaskStatus(
	ctx context.Context,
	taskID string,
	status domain.TaskStatus,
	at time.Time,
) (*domain.Task, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"status": string(status), "status_updated_at": at, "updated_at": at}}

	var doc taskDocument
	err := r.db.Collection(tasksCollection).FindOneAndUpdate(ctx, bson.M{"_id": taskID}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task status: %w", err)
	}
	task := doc.toDomain()
	return &task, nil
}

func (r *MongoStore) CommitCarryForward(ctx context.Context, batch domain.CarryForwardBatch) error {
	return r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		sites := r.db.Collection(sitesCollection)
		result, err := sites.UpdateOne(sc,
			bson.M{"_id": batch.SiteID, "current_week_key": string(batch.FromWeekKey)},
			bson.M{"$set": bson.M{
				"current_week_key": string(batch.ToWeekKey),
				"week_advanced_at": batch.AdvancedAt,
				"week_advanced_by": batch.AdvancedBy,
				"updated_at":       batch.AdvancedAt,
			}},
		)
		if err != nil {
			return fmt.Errorf("advance site week: %w", err)
		}
		if result.MatchedCount == 0 {
			count, err := sites.CountDocuments(sc, bson.M{"_id": batch.SiteID})
			if err != nil {
				return fmt.Errorf("check site: %w", err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		if len(batch.Clones) == 0 {
			return nil
		}
		docs := make([]any, 0, len(batch.Clones))
		for i := range batch.Clones {
			docs = append(docs, toTaskDocument(&batch.Clones[i]))
		}
		if _, err := r.db.Collection(tasksCollection).InsertMany(sc, docs); err != nil {
			return translateMongoWriteError("insert carried tasks", err)
		}
		return nil
	})
}

func (r *MongoStore) CreateUser(ctx context.Context, user *domain.User) error {
	doc := userDocument{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if _, err := r.db.Collection(usersCollection).InsertOne(ctx, doc); err != nil {
		return translateMongoWriteError("insert user", err)
	}
	return nil
}

func (r *MongoStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var doc userDocument
	if err := r.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user := doc.toDomain()
	return &user, nil
}

func (r *MongoStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.db.Collection(usersCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toDomain())
	}
	return users, nil
}

func (r *MongoStore) RenameUser(ctx context.Context, userID, name string, at time.Time) (domain.RenameResult, error) {
	result := domain.RenameResult{UserID: userID, Name: name}
	err := r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		updated, err := r.db.Collection(usersCollection).UpdateOne(sc,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{"name": name, "updated_at": at}},
		)
		if err != nil {
			return fmt.Errorf("rename user: %w", err)
		}
		if updated.MatchedCount == 0 {
			return ErrNotFound
		}

		fanOut := bson.M{"$set": bson.M{"assigned_engineer_name": name, "updated_at": at}}
		sites, err := r.db.Collection(sitesCollection).UpdateMany(sc, bson.M{"assigned_engineer_id": userID}, fanOut)
		if err != nil {
			return fmt.Errorf("rename site engineer: %w", err)
		}
		tasks, err := r.db.Collection(tasksCollection).UpdateMany(sc, bson.M{"assigned_engineer_id": userID}, fanOut)
		if err != nil {
			return fmt.Errorf("rename task engineer: %w", err)
		}
		result.SitesUpdated = int(sites.MatchedCount)
		result.TasksUpdated = int(tasks.MatchedCount)
		return nil
	})
	if err != nil {
		return domain.RenameResult{}, err
	}
	return result, nil
}

func (r *MongoStore) UpsertSnapshot(ctx context.Context, snapshot domain.ReportSnapshot) error {
	doc := snapshotDocument{
		WeekKey:           string(snapshot.WeekKey),
		Range:             snapshot.Range,
		Summary:           snapshot.Summary,
		EngineerBreakdown: snapshot.EngineerBreakdown,
		CreatedBy:         snapshot.CreatedBy,
		CreatedAt:         snapshot.CreatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.db.Collection(snapshotsCollection).ReplaceOne(ctx, bson.M{"_id": doc.WeekKey}, doc, opts); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (r *MongoStore) GetSnapshot(ctx context.Context, key weekkey.Key) (*domain.ReportSnapshot, error) {
	var doc snapshotDocument
	if err := r.db.Collection(snapshotsCollection).FindOne(ctx, bson.M{"_id": string(key)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	snapshot := doc.toDomain()
	return &snapshot, nil
}

func (r *MongoStore) ListSnapshots(ctx context.Context) ([]domain.ReportSnapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := r.db.Collection(snapshotsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var docs []snapshotDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	snapshots := make([]domain.ReportSnapshot, 0, len(docs))
	for _, doc := range docs {
		snapshots = append(snapshots, doc.toDomain())
	}
	return snapshots, nil
}

func (r *MongoStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if _, err := r.db.Collection(jobsCollection).InsertOne(ctx, toJobDocument(job)); err != nil {
		return translateMongoWriteError("insert job", err)
	}
	return nil
}

func (r *MongoStore) UpdateJob(ctx context.Context, job *domain.Job) error {
	result, err := r.db.Collection(jobsCollection).ReplaceOne(ctx, bson.M{"_id": job.ID}, toJobDocument(job))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var doc jobDocument
	if err := r.db.Collection(jobsCollection).FindOne(ctx, bson.M{"_id": jobID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	job := doc.toDomain()
	return &job, nil
}

func translateMongoWriteError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
