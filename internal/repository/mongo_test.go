package repository

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/iago/obra-back/internal/domain"
)

// roundTrip encodes a document the way the driver writes it and decodes it
// back into a fresh value of the same type.
func roundTrip[T any](t *testing.T, doc T) (T, bson.Raw) {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded T
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	return decoded, raw
}

func TestSiteDocumentRoundTrip(t *testing.T) {
	advanced := time.Date(2024, time.March, 4, 7, 30, 0, 0, time.UTC)
	inactive := false
	site := domain.Site{
		ID:                   "site-1",
		Name:                 "Tower",
		Location:             "Lisbon",
		AssignedEngineerID:   "eng-1",
		AssignedEngineerName: "Ana",
		CurrentWeekKey:       "2024-W10",
		IsActive:             &inactive,
		WeekAdvancedAt:       &advanced,
		WeekAdvancedBy:       "admin-1",
		CreatedAt:            time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC),
		UpdatedAt:            advanced,
	}

	decoded, raw := roundTrip(t, toSiteDocument(&site))
	assert.Equal(t, site, decoded.toDomain())
	assert.False(t, decoded.toDomain().Active())

	id, err := raw.LookupErr("_id")
	require.NoError(t, err)
	assert.Equal(t, "site-1", id.StringValue())
}

func TestSiteDocumentWithoutActiveFlagStaysActive(t *testing.T) {
	site := domain.Site{ID: "site-legacy", Name: "Old", CurrentWeekKey: "2023-W40"}

	decoded, raw := roundTrip(t, toSiteDocument(&site))
	_, err := raw.LookupErr("is_active")
	assert.Error(t, err, "nil flag must not be written")
	_, err = raw.LookupErr("week_advanced_at")
	assert.Error(t, err)

	restored := decoded.toDomain()
	assert.Nil(t, restored.IsActive)
	assert.Nil(t, restored.WeekAdvancedAt)
	assert.True(t, restored.Active())
}

func TestTaskDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, time.March, 4, 9, 15, 0, 0, time.UTC)
	task := domain.Task{
		ID:                     "task-2",
		SiteID:                 "site-1",
		Title:                  "Pour slab",
		Status:                 domain.TaskStatusPending,
		Priority:               domain.PriorityHigh,
		WeekKey:                "2024-W10",
		DayName:                "Tuesday",
		ExpectedCompletionDate: "2024-03-05",
		Notes:                  "needs pump truck",
		PendingWeeks:           2,
		CarriedFromTaskID:      "task-1",
		AssignedEngineerID:     "eng-1",
		AssignedEngineerName:   "Ana",
		CreatedBy:              domain.CreatedByEngineer,
		CreatedByUID:           "eng-1",
		CreatedByName:          "Ana",
		CreatedAt:              created,
		UpdatedAt:              created,
		StatusUpdatedAt:        created,
	}

	decoded, raw := roundTrip(t, toTaskDocument(&task))
	assert.Equal(t, task, decoded.toDomain())

	weeks, err := raw.LookupErr("pending_weeks")
	require.NoError(t, err)
	assert.Equal(t, int64(2), weeks.AsInt64())
}

func TestTaskDocumentKeepsZeroPendingWeeks(t *testing.T) {
	task := domain.Task{ID: "task-1", SiteID: "site-1", Status: domain.TaskStatusDone, WeekKey: "2024-W09"}

	decoded, raw := roundTrip(t, toTaskDocument(&task))
	_, err := raw.LookupErr("pending_weeks")
	assert.NoError(t, err)
	_, err = raw.LookupErr("carried_from_task_id")
	assert.Error(t, err)
	assert.Equal(t, task, decoded.toDomain())
}

func TestJobDocumentRoundTrip(t *testing.T) {
	at := time.Date(2024, time.March, 11, 6, 0, 0, 0, time.UTC)
	job := domain.Job{
		ID:              "job-1",
		Kind:            domain.JobKindCarryForward,
		SiteID:          "site-1",
		ExpectedWeekKey: "2024-W10",
		RequestedBy:     "admin-1",
		Status:          domain.JobStatusDone,
		Result:          json.RawMessage(`{"from":"2024-W10","to":"2024-W11","carried_count":3}`),
		Attempts:        1,
		CreatedAt:       at,
		UpdatedAt:       at,
	}

	decoded, _ := roundTrip(t, toJobDocument(&job))
	assert.Equal(t, job, decoded.toDomain())

	pending := domain.Job{ID: "job-2", Kind: domain.JobKindCarryForward, Status: domain.JobStatusPending}
	decoded, _ = roundTrip(t, toJobDocument(&pending))
	assert.Nil(t, decoded.toDomain().Result)
}
