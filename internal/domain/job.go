package domain

import (
	"encoding/json"
	"time"

	"github.com/iago/obra-back/internal/weekkey"
)

type JobKind string

const (
	JobKindCarryForward JobKind = "carry_forward"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Job tracks one queued site rollover.
type Job struct {
	ID              string
	Kind            JobKind
	SiteID          string
	ExpectedWeekKey weekkey.Key
	RequestedBy     string
	Status          JobStatus
	Result          json.RawMessage
	ErrorMessage    string
	Attempts        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID           string      `json:"job_id"`
	Kind            JobKind     `json:"kind"`
	SiteID          string      `json:"site_id"`
	ExpectedWeekKey weekkey.Key `json:"expected_week_key"`
	RequestedBy     string      `json:"requested_by"`
	Attempt         int         `json:"attempt"`
	RequestedAt     time.Time   `json:"requested_at"`
}
