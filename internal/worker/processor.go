package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/metrics"
	"github.com/iago/obra-back/internal/queue"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/service"
)

// CarryForwarder is the part of the carry-forward service the worker needs.
type CarryForwarder interface {
	CarryForward(ctx context.Context, request service.CarryForwardRequest) (domain.CarryForwardResult, error)
}

// Processor consumes rollover jobs and records each outcome on the job.
type Processor struct {
	consumer queue.Consumer
	jobs     repository.JobsRepository
	carry    CarryForwarder
	logger   *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	jobs repository.JobsRepository,
	carry CarryForwarder,
	logger *log.Logger,
) *Processor {
	return &Processor{
		consumer: consumer,
		jobs:     jobs,
		carry:    carry,
		logger:   logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.logf("worker consume loop error: %v", err)

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// processMessage returns an error only for failures worth redelivering.
// Conflicts and missing sites are final: the job is marked failed and the
// message acknowledged.
func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	job, err := p.jobs.GetJob(ctx, message.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", message.JobID, err)
	}
	if job.Status == domain.JobStatusDone {
		return nil
	}
	if job.Kind != domain.JobKindCarryForward {
		p.finish(ctx, job, nil, fmt.Errorf("unsupported job kind: %s", job.Kind))
		return nil
	}

	job.Status = domain.JobStatusProcessing
	job.Attempts = message.Attempt + 1
	job.UpdatedAt = time.Now().UTC()
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	result, err := p.carry.CarryForward(ctx, service.CarryForwardRequest{
		SiteID:          job.SiteID,
		ExpectedWeekKey: job.ExpectedWeekKey,
		Actor:           domain.Actor{UID: job.RequestedBy, Role: domain.RoleAdmin},
	})
	if err != nil {
		p.finish(ctx, job, nil, err)
		if terminal(err) {
			return nil
		}
		return err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode carry-forward result: %w", err)
	}
	if err := p.finish(ctx, job, encoded, nil); err != nil {
		return err
	}
	p.logf("rollover done job_id=%s site_id=%s from=%s to=%s carried=%d", job.ID, job.SiteID, result.From, result.To, result.CarriedCount)
	return nil
}

func (p *Processor) finish(ctx context.Context, job *domain.Job, result json.RawMessage, cause error) error {
	job.UpdatedAt = time.Now().UTC()
	if cause != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = cause.Error()
		p.logf("rollover failed job_id=%s site_id=%s err=%v", job.ID, job.SiteID, cause)
	} else {
		job.Status = domain.JobStatusDone
		job.ErrorMessage = ""
		job.Result = result
	}
	metrics.RecordRolloverJob(string(job.Status))

	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark %s: %w", job.Status, err)
	}
	return nil
}

func terminal(err error) bool {
	return errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, service.ErrInvalidState) ||
		errors.Is(err, service.ErrForbidden)
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
