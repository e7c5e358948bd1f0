package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iago/obra-back/internal/domain"
)

type LocalConfig struct {
	BufferSize  int
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number before a redelivery.
	RetryDelay time.Duration
}

// DeadLetter is a message that exhausted its attempts.
type DeadLetter struct {
	Message domain.QueueMessage
	Reason  string
	MovedAt time.Time
}

// LocalQueue is the in-process queue used when Redis is not configured.
// Failed messages are retried with linear backoff, then parked in a DLQ.
type LocalQueue struct {
	ch          chan domain.QueueMessage
	maxAttempts int
	retryDelay  time.Duration
	logger      *log.Logger

	dlqMu sync.Mutex
	dlq   []DeadLetter
}

func NewLocalQueue(cfg LocalConfig, logger *log.Logger) *LocalQueue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &LocalQueue{
		ch:          make(chan domain.QueueMessage, cfg.BufferSize),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- message:
		return nil
	}
}

func (q *LocalQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	for _, message := range messages {
		if err := q.Enqueue(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message := <-q.ch:
			err := handler(ctx, message)
			if err == nil {
				continue
			}

			message.Attempt++
			if message.Attempt >= q.maxAttempts {
				q.park(message, err)
				continue
			}
			q.redeliver(ctx, message, time.Duration(message.Attempt)*q.retryDelay)
		}
	}
}

func (q *LocalQueue) redeliver(ctx context.Context, message domain.QueueMessage, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case <-ctx.Done():
			case q.ch <- message:
			}
		}
	}()
}

func (q *LocalQueue) park(message domain.QueueMessage, cause error) {
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, DeadLetter{Message: message, Reason: cause.Error(), MovedAt: time.Now().UTC()})
	q.dlqMu.Unlock()
	if q.logger != nil {
		q.logger.Printf("local queue parked job_id=%s site_id=%s attempts=%d err=%v", message.JobID, message.SiteID, message.Attempt, cause)
	}
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns a copy of the parked messages.
func (q *LocalQueue) DeadLetters() []DeadLetter {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]DeadLetter(nil), q.dlq...)
}
