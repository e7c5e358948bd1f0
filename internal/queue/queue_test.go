package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQueueRetriesThenParks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewLocalQueue(LocalConfig{BufferSize: 4, MaxAttempts: 2, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, q.Enqueue(ctx, domain.QueueMessage{JobID: "j1", SiteID: "s1"}))

	var (
		mu    sync.Mutex
		calls int
	)
	go func() {
		_ = q.Consume(ctx, func(context.Context, domain.QueueMessage) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return errors.New("store unavailable")
		})
	}()

	require.Eventually(t, func() bool { return q.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()

	letters := q.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, "j1", letters[0].Message.JobID)
	assert.Equal(t, 2, letters[0].Message.Attempt)
	assert.Equal(t, "store unavailable", letters[0].Reason)
}

func TestLocalQueueDeliversBatchInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewLocalQueue(LocalConfig{BufferSize: 8}, nil)
	messages := []domain.QueueMessage{{JobID: "a"}, {JobID: "b"}, {JobID: "c"}}
	require.NoError(t, EnqueueAll(ctx, q, messages))

	seen := make(chan string, len(messages))
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			seen <- message.JobID
			return nil
		})
	}()

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-seen:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	assert.Zero(t, q.DLQSize())
}

type singleProducer struct {
	sent []string
	fail string
}

func (p *singleProducer) Enqueue(_ context.Context, message domain.QueueMessage) error {
	if message.JobID == p.fail {
		return errors.New("rejected")
	}
	p.sent = append(p.sent, message.JobID)
	return nil
}

func TestEnqueueAllFallsBackToSingleSends(t *testing.T) {
	producer := &singleProducer{fail: "c"}
	err := EnqueueAll(context.Background(), producer, []domain.QueueMessage{{JobID: "a"}, {JobID: "b"}, {JobID: "c"}, {JobID: "d"}})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, producer.sent)

	assert.NoError(t, EnqueueAll(context.Background(), producer, nil))
}

func TestParseStreamMessage(t *testing.T) {
	requested := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	values := streamValues(domain.QueueMessage{
		JobID:           "j1",
		Kind:            domain.JobKindCarryForward,
		SiteID:          "s1",
		ExpectedWeekKey: "2024-W10",
		RequestedBy:     "admin",
		Attempt:         1,
		RequestedAt:     requested,
	})
	// Redis hands every field back as a string.
	values["attempt"] = "1"

	message, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, "j1", message.JobID)
	assert.Equal(t, domain.JobKindCarryForward, message.Kind)
	assert.Equal(t, "s1", message.SiteID)
	assert.Equal(t, "2024-W10", string(message.ExpectedWeekKey))
	assert.Equal(t, 1, message.Attempt)
	assert.True(t, message.RequestedAt.Equal(requested))

	delete(values, "site_id")
	_, err = parseStreamMessage(redis.XMessage{ID: "2-0", Values: values})
	assert.Error(t, err)
}

func TestStreamsAddArgsTrimsApproximately(t *testing.T) {
	q := &StreamsQueue{stream: "rollovers", dlqStream: "rollovers_dlq", maxLen: 500}

	args := q.addArgs(q.dlqStream, map[string]any{"job_id": "j1"})
	assert.Equal(t, "rollovers_dlq", args.Stream)
	assert.Equal(t, int64(500), args.MaxLen)
	assert.True(t, args.Approx)
	assert.Equal(t, map[string]any{"job_id": "j1"}, args.Values)
}
