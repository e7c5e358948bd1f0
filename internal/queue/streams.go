package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
	"github.com/redis/go-redis/v9"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	Group       string
	Consumer    string
	MaxAttempts int
	// ClaimIdle is how long an entry may sit unacked under a dead consumer
	// before another consumer claims it.
	ClaimIdle time.Duration
	// MaxLen caps the stream length (approximate trimming).
	MaxLen int64
}

const (
	defaultClaimIdle = time.Minute
	defaultMaxLen    = 10000
	readCount        = 10
	readBlock        = 5 * time.Second
)

// StreamsQueue implements BatchProducer and Consumer on Redis Streams. The
// consumer acks and deletes every entry it handles and republishes failures
// with an incremented attempt until maxAttempts. Entries orphaned by a
// crashed consumer are reclaimed once they have been idle for claimIdle.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	group       string
	consumer    string
	maxAttempts int
	claimIdle   time.Duration
	maxLen      int64
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "obra_rollovers"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "obra_rollovers_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "obra_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = defaultClaimIdle
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		claimIdle:   cfg.ClaimIdle,
		maxLen:      cfg.MaxLen,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) addArgs(stream string, values map[string]any) *redis.XAddArgs {
	return &redis.XAddArgs{Stream: stream, MaxLen: q.maxLen, Approx: true, Values: values}
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	if err := q.client.XAdd(ctx, q.addArgs(q.stream, streamValues(message))).Err(); err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error {
	if len(messages) == 0 {
		return nil
	}

	pipeline := q.client.Pipeline()
	for _, message := range messages {
		pipeline.XAdd(ctx, q.addArgs(q.stream, streamValues(message)))
	}
	if _, err := pipeline.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue batch to stream: %w", err)
	}
	return nil
}

func streamValues(message domain.QueueMessage) map[string]any {
	return map[string]any{
		"job_id":            message.JobID,
		"kind":              string(message.Kind),
		"site_id":           message.SiteID,
		"expected_week_key": string(message.ExpectedWeekKey),
		"requested_by":      message.RequestedBy,
		"attempt":           message.Attempt,
		"requested_at":      message.RequestedAt.Format(time.RFC3339Nano),
	}
}

func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  q.claimIdle,
			Start:    "0-0",
			Count:    readCount,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xautoclaim: %w", err)
		}
		for _, item := range claimed {
			q.handle(ctx, item, handler)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handle(ctx, item, handler)
			}
		}
	}
}

// handle runs one entry through handler and always acks it: success and
// exhausted retries end there, other failures are republished as a new
// entry with the attempt counter bumped.
func (q *StreamsQueue) handle(ctx context.Context, item redis.XMessage, handler func(context.Context, domain.QueueMessage) error) {
	defer func() { _ = q.ackAndDelete(ctx, item.ID) }()

	message, err := parseStreamMessage(item)
	if err != nil {
		_ = q.sendToDLQ(ctx, domain.QueueMessage{}, item, err.Error())
		return
	}

	handleErr := handler(ctx, message)
	if handleErr == nil {
		return
	}

	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		_ = q.sendToDLQ(ctx, message, item, handleErr.Error())
		return
	}
	if requeueErr := q.Enqueue(ctx, message); requeueErr != nil {
		_ = q.sendToDLQ(ctx, message, item, fmt.Sprintf("requeue failed: %v", requeueErr))
	}
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(
	ctx context.Context,
	message domain.QueueMessage,
	item redis.XMessage,
	errorMessage string,
) error {
	values := streamValues(message)
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := q.client.XAdd(ctx, q.addArgs(q.dlqStream, values)).Err(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func parseStreamMessage(item redis.XMessage) (domain.QueueMessage, error) {
	fields := make(map[string]string, len(item.Values))
	for _, key := range []string{"job_id", "kind", "site_id", "expected_week_key", "requested_by", "attempt", "requested_at"} {
		value, ok := item.Values[key]
		if !ok {
			return domain.QueueMessage{}, fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			fields[key] = casted
		case []byte:
			fields[key] = string(casted)
		default:
			fields[key] = fmt.Sprintf("%v", casted)
		}
	}

	attempt, err := strconv.Atoi(fields["attempt"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid attempt: %w", err)
	}
	requestedAt, err := time.Parse(time.RFC3339Nano, fields["requested_at"])
	if err != nil {
		return domain.QueueMessage{}, fmt.Errorf("invalid requested_at: %w", err)
	}
	if fields["job_id"] == "" || fields["site_id"] == "" {
		return domain.QueueMessage{}, errors.New("job_id and site_id are required")
	}

	return domain.QueueMessage{
		JobID:           fields["job_id"],
		Kind:            domain.JobKind(fields["kind"]),
		SiteID:          fields["site_id"],
		ExpectedWeekKey: weekkey.Key(fields["expected_week_key"]),
		RequestedBy:     fields["requested_by"],
		Attempt:         attempt,
		RequestedAt:     requestedAt,
	}, nil
}
