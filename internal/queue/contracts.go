package queue

import (
	"context"

	"github.com/iago/obra-back/internal/domain"
)

// Producer sends rollover jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// BatchProducer is implemented by backends that can publish several
// messages in one round trip.
type BatchProducer interface {
	Producer
	EnqueueBatch(ctx context.Context, messages []domain.QueueMessage) error
}

// Consumer receives rollover jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}

// EnqueueAll publishes messages through EnqueueBatch when the producer
// supports it and one by one otherwise.
func EnqueueAll(ctx context.Context, producer Producer, messages []domain.QueueMessage) error {
	if len(messages) == 0 {
		return nil
	}
	if batcher, ok := producer.(BatchProducer); ok {
		return batcher.EnqueueBatch(ctx, messages)
	}
	for _, message := range messages {
		if err := producer.Enqueue(ctx, message); err != nil {
			return err
		}
	}
	return nil
}
