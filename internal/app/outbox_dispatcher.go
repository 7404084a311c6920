package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transfa/kyc-service/internal/store"
	"github.com/transfa/kyc-service/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
	maxRetryDelaySeconds   = 300
)

// PublisherFactory opens a RabbitMQ publisher. The dispatcher calls it lazily and
// again after a publish failure.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher publishes event_outbox rows to RabbitMQ.
type OutboxDispatcher struct {
	repo                store.Repository
	dial                PublisherFactory
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	producer            rabbitmq.Publisher
}

func NewOutboxDispatcher(repo store.Repository, dial PublisherFactory) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		dial:                dial,
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closeProducer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				log.Printf("level=error component=outbox msg=\"flush failed\" err=%v", err)
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			outboxPublishedTotal.WithLabelValues("failed").Inc()
			retryAfter := retryDelaySeconds(message.Attempts)
			log.Printf("level=warn component=outbox msg=\"publish failed\" id=%d routing_key=%s attempts=%d retry_after=%d err=%v", message.ID, message.RoutingKey, message.Attempts, retryAfter, err)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				log.Printf("level=error component=outbox msg=\"failed to reschedule message\" id=%d err=%v", message.ID, markErr)
			}
			continue
		}
		outboxPublishedTotal.WithLabelValues("published").Inc()
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=error component=outbox msg=\"failed to mark message published\" id=%d err=%v", message.ID, err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := d.dial()
		if err != nil {
			return err
		}
		d.producer = producer
	}

	var payload json.RawMessage
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return err
	}

	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, payload); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 8)
	if delay > maxRetryDelaySeconds {
		return maxRetryDelaySeconds
	}
	return delay
}
