// Package kafka ships audit outbox events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"expenseflow/internal/audit"
)

// Outbox is the slice of the audit store the relay needs.
type Outbox interface {
	NextUnpublished(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// NewClient connects a franz-go producer to the given brokers.
func NewClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	// Another instance winning the race is fine.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Relay drains the audit outbox into Kafka. Delivery is at-least-once:
// events are marked published only after the broker acknowledges them, so a
// crash between produce and mark replays the batch.
type Relay struct {
	client   *kgo.Client
	outbox   Outbox
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// NewRelay constructs a relay polling the outbox at the given interval.
func NewRelay(client *kgo.Client, outbox Outbox, topic string, logger *slog.Logger) *Relay {
	return &Relay{
		client:   client,
		outbox:   outbox,
		topic:    topic,
		logger:   logger,
		interval: time.Second,
		batch:    100,
	}
}

// Run polls until the context is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				// Transient broker trouble: log and retry next tick.
				r.logger.ErrorContext(ctx, "audit relay drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	events, err := r.outbox.NextUnpublished(ctx, r.batch)
	if err != nil {
		return fmt.Errorf("fetch outbox: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for i := range events {
		payload, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", events[i].ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			// Key on claim ID so one claim's trail stays ordered per partition.
			Key:   []byte(events[i].ClaimID),
			Value: payload,
		})
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}

	ids := make([]uuid.UUID, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	r.logger.DebugContext(ctx, "audit relay shipped batch", "count", len(events))
	return nil
}
