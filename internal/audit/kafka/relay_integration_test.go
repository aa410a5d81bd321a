//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"expenseflow/internal/audit"
	auditpg "expenseflow/internal/audit/store/postgres"
	"expenseflow/pkg/testutil/containers"
)

func TestRelayShipsOutboxToKafka(t *testing.T) {
	ctx := context.Background()
	pg := containers.GetManager().GetPostgres(t)
	redpanda := containers.GetManager().GetRedpanda(t)
	require.NoError(t, pg.TruncateTables(ctx, "audit_outbox"))

	topic := fmt.Sprintf("expenseflow.audit.%d", time.Now().UnixNano())
	outbox := auditpg.New(pg.DB)

	claimID := uuid.NewString()
	actions := []audit.Action{
		audit.ActionClaimSubmitted,
		audit.ActionClaimOpened,
		audit.ActionDecisionRecorded,
	}
	for _, action := range actions {
		require.NoError(t, outbox.Append(ctx, audit.Event{
			ID:        uuid.New(),
			Timestamp: time.Now().UTC(),
			Action:    action,
			ClaimID:   claimID,
		}))
	}

	producer, err := NewClient(redpanda.Brokers)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, EnsureTopic(ctx, producer, topic))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewRelay(producer, outbox, topic, logger)

	relayCtx, stopRelay := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- relay.Run(relayCtx) }()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	deadline := time.Now().Add(30 * time.Second)
	for len(records) < len(actions) && time.Now().Before(deadline) {
		pollCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		fetches := consumer.PollFetches(pollCtx)
		cancel()
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	require.Len(t, records, len(actions))

	// Records key on claim ID so one claim's trail stays in one partition,
	// and arrive in outbox order.
	for i, record := range records {
		require.Equal(t, claimID, string(record.Key))
		var event audit.Event
		require.NoError(t, json.Unmarshal(record.Value, &event))
		require.Equal(t, actions[i], event.Action)
	}

	// Shipped events leave the unpublished window.
	require.Eventually(t, func() bool {
		remaining, err := outbox.NextUnpublished(ctx, 10)
		return err == nil && len(remaining) == 0
	}, 10*time.Second, 200*time.Millisecond)

	stopRelay()
	require.NoError(t, <-done)
}
