package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists audit events. Implementations are append-only; the postgres
// store doubles as the Kafka outbox.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByClaim(ctx context.Context, claimID string) ([]Event, error)
}

// Publisher captures structured audit events. It uses the storage layer for
// persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends one event, filling in ID and timestamp when unset.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// ListByClaim returns the audit trail for one claim in emission order.
func (p *Publisher) ListByClaim(ctx context.Context, claimID string) ([]Event, error) {
	return p.store.ListByClaim(ctx, claimID)
}
