package ledger

import (
	"context"
	"sync"

	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
)

// InMemory is the map-backed ledger used in development and unit tests.
type InMemory struct {
	mu      sync.RWMutex
	byClaim map[id.ClaimID][]models.ApprovalDecision
	nextSeq map[id.ClaimID]int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		byClaim: make(map[id.ClaimID][]models.ApprovalDecision),
		nextSeq: make(map[id.ClaimID]int64),
	}
}

func (l *InMemory) Append(_ context.Context, decision models.ApprovalDecision) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq, ok := l.nextSeq[decision.ClaimID]
	if !ok {
		seq = 1
	}
	l.nextSeq[decision.ClaimID] = seq + 1

	decision.Seq = seq
	l.byClaim[decision.ClaimID] = append(l.byClaim[decision.ClaimID], decision)
	return seq, nil
}

func (l *InMemory) ActiveDecisions(_ context.Context, claimID id.ClaimID) (map[id.ApproverID]models.ApprovalDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return activeView(l.byClaim[claimID]), nil
}

func (l *InMemory) ListByClaim(_ context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.ApprovalDecision(nil), l.byClaim[claimID]...), nil
}
