// Package workflow owns the expense claim state machine. It is the only
// writer of claim state: submission matches a rule and freezes its snapshot,
// opening resolves the approver membership, and decision recording drives the
// append-evaluate-transition critical section that resolves the claim.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"expenseflow/internal/audit"
	"expenseflow/internal/claims/evaluator"
	"expenseflow/internal/claims/metrics"
	"expenseflow/internal/claims/models"
	"expenseflow/internal/directory"
	"expenseflow/internal/rules/matcher"
	rulesmodels "expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
	"expenseflow/pkg/requestcontext"
)

// ClaimStore is the claim persistence surface the workflow needs.
type ClaimStore interface {
	Create(ctx context.Context, claim *models.ExpenseClaim) error
	Get(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error)
	GetForUpdate(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error)
	Update(ctx context.Context, claim *models.ExpenseClaim) error
	ListBySubmitter(ctx context.Context, submitterID id.UserID) ([]*models.ExpenseClaim, error)
	ListPendingForApprover(ctx context.Context, approverID id.ApproverID) ([]*models.ExpenseClaim, error)
}

// DecisionLedger is the ledger surface the workflow needs.
type DecisionLedger interface {
	Append(ctx context.Context, decision models.ApprovalDecision) (int64, error)
	ActiveDecisions(ctx context.Context, claimID id.ClaimID) (map[id.ApproverID]models.ApprovalDecision, error)
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error)
}

// RuleSource supplies the active rule set at submission time.
type RuleSource interface {
	ListActive(ctx context.Context) ([]*rulesmodels.ApprovalRule, error)
}

// ApproverResolver turns rule references into concrete approver membership.
type ApproverResolver interface {
	ResolveApprovers(ctx context.Context, rule *rulesmodels.ApprovalRule, submitterID id.UserID) (directory.ResolvedApprovers, error)
}

// Auditor records workflow events.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service drives the claim lifecycle.
type Service struct {
	claims     ClaimStore
	ledger     DecisionLedger
	rules      RuleSource
	resolver   ApproverResolver
	auditor    Auditor
	transactor Transactor
	cache      StatusCache
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	locks      *claimLocks
}

func NewService(
	claims ClaimStore,
	ledger DecisionLedger,
	rules RuleSource,
	resolver ApproverResolver,
	auditor Auditor,
	transactor Transactor,
	cache StatusCache,
	metrics *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		claims:     claims,
		ledger:     ledger,
		rules:      rules,
		resolver:   resolver,
		auditor:    auditor,
		transactor: transactor,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		tracer:     otel.Tracer("expenseflow/claims/workflow"),
		locks:      newClaimLocks(),
	}
}

// SubmitParams carries the validated fields for a new claim.
type SubmitParams struct {
	SubmitterID id.UserID
	AmountCents int64
	Category    id.ExpenseCategory
	Department  string
	Description string
}

// SubmitClaim creates a claim, freezes the matched rule as its snapshot, and
// immediately opens it. A claim with no matching rule never comes into
// existence: the configuration gap is surfaced to the caller instead.
func (s *Service) SubmitClaim(ctx context.Context, params SubmitParams) (*models.ExpenseClaim, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.SubmitClaim")
	defer span.End()

	if params.AmountCents <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if params.Department == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "department is required")
	}

	activeRules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load active rules", err)
	}
	matched, err := matcher.Match(rulesmodels.ClaimAttributes{
		AmountCents: params.AmountCents,
		Category:    params.Category,
		Department:  params.Department,
	}, activeRules)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	claim := &models.ExpenseClaim{
		ID:           id.NewClaimID(),
		SubmitterID:  params.SubmitterID,
		AmountCents:  params.AmountCents,
		Category:     params.Category,
		Department:   params.Department,
		Description:  params.Description,
		State:        id.ClaimStateSubmitted,
		RuleSnapshot: *matched.Clone(),
		NextSeq:      1,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	span.SetAttributes(attribute.String("claim_id", claim.ID.String()))

	err = s.transactor.InTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Create(ctx, claim); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "failed to create claim", err)
		}
		s.emit(ctx, audit.Event{
			Action:  audit.ActionClaimSubmitted,
			ClaimID: claim.ID.String(),
			RuleID:  claim.RuleSnapshot.ID.String(),
			Actor:   params.SubmitterID.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementSubmitted(claim.RuleSnapshot.Kind.String())

	return s.Open(ctx, claim.ID)
}

// Open resolves the claim's approver membership and moves it to pending
// approval. Fails with AlreadyOpen when the claim has left Submitted.
func (s *Service) Open(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Open",
		trace.WithAttributes(attribute.String("claim_id", claimID.String())))
	defer span.End()

	unlock := s.locks.lock(claimID)
	defer unlock()

	var opened *models.ExpenseClaim
	err := s.transactor.InTx(ctx, func(ctx context.Context) error {
		claim, err := s.getClaim(ctx, claimID, true)
		if err != nil {
			return err
		}
		if claim.State != id.ClaimStateSubmitted {
			return dErrors.New(dErrors.CodeAlreadyOpen, "claim has already been opened")
		}

		resolved, err := s.resolver.ResolveApprovers(ctx, &claim.RuleSnapshot, claim.SubmitterID)
		if err != nil {
			return err
		}
		if len(resolved.Assigned) == 0 {
			// A rule that resolves to nobody can never reach a verdict; the
			// claim stays Submitted for an administrator to fix.
			return dErrors.New(dErrors.CodeInvariantViolation, "rule resolves to no approvers for this claim")
		}

		now := time.Now()
		claim.AssignedApprovers = resolved.Assigned
		claim.PoolApprovers = resolved.Pool
		claim.RequiredApprovers = resolved.Required
		claim.State = id.ClaimStatePendingApproval
		claim.UpdatedAt = now

		if err := s.claims.Update(ctx, claim); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "failed to open claim", err)
		}
		s.emit(ctx, audit.Event{
			Action:  audit.ActionClaimOpened,
			ClaimID: claim.ID.String(),
			RuleID:  claim.RuleSnapshot.ID.String(),
		})
		opened = claim
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// RecordDecision appends one approver's verdict and, when the rule is
// satisfied or defeated, transitions the claim to its terminal state. The
// append, the re-evaluation, and the transition form one critical section:
// serialized per claim by the lock, and committed atomically by the
// transactor.
func (s *Service) RecordDecision(ctx context.Context, claimID id.ClaimID, approverID id.ApproverID, outcome id.DecisionOutcome, comment string) (*models.ExpenseClaim, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.RecordDecision", trace.WithAttributes(
		attribute.String("claim_id", claimID.String()),
		attribute.String("outcome", outcome.String()),
	))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveDecisionLatency(time.Since(start)) }()

	unlock := s.locks.lock(claimID)
	defer unlock()

	var result *models.ExpenseClaim
	err := s.transactor.InTx(ctx, func(ctx context.Context) error {
		claim, err := s.getClaim(ctx, claimID, true)
		if err != nil {
			return err
		}
		if claim.State.IsTerminal() {
			return dErrors.New(dErrors.CodeClaimClosed, "claim is already "+claim.State.String())
		}
		if claim.State != id.ClaimStatePendingApproval {
			return dErrors.New(dErrors.CodeConflict, "claim is not open for decisions")
		}
		if !claim.HasApprover(approverID) {
			// Rejected at the boundary, never recorded.
			return dErrors.New(dErrors.CodeUnauthorizedApprover, "approver is not assigned to this claim")
		}

		active, err := s.ledger.ActiveDecisions(ctx, claimID)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "failed to load decisions", err)
		}
		prior, hadPrior := active[approverID]

		now := time.Now()
		decision := models.ApprovalDecision{
			ClaimID:    claimID,
			ApproverID: approverID,
			Outcome:    outcome,
			Comment:    comment,
			DecidedAt:  now,
		}
		seq, err := s.ledger.Append(ctx, decision)
		if err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "failed to append decision", err)
		}
		decision.Seq = seq
		active[approverID] = decision

		outcomes := make(map[id.ApproverID]id.DecisionOutcome, len(active))
		for approver, d := range active {
			outcomes[approver] = d.Outcome
		}
		verdict := evaluator.Evaluate(claim, outcomes)

		claim.UpdatedAt = now
		switch verdict {
		case evaluator.ResultApproved:
			claim.State = id.ClaimStateApproved
			claim.ResolvedAt = &now
		case evaluator.ResultRejected:
			claim.State = id.ClaimStateRejected
			claim.ResolvedAt = &now
		}
		if err := s.claims.Update(ctx, claim); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "failed to update claim", err)
		}

		s.emit(ctx, audit.Event{
			Action:  audit.ActionDecisionRecorded,
			ClaimID: claimID.String(),
			Actor:   approverID.String(),
			Outcome: outcome.String(),
			Reason:  comment,
		})
		if hadPrior {
			s.emit(ctx, audit.Event{
				Action:  audit.ActionDecisionSuperseded,
				ClaimID: claimID.String(),
				Actor:   approverID.String(),
				Outcome: prior.Outcome.String(),
			})
		}
		if claim.State.IsTerminal() {
			action := audit.ActionClaimApproved
			if claim.State == id.ClaimStateRejected {
				action = audit.ActionClaimRejected
			}
			s.emit(ctx, audit.Event{
				Action:  action,
				ClaimID: claimID.String(),
				RuleID:  claim.RuleSnapshot.ID.String(),
			})
		}
		result = claim
		return nil
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeClaimClosed) {
			s.auditLateDecision(ctx, claimID, approverID, outcome)
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, claimID)
	}
	s.metrics.IncrementDecision(outcome.String())
	if result.State.IsTerminal() {
		s.metrics.IncrementResolved(result.State.String(), result.RuleSnapshot.Kind.String())
		s.logger.InfoContext(ctx, "claim resolved",
			"claim_id", claimID.String(),
			"state", result.State.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// auditLateDecision records a decision that arrived after the claim closed.
// The transaction that detected the closed claim rolled back, so this runs
// outside it: the ledger and claim are untouched, only the trail grows.
func (s *Service) auditLateDecision(ctx context.Context, claimID id.ClaimID, approverID id.ApproverID, outcome id.DecisionOutcome) {
	s.metrics.IncrementLateDecision()
	s.emit(ctx, audit.Event{
		Action:  audit.ActionLateDecisionIgnored,
		ClaimID: claimID.String(),
		Actor:   approverID.String(),
		Outcome: outcome.String(),
	})
}

// ClaimStatus is the read-side projection for the approval UI.
type ClaimStatus struct {
	ClaimID id.ClaimID    `json:"claim_id"`
	State   id.ClaimState `json:"state"`
	// Decisions is the full ledger, superseded entries included.
	Decisions []models.ApprovalDecision `json:"decisions"`
	// PendingApprovers is who the claim is still waiting on.
	PendingApprovers []id.ApproverID `json:"pending_approvers"`
}

// Status serves the status projection, preferring the cache. Reads never take
// the per-claim lock: the transactor guarantees a decision and its transition
// become visible together.
func (s *Service) Status(ctx context.Context, claimID id.ClaimID) (*ClaimStatus, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, claimID); ok {
			return cached, nil
		}
	}

	claim, err := s.getClaim(ctx, claimID, false)
	if err != nil {
		return nil, err
	}
	decisions, err := s.ledger.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load decisions", err)
	}
	active, err := s.ledger.ActiveDecisions(ctx, claimID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load decisions", err)
	}

	pending := make([]id.ApproverID, 0, len(claim.AssignedApprovers))
	if claim.State == id.ClaimStatePendingApproval {
		for _, approver := range claim.AssignedApprovers {
			if _, decided := active[approver]; !decided {
				pending = append(pending, approver)
			}
		}
	}

	status := &ClaimStatus{
		ClaimID:          claim.ID,
		State:            claim.State,
		Decisions:        decisions,
		PendingApprovers: pending,
	}
	if s.cache != nil {
		s.cache.Set(ctx, claimID, status)
	}
	return status, nil
}

// Ledger returns the full decision trail for a claim, for audit and
// reporting.
func (s *Service) Ledger(ctx context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error) {
	if _, err := s.getClaim(ctx, claimID, false); err != nil {
		return nil, err
	}
	decisions, err := s.ledger.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load decisions", err)
	}
	return decisions, nil
}

// Get returns one claim.
func (s *Service) Get(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	return s.getClaim(ctx, claimID, false)
}

// ListPendingFor returns the approvals inbox for one approver.
func (s *Service) ListPendingFor(ctx context.Context, approverID id.ApproverID) ([]*models.ExpenseClaim, error) {
	claims, err := s.claims.ListPendingForApprover(ctx, approverID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list pending claims", err)
	}
	return claims, nil
}

// ListBySubmitter returns one submitter's claim history.
func (s *Service) ListBySubmitter(ctx context.Context, submitterID id.UserID) ([]*models.ExpenseClaim, error) {
	claims, err := s.claims.ListBySubmitter(ctx, submitterID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list claims", err)
	}
	return claims, nil
}

func (s *Service) getClaim(ctx context.Context, claimID id.ClaimID, forUpdate bool) (*models.ExpenseClaim, error) {
	var (
		claim *models.ExpenseClaim
		err   error
	)
	if forUpdate {
		claim, err = s.claims.GetForUpdate(ctx, claimID)
	} else {
		claim, err = s.claims.Get(ctx, claimID)
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load claim", err)
	}
	return claim, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"claim_id", event.ClaimID,
			"error", err.Error(),
		)
	}
}
