// Package handler exposes the claim lifecycle endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expenseflow/internal/claims/models"
	"expenseflow/internal/claims/workflow"
	"expenseflow/internal/platform/metrics"
	"expenseflow/internal/platform/middleware"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

// Service defines the workflow operations the handler needs.
type Service interface {
	SubmitClaim(ctx context.Context, params workflow.SubmitParams) (*models.ExpenseClaim, error)
	RecordDecision(ctx context.Context, claimID id.ClaimID, approverID id.ApproverID, outcome id.DecisionOutcome, comment string) (*models.ExpenseClaim, error)
	Status(ctx context.Context, claimID id.ClaimID) (*workflow.ClaimStatus, error)
	Ledger(ctx context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error)
	ListPendingFor(ctx context.Context, approverID id.ApproverID) ([]*models.ExpenseClaim, error)
	ListBySubmitter(ctx context.Context, submitterID id.UserID) ([]*models.ExpenseClaim, error)
}

// Handler handles claim submission, decisions, and status reads. The acting
// identity always comes from the JWT, never from the request body.
type Handler struct {
	logger       *slog.Logger
	claims       Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(claims Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		claims:       claims,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the claim routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	claimRouter := chi.NewRouter()
	claimRouter.Use(middleware.Recovery(h.logger))
	claimRouter.Use(middleware.RequestID)
	claimRouter.Use(middleware.Logger(h.logger))
	claimRouter.Use(middleware.Timeout(30 * time.Second))
	claimRouter.Use(middleware.ContentTypeJSON)
	claimRouter.Use(middleware.LatencyMiddleware(h.metrics))
	claimRouter.Use(middleware.ClientMetadata)
	claimRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	claimRouter.Post("/claims", h.handleSubmitClaim)
	claimRouter.Get("/claims", h.handleListMyClaims)
	claimRouter.Get("/claims/{claimID}/status", h.handleStatus)
	claimRouter.Get("/claims/{claimID}/ledger", h.handleLedger)
	claimRouter.Post("/claims/{claimID}/decisions", h.handleRecordDecision)
	claimRouter.Get("/approvals/pending", h.handleApprovalsInbox)

	r.Mount("/", claimRouter)
}

type submitClaimRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Department  string `json:"department"`
	Description string `json:"description"`

	category id.ExpenseCategory
}

func (req *submitClaimRequest) Validate() error {
	if req.AmountCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount_cents must be positive")
	}
	if req.Department == "" {
		return dErrors.New(dErrors.CodeValidation, "department is required")
	}
	category, err := id.ParseExpenseCategory(req.Category)
	if err != nil {
		return err
	}
	req.category = category
	return nil
}

func (h *Handler) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[submitClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	claim, err := h.claims.SubmitClaim(ctx, workflow.SubmitParams{
		SubmitterID: requestcontext.UserID(ctx),
		AmountCents: req.AmountCents,
		Category:    req.category,
		Department:  req.Department,
		Description: req.Description,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "claim submission failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, claim)
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
	Comment string `json:"comment,omitempty"`

	outcome id.DecisionOutcome
}

func (req *decisionRequest) Validate() error {
	outcome, err := id.ParseDecisionOutcome(req.Outcome)
	if err != nil {
		return err
	}
	req.outcome = outcome
	return nil
}

func (h *Handler) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[decisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	approverID := id.ApproverID(requestcontext.UserID(ctx).String())
	claim, err := h.claims.RecordDecision(ctx, claimID, approverID, req.outcome, req.Comment)
	if err != nil {
		h.logger.WarnContext(ctx, "decision rejected",
			"request_id", requestID,
			"claim_id", claimID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.claims.Status(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decisions, err := h.claims.Ledger(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"claim_id":  claimID,
		"decisions": decisions,
	})
}

func (h *Handler) handleApprovalsInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	approverID := id.ApproverID(requestcontext.UserID(ctx).String())
	claims, err := h.claims.ListPendingFor(ctx, approverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

func (h *Handler) handleListMyClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.claims.ListBySubmitter(ctx, requestcontext.UserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"claims": claims})
}
