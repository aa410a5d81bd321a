// Package handler exposes the rule administration endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expenseflow/internal/platform/metrics"
	"expenseflow/internal/platform/middleware"
	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

// Service defines the rule operations the handler needs.
type Service interface {
	Create(ctx context.Context, rule *models.ApprovalRule) (*models.ApprovalRule, error)
	Update(ctx context.Context, rule *models.ApprovalRule, expectedVersion int64) (*models.ApprovalRule, error)
	Deactivate(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error)
	Get(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error)
	List(ctx context.Context) ([]*models.ApprovalRule, error)
	ListActive(ctx context.Context) ([]*models.ApprovalRule, error)
}

// Handler handles rule administration endpoints. All routes require a
// director token: rule configuration changes how money gets approved.
type Handler struct {
	logger       *slog.Logger
	rules        Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(rules Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		rules:        rules,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the rule routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	ruleRouter := chi.NewRouter()
	ruleRouter.Use(middleware.Recovery(h.logger))
	ruleRouter.Use(middleware.RequestID)
	ruleRouter.Use(middleware.Logger(h.logger))
	ruleRouter.Use(middleware.Timeout(30 * time.Second))
	ruleRouter.Use(middleware.ContentTypeJSON)
	ruleRouter.Use(middleware.LatencyMiddleware(h.metrics))
	ruleRouter.Use(middleware.ClientMetadata)
	ruleRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	ruleRouter.Post("/", h.handleCreateRule)
	ruleRouter.Get("/", h.handleListRules)
	ruleRouter.Get("/{ruleID}", h.handleGetRule)
	ruleRouter.Put("/{ruleID}", h.handleUpdateRule)
	ruleRouter.Post("/{ruleID}/deactivate", h.handleDeactivateRule)

	r.Mount("/rules", ruleRouter)
}

// requireDirector gates rule administration behind the director role.
func (h *Handler) requireDirector(w http.ResponseWriter, r *http.Request) bool {
	if requestcontext.Role(r.Context()) != id.RoleDirector {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "rule administration requires the director role"))
		return false
	}
	return true
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if !h.requireDirector(w, r) {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ruleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.rules.Create(ctx, req.rule)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create rule",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if !h.requireDirector(w, r) {
		return
	}

	var (
		rules []*models.ApprovalRule
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		rules, err = h.rules.ListActive(ctx)
	} else {
		rules, err = h.rules.List(ctx)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list rules",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireDirector(w, r) {
		return
	}

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.rules.Get(ctx, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if !h.requireDirector(w, r) {
		return
	}

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ruleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.rule.ID = ruleID

	rule, err := h.rules.Update(ctx, req.rule, req.ExpectedVersion)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update rule",
			"request_id", requestID,
			"rule_id", ruleID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if !h.requireDirector(w, r) {
		return
	}

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.rules.Deactivate(ctx, ruleID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to deactivate rule",
			"request_id", requestID,
			"rule_id", ruleID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}
