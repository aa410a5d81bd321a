package directory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expenseflow/internal/platform/metrics"
	"expenseflow/internal/platform/middleware"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

// Handler exposes login and user administration endpoints.
type Handler struct {
	logger       *slog.Logger
	users        *Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func NewHandler(users *Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		users:        users,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the directory routes with the chi router. Login is the
// only unauthenticated route in the service.
func (h *Handler) Register(r chi.Router) {
	public := chi.NewRouter()
	public.Use(middleware.Recovery(h.logger))
	public.Use(middleware.RequestID)
	public.Use(middleware.Logger(h.logger))
	public.Use(middleware.Timeout(10 * time.Second))
	public.Use(middleware.ContentTypeJSON)
	public.Use(middleware.LatencyMiddleware(h.metrics))
	public.Post("/login", h.handleLogin)

	protected := chi.NewRouter()
	protected.Use(middleware.Recovery(h.logger))
	protected.Use(middleware.RequestID)
	protected.Use(middleware.Logger(h.logger))
	protected.Use(middleware.Timeout(10 * time.Second))
	protected.Use(middleware.ContentTypeJSON)
	protected.Use(middleware.LatencyMiddleware(h.metrics))
	protected.Use(middleware.ClientMetadata)
	protected.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	protected.Post("/users", h.handleCreateUser)
	protected.Get("/users/{userID}", h.handleGetUser)

	r.Mount("/auth", public)
	r.Mount("/directory", protected)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *loginRequest) Validate() error {
	if req.Email == "" || req.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[loginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	token, user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"user":         user,
	})
}

type createUserRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
	ManagerID  string `json:"manager_id,omitempty"`

	params CreateUserParams
}

func (req *createUserRequest) Validate() error {
	role, err := id.ParseRole(req.Role)
	if err != nil {
		return err
	}
	params := CreateUserParams{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		Role:       role,
		Department: req.Department,
	}
	if req.ManagerID != "" {
		managerID, err := id.ParseUserID(req.ManagerID)
		if err != nil {
			return err
		}
		params.ManagerID = &managerID
	}
	req.params = params
	return nil
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	if requestcontext.Role(ctx) != id.RoleDirector {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "user administration requires the director role"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[createUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	user, err := h.users.CreateUser(ctx, req.params)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create user",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.users.Get(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
