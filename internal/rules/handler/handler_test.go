package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"expenseflow/internal/platform/middleware"
	"expenseflow/internal/rules/models"
	"expenseflow/internal/rules/service"
	"expenseflow/internal/rules/store"
	id "expenseflow/pkg/domain"
)

type RuleHandlerSuite struct {
	suite.Suite
	router chi.Router
	role   id.Role
}

func TestRuleHandlerSuite(t *testing.T) {
	suite.Run(t, new(RuleHandlerSuite))
}

type roleValidator struct {
	role *id.Role
}

func (v roleValidator) ValidateToken(string) (*middleware.JWTClaims, error) {
	return &middleware.JWTClaims{UserID: id.NewUserID(), Role: *v.role}, nil
}

func (s *RuleHandlerSuite) SetupTest() {
	s.role = id.RoleDirector
	svc := service.NewService(store.NewInMemory(), nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, nil, roleValidator{role: &s.role})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *RuleHandlerSuite) doJSON(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func validRuleBody() map[string]any {
	return map[string]any{
		"name": "finance quorum",
		"kind": "percentage",
		"scope": map[string]any{
			"min_amount_cents": 10_000,
		},
		"percentage": map[string]any{
			"threshold": 0.5,
			"pool":      []string{"finance"},
		},
	}
}

func (s *RuleHandlerSuite) TestCreateAndFetchRule() {
	rec := s.doJSON(http.MethodPost, "/rules", validRuleBody())
	s.Require().Equal(http.StatusCreated, rec.Code)

	var created models.ApprovalRule
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))
	s.False(created.ID.IsNil())
	s.Equal(int64(1), created.Version)
	s.True(created.Active)

	rec = s.doJSON(http.MethodGet, "/rules/"+created.ID.String(), nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RuleHandlerSuite) TestCreateRuleValidation() {
	cases := map[string]func(map[string]any){
		"unknown kind": func(b map[string]any) { b["kind"] = "majority" },
		"threshold out of range": func(b map[string]any) {
			b["percentage"] = map[string]any{"threshold": 1.5, "pool": []string{"finance"}}
		},
		"empty pool": func(b map[string]any) {
			b["percentage"] = map[string]any{"threshold": 0.5, "pool": []string{}}
		},
		"missing config": func(b map[string]any) { delete(b, "percentage") },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			body := validRuleBody()
			mutate(body)
			rec := s.doJSON(http.MethodPost, "/rules", body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *RuleHandlerSuite) TestUpdateVersionConflict() {
	rec := s.doJSON(http.MethodPost, "/rules", validRuleBody())
	s.Require().Equal(http.StatusCreated, rec.Code)
	var created models.ApprovalRule
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))

	update := validRuleBody()
	update["name"] = "finance quorum v2"
	update["expected_version"] = 1
	rec = s.doJSON(http.MethodPut, "/rules/"+created.ID.String(), update)
	s.Require().Equal(http.StatusOK, rec.Code)

	// Same expected_version again: a concurrent edit already won.
	rec = s.doJSON(http.MethodPut, "/rules/"+created.ID.String(), update)
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *RuleHandlerSuite) TestDeactivateRemovesFromActiveListing() {
	rec := s.doJSON(http.MethodPost, "/rules", validRuleBody())
	s.Require().Equal(http.StatusCreated, rec.Code)
	var created models.ApprovalRule
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.doJSON(http.MethodPost, "/rules/"+created.ID.String()+"/deactivate", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.doJSON(http.MethodGet, "/rules?active=true", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var listing struct {
		Rules []models.ApprovalRule `json:"rules"`
	}
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &listing))
	s.Empty(listing.Rules)
}

func (s *RuleHandlerSuite) TestNonDirectorIsForbidden() {
	s.role = id.RoleManager
	rec := s.doJSON(http.MethodPost, "/rules", validRuleBody())
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.doJSON(http.MethodGet, "/rules", nil)
	s.Equal(http.StatusForbidden, rec.Code)
}
