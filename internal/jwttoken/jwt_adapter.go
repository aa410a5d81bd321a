package jwttoken

import (
	"expenseflow/internal/platform/middleware"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

// JWTServiceAdapter adapts JWTService to the middleware.JWTValidator
// interface, parsing the raw claim strings into domain types.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return &middleware.JWTClaims{
		UserID: userID,
		Role:   role,
	}, nil
}
