package token

import (
	"civreg/internal/platform/middleware"
)

// JWTServiceAdapter bridges JWTService to the middleware validator contract.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		UserID:   claims.UserID,
		Scopes:   claims.Scopes,
		OfficeID: claims.OfficeID,
	}, nil
}
