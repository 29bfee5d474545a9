package jwttoken

import (
	authmw "verigate/pkg/platform/middleware/auth"
)

// JWTServiceAdapter narrows JWTService to the auth middleware's validator
// interface so the middleware never sees jwt library types.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: claims.SubjectID(), JTI: claims.ID}, nil
}
