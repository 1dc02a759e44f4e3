package jwttoken

import (
	"bastion/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims narrows token claims to what the bearer middleware needs.
func ToMiddlewareClaims(claims *Claims) *auth.JWTClaims {
	return &auth.JWTClaims{
		AccountID: claims.AccountID,
		Role:      claims.Role,
		JTI:       claims.ID,
	}
}

// IssuerAdapter lets the bearer middleware validate tokens without importing this package.
type IssuerAdapter struct {
	issuer *Issuer
}

func NewIssuerAdapter(issuer *Issuer) *IssuerAdapter {
	return &IssuerAdapter{issuer: issuer}
}

func (a *IssuerAdapter) ValidateToken(tokenString string) (*auth.JWTClaims, error) {
	claims, err := a.issuer.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
