package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
)

// DefaultTTL is the bearer token lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Claims are the bearer token claims issued after signup and login.
type Claims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// SignedToken is an encoded token together with its expiry.
type SignedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 bearer tokens. It holds no per-token state.
type Issuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewIssuer(signingKey, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(ctx context.Context, accountID id.AccountID, role string) (SignedToken, error) {
	if accountID.IsNil() {
		return SignedToken{}, dErrors.New(dErrors.CodeBadRequest, "account ID required")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return SignedToken{}, fmt.Errorf("generate jti: %w", err)
	}
	now := requesttime.Now(ctx)
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: accountID.String(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
			ID:        hex.EncodeToString(b),
		},
	})

	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return SignedToken{}, fmt.Errorf("sign token: %w", err)
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return SignedToken{Token: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Verify checks signature, algorithm, issuer and expiry. Every failure yields
// the same invalid_token error so callers cannot tell them apart.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, invalidToken()
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return i.signingKey, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, invalidToken()
	}
	if claims.AccountID == "" {
		return nil, invalidToken()
	}
	return claims, nil
}

func invalidToken() error {
	return dErrors.New(dErrors.CodeInvalidToken, "invalid or expired token")
}
