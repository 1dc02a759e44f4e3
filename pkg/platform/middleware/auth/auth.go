package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
	"bastion/pkg/requestcontext"
)

// JWTValidator checks a bearer token and returns its claims.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the token fields the middleware puts on the request context.
type JWTClaims struct {
	AccountID string
	Role      string
	JTI       string
}

const invalidTokenDescription = "Invalid or expired token"

// RequireAuth admits requests carrying a valid bearer token and records the
// account ID and role on the context. Every token problem gets the same
// invalid_token response; only a missing header is reported differently.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason string, err error, code dErrors.Code, desc string) {
				logger.WarnContext(ctx, "bearer authentication failed",
					"reason", reason,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="bastion"`)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            string(code),
					ErrorDescription: desc,
				})
			}

			token, ok := bearerToken(r)
			if !ok {
				reject("missing_token", nil, dErrors.CodeUnauthorized, "Missing or invalid Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject("invalid_token", err, dErrors.CodeInvalidToken, invalidTokenDescription)
				return
			}
			accountID, err := id.ParseAccountID(claims.AccountID)
			if err != nil {
				reject("malformed_claims", err, dErrors.CodeInvalidToken, invalidTokenDescription)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAccount(ctx, accountID, claims.Role)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
