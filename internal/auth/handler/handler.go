package handler

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bastion/internal/auth/models"
	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/httputil"
	"bastion/pkg/requestcontext"
)

// Service defines the account operations exposed over HTTP.
type Service interface {
	Signup(ctx context.Context, req *models.SignupRequest) (*models.AuthResult, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req *models.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, req *models.ChangePasswordRequest) error
	RequestEmailVerification(ctx context.Context, accountID id.AccountID) error
	VerifyEmail(ctx context.Context, req *models.VerifyEmailRequest) (*models.AccountView, error)
	GetAccount(ctx context.Context, accountID id.AccountID) (*models.AccountView, error)
}

// Handler serves the /auth endpoints.
type Handler struct {
	auth   Service
	logger *slog.Logger
}

func New(auth Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{auth: auth, logger: logger}
}

// RegisterAccountRoutes mounts signup and login. The caller applies the
// account-mutation rate limit and the CAPTCHA gate to r.
func (h *Handler) RegisterAccountRoutes(r chi.Router) {
	r.Post("/auth/signup", h.HandleSignup)
	r.Post("/auth/login", h.HandleLogin)
}

// RegisterRecoveryRoutes mounts the password-reset flow. The caller applies
// the password-reset rate limit and the CAPTCHA gate to r.
func (h *Handler) RegisterRecoveryRoutes(r chi.Router) {
	r.Post("/auth/password/forgot", h.HandleForgotPassword)
	r.Post("/auth/password/reset", h.HandleResetPassword)
}

// RegisterVerificationRoutes mounts email-token redemption.
func (h *Handler) RegisterVerificationRoutes(r chi.Router) {
	r.Post("/auth/verify", h.HandleVerifyEmail)
}

// RegisterProtected registers routes that need a bearer token. The caller
// wraps r with the auth middleware.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
	r.Post("/auth/verify/request", h.HandleRequestVerification)
}

// RegisterCredentialRoutes mounts the authenticated password change. The
// caller applies the auth middleware and the account-mutation rate limit.
func (h *Handler) RegisterCredentialRoutes(r chi.Router) {
	r.Post("/auth/password/change", h.HandleChangePassword)
}

// HandleSignup implements POST /auth/signup.
//
// Input: { "email": "a@example.com", "password": "...", "name": "...", "role": "user" }
// Output: 201 { "token": "...", "expires_at": "...", "user": {...} }
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SignupRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.auth.Signup(ctx, req)
	if err != nil {
		h.logFailure(ctx, "signup failed", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "signup successful",
		"request_id", requestID,
		"account_id", res.User.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleLogin implements POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.LoginRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		h.logFailure(ctx, "login failed", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login successful",
		"request_id", requestID,
		"account_id", res.User.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleForgotPassword implements POST /auth/password/forgot.
// The answer is the same whether or not the email exists and whether or not
// delivery worked, so the endpoint cannot be used to enumerate accounts.
func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[models.ForgotPasswordRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	if err := h.auth.RequestPasswordReset(ctx, req.Email); err != nil {
		h.logger.ErrorContext(ctx, "password reset request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteJSON(w, http.StatusOK, models.SuccessResult{Success: true})
}

// HandleResetPassword implements POST /auth/password/reset.
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ResetPasswordRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	if err := h.auth.ResetPassword(ctx, req); err != nil {
		h.logFailure(ctx, "password reset failed", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SuccessResult{Success: true})
}

// HandleChangePassword implements POST /auth/password/change.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ChangePasswordRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	req.AccountID = accountID

	if err := h.auth.ChangePassword(ctx, req); err != nil {
		h.logFailure(ctx, "password change failed", err,
			"request_id", requestID,
			"account_id", accountID.String(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SuccessResult{Success: true})
}

// HandleRequestVerification implements POST /auth/verify/request.
func (h *Handler) HandleRequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	if err := h.auth.RequestEmailVerification(ctx, accountID); err != nil {
		h.logFailure(ctx, "verification request failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"account_id", accountID.String(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.SuccessResult{Success: true})
}

// HandleVerifyEmail implements POST /auth/verify.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[models.VerifyEmailRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.auth.VerifyEmail(ctx, req)
	if err != nil {
		h.logFailure(ctx, "email verification failed", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleMe implements GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	view, err := h.auth.GetAccount(ctx, accountID)
	if err != nil {
		h.logFailure(ctx, "get account failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"account_id", accountID.String(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// requireAccount guards against a protected route mounted without the auth middleware.
func (h *Handler) requireAccount(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	accountID := requestcontext.AccountID(r.Context())
	if accountID.IsNil() {
		h.logger.WarnContext(r.Context(), "protected route reached without account in context",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.AccountID{}, false
	}
	return accountID, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.CodeOf(err) == dErrors.CodeFailedToSendEmail {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
