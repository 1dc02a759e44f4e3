package main

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	authhandler "bastion/internal/auth/handler"
	"bastion/internal/captcha"
	"bastion/internal/platform/health"
	platformmetrics "bastion/internal/platform/metrics"
	rlmiddleware "bastion/internal/ratelimit/middleware"
	rlmodels "bastion/internal/ratelimit/models"
	"bastion/pkg/platform/middleware/auth"
	"bastion/pkg/platform/middleware/metadata"
	"bastion/pkg/platform/middleware/request"
	"bastion/pkg/platform/middleware/requesttime"
)

// RouterDeps are the handlers and gates the HTTP surface is assembled from.
// A nil Captcha disables CAPTCHA checks.
type RouterDeps struct {
	Logger         *slog.Logger
	Auth           *authhandler.Handler
	Tokens         auth.JWTValidator
	RateLimit      *rlmiddleware.Middleware
	Captcha        captcha.Verifier
	Health         *health.Handler
	Metrics        *platformmetrics.Registry
	Latency        *request.Metrics
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter mounts every route with its middleware chain:
//
//	signup, login               account-mutation limit + CAPTCHA
//	password forgot, reset      password-reset limit + CAPTCHA
//	verify                      password-reset limit
//	password change             bearer token + account-mutation limit
//	me, verify request          bearer token
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(metadata.Config{TrustedProxies: d.TrustedProxies}).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.Logger))
	if d.Latency != nil {
		r.Use(request.Latency(d.Latency))
	}

	d.Health.Register(r)
	if d.Metrics != nil {
		d.Metrics.Register(r)
	}

	requireCaptcha := captcha.Require(d.Captcha, d.Logger)

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(d.RequestTimeout))
		r.Use(request.BodyLimit(d.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(d.RateLimit.RateLimit(rlmodels.BucketAccountMutation))
			r.Use(requireCaptcha)
			d.Auth.RegisterAccountRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(d.RateLimit.RateLimit(rlmodels.BucketPasswordReset))
			r.With(requireCaptcha).Group(d.Auth.RegisterRecoveryRoutes)
			d.Auth.RegisterVerificationRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.Tokens, d.Logger))
			d.Auth.RegisterProtected(r)
			r.With(d.RateLimit.RateLimit(rlmodels.BucketAccountMutation)).Group(d.Auth.RegisterCredentialRoutes)
		})
	})

	return r
}
