package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AccountStore,TokenIssuer,PasswordHasher,TokenLifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/metrics"
	"bastion/internal/auth/models"
	"bastion/internal/auth/password"
	jwttoken "bastion/internal/jwt_token"
	id "bastion/pkg/domain"
	"bastion/pkg/platform/tracer"
)

// AccountStore is the slice of the credential store the service drives directly.
// Error Contract: Find and update methods return sentinel.ErrNotFound for unknown
// accounts; Create returns sentinel.ErrAlreadyUsed for a taken email;
// RecordSuccess returns sentinel.ErrLocked while a lock is live at now.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	RecordFailedAttempt(ctx context.Context, accountID id.AccountID, policy lockout.Policy, now time.Time) (lockout.Transition, error)
	RecordSuccess(ctx context.Context, accountID id.AccountID, now time.Time) error
	SetPassword(ctx context.Context, accountID id.AccountID, passwordHash string, now time.Time) error
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, accountID id.AccountID, role string) (jwttoken.SignedToken, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
	DummyCompare(password string)
}

// TokenLifecycle issues and redeems one-time reset and verification tokens.
// Errors are already domain errors.
type TokenLifecycle interface {
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, raw, newPassword string) (*models.Account, error)
	RequestVerification(ctx context.Context, accountID id.AccountID) error
	ConsumeVerification(ctx context.Context, raw string) (*models.Account, error)
}

// Service implements signup, login and the token-backed account flows.
type Service struct {
	accounts  AccountStore
	hasher    PasswordHasher
	tokens    TokenIssuer
	lifecycle TokenLifecycle

	lockout        lockout.Policy
	passwordPolicy password.Policy

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithLockoutPolicy sets the failed-login threshold and lock duration.
func WithLockoutPolicy(p lockout.Policy) Option {
	return func(s *Service) {
		s.lockout = p
	}
}

func WithPasswordPolicy(p password.Policy) Option {
	return func(s *Service) {
		s.passwordPolicy = p
	}
}

func New(accounts AccountStore, hasher PasswordHasher, tokens TokenIssuer, lifecycle TokenLifecycle, opts ...Option) (*Service, error) {
	if accounts == nil {
		return nil, errors.New("accounts store is required")
	}
	if hasher == nil || tokens == nil || lifecycle == nil {
		return nil, errors.New("hasher, token issuer and token lifecycle are required")
	}
	svc := &Service{
		accounts:       accounts,
		hasher:         hasher,
		tokens:         tokens,
		lifecycle:      lifecycle,
		lockout:        lockout.DefaultPolicy(),
		passwordPolicy: password.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc, nil
}
