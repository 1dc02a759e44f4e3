package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bastion/internal/auth/email"
	authhandler "bastion/internal/auth/handler"
	"bastion/internal/auth/lockout"
	authmetrics "bastion/internal/auth/metrics"
	"bastion/internal/auth/password"
	"bastion/internal/auth/resettoken"
	authservice "bastion/internal/auth/service"
	accountstore "bastion/internal/auth/store/account"
	authcleanup "bastion/internal/auth/workers/cleanup"
	"bastion/internal/captcha"
	jwttoken "bastion/internal/jwt_token"
	"bastion/internal/platform/config"
	"bastion/internal/platform/database"
	"bastion/internal/platform/health"
	"bastion/internal/platform/kafka/producer"
	platformmetrics "bastion/internal/platform/metrics"
	redisclient "bastion/internal/platform/redis"
	rlmetrics "bastion/internal/ratelimit/metrics"
	rlmiddleware "bastion/internal/ratelimit/middleware"
	rlmodels "bastion/internal/ratelimit/models"
	"bastion/internal/ratelimit/service/limiter"
	"bastion/internal/ratelimit/store/bucket"
	rlcleanup "bastion/internal/ratelimit/workers/cleanup"
	"bastion/pkg/platform/middleware/metadata"
	"bastion/pkg/platform/middleware/request"
	"bastion/pkg/platform/tracer"
)

const poolStatsInterval = 15 * time.Second

// accountStore is everything the auth stack needs from the credential store.
type accountStore interface {
	authservice.AccountStore
	resettoken.Store
	authcleanup.ResetTokenStore
}

// worker is a long-running loop that stops when its context is cancelled.
type worker struct {
	name string
	run  func(ctx context.Context) error
}

// application is the wired process: its router, background loops and the
// resources to release on exit.
type application struct {
	router  http.Handler
	workers []worker
	closers []func() error
}

// close releases resources in reverse order of acquisition.
func (a *application) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("failed to release resource", "error", err)
		}
	}
}

// buildApp connects the optional backing services named in cfg and wires the
// auth, captcha and rate-limit stacks on top of them.
func buildApp(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *application, err error) {
	a := &application{}
	defer func() {
		if err != nil {
			a.close(log)
		}
	}()

	registry := platformmetrics.NewRegistry()
	checks := health.New(cfg.Environment)
	tr := tracer.NewOTel()

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		checks.RegisterCheck("database", pool.Health)
		if cfg.Database.MigrateOnStart {
			if err := migrateUp(cfg.Database.URL); err != nil {
				return nil, err
			}
			log.Info("database migrations applied")
		}
	}

	rdb, err := redisclient.New(ctx, cfg.Redis, redisclient.NewPoolMetrics(registry.Registry))
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		checks.RegisterCheck("redis", rdb.Health)
		a.workers = append(a.workers, worker{name: "redis pool stats", run: poolStatsLoop(rdb)})
	}

	var sender resettoken.Sender = email.NewLogSender(log)
	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prod.Close)
		checks.RegisterCheck("kafka", prod.Health)
		sender = email.NewKafkaSender(prod, cfg.Kafka.EmailTopic)
	} else {
		log.Warn("kafka brokers not configured, mail is written to the log")
	}

	var accounts accountStore = accountstore.NewInMemory()
	if pool != nil {
		accounts = accountstore.NewPostgres(pool.DB())
	} else {
		log.Warn("database url not configured, accounts are kept in memory")
	}

	authMetrics := authmetrics.New(registry.Registry)
	hasher := password.NewHasher(cfg.BcryptCost)
	policy := password.DefaultPolicy()

	lifecycle, err := resettoken.New(accounts, sender, hasher,
		resettoken.WithTTL(cfg.Reset.TokenTTL),
		resettoken.WithPasswordPolicy(policy),
		resettoken.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	issuer := jwttoken.NewIssuer(cfg.JWTSigningKey, cfg.TokenIssuer, cfg.TokenTTL)
	authSvc, err := authservice.New(accounts, hasher, issuer, lifecycle,
		authservice.WithLogger(log),
		authservice.WithMetrics(authMetrics),
		authservice.WithTracer(tr),
		authservice.WithLockoutPolicy(lockout.New(cfg.Lockout.Threshold, cfg.Lockout.Duration)),
		authservice.WithPasswordPolicy(policy),
	)
	if err != nil {
		return nil, err
	}

	resetCleanup, err := authcleanup.New(accounts,
		authcleanup.WithCleanupInterval(cfg.Reset.CleanupInterval),
		authcleanup.WithCleanupLogger(log),
		authcleanup.WithCleanupMetrics(authMetrics),
	)
	if err != nil {
		return nil, err
	}
	a.workers = append(a.workers, worker{name: "reset token cleanup", run: resetCleanup.Start})

	rateMetrics := rlmetrics.New(registry.Registry)
	store, sweepable, err := newBucketStore(cfg.RateLimit.Backend, pool, rdb)
	if err != nil {
		return nil, err
	}
	lim, err := limiter.New(store,
		limiter.WithLimit(rlmodels.BucketAccountMutation, toLimit(cfg.RateLimit.AccountMutation)),
		limiter.WithLimit(rlmodels.BucketPasswordReset, toLimit(cfg.RateLimit.PasswordReset)),
		limiter.WithMetrics(rateMetrics),
		limiter.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if sweepable != nil {
		sweeper := rlcleanup.New(sweepable, lim.MaxWindow(),
			rlcleanup.WithInterval(cfg.RateLimit.CleanupInterval),
			rlcleanup.WithMetrics(rateMetrics),
			rlcleanup.WithLogger(log),
		)
		a.workers = append(a.workers, worker{name: "rate limit cleanup", run: sweeper.Start})
	}

	verifier, err := newCaptchaVerifier(cfg.Captcha, registry, tr, log)
	if err != nil {
		return nil, err
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	a.router = NewRouter(RouterDeps{
		Logger:         log,
		Auth:           authhandler.New(authSvc, log),
		Tokens:         jwttoken.NewIssuerAdapter(issuer),
		RateLimit:      rlmiddleware.New(lim, log),
		Captcha:        verifier,
		Health:         checks,
		Metrics:        registry,
		Latency:        request.NewMetrics(registry.Registry),
		TrustedProxies: proxies,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	return a, nil
}

// newBucketStore picks the rate-limit backend. The second return value is the
// store to sweep periodically; it is nil for Redis, whose keys expire on their own.
func newBucketStore(backend string, pool *database.Pool, rdb *redisclient.Client) (limiter.BucketStore, rlcleanup.EventStore, error) {
	switch backend {
	case config.BackendMemory:
		s := bucket.NewInMemoryBucketStore()
		return s, s, nil
	case config.BackendPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres rate limit backend requires a database")
		}
		s := bucket.NewPostgres(pool.DB())
		return s, s, nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, errors.New("redis rate limit backend requires redis")
		}
		return bucket.NewRedis(rdb.Client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}

// newCaptchaVerifier returns nil when CAPTCHA is disabled, which lets every
// request through the gate.
func newCaptchaVerifier(cfg config.Captcha, reg *platformmetrics.Registry, tr tracer.Tracer, log *slog.Logger) (captcha.Verifier, error) {
	if cfg.Disabled {
		log.Warn("captcha verification disabled")
		return nil, nil
	}
	client, err := captcha.NewClient(cfg.VerifyURL, cfg.Secret,
		captcha.WithTimeout(cfg.Timeout),
		captcha.WithMetrics(captcha.NewMetrics(reg.Registry)),
		captcha.WithTracer(tr),
		captcha.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("captcha client: %w", err)
	}
	return client, nil
}

func toLimit(l config.Limit) rlmodels.Limit {
	return rlmodels.Limit{Requests: l.Requests, Window: l.Window}
}

func poolStatsLoop(rdb *redisclient.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rdb.RecordPoolStats()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
