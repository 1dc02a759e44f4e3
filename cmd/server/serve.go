package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bastion/internal/platform/config"
	"bastion/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and its background workers. Settings come from
the environment, then the --config file, then flags.`,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.String("addr", "", "listen address (default :8080)")
	f.String("log-level", "", "log level: debug, info, warn or error")
	f.String("environment", "", "deployment environment")
	f.String("database-url", "", "PostgreSQL URL; accounts stay in memory when empty")
	f.String("redis-url", "", "Redis URL")
	f.String("kafka-brokers", "", "comma-separated Kafka brokers for mail dispatch")
	f.String("rate-limit-backend", "", "rate limit store: memory, postgres or redis")
	f.Bool("migrate-on-start", false, "apply pending migrations before serving")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing bastion",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)

	app, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		return err
	}
	defer app.close(log)

	return serve(ctx, cfg, app, log)
}

// serve runs the HTTP server and every worker until ctx is cancelled or one
// of them fails, then shuts the server down gracefully.
func serve(ctx context.Context, cfg config.Server, app *application, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	for _, w := range app.workers {
		g.Go(func() error {
			log.Info("starting worker", "worker", w.name)
			if err := w.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
