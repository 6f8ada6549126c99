package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/handler"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily payment generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := loadApp()
			defer logger.Sync()

			// --- Tracing ---
			shutdownTracer, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			defer shutdownTracer(context.Background())

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if a.sql != nil {
				ctx, cancel := a.withTimeout()
				err := a.sql.Migrate(ctx)
				cancel()
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			// --- Scheduler ---
			var sched *scheduler.Scheduler
			if cfg.CronSchedule != "" {
				sched = scheduler.New(cfg.Location(), logger)
				if err := sched.ScheduleDailyGeneration(cfg.CronSchedule, a.payments, cfg.JobTimeout); err != nil {
					return fmt.Errorf("schedule generation: %w", err)
				}
				sched.Start()
				logger.Info("in-process scheduler started", zap.String("schedule", cfg.CronSchedule))
			} else {
				logger.Info("in-process scheduler disabled, expecting POST /cron/payments/due")
			}

			// --- Router ---
			router := handler.NewRouter(handler.Deps{
				Payments:    a.payments,
				Property:    a.property,
				Auth:        handler.NewAuthenticator(cfg.JWTSecret, logger),
				Metrics:     a.metrics,
				Components:  a.components,
				CORSOrigins: cfg.CORSAllowedOrigins,
				Logger:      logger,
			})

			// --- Server ---
			readTimeout, writeTimeout, idleTimeout := cfg.ServerTimeouts()
			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      router,
				ReadTimeout:  readTimeout,
				WriteTimeout: writeTimeout,
				IdleTimeout:  idleTimeout,
			}

			// --- Graceful shutdown ---
			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", zap.Int("port", cfg.Port))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Info("server shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if sched != nil {
				sched.Stop(ctx)
			}
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced shutdown: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}
}
