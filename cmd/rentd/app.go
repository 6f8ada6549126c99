package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/config"
	"github.com/rentdesk/rentdesk-api/internal/handler"
	"github.com/rentdesk/rentdesk-api/internal/infra/cache"
	"github.com/rentdesk/rentdesk-api/internal/infra/mailer"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"
	"github.com/rentdesk/rentdesk-api/internal/infra/sqlstore"
	"github.com/rentdesk/rentdesk-api/internal/infra/stripepay"
	"github.com/rentdesk/rentdesk-api/internal/infra/supabase"
	"github.com/rentdesk/rentdesk-api/internal/port"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"go.uber.org/zap"
)

// app holds every long-lived collaborator. The entry point owns its lifecycle.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	store      port.EntityStore
	sql        *sqlstore.Store // nil on the supabase backend
	payments   *service.PaymentService
	property   *service.PropertyService
	components []handler.Component

	closers []func()
}

// loadApp reads configuration and builds the logger.
func loadApp() (*config.Config, *zap.Logger) {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("billing_timezone", cfg.BillingTimezone),
		zap.String("cron_schedule", cfg.CronSchedule),
		zap.String("webhook_verification", cfg.WebhookVerification),
		zap.Duration("store_timeout", cfg.StoreTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("stripe_configured", cfg.StripeSecretKey != ""),
		zap.Bool("sendgrid_configured", cfg.SendgridAPIKey != ""),
		zap.Bool("auth_configured", cfg.JWTSecret != ""),
	)
	return cfg, logger
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Entity store ---
	switch cfg.StoreBackend {
	case config.BackendSQL:
		db, err := sqlstore.Open(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store := sqlstore.New(db, resilience.NewCircuitBreaker("sql"), resilienceCfg, logger)
		store.SetCallTimeout(cfg.StoreTimeout)
		a.store = store
		a.sql = store
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.components = append(a.components, handler.Component{Name: "sql", Configured: true, Required: true, Check: store.Ping})
		logger.Info("using SQL entity store")

	case config.BackendSupabase:
		if cfg.SupabaseURL == "" {
			return nil, errors.New("SUPABASE_URL is required for the supabase backend")
		}
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.StoreTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		a.store = client
		a.components = append(a.components, handler.Component{Name: "supabase", Configured: true, Required: true, Check: client.Ping})
		logger.Info("using Supabase entity store", zap.String("supabase_url", cfg.SupabaseURL))

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	// --- Payment provider ---
	deps := service.PaymentDeps{
		Store:    a.store,
		Verifier: stripepay.NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.StrictWebhooks(), logger),
		Bulkhead: resilience.NewBulkhead(cfg.MaxConcurrency),
		Metrics:  a.metrics,
		Logger:   logger,
	}
	if cfg.StripeSecretKey != "" {
		deps.Provider = stripepay.NewCheckout(stripepay.Options{
			SecretKey:  cfg.StripeSecretKey,
			HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
			APIURL:     cfg.StripeAPIURL,
			MaxRetries: int64(cfg.MaxRetries),
		}, resilience.NewCircuitBreaker("stripe"), logger)
	} else {
		logger.Warn("stripe: STRIPE_SECRET_KEY not set, checkout unavailable")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("stripe: STRIPE_WEBHOOK_SECRET not set",
			zap.Bool("strict", cfg.StrictWebhooks()),
		)
	}
	a.components = append(a.components,
		handler.Component{Name: "stripe", Configured: cfg.StripeSecretKey != ""},
		handler.Component{Name: "stripe-webhook", Configured: cfg.StripeWebhookSecret != "" || !cfg.StrictWebhooks()},
	)

	// --- Reminder e-mail ---
	if cfg.SendgridAPIKey != "" {
		deps.Reminders = mailer.New(cfg.SendgridAPIKey, cfg.SendgridFromEmail, cfg.SendgridSandbox, logger)
	}
	a.components = append(a.components, handler.Component{Name: "sendgrid", Configured: cfg.SendgridAPIKey != ""})

	// --- Webhook de-duplication ---
	events := cache.New[bool](cfg.EventCacheTTL)
	deps.Events = events
	a.closers = append(a.closers, events.Close)

	// --- Services ---
	loc := cfg.Location()
	a.payments = service.NewPaymentService(deps, service.PaymentConfig{
		WebBaseURL:            cfg.WebBaseURL,
		Currency:              cfg.Currency,
		Location:              loc,
		LateGraceDays:         cfg.LateGraceDays,
		GenerationConcurrency: cfg.GenerationConcurrency,
	})
	a.property = service.NewPropertyService(a.store, loc, cfg.LateGraceDays, logger)

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// withTimeout derives a context for one CLI job.
func (a *app) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.JobTimeout)
}

// parseDay reads a YYYY-MM-DD flag as noon of that day in loc.
func parseDay(v string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return t.Add(12 * time.Hour), nil
}
