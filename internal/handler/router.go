package handler

import (
	"context"
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Component is a collaborator reported by GET /readyz. Check may be nil for
// components that have nothing to ping.
type Component struct {
	Name       string
	Configured bool
	Required   bool
	Check      func(ctx context.Context) error
}

// Deps are the router's collaborators. Nil services leave their routes unmounted.
type Deps struct {
	Payments    *service.PaymentService
	Property    *service.PropertyService
	Auth        *Authenticator
	Metrics     *observability.Metrics
	Components  []Component
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics()
	}
	if d.Auth == nil {
		d.Auth = NewAuthenticator("", logger)
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(d.Components, logger))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))
	r.With(d.Auth.Operator).Get("/ops/stats", opsStatsHandler(d.Metrics))

	// --- Payments ---
	if d.Payments != nil {
		r.Post("/payments/{id}/checkout", checkoutHandler(d.Payments, logger))
		r.Post("/webhook/stripe", stripeWebhookHandler(d.Payments, logger))

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Operator)
			r.Post("/cron/payments/due", generateDueHandler(d.Payments, logger))
			r.Post("/webhook/payments", markPaidHandler(d.Payments, logger))
			r.Post("/webhook/payments/failed", markFailedHandler(d.Payments, logger))
			r.Post("/payments/{id}/retry", retryPaymentHandler(d.Payments, logger))
		})
	}

	// --- Owner API v1 ---
	if d.Property != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(d.Auth.Owner)
			r.Put("/owner", upsertOwnerHandler(d.Property, logger))
			r.Post("/onboarding", onboardingHandler(d.Property, logger))
			r.Get("/units", listUnitsHandler(d.Property, logger))
			r.Get("/units/{id}", getUnitHandler(d.Property, logger))
			r.Post("/units/{id}/leases", createLeaseHandler(d.Property, logger))
			r.Get("/tenants", listTenantsHandler(d.Property, logger))
			r.Get("/leases/{id}/payments", leasePaymentsHandler(d.Property, logger))
			r.Post("/leases/{id}/terminate", terminateLeaseHandler(d.Property, logger))
			r.Get("/payments/open", openPaymentsHandler(d.Property, logger))
		})
	}

	return r
}
