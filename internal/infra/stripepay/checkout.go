// Package stripepay adapts Stripe Checkout: it opens hosted payment sessions
// and turns signed webhook deliveries into provider events.
package stripepay

import (
	"context"
	"errors"
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("stripe")

// Metadata keys written on every session and read back from webhooks.
const (
	MetadataPaymentID = "paymentId"
	MetadataLeaseID   = "leaseId"
)

// Options configures the checkout client.
type Options struct {
	SecretKey  string
	HTTPClient *http.Client
	// APIURL overrides the Stripe API base URL; tests point it at httptest.
	APIURL     string
	MaxRetries int64
}

// Checkout opens Stripe Checkout sessions.
type Checkout struct {
	sessions session.Client
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewCheckout builds a client with its own backend, so the package-level
// stripe.Key is never touched.
func NewCheckout(opts Options, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Checkout {
	cfg := &stripe.BackendConfig{
		HTTPClient:        opts.HTTPClient,
		MaxNetworkRetries: stripe.Int64(opts.MaxRetries),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	if opts.APIURL != "" {
		cfg.URL = stripe.String(opts.APIURL)
	}

	return &Checkout{
		sessions: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: opts.SecretKey,
		},
		cb:     cb,
		logger: logger,
	}
}

// CreateSession opens a one-line-item card checkout for a single payment.
func (c *Checkout) CreateSession(ctx context.Context, req *domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "Stripe.CreateSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", req.PaymentID),
		attribute.Int64("payment.amount_minor", req.AmountMinor),
	)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
	}
	params.AddMetadata(MetadataPaymentID, req.PaymentID)
	params.AddMetadata(MetadataLeaseID, req.LeaseID)
	params.Context = ctx

	result, err := c.cb.Execute(func() (any, error) {
		s, err := c.sessions.New(params)
		if err != nil {
			var serr *stripe.Error
			if errors.As(err, &serr) && serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 && serr.HTTPStatusCode != http.StatusTooManyRequests {
				return nil, resilience.Permanent(err)
			}
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		if resilience.IsBreakerRejection(err) {
			return nil, &domain.ErrCircuitOpen{Service: "stripe"}
		}
		c.logger.Error("stripe: create checkout session failed",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: "stripe", Err: err}
	}

	s := result.(*stripe.CheckoutSession)
	span.SetAttributes(attribute.String("stripe.session_id", s.ID))
	return &domain.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}
