package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CreateCheckoutSession opens a hosted checkout for an unpaid payment and
// returns the provider's redirect URL.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, paymentID string) (*domain.CheckoutSession, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_checkout_session", time.Since(start)) }()

	if s.provider == nil {
		return nil, &domain.ErrNotConfigured{Component: "Stripe"}
	}

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentPaid {
		return nil, &domain.ErrAlreadyPaid{PaymentID: p.ID}
	}

	req := &domain.CheckoutRequest{
		PaymentID:   p.ID,
		LeaseID:     p.LeaseID,
		AmountMinor: domain.ToMinorUnits(p.Amount),
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("Rent %s", p.DueDate),
		SuccessURL:  s.redirectURL(p.ID, "success"),
		CancelURL:   s.redirectURL(p.ID, "cancel"),
	}

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	sess, err := s.provider.CreateSession(ctx, req)
	s.bulkhead.Release()
	if err != nil {
		s.metrics.IncrCheckout("error")
		s.metrics.IncrExternalError("stripe")
		s.logger.Error("checkout session failed",
			zap.String("payment_id", p.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrCheckout("created")
	s.logger.Info("checkout session created",
		zap.String("payment_id", p.ID),
		zap.String("lease_id", p.LeaseID),
		zap.String("session_id", sess.ID),
		zap.Int64("amount_minor", req.AmountMinor),
	)
	return sess, nil
}

func (s *PaymentService) redirectURL(paymentID, status string) string {
	base := strings.TrimRight(s.cfg.WebBaseURL, "/")
	return base + "/pay/" + url.PathEscape(paymentID) + "?status=" + status
}
