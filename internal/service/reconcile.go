package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reconciliation outcomes, also used as metric labels.
const (
	outcomePaid     = "paid"
	outcomeNoop     = "noop"
	outcomeFailed   = "failed"
	outcomeReopened = "reopened"
)

// HandleWebhook verifies and applies one provider callback. Redelivered
// events are acknowledged without touching the store. Events for unknown
// payments are acknowledged too, so the provider stops retrying them.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.ProviderEvent, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	if s.verifier == nil {
		return nil, &domain.ErrNotConfigured{Component: "Stripe webhook"}
	}

	ev, err := s.verifier.ParseEvent(payload, signature)
	if err != nil {
		s.logger.Warn("webhook rejected", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.type", ev.Type),
	)

	if s.seen(ev.ID) {
		s.metrics.IncrWebhookEvent("duplicate")
		s.logger.Info("duplicate webhook event ignored",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
		)
		return ev, nil
	}
	s.metrics.IncrWebhookEvent(ev.Type)

	if err := s.applyEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.remember(ev.ID)
	return ev, nil
}

func (s *PaymentService) applyEvent(ctx context.Context, ev *domain.ProviderEvent) error {
	switch ev.Type {
	case domain.EventCheckoutCompleted, domain.EventCheckoutAsyncSucceeded:
		if ev.PaymentStatus == "unpaid" {
			s.logger.Info("checkout completed without settlement, awaiting async result",
				zap.String("event_id", ev.ID),
				zap.String("payment_id", ev.PaymentID),
			)
			return nil
		}
		if ev.PaymentID == "" {
			s.logger.Warn("webhook event without payment reference",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.Type),
			)
			return nil
		}
		upd := domain.PaidUpdate{Provider: domain.ProviderStripe, TxRef: ev.TxRef(), PaidAt: s.now().UTC()}
		_, err := s.markPaid(ctx, ev.PaymentID, upd, observability.PathWebhook)
		return ackUnknown(s.logger, ev, err)

	case domain.EventCheckoutAsyncFailed:
		if ev.PaymentID == "" {
			return nil
		}
		_, err := s.markFailed(ctx, ev.PaymentID, "async payment failed", observability.PathWebhook)
		var paid *domain.ErrAlreadyPaid
		if errors.As(err, &paid) {
			return nil
		}
		return ackUnknown(s.logger, ev, err)

	default:
		s.logger.Debug("webhook event ignored",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
		)
		return nil
	}
}

func ackUnknown(logger *zap.Logger, ev *domain.ProviderEvent, err error) error {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		logger.Warn("webhook event for unknown payment",
			zap.String("event_id", ev.ID),
			zap.String("payment_id", ev.PaymentID),
		)
		return nil
	}
	return err
}

func (s *PaymentService) seen(eventID string) bool {
	if s.events == nil || eventID == "" {
		return false
	}
	_, ok := s.events.Get(eventID)
	return ok
}

func (s *PaymentService) remember(eventID string) {
	if s.events == nil || eventID == "" {
		return
	}
	s.events.Set(eventID, true)
}

// MarkPaid confirms a payment outside the provider. A missing txRef gets a
// synthetic TX- reference; the stored provider is kept, MOCK when unset.
func (s *PaymentService) MarkPaid(ctx context.Context, paymentID, txRef string) (*domain.Payment, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == domain.PaymentPaid {
		s.metrics.IncrReconciled(observability.PathManual, outcomeNoop)
		s.logger.Info("payment already paid", zap.String("payment_id", p.ID))
		return p, nil
	}

	if strings.TrimSpace(txRef) == "" {
		txRef = SyntheticTxRef()
	}
	provider := p.Provider
	if provider == "" {
		provider = domain.ProviderMock
	}
	return s.markPaid(ctx, paymentID, domain.PaidUpdate{
		Provider: provider,
		TxRef:    txRef,
		PaidAt:   s.now().UTC(),
	}, observability.PathManual)
}

// SyntheticTxRef returns a reference of the form TX-<10 hex digits>.
func SyntheticTxRef() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TX-" + strings.ToUpper(id[:10])
}

// markPaid applies a paid transition once. A payment that is already paid is
// returned unchanged.
func (s *PaymentService) markPaid(ctx context.Context, paymentID string, upd domain.PaidUpdate, path string) (*domain.Payment, error) {
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("mark_paid", time.Since(start)) }()

	current, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.PaymentPaid {
		s.metrics.IncrReconciled(path, outcomeNoop)
		s.logger.Info("payment already paid",
			zap.String("payment_id", paymentID),
			zap.String("path", path),
			zap.String("tx_ref", current.TxRef),
		)
		return current, nil
	}

	applied, err := s.store.MarkPaymentPaid(ctx, paymentID, upd)
	if err != nil {
		s.logger.Error("mark paid failed",
			zap.String("payment_id", paymentID),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	outcome := outcomePaid
	if !applied {
		// Lost a race with a concurrent confirmation.
		outcome = outcomeNoop
	}
	s.metrics.IncrReconciled(path, outcome)

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if applied {
		s.logger.Info("payment marked paid",
			zap.String("payment_id", paymentID),
			zap.String("lease_id", p.LeaseID),
			zap.String("path", path),
			zap.String("provider", string(upd.Provider)),
			zap.String("tx_ref", upd.TxRef),
		)
	}
	return p, nil
}

// MarkFailed records a failed collection attempt on a pending or late payment.
func (s *PaymentService) MarkFailed(ctx context.Context, paymentID, reason string) (*domain.Payment, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.MarkFailed")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	if strings.TrimSpace(reason) == "" {
		reason = "payment failed"
	}
	return s.markFailed(ctx, paymentID, reason, observability.PathManual)
}

func (s *PaymentService) markFailed(ctx context.Context, paymentID, reason, path string) (*domain.Payment, error) {
	current, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.PaymentPaid:
		return nil, &domain.ErrAlreadyPaid{PaymentID: paymentID}
	case domain.PaymentFailed:
		s.metrics.IncrReconciled(path, outcomeNoop)
		return current, nil
	}

	applied, err := s.store.MarkPaymentFailed(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.metrics.IncrReconciled(path, outcomeNoop)
		if p.Status == domain.PaymentPaid {
			return nil, &domain.ErrAlreadyPaid{PaymentID: paymentID}
		}
		return p, nil
	}

	s.metrics.IncrReconciled(path, outcomeFailed)
	s.logger.Info("payment marked failed",
		zap.String("payment_id", paymentID),
		zap.String("path", path),
		zap.String("reason", reason),
	)
	return p, nil
}

// RetryPayment moves a failed payment back to pending so it can be collected again.
func (s *PaymentService) RetryPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.RetryPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	current, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.PaymentPaid:
		return nil, &domain.ErrAlreadyPaid{PaymentID: paymentID}
	case domain.PaymentFailed:
	default:
		return nil, &domain.ErrInvalidTransition{PaymentID: paymentID, From: current.Status, To: domain.PaymentPending}
	}

	applied, err := s.store.ReopenPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !applied && p.Status != domain.PaymentPending {
		return nil, &domain.ErrInvalidTransition{PaymentID: paymentID, From: p.Status, To: domain.PaymentPending}
	}
	if applied {
		s.metrics.IncrReconciled(observability.PathManual, outcomeReopened)
		s.logger.Info("payment reopened", zap.String("payment_id", paymentID))
	}
	return p, nil
}
