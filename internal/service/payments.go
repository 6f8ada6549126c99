// Package service provides the business logic layer (use cases).
// PaymentService owns the rent payment workflow: due-payment generation,
// checkout session creation and status reconciliation.
package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"
	"github.com/rentdesk/rentdesk-api/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var paymentTracer = otel.Tracer("service/payments")

// ReasonUnsupportedDay is reported for runs on days 29-31.
const ReasonUnsupportedDay = "unsupported day"

// PaymentConfig holds the billing settings of the payment workflow.
type PaymentConfig struct {
	WebBaseURL            string
	Currency              string
	Location              *time.Location
	LateGraceDays         int
	GenerationConcurrency int
}

// PaymentService generates, collects and reconciles rent payments.
type PaymentService struct {
	store     port.PaymentLedger
	provider  port.CheckoutProvider
	verifier  port.WebhookVerifier
	reminders port.ReminderSender
	events    port.Cache[bool]
	cfg       PaymentConfig
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// PaymentDeps are the collaborators of PaymentService. Provider, Verifier,
// Reminders and Events may be nil: checkout and webhooks then report
// NotConfigured, reminders are not e-mailed and events are not de-duplicated.
type PaymentDeps struct {
	Store     port.PaymentLedger
	Provider  port.CheckoutProvider
	Verifier  port.WebhookVerifier
	Reminders port.ReminderSender
	Events    port.Cache[bool]
	Bulkhead  *resilience.Bulkhead
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(deps PaymentDeps, cfg PaymentConfig) *PaymentService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.GenerationConcurrency < 1 {
		cfg.GenerationConcurrency = 1
	}
	if deps.Bulkhead == nil {
		deps.Bulkhead = resilience.NewBulkhead(10)
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &PaymentService{
		store:     deps.Store,
		provider:  deps.Provider,
		verifier:  deps.Verifier,
		reminders: deps.Reminders,
		events:    deps.Events,
		cfg:       cfg,
		bulkhead:  deps.Bulkhead,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Intended for tests and replays.
func (s *PaymentService) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current calendar day in the billing time zone.
func (s *PaymentService) Today() time.Time {
	return s.now().In(s.cfg.Location)
}

// Location returns the billing time zone.
func (s *PaymentService) Location() *time.Location {
	return s.cfg.Location
}

// CheckoutConfigured reports whether a payment provider is wired.
func (s *PaymentService) CheckoutConfigured() bool {
	return s.provider != nil
}

// WebhooksConfigured reports whether provider callbacks can be parsed.
func (s *PaymentService) WebhooksConfigured() bool {
	return s.verifier != nil
}

// ============================================================
// Payment Generator
// ============================================================

// GenerateDuePayments creates one pending payment for every lease active on
// today whose due day is today's day of month. The due date is today's date
// in the billing zone. Re-running for the same day creates nothing new: the
// store's unique (lease, due date) key decides. A lease that fails is
// reported in Failures and does not stop the others.
func (s *PaymentService) GenerateDuePayments(ctx context.Context, today time.Time) (*domain.GenerationResult, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.GenerateDuePayments")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("generate_due_payments", time.Since(start)) }()

	local := today.In(s.cfg.Location)
	dueDate := domain.ISODate(local)
	span.SetAttributes(attribute.String("payment.due_date", dueDate))

	res := &domain.GenerationResult{DueDate: dueDate, Failures: []domain.LeaseFailure{}}

	if local.Day() > domain.MaxDueDay {
		res.Skipped = true
		res.Reason = ReasonUnsupportedDay
		s.metrics.RecordGeneration(res)
		s.logger.Info("due-payment generation skipped",
			zap.String("due_date", dueDate),
			zap.String("reason", res.Reason),
		)
		return res, nil
	}

	leases, skipped, err := s.store.ListLeasesByDueDay(ctx, local.Day())
	if err != nil {
		s.logger.Error("listing leases for generation failed", zap.String("due_date", dueDate), zap.Error(err))
		return nil, err
	}
	for _, f := range skipped {
		s.logger.Warn("lease record skipped",
			zap.String("lease_id", f.LeaseID),
			zap.String("due_date", dueDate),
			zap.String("error", f.Error),
		)
		res.Failed++
		res.Failures = append(res.Failures, f)
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.cfg.GenerationConcurrency)

	for i := range leases {
		lease := &leases[i]
		if !lease.ActiveOn(dueDate) {
			continue
		}
		g.Go(func() error {
			created, err := s.generateForLease(ctx, lease, dueDate)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				res.Failures = append(res.Failures, domain.LeaseFailure{LeaseID: lease.ID, Error: err.Error()})
			case created:
				res.Created++
			default:
				res.Existing++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].LeaseID < res.Failures[j].LeaseID })
	s.metrics.RecordGeneration(res)

	span.SetAttributes(
		attribute.Int("payments.created", res.Created),
		attribute.Int("payments.failed", res.Failed),
	)
	s.logger.Info("due-payment generation completed",
		zap.String("due_date", dueDate),
		zap.Int("leases", len(leases)),
		zap.Int("created", res.Created),
		zap.Int("existing", res.Existing),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *PaymentService) generateForLease(ctx context.Context, lease *domain.Lease, dueDate string) (bool, error) {
	p := &domain.Payment{
		LeaseID:  lease.ID,
		Amount:   lease.Rent,
		DueDate:  dueDate,
		Status:   domain.PaymentPending,
		Provider: domain.ProviderFor(lease.PaymentMethod),
	}

	created, err := s.store.InsertPaymentIfAbsent(ctx, p)
	if err != nil {
		s.logger.Warn("payment generation failed for lease",
			zap.String("lease_id", lease.ID),
			zap.String("due_date", dueDate),
			zap.Error(err),
		)
		return false, err
	}
	if !created {
		s.logger.Debug("payment already exists",
			zap.String("lease_id", lease.ID),
			zap.String("due_date", dueDate),
		)
		return false, nil
	}

	s.logger.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("lease_id", lease.ID),
		zap.String("due_date", dueDate),
		zap.Float64("amount", p.Amount),
		zap.String("provider", string(p.Provider)),
	)

	n := domain.NewPaymentReminder(lease, p, s.cfg.Currency, s.now())
	s.sendReminder(ctx, n)
	if _, err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("reminder record not stored",
			zap.String("payment_id", p.ID),
			zap.Bool("sent", n.SentAt != nil),
			zap.Error(err),
		)
	}
	return true, nil
}

// sendReminder e-mails n when a sender is wired and stamps SentAt on
// delivery. Failures are only logged.
func (s *PaymentService) sendReminder(ctx context.Context, n *domain.Notification) {
	if s.reminders == nil || strings.TrimSpace(n.To) == "" {
		return
	}
	if err := s.reminders.SendReminder(ctx, n); err != nil {
		s.metrics.IncrExternalError("sendgrid")
		s.logger.Warn("reminder e-mail not sent",
			zap.String("lease_id", n.LeaseID),
			zap.String("payment_id", n.PaymentID),
			zap.Error(err),
		)
		return
	}
	sentAt := s.now()
	n.SentAt = &sentAt
}
