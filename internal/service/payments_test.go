package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var rome = time.FixedZone("CET", 3600)

type paymentFixture struct {
	store     *memStore
	checkout  *mockCheckout
	verifier  *mockVerifier
	reminders *mockReminder
	metrics   *observability.Metrics
	svc       *service.PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		store:     newMemStore(),
		checkout:  &mockCheckout{},
		verifier:  &mockVerifier{},
		reminders: &mockReminder{},
		metrics:   observability.NewMetrics(),
	}
	f.svc = service.NewPaymentService(service.PaymentDeps{
		Store:     f.store,
		Provider:  f.checkout,
		Verifier:  f.verifier,
		Reminders: f.reminders,
		Events:    newEventCache(t),
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	}, service.PaymentConfig{
		WebBaseURL:            "https://app.rentdesk.test/",
		Currency:              "eur",
		Location:              rome,
		GenerationConcurrency: 4,
	})
	f.svc.SetClock(func() time.Time { return time.Date(2024, 5, 5, 9, 0, 0, 0, rome) })
	return f
}

func (f *paymentFixture) addLease(id string, dueDay int, rent float64, method domain.PaymentMethod) {
	f.store.leases[id] = domain.Lease{
		ID:            id,
		UnitID:        "unit-" + id,
		TenantID:      "tenant-" + id,
		StartDate:     "2024-01-01",
		Rent:          rent,
		DueDay:        dueDay,
		PaymentMethod: method,
		TenantEmail:   id + "@tenants.test",
	}
}

func may(day int) time.Time {
	return time.Date(2024, 5, day, 8, 0, 0, 0, rome)
}

// ============================================================
// Generator
// ============================================================

func TestGenerateDuePayments_CreatesPendingPaymentAndReminder(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodSEPAMandate)
	f.addLease("L2", 6, 800, domain.MethodManual)

	res, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, "2024-05-05", res.DueDate)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Failed)

	payments, _ := f.store.ListPaymentsByLease(context.Background(), "L1")
	require.Len(t, payments, 1)
	p := payments[0]
	assert.Equal(t, 1000.0, p.Amount)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, domain.ProviderSEPA, p.Provider)
	assert.Equal(t, "2024-05-05", p.DueDate)

	notes, _ := f.store.ListNotificationsByLease(context.Background(), "L1")
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationPaymentReminder, notes[0].Type)
	assert.Equal(t, "L1@tenants.test", notes[0].To)
	assert.Equal(t, p.ID, notes[0].PaymentID)

	require.Len(t, f.reminders.sent, 1)
	assert.Equal(t, "L1@tenants.test", f.reminders.sent[0].To)
	require.NotNil(t, notes[0].SentAt)
	assert.Equal(t, time.Date(2024, 5, 5, 9, 0, 0, 0, rome), *notes[0].SentAt)
}

func TestGenerateDuePayments_SecondRunSameDayCreatesNothing(t *testing.T) {
	for _, day := range []int{1, 5, 17, 28} {
		f := newPaymentFixture(t)
		f.addLease("L1", day, 1000, domain.MethodSEPAMandate)
		f.addLease("L2", day, 650, domain.MethodManual)

		first, err := f.svc.GenerateDuePayments(context.Background(), may(day))
		require.NoError(t, err)
		assert.Equal(t, 2, first.Created, "day %d", day)

		second, err := f.svc.GenerateDuePayments(context.Background(), may(day))
		require.NoError(t, err)
		assert.Equal(t, 0, second.Created, "day %d", day)
		assert.Equal(t, 2, second.Existing, "day %d", day)
		assert.Len(t, f.store.payments, 2)
		assert.Len(t, f.store.notifications, 2)
	}
}

func TestGenerateDuePayments_SkipsDaysAfter28(t *testing.T) {
	for _, day := range []int{29, 30, 31} {
		f := newPaymentFixture(t)
		f.addLease("L1", 28, 1000, domain.MethodManual)

		res, err := f.svc.GenerateDuePayments(context.Background(), may(day))
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, service.ReasonUnsupportedDay, res.Reason)
		assert.Empty(t, f.store.payments)
		assert.Empty(t, f.store.notifications)
	}

	f := newPaymentFixture(t)
	_, _ = f.svc.GenerateDuePayments(context.Background(), may(31))
	assert.Equal(t, int64(1), f.metrics.Snapshot().GenerationSkipped)
}

func TestGenerateDuePayments_EvaluatesTodayInBillingZone(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)

	// 23:30 UTC on the 4th is already the 5th in the billing zone.
	res, err := f.svc.GenerateDuePayments(context.Background(), time.Date(2024, 5, 4, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-05", res.DueDate)
	assert.Equal(t, 1, res.Created)
}

func TestGenerateDuePayments_BillsOnlyActiveLeases(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("active", 5, 1000, domain.MethodManual)
	f.addLease("future", 5, 1000, domain.MethodManual)
	f.addLease("ended", 5, 1000, domain.MethodManual)
	f.addLease("ends-today", 5, 1000, domain.MethodManual)

	future := f.store.leases["future"]
	future.StartDate = "2024-06-01"
	f.store.leases["future"] = future
	ended := f.store.leases["ended"]
	ended.EndDate = "2024-04-30"
	f.store.leases["ended"] = ended
	endsToday := f.store.leases["ends-today"]
	endsToday.EndDate = "2024-05-05"
	f.store.leases["ends-today"] = endsToday

	res, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
}

func TestGenerateDuePayments_LeaseFailureDoesNotAbortBatch(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)
	f.addLease("L2", 5, 900, domain.MethodManual)
	f.addLease("L3", 5, 700, domain.MethodManual)
	f.store.failInsertFor["L2"] = &domain.ErrStoreUnavailable{Op: "payments.insert", Err: errors.New("timeout")}

	res, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "L2", res.Failures[0].LeaseID)
	assert.Contains(t, res.Failures[0].Error, "store unavailable")

	stats := f.metrics.Snapshot()
	assert.Equal(t, int64(2), stats.PaymentsCreated)
	assert.Equal(t, int64(1), stats.GenerationFailures)
}

func TestGenerateDuePayments_MalformedLeaseDoesNotBlockOthers(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)
	f.addLease("L2", 5, 900, domain.MethodManual)
	bad := f.store.leases["L2"]
	bad.TenantEmail = "n/a"
	f.store.leases["L2"] = bad

	res, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "L2", res.Failures[0].LeaseID)
	assert.Contains(t, res.Failures[0].Error, "malformed leases record")

	payments, _ := f.store.ListPaymentsByLease(context.Background(), "L1")
	assert.Len(t, payments, 1)
	payments, _ = f.store.ListPaymentsByLease(context.Background(), "L2")
	assert.Empty(t, payments)
	assert.Equal(t, int64(1), f.metrics.Snapshot().GenerationFailures)
}

func TestGenerateDuePayments_ReminderFailuresAreBestEffort(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)
	f.store.failNotify = errors.New("disk full")
	f.reminders.err = errors.New("sendgrid down")

	res, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, int64(1), f.metrics.Snapshot().ExternalErrors)
}

func TestGenerateDuePayments_UndeliveredReminderStaysUnsent(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)
	f.reminders.err = errors.New("sendgrid down")

	_, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)

	notes, _ := f.store.ListNotificationsByLease(context.Background(), "L1")
	require.Len(t, notes, 1)
	assert.Nil(t, notes[0].SentAt)
}

func TestGenerateDuePayments_NoReminderWithoutTenantEmail(t *testing.T) {
	f := newPaymentFixture(t)
	f.addLease("L1", 5, 1000, domain.MethodManual)
	l := f.store.leases["L1"]
	l.TenantEmail = ""
	f.store.leases["L1"] = l

	_, err := f.svc.GenerateDuePayments(context.Background(), may(5))
	require.NoError(t, err)
	assert.Empty(t, f.reminders.sent)
	assert.Len(t, f.store.notifications, 1)
}
