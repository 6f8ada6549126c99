package observability_test

import (
	"testing"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.RecordGeneration(&domain.GenerationResult{Created: 3, Existing: 1, Failed: 1})
	m.RecordGeneration(&domain.GenerationResult{Created: 1})
	m.RecordGeneration(&domain.GenerationResult{Skipped: true, Reason: "unsupported day"})
	m.IncrCheckout("created")
	m.IncrCheckout("created")
	m.IncrCheckout("created")
	m.IncrCheckout("error")
	m.IncrWebhookEvent(domain.EventCheckoutCompleted)
	m.IncrWebhookEvent("duplicate")
	m.IncrReconciled(observability.PathWebhook, "paid")
	m.IncrReconciled(observability.PathManual, "paid")
	m.IncrReconciled(observability.PathManual, "paid")
	m.IncrExternalError("stripe")
	m.IncrExternalError("supabase")

	s := m.Snapshot()
	assert.EqualValues(t, 2, s.GenerationRuns)
	assert.EqualValues(t, 1, s.GenerationSkipped)
	assert.EqualValues(t, 4, s.PaymentsCreated)
	assert.EqualValues(t, 1, s.PaymentsExisting)
	assert.EqualValues(t, 1, s.GenerationFailures)
	assert.EqualValues(t, 3, s.CheckoutSessions)
	assert.EqualValues(t, 1, s.CheckoutErrors)
	assert.InDelta(t, 0.75, s.CheckoutSuccessRate, 1e-9)
	assert.EqualValues(t, 2, s.WebhookEvents)
	assert.EqualValues(t, 1, s.DuplicateEvents)
	assert.EqualValues(t, 1, s.ReconciledWebhook)
	assert.EqualValues(t, 2, s.ReconciledManual)
	assert.EqualValues(t, 2, s.ExternalErrors)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.IncrCheckout("created")
	assert.EqualValues(t, 1, a.Snapshot().CheckoutSessions)
	assert.EqualValues(t, 0, b.Snapshot().CheckoutSessions)
}

func TestNewLogger_UnknownLevelFallsBack(t *testing.T) {
	assert.NotPanics(t, func() {
		l := observability.NewLogger("verbose")
		l.Info("hello")
	})
}
