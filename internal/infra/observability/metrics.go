package observability

import (
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Reconciliation paths.
const (
	PathWebhook = "webhook"
	PathManual  = "manual"
)

// Metrics holds all Prometheus metrics for rentd.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	generationRuns   *prometheus.CounterVec
	paymentsByResult *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	reconciled       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rentd_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		generationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_generation_runs_total",
				Help: "Due-payment generation runs by outcome.",
			},
			[]string{"result"},
		),
		paymentsByResult: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_generated_payments_total",
				Help: "Leases processed by the generator, by outcome.",
			},
			[]string{"result"},
		),
		checkoutSessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_checkout_sessions_total",
				Help: "Checkout session requests by outcome.",
			},
			[]string{"result"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_webhook_events_total",
				Help: "Provider webhook events received, by type.",
			},
			[]string{"type"},
		),
		reconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentd_reconciled_payments_total",
				Help: "Payment status transitions applied, by path and result.",
			},
			[]string{"path", "result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// RecordGeneration records one generator run.
func (m *Metrics) RecordGeneration(res *domain.GenerationResult) {
	if res.Skipped {
		m.generationRuns.WithLabelValues("skipped").Inc()
		return
	}
	m.generationRuns.WithLabelValues("completed").Inc()
	m.paymentsByResult.WithLabelValues("created").Add(float64(res.Created))
	m.paymentsByResult.WithLabelValues("existing").Add(float64(res.Existing))
	m.paymentsByResult.WithLabelValues("failed").Add(float64(res.Failed))
}

// IncrCheckout increments the checkout session counter ("created" or "error").
func (m *Metrics) IncrCheckout(result string) {
	m.checkoutSessions.WithLabelValues(result).Inc()
}

// IncrWebhookEvent counts a received provider event. Redeliveries use "duplicate".
func (m *Metrics) IncrWebhookEvent(eventType string) {
	m.webhookEvents.WithLabelValues(eventType).Inc()
}

// IncrReconciled counts an applied status transition.
func (m *Metrics) IncrReconciled(path, result string) {
	m.reconciled.WithLabelValues(path, result).Inc()
}

// Snapshot returns counters suitable for the GET /ops/stats endpoint.
func (m *Metrics) Snapshot() *domain.OpsStats {
	created := getCounterValue(m.checkoutSessions, "created")
	checkoutErrors := getCounterValue(m.checkoutSessions, "error")

	successRate := float64(0)
	if created+checkoutErrors > 0 {
		successRate = created / (created + checkoutErrors)
	}

	return &domain.OpsStats{
		GenerationRuns:      int64(getCounterValue(m.generationRuns, "completed")),
		GenerationSkipped:   int64(getCounterValue(m.generationRuns, "skipped")),
		PaymentsCreated:     int64(getCounterValue(m.paymentsByResult, "created")),
		PaymentsExisting:    int64(getCounterValue(m.paymentsByResult, "existing")),
		GenerationFailures:  int64(getCounterValue(m.paymentsByResult, "failed")),
		CheckoutSessions:    int64(created),
		CheckoutErrors:      int64(checkoutErrors),
		WebhookEvents:       int64(sumCounter(m.webhookEvents)),
		DuplicateEvents:     int64(getCounterValue(m.webhookEvents, "duplicate")),
		ReconciledWebhook:   int64(getCounterValue(m.reconciled, PathWebhook, "paid")),
		ReconciledManual:    int64(getCounterValue(m.reconciled, PathManual, "paid")),
		ExternalErrors:      int64(sumCounter(m.externalErrors)),
		CheckoutSuccessRate: successRate,
		Period:              "since_start",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounter adds up every label combination of a CounterVec.
func sumCounter(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
