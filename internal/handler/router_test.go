package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/handler"
	"github.com/rentdesk/rentdesk-api/internal/infra/cache"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"
	"github.com/rentdesk/rentdesk-api/internal/infra/sqlstore"
	"github.com/rentdesk/rentdesk-api/internal/infra/stripepay"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const (
	jwtSecret     = "router-test-secret"
	webhookSecret = "whsec_router_test"
)

// --- Mocks ---

type stubCheckout struct {
	last *domain.CheckoutRequest
}

func (s *stubCheckout) CreateSession(_ context.Context, req *domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	s.last = req
	return &domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

// --- Fixture ---

type env struct {
	t        *testing.T
	router   http.Handler
	store    *sqlstore.Store
	checkout *stubCheckout
	auth     *handler.Authenticator
	metrics  *observability.Metrics
}

func newEnv(t *testing.T, withProvider bool) *env {
	t.Helper()
	logger := zap.NewNop()

	db, err := sqlstore.Open(":memory:", logger)
	require.NoError(t, err)
	store := sqlstore.New(db, resilience.NewCircuitBreaker("sql-router-test"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}, logger)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	events := cache.New[bool](time.Hour)
	t.Cleanup(events.Close)

	e := &env{t: t, store: store, checkout: &stubCheckout{}, metrics: observability.NewMetrics()}
	deps := service.PaymentDeps{
		Store:    store,
		Verifier: stripepay.NewWebhookVerifier(webhookSecret, true, logger),
		Events:   events,
		Metrics:  e.metrics,
		Logger:   logger,
	}
	if withProvider {
		deps.Provider = e.checkout
	}
	loc := time.FixedZone("CET", 3600)
	payments := service.NewPaymentService(deps, service.PaymentConfig{
		WebBaseURL: "https://app.rentdesk.test",
		Currency:   "eur",
		Location:   loc,
	})
	property := service.NewPropertyService(store, loc, 0, logger)
	property.SetClock(func() time.Time { return time.Date(2024, 5, 5, 12, 0, 0, 0, loc) })

	e.auth = handler.NewAuthenticator(jwtSecret, logger)
	e.router = handler.NewRouter(handler.Deps{
		Payments: payments,
		Property: property,
		Auth:     e.auth,
		Metrics:  e.metrics,
		Components: []handler.Component{
			{Name: "store", Configured: true, Required: true, Check: store.Ping},
			{Name: "stripe", Configured: withProvider},
		},
		Logger: logger,
	})
	return e
}

func (e *env) token(sub, role string) string {
	tok, err := e.auth.IssueToken(sub, role, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) stripe(payload string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *env) onboard(dueDay int) *domain.OnboardingResult {
	owner := e.token("owner-1", "authenticated")
	rec := e.do(http.MethodPost, "/v1/onboarding", owner, map[string]any{
		"unit":   map[string]any{"address": "Via Roma 1", "city": "Milano", "rooms": 3, "m2": 80, "rentAsk": 1200},
		"assets": []map[string]any{{"type": "boiler", "nextCertificationDate": "2025-01-10"}},
		"tenant": map[string]any{"name": "Mario Rossi", "email": "mario@tenants.test"},
		"lease": map[string]any{
			"startDate": "2024-05-01", "rent": 1000, "dueDay": dueDay,
			"paymentMethod": "SEPA_MANDATE", "mandateRef": "MNDT-1",
		},
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[domain.OnboardingResult](e.t, rec)
	return &res
}

func completedEvent(eventID, paymentID string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "payment_intent": "pi_123",
    "payment_status": "paid",
    "metadata": {"paymentId": %q}
  }}
}`, eventID, paymentID)
}

// ============================================================
// Operational endpoints
// ============================================================

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Deps{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	e := newEnv(t, false)

	rec := e.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	status := decode[domain.ReadinessStatus](t, rec)
	assert.Equal(t, "degraded", status.Status)
	require.Len(t, status.Components, 2)
}

func TestReadyz_RequiredComponentDown(t *testing.T) {
	router := handler.NewRouter(handler.Deps{Components: []handler.Component{{
		Name: "store", Configured: true, Required: true,
		Check: func(context.Context) error { return errors.New("connection refused") },
	}}})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	e := newEnv(t, true)
	e.onboard(5)
	e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", e.token("ops", handler.RoleOperator), nil)

	rec := e.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rentd_generated_payments_total{result="created"} 1`)
}

// ============================================================
// End-to-end payment lifecycle
// ============================================================

func TestPaymentLifecycle(t *testing.T) {
	e := newEnv(t, true)
	ops := e.token("ops", handler.RoleOperator)
	owner := e.token("owner-1", "authenticated")
	onboarded := e.onboard(5)

	// Generate twice on the due day.
	rec := e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", ops, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	assert.Equal(t, true, first["ok"])
	assert.Equal(t, float64(1), first["created"])

	rec = e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", ops, nil)
	second := decode[map[string]any](t, rec)
	assert.Equal(t, float64(0), second["created"])

	// Owner sees one pending payment.
	rec = e.do(http.MethodGet, "/v1/leases/"+onboarded.Lease.ID+"/payments", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[struct{ Payments []domain.Payment }](t, rec)
	require.Len(t, list.Payments, 1)
	p := list.Payments[0]
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, domain.ProviderSEPA, p.Provider)
	assert.Equal(t, "2024-05-05", p.DueDate)
	assert.Equal(t, 1000.0, p.Amount)

	// Checkout.
	rec = e.do(http.MethodPost, "/payments/"+p.ID+"/checkout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", decode[map[string]string](t, rec)["url"])
	assert.Equal(t, int64(100000), e.checkout.last.AmountMinor)

	// Provider confirms.
	rec = e.stripe(completedEvent("evt_1", p.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	paid, err := e.store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)
	assert.Equal(t, domain.ProviderStripe, paid.Provider)
	assert.Equal(t, "pi_123", paid.TxRef)
	require.NotNil(t, paid.PaidAt)

	// Second checkout is rejected, late manual confirmation changes nothing.
	rec = e.do(http.MethodPost, "/payments/"+p.ID+"/checkout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/webhook/payments", ops, map[string]string{"paymentId": p.ID, "txRef": "TX-OTHER"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, err := e.store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", after.TxRef)
	assert.True(t, paid.PaidAt.Equal(*after.PaidAt))

	stats := decode[domain.OpsStats](t, e.do(http.MethodGet, "/ops/stats", ops, nil))
	assert.Equal(t, int64(1), stats.PaymentsCreated)
	assert.Equal(t, int64(1), stats.ReconciledWebhook)
	assert.Equal(t, int64(1), stats.CheckoutSessions)
}

func TestGenerateDue_SkipsUnsupportedDay(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/cron/payments/due?date=2024-05-30", "", nil)
	// no operator token with a secret configured
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/cron/payments/due?date=2024-05-30", e.token("ops", handler.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, "unsupported day", body["reason"])
}

func TestGenerateDue_BadDate(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/cron/payments/due?date=05/05/2024", e.token("ops", handler.RoleOperator), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorRoutes_RequireOperatorRole(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/cron/payments/due", e.token("owner-1", "authenticated"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodPost, "/cron/payments/due", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperatorRoutes_OpenWithoutSecret(t *testing.T) {
	router := newOpenRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func newOpenRouter(t *testing.T) http.Handler {
	t.Helper()
	return handler.NewRouter(handler.Deps{Auth: handler.NewAuthenticator("", zap.NewNop())})
}

func TestOwnerRoutes_RequireToken(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodGet, "/v1/units", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

// ============================================================
// Checkout errors
// ============================================================

func TestCheckout_UnknownPayment(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/payments/nope/checkout", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Payment not found"}`, rec.Body.String())
}

func TestCheckout_NotConfigured(t *testing.T) {
	e := newEnv(t, false)
	e.onboard(5)
	e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", e.token("ops", handler.RoleOperator), nil)

	payments, err := e.store.ListOpenPaymentsByLeases(context.Background(), leaseIDs(t, e))
	require.NoError(t, err)
	require.Len(t, payments, 1)

	rec := e.do(http.MethodPost, "/payments/"+payments[0].ID+"/checkout", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func leaseIDs(t *testing.T, e *env) []string {
	t.Helper()
	units, err := e.store.ListUnitsByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	var ids []string
	for _, u := range units {
		leases, err := e.store.ListLeasesByUnit(context.Background(), u.ID)
		require.NoError(t, err)
		for _, l := range leases {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// ============================================================
// Webhooks and manual reconciliation
// ============================================================

func TestStripeWebhook_BadSignature(t *testing.T) {
	e := newEnv(t, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(completedEvent("evt_1", "p")))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	e := newEnv(t, true)

	rec := e.stripe(completedEvent("evt_9", "ghost"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualMarkPaid_SyntheticTxRef(t *testing.T) {
	e := newEnv(t, true)
	ops := e.token("ops", handler.RoleOperator)
	e.onboard(5)
	e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", ops, nil)
	open, err := e.store.ListOpenPaymentsByLeases(context.Background(), leaseIDs(t, e))
	require.NoError(t, err)
	require.Len(t, open, 1)

	rec := e.do(http.MethodPost, "/webhook/payments", ops, map[string]string{"paymentId": open[0].ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Regexp(t, `^TX-[A-Za-z0-9]+$`, body["txRef"])

	p, err := e.store.GetPayment(context.Background(), open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderSEPA, p.Provider)
}

func TestManualMarkPaid_MissingPaymentID(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/webhook/payments", e.token("ops", handler.RoleOperator), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "paymentId")
}

func TestFailAndRetry(t *testing.T) {
	e := newEnv(t, true)
	ops := e.token("ops", handler.RoleOperator)
	e.onboard(5)
	e.do(http.MethodPost, "/cron/payments/due?date=2024-05-05", ops, nil)
	open, err := e.store.ListOpenPaymentsByLeases(context.Background(), leaseIDs(t, e))
	require.NoError(t, err)
	id := open[0].ID

	rec := e.do(http.MethodPost, "/payments/"+id+"/retry", ops, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPost, "/webhook/payments/failed", ops, map[string]string{"paymentId": id, "reason": "mandate revoked"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", decode[map[string]any](t, rec)["status"])

	rec = e.do(http.MethodPost, "/payments/"+id+"/retry", ops, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PaymentPending, decode[domain.Payment](t, rec).Status)
}

// ============================================================
// Owner API
// ============================================================

func TestOwnerAPI(t *testing.T) {
	e := newEnv(t, true)
	owner := e.token("owner-1", "authenticated")

	rec := e.do(http.MethodPut, "/v1/owner", owner, map[string]string{"email": "owner@rentdesk.test", "name": "Anna"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "owner-1", decode[domain.Owner](t, rec).ID)

	onboarded := e.onboard(5)
	assert.Equal(t, domain.UnitOccupied, onboarded.Unit.Status)
	require.Len(t, onboarded.Assets, 1)

	rec = e.do(http.MethodGet, "/v1/units/"+onboarded.Unit.ID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[domain.UnitDetail](t, rec)
	require.NotNil(t, detail.ActiveLease)
	assert.Equal(t, onboarded.Lease.ID, detail.ActiveLease.ID)

	rec = e.do(http.MethodGet, "/v1/units/"+onboarded.Unit.ID, e.token("owner-2", "authenticated"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A second lease on an occupied unit conflicts.
	rec = e.do(http.MethodPost, "/v1/units/"+onboarded.Unit.ID+"/leases", owner, map[string]any{
		"tenantId": onboarded.Tenant.ID, "startDate": "2024-06-01", "rent": 900, "dueDay": 1, "paymentMethod": "MANUAL",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPost, "/v1/leases/"+onboarded.Lease.ID+"/terminate", owner, map[string]string{"endDate": "2024-05-04"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodGet, "/v1/units", owner, nil)
	units := decode[struct{ Units []domain.Unit }](t, rec)
	require.Len(t, units.Units, 1)
	assert.Equal(t, domain.UnitVacant, units.Units[0].Status)

	rec = e.do(http.MethodGet, "/v1/tenants", owner, nil)
	assert.Len(t, decode[struct{ Tenants []domain.Tenant }](t, rec).Tenants, 1)

	rec = e.do(http.MethodGet, "/v1/payments/open", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payments":[]}`, rec.Body.String())
}

func TestOnboarding_Validation(t *testing.T) {
	e := newEnv(t, true)

	rec := e.do(http.MethodPost, "/v1/onboarding", e.token("owner-1", "authenticated"), map[string]any{
		"unit":   map[string]any{"address": "Via Roma 1", "rooms": 3, "m2": 80, "rentAsk": 1200},
		"tenant": map[string]any{"name": "Mario", "email": "mario@tenants.test"},
		"lease":  map[string]any{"startDate": "2024-05-01", "rent": 1000, "dueDay": 31, "paymentMethod": "MANUAL"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "lease.dueDay")
}
