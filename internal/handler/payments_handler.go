package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Generator: POST /cron/payments/due
// ============================================================

type generationResponse struct {
	OK       bool                  `json:"ok"`
	DueDate  string                `json:"dueDate"`
	Created  int                   `json:"created"`
	Existing int                   `json:"existing"`
	Failed   int                   `json:"failed"`
	Failures []domain.LeaseFailure `json:"failures,omitempty"`
}

type skippedResponse struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
	DueDate string `json:"dueDate"`
}

func generateDueHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cron/payments/due")
		defer span.End()

		today, ok, err := parseDateParam(r, "date", svc.Location())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !ok {
			today = svc.Today()
		}

		res, err := svc.GenerateDuePayments(ctx, today)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if res.Skipped {
			writeJSON(w, http.StatusOK, skippedResponse{Skipped: true, Reason: res.Reason, DueDate: res.DueDate})
			return
		}
		writeJSON(w, http.StatusOK, generationResponse{
			OK:       true,
			DueDate:  res.DueDate,
			Created:  res.Created,
			Existing: res.Existing,
			Failed:   res.Failed,
			Failures: res.Failures,
		})
	}
}

// ============================================================
// Checkout: POST /payments/{id}/checkout
// ============================================================

func checkoutHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /payments/{id}/checkout")
		defer span.End()

		paymentID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("payment.id", paymentID))

		sess, err := svc.CreateCheckoutSession(ctx, paymentID)
		if err != nil {
			// Checkout clients treat every business rejection as a bad request.
			var nf *domain.ErrNotFound
			if errors.As(err, &nf) {
				writeError(w, http.StatusBadRequest, "Payment not found")
				return
			}
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
	}
}

// ============================================================
// Manual reconciliation: POST /webhook/payments[/failed]
// ============================================================

func markPaidHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /webhook/payments")
		defer span.End()

		var req domain.MarkPaidRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.MarkPaid(ctx, req.PaymentID, req.TxRef)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paymentId": p.ID, "txRef": p.TxRef})
	}
}

func markFailedHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /webhook/payments/failed")
		defer span.End()

		var req domain.MarkFailedRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		p, err := svc.MarkFailed(ctx, req.PaymentID, req.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paymentId": p.ID, "status": p.Status})
	}
}

func retryPaymentHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /payments/{id}/retry")
		defer span.End()

		p, err := svc.RetryPayment(ctx, chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ============================================================
// Provider callback: POST /webhook/stripe
// ============================================================

func stripeWebhookHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /webhook/stripe")
		defer span.End()

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}

		ev, err := svc.HandleWebhook(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("event.type", ev.Type))
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
