package handler

import (
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Owner: PUT /v1/owner
// ============================================================

func upsertOwnerHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/owner")
		defer span.End()

		var req domain.OwnerInput
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		owner, err := svc.UpsertOwner(ctx, OwnerIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, owner)
	}
}

// ============================================================
// Onboarding: POST /v1/onboarding, POST /v1/units/{id}/leases
// ============================================================

func onboardingHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/onboarding")
		defer span.End()

		var req domain.OnboardingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.Onboard(ctx, OwnerIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		res.Assets = orEmpty(res.Assets)
		writeJSON(w, http.StatusCreated, res)
	}
}

func createLeaseHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/units/{id}/leases")
		defer span.End()

		var req domain.LeaseInput
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		lease, err := svc.CreateLease(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, lease)
	}
}

// ============================================================
// Reads
// ============================================================

func listUnitsHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/units")
		defer span.End()

		units, err := svc.ListUnits(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"units": orEmpty(units)})
	}
}

func getUnitHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/units/{id}")
		defer span.End()

		detail, err := svc.GetUnitDetail(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		detail.Assets = orEmpty(detail.Assets)
		writeJSON(w, http.StatusOK, detail)
	}
}

func listTenantsHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/tenants")
		defer span.End()

		tenants, err := svc.ListTenants(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": orEmpty(tenants)})
	}
}

func leasePaymentsHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/leases/{id}/payments")
		defer span.End()

		payments, err := svc.LeasePayments(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": orEmpty(payments)})
	}
}

func openPaymentsHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/payments/open")
		defer span.End()

		payments, err := svc.OpenPayments(ctx, OwnerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": orEmpty(payments)})
	}
}

func terminateLeaseHandler(svc *service.PropertyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/leases/{id}/terminate")
		defer span.End()

		var req domain.TerminateLeaseRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		lease, err := svc.TerminateLease(ctx, OwnerIDFromContext(ctx), chi.URLParam(r, "id"), req.EndDate)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, lease)
	}
}
