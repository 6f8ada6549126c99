package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ErrValidation{Field: "body", Message: "is required"}
		}
		return &domain.ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	return domain.ValidateRequest(dst)
}

// parseDateParam reads an optional YYYY-MM-DD query parameter as a calendar
// day in loc. ok is false when the parameter is absent.
func parseDateParam(r *http.Request, name string, loc *time.Location) (t time.Time, ok bool, err error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err = time.ParseInLocation(domain.DateLayout, v, loc)
	if err != nil {
		return time.Time{}, false, &domain.ErrValidation{Field: name, Message: fmt.Sprintf("must be a date in YYYY-MM-DD format, got %q", v)}
	}
	// Noon keeps the day stable across zone conversions.
	return t.Add(12 * time.Hour), true, nil
}

// orEmpty keeps JSON list responses as [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var alreadyPaid *domain.ErrAlreadyPaid
	var signature *domain.ErrSignatureVerification
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var transition *domain.ErrInvalidTransition
	var circuitOpen *domain.ErrCircuitOpen
	var unavailable *domain.ErrStoreUnavailable
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var notConfigured *domain.ErrNotConfigured
	var malformed *domain.ErrMalformedRecord
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &alreadyPaid):
		logger.Debug("already paid", zap.String("payment_id", alreadyPaid.PaymentID))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &signature):
		logger.Warn("webhook signature rejected", zap.String("reason", signature.Reason))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transition):
		logger.Debug("invalid transition", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &unavailable):
		logger.Error("store unavailable", zap.String("op", unavailable.Op), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &forbidden):
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notConfigured):
		logger.Error("integration not configured", zap.String("component", notConfigured.Component))
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &malformed):
		logger.Error("malformed record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
