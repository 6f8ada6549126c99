package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/observability"

	"go.uber.org/zap"
)

// ============================================================
// Health & Ops
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// readyzHandler reports every component. A failing or unconfigured required
// component makes the service not ready; optional ones only degrade it.
func readyzHandler(components []Component, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ready"
		code := http.StatusOK
		out := make([]domain.ComponentStatus, 0, len(components))

		for _, c := range components {
			cs := domain.ComponentStatus{Name: c.Name, Configured: c.Configured}
			healthy := c.Configured
			if c.Configured && c.Check != nil {
				if err := c.Check(ctx); err != nil {
					healthy = false
					cs.Detail = err.Error()
					logger.Warn("readiness check failed", zap.String("component", c.Name), zap.Error(err))
				}
			}
			if !healthy {
				if c.Required {
					status = "unavailable"
					code = http.StatusServiceUnavailable
				} else if status == "ready" {
					status = "degraded"
				}
			}
			out = append(out, cs)
		}

		writeJSON(w, code, domain.ReadinessStatus{Status: status, Components: out})
	}
}

func opsStatsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
