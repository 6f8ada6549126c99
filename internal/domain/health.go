package domain

// ============================================================
// Health & Ops API Responses
// ============================================================

// ReadinessStatus is returned by GET /readyz.
type ReadinessStatus struct {
	Status     string            `json:"status"` // ready, degraded, unavailable
	Components []ComponentStatus `json:"components"`
}

// ComponentStatus reports whether one collaborator is wired.
type ComponentStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Detail     string `json:"detail,omitempty"`
}

// OpsStats is returned by GET /ops/stats. Counters are cumulative since start.
type OpsStats struct {
	GenerationRuns      int64   `json:"generationRuns"`
	GenerationSkipped   int64   `json:"generationSkipped"`
	PaymentsCreated     int64   `json:"paymentsCreated"`
	PaymentsExisting    int64   `json:"paymentsExisting"`
	GenerationFailures  int64   `json:"generationFailures"`
	CheckoutSessions    int64   `json:"checkoutSessions"`
	CheckoutErrors      int64   `json:"checkoutErrors"`
	WebhookEvents       int64   `json:"webhookEvents"`
	DuplicateEvents     int64   `json:"duplicateEvents"`
	ReconciledWebhook   int64   `json:"reconciledWebhook"`
	ReconciledManual    int64   `json:"reconciledManual"`
	ExternalErrors      int64   `json:"externalErrors"`
	CheckoutSuccessRate float64 `json:"checkoutSuccessRate"`
	Period              string  `json:"period"`
}
