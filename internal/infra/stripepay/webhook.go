package stripepay

import (
	"encoding/json"
	"strings"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// WebhookVerifier authenticates Stripe deliveries with the endpoint secret.
type WebhookVerifier struct {
	secret string
	strict bool
	logger *zap.Logger
}

// NewWebhookVerifier creates a verifier. With strict set, a missing secret
// rejects every delivery; otherwise unsigned events are accepted and flagged.
func NewWebhookVerifier(secret string, strict bool, logger *zap.Logger) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, strict: strict, logger: logger}
}

// Configured reports whether signature checks are active.
func (v *WebhookVerifier) Configured() bool {
	return v.secret != ""
}

// ParseEvent verifies and decodes one delivery.
func (v *WebhookVerifier) ParseEvent(payload []byte, signature string) (*domain.ProviderEvent, error) {
	var (
		event    stripe.Event
		verified bool
	)

	switch {
	case v.secret != "":
		if strings.TrimSpace(signature) == "" {
			return nil, &domain.ErrSignatureVerification{Reason: "missing Stripe-Signature header"}
		}
		ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, &domain.ErrSignatureVerification{Reason: err.Error()}
		}
		event, verified = ev, true
	case v.strict:
		return nil, &domain.ErrNotConfigured{Component: "Stripe webhook secret"}
	default:
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, &domain.ErrSignatureVerification{Reason: "payload is not a Stripe event: " + err.Error()}
		}
		v.logger.Warn("stripe: accepting unverified webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
	}

	return toProviderEvent(&event, verified), nil
}

// toProviderEvent extracts the checkout session fields reconciliation needs.
// Non-session events keep only their id and type.
func toProviderEvent(event *stripe.Event, verified bool) *domain.ProviderEvent {
	out := &domain.ProviderEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		Verified: verified,
	}
	if !strings.HasPrefix(out.Type, "checkout.session.") || event.Data == nil {
		return out
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return out
	}
	out.SessionID = cs.ID
	out.PaymentStatus = string(cs.PaymentStatus)
	out.PaymentID = cs.Metadata[MetadataPaymentID]
	if out.PaymentID == "" {
		out.PaymentID = cs.ClientReferenceID
	}
	out.LeaseID = cs.Metadata[MetadataLeaseID]
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}
