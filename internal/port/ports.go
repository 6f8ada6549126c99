// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/rentdesk/rentdesk-api/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// CheckoutProvider opens hosted checkout sessions at the payment provider.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req *domain.CheckoutRequest) (*domain.CheckoutSession, error)
}

// WebhookVerifier authenticates and decodes a raw provider callback.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (*domain.ProviderEvent, error)
}

// ReminderSender delivers a notification to its recipient.
type ReminderSender interface {
	SendReminder(ctx context.Context, n *domain.Notification) error
}
