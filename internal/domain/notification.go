package domain

import (
	"fmt"
	"time"
)

const NotificationPaymentReminder = "payment-reminder"

// Notification is the record written alongside each generated payment.
type Notification struct {
	ID        string     `json:"id" validate:"required"`
	Type      string     `json:"type" validate:"required"`
	LeaseID   string     `json:"leaseId" validate:"required"`
	PaymentID string     `json:"paymentId,omitempty"`
	To        string     `json:"to,omitempty"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

// NewPaymentReminder builds the reminder for a freshly generated payment.
func NewPaymentReminder(lease *Lease, p *Payment, currency string, now time.Time) *Notification {
	return &Notification{
		Type:      NotificationPaymentReminder,
		LeaseID:   lease.ID,
		PaymentID: p.ID,
		To:        lease.TenantEmail,
		Message:   fmt.Sprintf("Friendly reminder: rent of %.2f %s is due on %s.", p.Amount, currency, p.DueDate),
		CreatedAt: now,
	}
}
