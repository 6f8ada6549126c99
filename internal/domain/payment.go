package domain

import (
	"math"
	"time"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentLate    PaymentStatus = "late"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentProvider string

const (
	ProviderMock   PaymentProvider = "MOCK"
	ProviderSEPA   PaymentProvider = "SEPA"
	ProviderStripe PaymentProvider = "STRIPE"
)

// Payment is one instance of a lease's rent obligation for a due date.
// (LeaseID, DueDate) is unique.
type Payment struct {
	ID            string          `json:"id" validate:"required"`
	LeaseID       string          `json:"leaseId" validate:"required"`
	Amount        float64         `json:"amount" validate:"gte=0"`
	DueDate       string          `json:"dueDate" validate:"required,datetime=2006-01-02"`
	Status        PaymentStatus   `json:"status" validate:"oneof=pending paid late failed"`
	Provider      PaymentProvider `json:"provider,omitempty" validate:"omitempty,oneof=MOCK SEPA STRIPE"`
	TxRef         string          `json:"txRef,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

// PaidUpdate carries the fields written when a payment settles.
type PaidUpdate struct {
	Provider PaymentProvider
	TxRef    string
	PaidAt   time.Time
}

// ProviderFor maps a lease payment method to the provider recorded on new payments.
func ProviderFor(method PaymentMethod) PaymentProvider {
	if method == MethodSEPAMandate {
		return ProviderSEPA
	}
	return ProviderMock
}

// IsOpen reports whether the payment still awaits settlement.
func (p *Payment) IsOpen() bool {
	return p.Status == PaymentPending || p.Status == PaymentLate
}

// EffectiveStatus classifies a stored pending payment as late once today is
// more than graceDays past its due date. Late is never persisted by this service.
func (p *Payment) EffectiveStatus(today string, graceDays int) PaymentStatus {
	if p.Status != PaymentPending {
		return p.Status
	}
	due, err := time.Parse(DateLayout, p.DueDate)
	if err != nil {
		return p.Status
	}
	deadline := ISODate(due.AddDate(0, 0, graceDays))
	if today > deadline {
		return PaymentLate
	}
	return PaymentPending
}

// ToMinorUnits converts a currency amount to integer cents, rounding to nearest.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MarkPaidRequest is the manual confirmation body.
type MarkPaidRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	TxRef     string `json:"txRef,omitempty" validate:"omitempty,max=255"`
}

// MarkFailedRequest reports a failed collection attempt.
type MarkFailedRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Reason    string `json:"reason,omitempty" validate:"omitempty,max=500"`
}
