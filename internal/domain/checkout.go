package domain

// Provider event types handled by the reconciler.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired        = "checkout.session.expired"
)

// CheckoutRequest is what the provider adapter needs to open a hosted session.
type CheckoutRequest struct {
	PaymentID   string
	LeaseID     string
	AmountMinor int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider-hosted payment page.
type CheckoutSession struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// ProviderEvent is a verified (or explicitly unverified) provider callback,
// reduced to the fields reconciliation needs.
type ProviderEvent struct {
	ID              string
	Type            string
	PaymentID       string
	LeaseID         string
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	Verified        bool
}

// TxRef is the provider reference stored on the payment: the payment intent
// when present, the session id otherwise.
func (e *ProviderEvent) TxRef() string {
	if e.PaymentIntentID != "" {
		return e.PaymentIntentID
	}
	return e.SessionID
}

// GenerationResult summarises one run of the due-payment generator.
type GenerationResult struct {
	DueDate  string         `json:"dueDate"`
	Created  int            `json:"created"`
	Existing int            `json:"existing"`
	Failed   int            `json:"failed"`
	Skipped  bool           `json:"skipped,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Failures []LeaseFailure `json:"failures,omitempty"`
}

// LeaseFailure records why a single lease could not be billed.
type LeaseFailure struct {
	LeaseID string `json:"leaseId"`
	Error   string `json:"error"`
}

// SkippedLease reports a lease row the store could not decode.
func SkippedLease(id string, err error) LeaseFailure {
	return LeaseFailure{LeaseID: id, Error: err.Error()}
}
