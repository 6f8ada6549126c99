package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrNotConfigured indicates an integration has no credentials.
type ErrNotConfigured struct {
	Component string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("%s not configured", e.Component)
}

// ErrAlreadyPaid is returned when an operation needs an unpaid payment.
type ErrAlreadyPaid struct {
	PaymentID string
}

func (e *ErrAlreadyPaid) Error() string {
	return fmt.Sprintf("payment already paid: %s", e.PaymentID)
}

// ErrInvalidTransition indicates a payment status change the state machine forbids.
type ErrInvalidTransition struct {
	PaymentID string
	From      PaymentStatus
	To        PaymentStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("payment %s cannot move from %s to %s", e.PaymentID, e.From, e.To)
}

// ErrSignatureVerification indicates a webhook payload failed its integrity check.
type ErrSignatureVerification struct {
	Reason string
}

func (e *ErrSignatureVerification) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %s", e.Reason)
}

// ErrStoreUnavailable wraps a transient failure of the entity store.
type ErrStoreUnavailable struct {
	Op  string
	Err error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable [%s]: %v", e.Op, e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

// ErrMalformedRecord indicates a stored document that does not decode into its entity type.
type ErrMalformedRecord struct {
	Collection string
	ID         string
	Reason     string
}

func (e *ErrMalformedRecord) Error() string {
	return fmt.Sprintf("malformed %s record %q: %s", e.Collection, e.ID, e.Reason)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates the request clashes with existing state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnauthorized indicates a missing or invalid bearer token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}
