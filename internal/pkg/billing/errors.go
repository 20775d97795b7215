package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvoiceNotFound is returned when the referenced invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrMerchantNotFound is returned when the referenced merchant does not exist.
	ErrMerchantNotFound = errors.New("merchant not found")
	// ErrInvoiceLocked is returned on any write against an invoice whose
	// period has been closed.
	ErrInvoiceLocked = errors.New("invoice is locked by month closing")
	// ErrInvalidAmount is returned when a payment amount is not a strictly
	// positive minor-unit value.
	ErrInvalidAmount = errors.New("amount must be a positive integer in minor units")
	// ErrInvalidPeriod is returned when a billing period is not YYYY-MM.
	ErrInvalidPeriod = errors.New("period must have the form YYYY-MM")
	// ErrSignatureInvalid is returned when a webhook signature does not
	// verify against the configured secret.
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	// ErrGatewayRefMissing is returned when a charge is requested for an
	// invoice that has no gateway invoice reference yet.
	ErrGatewayRefMissing = errors.New("invoice has no gateway reference")
)

// Checkout block codes surfaced to the ordering frontend.
const (
	BlockCodeRestricted = "client_restricted"
	BlockCodeBlocked    = "client_blocked"
)

// CheckoutBlockedError rejects order creation for a merchant whose billing
// standing is not active. It is a business-rule gate, not a system fault,
// and always carries a customer-facing message.
type CheckoutBlockedError struct {
	Code    string
	Message string
}

func (e *CheckoutBlockedError) Error() string {
	return fmt.Sprintf("checkout blocked (%s): %s", e.Code, e.Message)
}

// GatewayError wraps a failed payment-gateway call. It is never surfaced
// raw to end users; the retry path converts it into a rescheduled attempt.
type GatewayError struct {
	Op     string
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// ReconcileWarning reports that a payment was persisted but the follow-up
// invoice recompute failed. The payment stands; the invoice needs manual
// review.
type ReconcileWarning struct {
	PaymentID uint
	Err       error
}

func (w *ReconcileWarning) Error() string {
	return fmt.Sprintf("payment %d recorded, invoice reconciliation failed: %v", w.PaymentID, w.Err)
}

func (w *ReconcileWarning) Unwrap() error { return w.Err }
