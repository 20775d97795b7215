package billing

import "time"

// PaymentInput is the normalized input for recording a payment against an
// invoice. Amount is in minor units.
type PaymentInput struct {
	InvoiceID uint
	Amount    int64
	Method    string
	PaidAt    *time.Time
	Reference string
	Notes     string
	CreatedBy string
}

// EventEnvelope is the parsed shell of a gateway webhook payload. Only the
// fields the pipeline dispatches on are extracted; the raw payload is kept
// verbatim in the audit row.
type EventEnvelope struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Livemode bool         `json:"livemode"`
	Data     EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Object EnvelopeObject `json:"object"`
}

// EnvelopeObject is the event subject. For invoice events this is the
// gateway invoice; AmountPaid is in minor units.
type EnvelopeObject struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
}

// Gateway event types the queue consumer acts on. Everything else is
// acknowledged as a no-op.
const (
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// AttemptOutcome is one row of the retry worker's batch report.
type AttemptOutcome struct {
	AttemptID uint   `json:"attempt_id"`
	InvoiceID uint   `json:"invoice_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}
