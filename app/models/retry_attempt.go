package models

import "time"

// Retry attempt states. Terminal attempts are never overwritten; the
// scheduler inserts a fresh row for the next try.
const (
	RetryStatusQueued     = "queued"
	RetryStatusProcessing = "processing"
	RetryStatusSuccess    = "success"
	RetryStatusFailed     = "failed"
	RetryStatusScheduled  = "retry_scheduled"
	RetryStatusCanceled   = "canceled"
)

// RetryAttempt is one scheduled or executed try at automatically charging
// an invoice through the payment gateway. ClaimToken is written by the
// worker's atomic batch claim so a concurrent run cannot pick up the same
// rows.
type RetryAttempt struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	InvoiceID    uint       `gorm:"not null;index" json:"invoice_id"`
	MerchantID   uint       `gorm:"not null;index" json:"merchant_id"`
	Status       string     `gorm:"type:varchar(20);not null;default:'queued';index:idx_retry_attempts_due,priority:1" json:"status"`
	AttemptNo    int        `gorm:"not null;default:1" json:"attempt_no"`
	ScheduledFor time.Time  `gorm:"not null;index:idx_retry_attempts_due,priority:2" json:"scheduled_for"`
	StartedAt    *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	FinishedAt   *time.Time `gorm:"type:timestamp;default:null" json:"finished_at,omitempty"`
	Reason       string     `gorm:"type:varchar(255);default:''" json:"reason"`
	ClaimToken   string     `gorm:"type:varchar(36);default:'';index" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Invoice *Invoice `gorm:"foreignKey:InvoiceID" json:"-"`
}
