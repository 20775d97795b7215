package models

import "time"

// Synthetic event type recorded when signature verification fails; the
// payload is kept for forensics but never trusted or processed.
const EventTypeSignatureFailed = "signature_verification_failed"

// WebhookEvent is the immutable audit row for an inbound gateway event,
// deduplicated by the gateway's event identifier.
type WebhookEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	GatewayEventID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_event_id"`
	EventType      string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON    string    `gorm:"type:longtext;not null" json:"payload_json"`
	Livemode       bool      `gorm:"default:false" json:"livemode"`
	SignatureValid bool      `gorm:"default:false;index" json:"signature_valid"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Webhook queue entry states.
const (
	WebhookQueueStatusQueued    = "queued"
	WebhookQueueStatusProcessed = "processed"
	WebhookQueueStatusFailed    = "failed"
)

// WebhookQueueEntry is the work item derived from a webhook event, keyed
// by the same gateway event id. Redelivery of an event upserts against
// this key without resetting an in-flight or finished entry.
type WebhookQueueEntry struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	GatewayEventID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"gateway_event_id"`
	EventType      string     `gorm:"type:varchar(100);not null" json:"event_type"`
	Status         string     `gorm:"type:varchar(16);not null;default:'queued';index" json:"status"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	LastError      string     `gorm:"type:text" json:"last_error"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
