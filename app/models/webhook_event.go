package models

import "time"

// Webhook source systems.
const (
	WebhookSourcePayment  = "payment"
	WebhookSourceIdentity = "identity"
)

// WebhookEvent stores externally delivered webhook payloads with
// deduplication metadata. The composite unique index on (source, event_id)
// makes the insert the idempotency claim: the first writer wins, redeliveries
// conflict and are acknowledged without reprocessing.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Source          string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_source_event,unique,priority:1;index" json:"source"`
	EventID         string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_source_event,priority:2,unique" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
