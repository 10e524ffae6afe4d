package models

import "time"

// Generation statuses. Orphaned marks a reservation whose account was
// deleted before compensation could run; the sweeper records it so the
// usage entry stops matching future sweeps.
const (
	GenerationStatusSucceeded = "succeeded"
	GenerationStatusFailed    = "failed"
	GenerationStatusOrphaned  = "orphaned"
)

// Generation records the outcome of a provider call so the reconcile sweeper
// can tell an abandoned reservation (usage entry with no outcome row) apart
// from work that finished normally.
type Generation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GenerationID string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"generation_id"`
	AccountID    uint      `gorm:"not null;index" json:"account_id"`
	Tier         string    `gorm:"type:varchar(20);not null" json:"tier"`
	Status       string    `gorm:"type:varchar(20);not null;index" json:"status"`
	OutputCount  int       `gorm:"not null;default:0" json:"output_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
