package repository

import (
	"time"

	"github.com/NovaForgeApp/NovaForge/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a webhook dedup repository backed by GORM.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// TryClaim inserts the event if no row exists for (source, event_id). The
// ON CONFLICT DO NOTHING insert is the atomicity point: under concurrent
// redelivery exactly one caller observes claimed=true. The stored row is
// returned either way so redeliveries can report the original.
func (r *webhookEventRepository) TryClaim(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	claimed := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("source = ? AND event_id = ?", event.Source, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return claimed, &stored, nil
}

func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// PruneOlderThan removes processed events created before the cutoff. The
// retention window must exceed the upstream redelivery window or pruned
// events could be re-accepted as new.
func (r *webhookEventRepository) PruneOlderThan(cutoff time.Time) (int64, error) {
	tx := r.db.Where("created_at < ? AND processed_at IS NOT NULL", cutoff).
		Delete(&models.WebhookEvent{})
	return tx.RowsAffected, tx.Error
}
