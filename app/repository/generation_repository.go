package repository

import (
	"github.com/NovaForgeApp/NovaForge/app/models"
	"gorm.io/gorm"
)

type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a generation outcome repository backed by GORM.
func NewGenerationRepository(db *gorm.DB) GenerationRepository {
	return &generationRepository{db: db}
}

func (r *generationRepository) Create(generation *models.Generation) error {
	return r.db.Create(generation).Error
}

func (r *generationRepository) GetByGenerationID(generationID string) (*models.Generation, error) {
	var generation models.Generation
	if err := r.db.Where("generation_id = ?", generationID).First(&generation).Error; err != nil {
		return nil, err
	}
	return &generation, nil
}
