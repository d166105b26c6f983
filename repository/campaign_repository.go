package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Yamata-WABA/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, any]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, any](db),
	}
}

// LockByID selects the campaign FOR UPDATE so concurrent writers on the campaign serialize
func (r *CampaignRepositoryImpl) LockByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock campaign %d: %w", id, err)
	}

	return &campaign, nil
}

// MessageTemplateRepositoryImpl implements MessageTemplateRepository
type MessageTemplateRepositoryImpl struct {
	*BaseRepository[models.MessageTemplate, any]
}

func NewMessageTemplateRepository(db *gorm.DB) MessageTemplateRepository {
	return &MessageTemplateRepositoryImpl{BaseRepository: NewBaseRepository[models.MessageTemplate, any](db)}
}
