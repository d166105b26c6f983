package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Yamata-WABA/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderBillingEventRepositoryImpl implements ProviderBillingEventRepository
type ProviderBillingEventRepositoryImpl struct {
	*BaseRepository[models.ProviderBillingEvent, models.ProviderBillingEventFilter]
}

func NewProviderBillingEventRepository(db *gorm.DB) ProviderBillingEventRepository {
	return &ProviderBillingEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ProviderBillingEvent, models.ProviderBillingEventFilter](db),
	}
}

func (r *ProviderBillingEventRepositoryImpl) Exists(ctx context.Context, businessID uint, provider, eventType string, providerMessageID, conversationID *string) (bool, error) {
	db := r.getDB(ctx).Model(&models.ProviderBillingEvent{}).
		Where("business_id = ? AND provider = ? AND event_type = ?", businessID, provider, eventType)

	switch {
	case providerMessageID != nil && *providerMessageID != "":
		db = db.Where("provider_message_id = ?", *providerMessageID)
	case conversationID != nil && *conversationID != "":
		db = db.Where("conversation_id = ?", *conversationID)
	default:
		return false, nil
	}

	var count int64
	if err := db.Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check billing event existence: %w", err)
	}
	return count > 0, nil
}

// Insert relies on the partial unique index; a conflicting row is left untouched
func (r *ProviderBillingEventRepositoryImpl) Insert(ctx context.Context, event *models.ProviderBillingEvent) (bool, error) {
	res := r.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert billing event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListByFilter returns events ordered by occurred_at then id
func (r *ProviderBillingEventRepositoryImpl) ListByFilter(ctx context.Context, filter models.ProviderBillingEventFilter) ([]*models.ProviderBillingEvent, error) {
	db := r.getDB(ctx)
	if filter.BusinessID != nil {
		db = db.Where("business_id = ?", *filter.BusinessID)
	}
	if filter.Provider != nil {
		db = db.Where("provider = ?", *filter.Provider)
	}
	if filter.EventType != nil {
		db = db.Where("event_type = ?", *filter.EventType)
	}
	if filter.OccurredAfter != nil {
		db = db.Where("occurred_at >= ?", *filter.OccurredAfter)
	}
	if filter.OccurredBefore != nil {
		db = db.Where("occurred_at < ?", *filter.OccurredBefore)
	}

	var events []*models.ProviderBillingEvent
	if err := db.Order("occurred_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}
	return events, nil
}
