package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaterializedRecipientRepositoryImpl implements MaterializedRecipientRepository
type MaterializedRecipientRepositoryImpl struct {
	*BaseRepository[models.MaterializedRecipient, models.MaterializedRecipientFilter]
}

func NewMaterializedRecipientRepository(db *gorm.DB) MaterializedRecipientRepository {
	return &MaterializedRecipientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MaterializedRecipient, models.MaterializedRecipientFilter](db),
	}
}

// UpsertByIdempotencyKey writes recipients; an existing key keeps its row and status
func (r *MaterializedRecipientRepositoryImpl) UpsertByIdempotencyKey(ctx context.Context, rows []*models.MaterializedRecipient) error {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]*models.MaterializedRecipient, len(rows))
	deduped := make([]*models.MaterializedRecipient, 0, len(rows))
	for _, row := range rows {
		if _, exists := seen[row.IdempotencyKey]; exists {
			continue
		}
		seen[row.IdempotencyKey] = row
		deduped = append(deduped, row)
	}

	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"audience_id":        clause.Expr{SQL: "EXCLUDED.audience_id"},
			"contact_id":         clause.Expr{SQL: "EXCLUDED.contact_id"},
			"audience_member_id": clause.Expr{SQL: "EXCLUDED.audience_member_id"},
			"materialized_at":    clause.Expr{SQL: "EXCLUDED.materialized_at"},
			"updated_at":         utils.UTCNow(),
		}),
	}).CreateInBatches(&deduped, 500).Error
	if err != nil {
		return fmt.Errorf("failed to upsert materialized recipients: %w", err)
	}

	for _, row := range rows {
		row.ID = seen[row.IdempotencyKey].ID
	}
	return nil
}

func (r *MaterializedRecipientRepositoryImpl) ListPage(ctx context.Context, filter models.MaterializedRecipientFilter, limit int) ([]*models.MaterializedRecipient, error) {
	db := r.applyFilter(r.getDB(ctx), filter).Order("id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}

	var rows []*models.MaterializedRecipient
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list materialized recipients: %w", err)
	}
	return rows, nil
}

func (r *MaterializedRecipientRepositoryImpl) Count(ctx context.Context, filter models.MaterializedRecipientFilter) (int64, error) {
	var count int64
	db := r.applyFilter(r.getDB(ctx).Model(&models.MaterializedRecipient{}), filter)
	if err := db.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count materialized recipients: %w", err)
	}
	return count, nil
}

func (r *MaterializedRecipientRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.RecipientStatus) error {
	err := r.getDB(ctx).Model(&models.MaterializedRecipient{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": utils.UTCNow()}).Error
	if err != nil {
		return fmt.Errorf("failed to update recipient %d status: %w", id, err)
	}
	return nil
}

func (r *MaterializedRecipientRepositoryImpl) applyFilter(db *gorm.DB, filter models.MaterializedRecipientFilter) *gorm.DB {
	if filter.BusinessID != nil {
		db = db.Where("business_id = ?", *filter.BusinessID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.AudienceID != nil {
		db = db.Where("audience_id = ?", *filter.AudienceID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.AfterID != nil {
		db = db.Where("id > ?", *filter.AfterID)
	}
	return db
}
