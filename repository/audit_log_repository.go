package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"gorm.io/gorm"
)

// text columns are capped so a provider error body can't bloat the audit trail
const maxAuditTextLen = 2048

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, any]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, any](db),
	}
}

// Save stamps the entry in UTC and inserts it
func (r *AuditLogRepositoryImpl) Save(ctx context.Context, log *models.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = utils.UTCNow()
	} else {
		log.CreatedAt = log.CreatedAt.UTC()
	}
	if log.Description != nil {
		log.Description = utils.ToPtr(utils.Truncate(*log.Description, maxAuditTextLen))
	}
	if log.ErrorMessage != nil {
		log.ErrorMessage = utils.ToPtr(utils.Truncate(*log.ErrorMessage, maxAuditTextLen))
	}
	return r.BaseRepository.Save(ctx, log)
}

// ListByBusiness returns the newest entries of a business, optionally narrowed to one action
func (r *AuditLogRepositoryImpl) ListByBusiness(ctx context.Context, businessID uint, action string, limit int) ([]*models.AuditLog, error) {
	db := r.getDB(ctx).Where("business_id = ?", businessID)
	if action != "" {
		db = db.Where("action = ?", action)
	}
	if limit <= 0 {
		limit = 50
	}

	var logs []*models.AuditLog
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs by business: %w", err)
	}
	return logs, nil
}
