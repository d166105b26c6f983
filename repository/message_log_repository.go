package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageLogRepositoryImpl implements MessageLogRepository
type MessageLogRepositoryImpl struct {
	*BaseRepository[models.MessageLog, any]
}

func NewMessageLogRepository(db *gorm.DB) MessageLogRepository {
	return &MessageLogRepositoryImpl{BaseRepository: NewBaseRepository[models.MessageLog, any](db)}
}

func (r *MessageLogRepositoryImpl) first(db *gorm.DB) (*models.MessageLog, error) {
	var row models.MessageLog
	if err := db.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find message log: %w", err)
	}
	return &row, nil
}

func (r *MessageLogRepositoryImpl) ByRecipientID(ctx context.Context, recipientID uint) (*models.MessageLog, error) {
	return r.first(r.getDB(ctx).Where("recipient_id = ?", recipientID))
}

func (r *MessageLogRepositoryImpl) ByProviderMessageID(ctx context.Context, businessID uint, providerMessageID string) (*models.MessageLog, error) {
	return r.first(r.getDB(ctx).
		Where("business_id = ? AND provider_message_id = ?", businessID, providerMessageID).
		Order("id DESC"))
}

func (r *MessageLogRepositoryImpl) LatestByConversationID(ctx context.Context, businessID uint, conversationID string) (*models.MessageLog, error) {
	return r.first(r.getDB(ctx).
		Where("business_id = ? AND conversation_id = ?", businessID, conversationID).
		Order("created_at DESC, id DESC"))
}

func (r *MessageLogRepositoryImpl) CreateSending(ctx context.Context, log *models.MessageLog) (bool, error) {
	res := r.getDB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(log)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create message log: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageLogRepositoryImpl) ListUnresolved(ctx context.Context, campaignID, ownJobID uint, now time.Time) ([]*models.MessageLog, error) {
	var rows []*models.MessageLog
	err := r.getDB(ctx).
		Where("message_logs.campaign_id = ? AND message_logs.status = ?", campaignID, models.MessageLogStatusSending).
		Where(`(message_logs.job_id IS NULL OR message_logs.job_id = ? OR NOT EXISTS (
			SELECT 1 FROM outbound_campaign_jobs j
			WHERE j.id = message_logs.job_id AND j.status = ? AND j.locked_until > ?))`,
			ownJobID, models.OutboundJobStatusRunning, now).
		Order("message_logs.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved message logs: %w", err)
	}
	return rows, nil
}

func (r *MessageLogRepositoryImpl) MarkSent(ctx context.Context, id uint, providerMessageID string, sentAt time.Time) (bool, error) {
	res := r.getDB(ctx).Model(&models.MessageLog{}).
		Where("id = ? AND provider_message_id IS NULL", id).
		Where("status = ? OR (status = ? AND error LIKE ?)",
			models.MessageLogStatusSending, models.MessageLogStatusFailed, models.UnknownOutcomeError+"%").
		Updates(map[string]any{
			"status":              models.MessageLogStatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             sentAt,
			"error":               nil,
			"updated_at":          utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark message log %d sent: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageLogRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string) (bool, error) {
	res := r.getDB(ctx).Model(&models.MessageLog{}).
		Where("id = ? AND status = ?", id, models.MessageLogStatusSending).
		Updates(map[string]any{
			"status":     models.MessageLogStatusFailed,
			"error":      reason,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark message log %d failed: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageLogRepositoryImpl) DeleteSending(ctx context.Context, id uint) error {
	err := r.getDB(ctx).
		Where("id = ? AND status = ?", id, models.MessageLogStatusSending).
		Delete(&models.MessageLog{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete message log %d: %w", id, err)
	}
	return nil
}

func (r *MessageLogRepositoryImpl) AdvanceStatus(ctx context.Context, id uint, from, to models.MessageLogStatus) (bool, error) {
	res := r.getDB(ctx).Model(&models.MessageLog{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance message log %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageLogRepositoryImpl) ApplyBilling(ctx context.Context, id uint, p BillingProjection) (bool, error) {
	updates := map[string]any{
		"billing_event_at": p.EventAt,
		"updated_at":       utils.UTCNow(),
	}
	if p.ConversationID != nil {
		updates["conversation_id"] = *p.ConversationID
	}
	if p.ConversationCategory != nil {
		updates["conversation_category"] = *p.ConversationCategory
	}
	if p.ConversationStartedAt != nil {
		updates["conversation_started_at"] = *p.ConversationStartedAt
	}
	if p.Chargeable != nil {
		updates["chargeable"] = *p.Chargeable
	}
	if p.PriceAmount != nil {
		updates["price_amount"] = *p.PriceAmount
	}
	if p.PriceCurrency != nil {
		updates["price_currency"] = *p.PriceCurrency
	}

	res := r.getDB(ctx).Model(&models.MessageLog{}).
		Where("id = ? AND (billing_event_at IS NULL OR billing_event_at <= ?)", id, p.EventAt).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to project billing onto message log %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *MessageLogRepositoryImpl) CountByRange(ctx context.Context, businessID uint, from, to time.Time) (int64, error) {
	var count int64
	err := r.getDB(ctx).Model(&models.MessageLog{}).
		Where("business_id = ? AND created_at >= ? AND created_at < ?", businessID, from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count message logs: %w", err)
	}
	return count, nil
}
