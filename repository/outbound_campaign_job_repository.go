package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboundCampaignJobRepositoryImpl implements OutboundCampaignJobRepository
type OutboundCampaignJobRepositoryImpl struct {
	*BaseRepository[models.OutboundCampaignJob, models.OutboundCampaignJobFilter]
}

func NewOutboundCampaignJobRepository(db *gorm.DB) OutboundCampaignJobRepository {
	return &OutboundCampaignJobRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OutboundCampaignJob, models.OutboundCampaignJobFilter](db),
	}
}

const claimNextSQL = `
UPDATE outbound_campaign_jobs
SET status = 'running',
    attempt = attempt + 1,
    locked_by = ?,
    locked_until = ?,
    started_at = COALESCE(started_at, ?),
    updated_at = ?
WHERE status = 'queued'
  AND id = (
    SELECT id FROM outbound_campaign_jobs
    WHERE status = 'queued' AND next_attempt_at <= ?
    ORDER BY next_attempt_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
RETURNING *`

const claimByIDSQL = `
UPDATE outbound_campaign_jobs
SET status = 'running',
    attempt = attempt + 1,
    locked_by = ?,
    locked_until = ?,
    started_at = COALESCE(started_at, ?),
    updated_at = ?
WHERE id = ? AND status = 'queued' AND next_attempt_at <= ?
RETURNING *`

func (r *OutboundCampaignJobRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.OutboundCampaignJob, error) {
	rows, err := r.ByFilter(ctx, models.OutboundCampaignJobFilter{UUID: &id}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *OutboundCampaignJobRepositoryImpl) ActiveByCampaign(ctx context.Context, campaignID uint) (*models.OutboundCampaignJob, error) {
	var job models.OutboundCampaignJob
	err := r.getDB(ctx).
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]models.OutboundJobStatus{models.OutboundJobStatusQueued, models.OutboundJobStatusRunning}).
		Order("id DESC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return &job, nil
}

func (r *OutboundCampaignJobRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint) ([]*models.OutboundCampaignJob, error) {
	return r.ByFilter(ctx, models.OutboundCampaignJobFilter{CampaignID: &campaignID}, "id DESC", 0, 0)
}

// ByFilter retrieves jobs matching filter
func (r *OutboundCampaignJobRepositoryImpl) ByFilter(ctx context.Context, filter models.OutboundCampaignJobFilter, orderBy string, limit, offset int) ([]*models.OutboundCampaignJob, error) {
	db := r.applyFilter(r.getDB(ctx), filter)
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var jobs []*models.OutboundCampaignJob
	if err := db.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list outbound jobs: %w", err)
	}
	return jobs, nil
}

func (r *OutboundCampaignJobRepositoryImpl) ClaimNext(ctx context.Context, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error) {
	var job models.OutboundCampaignJob
	res := r.getDB(ctx).Raw(claimNextSQL, workerID, leaseUntil, now, now, now).Scan(&job)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim outbound job: %w", res.Error)
	}
	if res.RowsAffected == 0 || job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *OutboundCampaignJobRepositoryImpl) ClaimByID(ctx context.Context, id uint, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error) {
	var job models.OutboundCampaignJob
	res := r.getDB(ctx).Raw(claimByIDSQL, workerID, leaseUntil, now, now, id, now).Scan(&job)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim outbound job %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 || job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *OutboundCampaignJobRepositoryImpl) ExtendLease(ctx context.Context, id uint, workerID string, leaseUntil time.Time) (bool, error) {
	res := r.getDB(ctx).Model(&models.OutboundCampaignJob{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, models.OutboundJobStatusRunning, workerID).
		Updates(map[string]any{"locked_until": leaseUntil, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to extend lease of job %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *OutboundCampaignJobRepositoryImpl) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]*models.OutboundCampaignJob, error) {
	db := r.getDB(ctx).
		Where("status = ? AND locked_until < ?", models.OutboundJobStatusRunning, now).
		Order("locked_until ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}

	var jobs []*models.OutboundCampaignJob
	if err := db.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired leases: %w", err)
	}
	return jobs, nil
}

// Transition applies t as a single conditional UPDATE and reports whether a row matched
func (r *OutboundCampaignJobRepositoryImpl) Transition(ctx context.Context, id uint, t OutboundJobTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition of job %d has no source status", id)
	}

	updates := map[string]any{
		"status":     t.To,
		"updated_at": utils.UTCNow(),
	}
	if t.NextAttemptAt != nil {
		updates["next_attempt_at"] = *t.NextAttemptAt
	}
	if t.LastError != nil {
		updates["last_error"] = *t.LastError
	}
	if t.ClearLease {
		updates["locked_by"] = nil
		updates["locked_until"] = nil
	}
	if t.FinishedAt != nil {
		updates["finished_at"] = *t.FinishedAt
	}
	if t.CanceledAt != nil {
		updates["canceled_at"] = *t.CanceledAt
	}

	db := r.getDB(ctx).Model(&models.OutboundCampaignJob{}).Where("id = ? AND status IN ?", id, t.From)
	if t.Attempt != nil {
		db = db.Where("attempt = ?", *t.Attempt)
	}

	res := db.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition job %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *OutboundCampaignJobRepositoryImpl) applyFilter(db *gorm.DB, filter models.OutboundCampaignJobFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.BusinessID != nil {
		db = db.Where("business_id = ?", *filter.BusinessID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
