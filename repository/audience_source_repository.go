package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Yamata-WABA/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, any]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{BaseRepository: NewBaseRepository[models.Contact, any](db)}
}

func (r *ContactRepositoryImpl) ListForBusiness(ctx context.Context, businessID uint, ids []uint, limit int) ([]*models.Contact, error) {
	db := r.getDB(ctx).Where("business_id = ?", businessID)
	if len(ids) > 0 {
		db = db.Where("id IN ?", ids)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	var contacts []*models.Contact
	if err := db.Order("id ASC").Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return contacts, nil
}

// CsvBatchRepositoryImpl implements CsvBatchRepository
type CsvBatchRepositoryImpl struct {
	*BaseRepository[models.CsvBatch, any]
}

func NewCsvBatchRepository(db *gorm.DB) CsvBatchRepository {
	return &CsvBatchRepositoryImpl{BaseRepository: NewBaseRepository[models.CsvBatch, any](db)}
}

func (r *CsvBatchRepositoryImpl) Rows(ctx context.Context, batchID uint, limit int) ([]*models.CsvBatchRow, error) {
	db := r.getDB(ctx).Where("csv_batch_id = ?", batchID).Order("row_number ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}

	var rows []*models.CsvBatchRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list csv rows of batch %d: %w", batchID, err)
	}
	return rows, nil
}

// AudienceRepositoryImpl implements AudienceRepository
type AudienceRepositoryImpl struct {
	*BaseRepository[models.Audience, any]
}

func NewAudienceRepository(db *gorm.DB) AudienceRepository {
	return &AudienceRepositoryImpl{BaseRepository: NewBaseRepository[models.Audience, any](db)}
}

func (r *AudienceRepositoryImpl) FindOrCreate(ctx context.Context, audience *models.Audience) (*models.Audience, error) {
	db := r.getDB(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(audience).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create audience: %w", err)
	}

	var existing models.Audience
	err = db.Where("campaign_id = ? AND name = ?", audience.CampaignID, audience.Name).Take(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("audience %q vanished after upsert", audience.Name)
		}
		return nil, fmt.Errorf("failed to load audience: %w", err)
	}
	return &existing, nil
}

func (r *AudienceRepositoryImpl) Members(ctx context.Context, audienceID uint, limit int) ([]*models.AudienceMember, error) {
	db := r.getDB(ctx).Where("audience_id = ?", audienceID).Order("id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}

	var members []*models.AudienceMember
	if err := db.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list audience members: %w", err)
	}
	return members, nil
}

func (r *AudienceRepositoryImpl) UpsertMembers(ctx context.Context, members []*models.AudienceMember) error {
	if len(members) == 0 {
		return nil
	}

	// Deduplicate by conflict key to avoid ON CONFLICT hitting same row twice in one statement
	type aggKey struct {
		audienceID uint
		phone      string
	}
	seen := make(map[aggKey]*models.AudienceMember, len(members))
	deduped := make([]*models.AudienceMember, 0, len(members))
	for _, m := range members {
		key := aggKey{audienceID: m.AudienceID, phone: m.Phone}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = m
		deduped = append(deduped, m)
	}

	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "audience_id"}, {Name: "phone"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":       clause.Expr{SQL: "EXCLUDED.name"},
			"row_values": clause.Expr{SQL: "EXCLUDED.row_values"},
		}),
	}).Create(&deduped).Error
	if err != nil {
		return fmt.Errorf("failed to upsert audience members: %w", err)
	}

	for _, m := range members {
		m.ID = seen[aggKey{audienceID: m.AudienceID, phone: m.Phone}].ID
	}
	return nil
}
