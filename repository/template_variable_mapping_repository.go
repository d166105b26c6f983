package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"gorm.io/gorm"
)

// TemplateVariableMappingRepositoryImpl implements TemplateVariableMappingRepository
type TemplateVariableMappingRepositoryImpl struct {
	*BaseRepository[models.TemplateVariableMapping, any]
}

func NewTemplateVariableMappingRepository(db *gorm.DB) TemplateVariableMappingRepository {
	return &TemplateVariableMappingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.TemplateVariableMapping, any](db),
	}
}

// ListByCampaign returns mappings ordered HEADER, BODY, BUTTON:URL:1..3 then by index
func (r *TemplateVariableMappingRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint) ([]*models.TemplateVariableMapping, error) {
	var rows []*models.TemplateVariableMapping
	err := r.getDB(ctx).
		Where("campaign_id = ?", campaignID).
		Order("placeholder_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list variable mappings: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Component.Rank() < rows[j].Component.Rank()
	})
	return rows, nil
}

// UpdateBinding rewrites the source fields of an existing mapping in place
func (r *TemplateVariableMappingRepositoryImpl) UpdateBinding(ctx context.Context, m *models.TemplateVariableMapping) error {
	m.UpdatedAt = utils.UTCNow()
	err := r.getDB(ctx).Model(&models.TemplateVariableMapping{}).
		Where("id = ?", m.ID).
		Updates(map[string]any{
			"source_type":   m.SourceType,
			"source_key":    m.SourceKey,
			"static_value":  m.StaticValue,
			"expression":    m.Expression,
			"default_value": m.DefaultValue,
			"required":      m.Required,
			"updated_at":    m.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update variable mapping %d: %w", m.ID, err)
	}
	return nil
}

func (r *TemplateVariableMappingRepositoryImpl) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.getDB(ctx).Where("id IN ?", ids).Delete(&models.TemplateVariableMapping{}).Error; err != nil {
		return fmt.Errorf("failed to delete variable mappings: %w", err)
	}
	return nil
}
