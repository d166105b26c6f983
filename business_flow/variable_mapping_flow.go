package businessflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
)

// VariableMappingFlow handles reading and replacing a campaign's placeholder bindings
type VariableMappingFlow interface {
	GetMappings(ctx context.Context, req *dto.GetVariableMappingsRequest) (*dto.VariableMappingsResponse, error)
	SaveMappings(ctx context.Context, req *dto.SaveVariableMappingsRequest, metadata *ClientMetadata) (*dto.VariableMappingsResponse, error)
}

// VariableMappingFlowImpl implements the variable mapping business flow
type VariableMappingFlowImpl struct {
	campaignRepo repository.CampaignRepository
	mappingRepo  repository.TemplateVariableMappingRepository
	auditRepo    repository.AuditLogRepository
	tx           repository.Transactor
}

// NewVariableMappingFlow creates a new variable mapping flow instance
func NewVariableMappingFlow(
	campaignRepo repository.CampaignRepository,
	mappingRepo repository.TemplateVariableMappingRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
) VariableMappingFlow {
	return &VariableMappingFlowImpl{
		campaignRepo: campaignRepo,
		mappingRepo:  mappingRepo,
		auditRepo:    auditRepo,
		tx:           tx,
	}
}

// GetMappings returns the stored mapping set ordered by component then index
func (f *VariableMappingFlowImpl) GetMappings(ctx context.Context, req *dto.GetVariableMappingsRequest) (*dto.VariableMappingsResponse, error) {
	if _, err := loadCampaign(ctx, f.campaignRepo, req.BusinessID, req.CampaignID); err != nil {
		return nil, err
	}

	mappings, err := f.mappingRepo.ListByCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("MAPPING_LOOKUP_FAILED", "Failed to list variable mappings", err)
	}

	return toMappingsResponse(req.CampaignID, mappings), nil
}

// SaveMappings replaces the whole mapping set in one transaction.
// Unchanged rows are left untouched so their updated_at survives.
func (f *VariableMappingFlowImpl) SaveMappings(ctx context.Context, req *dto.SaveVariableMappingsRequest, metadata *ClientMetadata) (*dto.VariableMappingsResponse, error) {
	if _, err := loadCampaign(ctx, f.campaignRepo, req.BusinessID, req.CampaignID); err != nil {
		return nil, err
	}

	incoming, err := mappingsFromItems(req.BusinessID, req.CampaignID, req.Items)
	if err != nil {
		return nil, NewBusinessError("MAPPING_VALIDATION_FAILED", "Variable mapping validation failed", err)
	}

	var created, updated, deleted int
	var result []*models.TemplateVariableMapping
	err = f.tx.Do(ctx, func(txCtx context.Context) error {
		existing, err := f.mappingRepo.ListByCampaign(txCtx, req.CampaignID)
		if err != nil {
			return err
		}

		byKey := make(map[models.MappingKey]*models.TemplateVariableMapping, len(existing))
		for _, m := range existing {
			byKey[m.Key()] = m
		}

		keep := make(map[models.MappingKey]bool, len(incoming))
		for _, m := range incoming {
			keep[m.Key()] = true
			current, ok := byKey[m.Key()]
			switch {
			case !ok:
				if err := f.mappingRepo.Save(txCtx, m); err != nil {
					return err
				}
				created++
				result = append(result, m)
			case current.SameBinding(m):
				result = append(result, current)
			default:
				m.ID = current.ID
				m.CreatedAt = current.CreatedAt
				if err := f.mappingRepo.UpdateBinding(txCtx, m); err != nil {
					return err
				}
				updated++
				result = append(result, m)
			}
		}

		var stale []uint
		for _, m := range existing {
			if !keep[m.Key()] {
				stale = append(stale, m.ID)
			}
		}
		if len(stale) > 0 {
			if err := f.mappingRepo.DeleteByIDs(txCtx, stale); err != nil {
				return err
			}
			deleted = len(stale)
		}
		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Variable mapping replace failed for campaign %d: %s", req.CampaignID, err.Error())
		_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionVariableMappingsSaved, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("MAPPING_SAVE_FAILED", "Failed to save variable mappings", err)
	}

	msg := fmt.Sprintf("Variable mappings replaced for campaign %d: %d created, %d updated, %d deleted", req.CampaignID, created, updated, deleted)
	_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionVariableMappingsSaved, msg, true, nil, metadata)

	sortMappings(result)
	return toMappingsResponse(req.CampaignID, result), nil
}

// mappingsFromItems converts request items into mappings.
// A missing component means BODY, index < 1 is dropped and duplicate keys resolve last-wins.
func mappingsFromItems(businessID, campaignID uint, items []dto.VariableMappingItem) ([]*models.TemplateVariableMapping, error) {
	byKey := make(map[models.MappingKey]*models.TemplateVariableMapping, len(items))
	var order []models.MappingKey
	for i, item := range items {
		if item.Index < 1 {
			continue
		}

		component := models.BodyComponent
		if strings.TrimSpace(item.Component) != "" {
			c, err := models.ParseComponent(item.Component)
			if err != nil {
				return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidMapping, i, err)
			}
			component = c
		}

		m := &models.TemplateVariableMapping{
			BusinessID:   businessID,
			CampaignID:   campaignID,
			Component:    component,
			Index:        item.Index,
			SourceType:   models.SourceType(strings.TrimSpace(item.SourceType)),
			SourceKey:    strings.TrimSpace(item.SourceKey),
			StaticValue:  item.StaticValue,
			Expression:   strings.TrimSpace(item.Expression),
			DefaultValue: item.DefaultValue,
			Required:     item.Required,
		}
		if err := validateMapping(m); err != nil {
			return nil, err
		}

		if _, seen := byKey[m.Key()]; !seen {
			order = append(order, m.Key())
		}
		byKey[m.Key()] = m
	}

	out := make([]*models.TemplateVariableMapping, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

func sortMappings(mappings []*models.TemplateVariableMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		ri, rj := mappings[i].Component.Rank(), mappings[j].Component.Rank()
		if ri != rj {
			return ri < rj
		}
		return mappings[i].Index < mappings[j].Index
	})
}

func toMappingItem(m *models.TemplateVariableMapping) dto.VariableMappingItem {
	return dto.VariableMappingItem{
		Component:    m.Component.String(),
		Index:        m.Index,
		SourceType:   string(m.SourceType),
		SourceKey:    m.SourceKey,
		StaticValue:  m.StaticValue,
		Expression:   m.Expression,
		DefaultValue: m.DefaultValue,
		Required:     m.Required,
	}
}

func toMappingsResponse(campaignID uint, mappings []*models.TemplateVariableMapping) *dto.VariableMappingsResponse {
	items := make([]dto.StoredVariableMapping, 0, len(mappings))
	for _, m := range mappings {
		updatedAt := m.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		items = append(items, dto.StoredVariableMapping{
			VariableMappingItem: toMappingItem(m),
			ID:                  m.ID,
			UpdatedAt:           updatedAt,
		})
	}
	return &dto.VariableMappingsResponse{CampaignID: campaignID, Items: items}
}
