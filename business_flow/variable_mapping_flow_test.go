package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMappingFlow(s *memStore) VariableMappingFlow {
	return NewVariableMappingFlow(fakeCampaignRepo{s}, fakeMappingRepo{s}, fakeAuditRepo{s}, fakeTx{})
}

func TestSaveMappings_ReplacesSet(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo", Language: "en", BodyText: "Hi {{1}} {{2}}", BodyParamCount: 2})
	flow := newMappingFlow(s)

	first, err := flow.SaveMappings(ctx, &dto.SaveVariableMappingsRequest{
		BusinessID: 1,
		CampaignID: campaign.ID,
		Items: []dto.VariableMappingItem{
			{Index: 2, SourceType: "Static", StaticValue: "friend"},
			{Index: 1, SourceType: "CsvColumn", SourceKey: "first_name"},
			{Component: "HEADER", Index: 1, SourceType: "Expression", Expression: "upper(city)"},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	assert.Equal(t, "HEADER", first.Items[0].Component)
	assert.Equal(t, "BODY", first.Items[1].Component)
	assert.Equal(t, 1, first.Items[1].Index)
	assert.Equal(t, 2, first.Items[2].Index)

	unchangedID := first.Items[1].ID
	unchangedAt := first.Items[1].UpdatedAt

	second, err := flow.SaveMappings(ctx, &dto.SaveVariableMappingsRequest{
		BusinessID: 1,
		CampaignID: campaign.ID,
		Items: []dto.VariableMappingItem{
			{Index: 1, SourceType: "CsvColumn", SourceKey: "first_name"},
			{Index: 2, SourceType: "Static", StaticValue: "customer"},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, unchangedID, second.Items[0].ID)
	assert.Equal(t, unchangedAt, second.Items[0].UpdatedAt)
	assert.Equal(t, "customer", second.Items[1].StaticValue)

	stored, err := flow.GetMappings(ctx, &dto.GetVariableMappingsRequest{BusinessID: 1, CampaignID: campaign.ID})
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	for _, item := range stored.Items {
		assert.Equal(t, "BODY", item.Component)
	}

	assert.Equal(t, []string{models.AuditActionVariableMappingsSaved, models.AuditActionVariableMappingsSaved}, s.auditActions())
}

func TestSaveMappings_NormalizesItems(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo", BodyParamCount: 1})

	resp, err := newMappingFlow(s).SaveMappings(context.Background(), &dto.SaveVariableMappingsRequest{
		BusinessID: 1,
		CampaignID: campaign.ID,
		Items: []dto.VariableMappingItem{
			{Index: 0, SourceType: "Static", StaticValue: "dropped"},
			{Index: 1, SourceType: "Static", StaticValue: "first"},
			{Index: 1, SourceType: "Static", StaticValue: "last"},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "last", resp.Items[0].StaticValue)
	assert.Equal(t, "BODY", resp.Items[0].Component)
}

func TestSaveMappings_Validation(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo", BodyParamCount: 1})
	flow := newMappingFlow(s)

	for name, item := range map[string]dto.VariableMappingItem{
		"csv without key":     {Index: 1, SourceType: "CsvColumn"},
		"bad expression":      {Index: 1, SourceType: "Expression", Expression: "upper("},
		"unknown source":      {Index: 1, SourceType: "Lookup"},
		"bad component":       {Component: "FOOTER", Index: 1, SourceType: "Static"},
		"button out of range": {Component: "BUTTON:URL:4", Index: 1, SourceType: "Static"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := flow.SaveMappings(context.Background(), &dto.SaveVariableMappingsRequest{
				BusinessID: 1,
				CampaignID: campaign.ID,
				Items:      []dto.VariableMappingItem{item},
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMapping)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestGetMappings_OtherTenant(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo"})

	_, err := newMappingFlow(s).GetMappings(context.Background(), &dto.GetVariableMappingsRequest{BusinessID: 2, CampaignID: campaign.ID})
	require.Error(t, err)
	assert.True(t, IsCampaignNotFound(err))
}
