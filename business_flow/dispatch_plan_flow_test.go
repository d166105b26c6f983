package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBuildDispatchPlan(t *testing.T) {
	estimates := []int{10, 10, 10, 10, 10, 10, 10}
	throttle := ThrottleSettings{MaxBatchSize: 3, MaxPerMinute: 6, MinGapSeconds: 5}

	batches, summary := BuildDispatchPlan(estimates, throttle)
	require.Len(t, batches, 3)

	// each full batch needs ceil(60*3/6) = 30 seconds
	assert.Equal(t, 0, batches[0].StartOffsetSeconds)
	assert.Equal(t, 30, batches[1].StartOffsetSeconds)
	assert.Equal(t, 60, batches[2].StartOffsetSeconds)
	assert.Equal(t, 1, batches[2].RecipientCount)
	assert.Equal(t, 6, batches[2].StartIndex)
	assert.InDelta(t, 10.0, batches[0].SpacingSeconds, 1e-9)
	assert.InDelta(t, 20.0, batches[0].LastSendOffsetSeconds, 1e-9)

	assert.Equal(t, 7, summary.TotalRecipients)
	assert.Equal(t, 3, summary.TotalBatches)
	assert.Equal(t, 70, summary.TotalBytes)
	assert.InDelta(t, 60.0, summary.EstimatedDurationSeconds, 1e-9)

	again, _ := BuildDispatchPlan(estimates, throttle)
	assert.Equal(t, batches, again)
}

func TestBuildDispatchPlan_RespectsRateBound(t *testing.T) {
	throttle := ThrottleSettings{MaxBatchSize: 7, MaxPerMinute: 11, MinGapSeconds: 0}
	estimates := make([]int, 100)

	batches, _ := BuildDispatchPlan(estimates, throttle)
	for i := 1; i < len(batches); i++ {
		prev := batches[i-1]
		gap := batches[i].StartOffsetSeconds - prev.StartOffsetSeconds
		assert.GreaterOrEqual(t, float64(gap)*float64(throttle.MaxPerMinute), 60*float64(prev.RecipientCount))
	}
}

func TestBuildDispatchPlan_MessageOffsetsFollowRate(t *testing.T) {
	cases := []struct {
		name     string
		n        int
		throttle ThrottleSettings
	}{
		{"rate divides count", 12, ThrottleSettings{MaxBatchSize: 4, MaxPerMinute: 6}},
		{"rate does not divide count", 7, ThrottleSettings{MaxBatchSize: 3, MaxPerMinute: 6}},
		{"uneven batches", 100, ThrottleSettings{MaxBatchSize: 7, MaxPerMinute: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := float64(tc.throttle.MaxPerMinute)
			batches, summary := BuildDispatchPlan(make([]int, tc.n), tc.throttle)

			// the k-th message (from 0) never goes out before 60*k/R
			k := 0
			for _, b := range batches {
				for j := 0; j < b.RecipientCount; j++ {
					at := float64(b.StartOffsetSeconds) + float64(j)*b.SpacingSeconds
					assert.GreaterOrEqual(t, at+1e-9, 60*float64(k)/r, "message %d", k)
					k++
				}
			}
			assert.Equal(t, tc.n, k)
			assert.GreaterOrEqual(t, summary.EstimatedDurationSeconds+1e-9, 60*float64(tc.n-1)/r)
		})
	}

	// with R | N this is exactly ceil(N/R)*60 - 60/R
	_, summary := BuildDispatchPlan(make([]int, 12), ThrottleSettings{MaxBatchSize: 4, MaxPerMinute: 6})
	assert.InDelta(t, 110.0, summary.EstimatedDurationSeconds, 1e-9)
}

func TestBuildDispatchPlan_Empty(t *testing.T) {
	batches, summary := BuildDispatchPlan(nil, ThrottleSettings{MaxBatchSize: 10, MaxPerMinute: 60})
	assert.Empty(t, batches)
	assert.Zero(t, summary.EstimatedDurationSeconds)
}

func TestThrottleSettings(t *testing.T) {
	t.Run("min gap wins", func(t *testing.T) {
		s := ThrottleSettings{MaxBatchSize: 10, MaxPerMinute: 600, MinGapSeconds: 30}
		assert.Equal(t, 30, s.BatchGapSeconds(10))
	})
	t.Run("rate wins", func(t *testing.T) {
		s := ThrottleSettings{MaxBatchSize: 10, MaxPerMinute: 7, MinGapSeconds: 1}
		assert.Equal(t, 86, s.BatchGapSeconds(10))
	})
	t.Run("campaign overrides", func(t *testing.T) {
		campaign := &models.Campaign{MaxBatchSize: utils.ToPtr(5), MinGapSeconds: utils.ToPtr(0)}
		s := ThrottleFor(campaign, config.DispatchConfig{MaxBatchSize: 100, MaxPerMinute: 60, MinGapSecond: 10})
		assert.Equal(t, ThrottleSettings{MaxBatchSize: 5, MaxPerMinute: 60, MinGapSeconds: 0}, s)
	})
	t.Run("invalid", func(t *testing.T) {
		assert.ErrorIs(t, ThrottleSettings{MaxBatchSize: 0, MaxPerMinute: 60}.Validate(), ErrInvalidThrottleConfig)
		assert.ErrorIs(t, ThrottleSettings{MaxBatchSize: 1, MaxPerMinute: 0}.Validate(), ErrInvalidThrottleConfig)
		assert.ErrorIs(t, ThrottleSettings{MaxBatchSize: 1, MaxPerMinute: 1, MinGapSeconds: -1}.Validate(), ErrInvalidThrottleConfig)
	})
}

func TestGetPlan_PendingOnly(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo", BodyText: "Hi {{1}}", BodyParamCount: 1})
	recipients := s.seedRecipients(campaign, "+14155550100", "+14155550101", "+14155550102")
	recipients[1].Status = models.RecipientStatusSent

	flow := NewDispatchPlanFlow(fakeCampaignRepo{s}, fakeTemplateRepo{s}, fakeRecipientRepo{s},
		config.DispatchConfig{MaxBatchSize: 1, MaxPerMinute: 60, MinGapSecond: 0})

	plan, err := flow.GetPlan(context.Background(), &dto.DispatchPlanRequest{BusinessID: 1, CampaignID: campaign.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Throttle.TotalRecipients)
	require.Len(t, plan.Batches, 2)
	assert.Equal(t, len("Hi {{1}}")+len("Sara"), plan.Batches[0].ByteEstimate)
	assert.Equal(t, 1, plan.Batches[1].StartOffsetSeconds)

	limited, err := flow.GetPlan(context.Background(), &dto.DispatchPlanRequest{BusinessID: 1, CampaignID: campaign.ID, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Throttle.TotalRecipients)
}

func TestGetPlan_InvalidThrottle(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo"})
	flow := NewDispatchPlanFlow(fakeCampaignRepo{s}, fakeTemplateRepo{s}, fakeRecipientRepo{s}, config.DispatchConfig{})

	_, err := flow.GetPlan(context.Background(), &dto.DispatchPlanRequest{BusinessID: 1, CampaignID: campaign.ID})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestExportPlan(t *testing.T) {
	s := newMemStore()
	campaign := s.seedCampaign(&models.MessageTemplate{Name: "promo", BodyParamCount: 1})
	s.seedRecipients(campaign, "+14155550100", "+14155550101", "+14155550102")
	flow := NewDispatchPlanFlow(fakeCampaignRepo{s}, fakeTemplateRepo{s}, fakeRecipientRepo{s},
		config.DispatchConfig{MaxBatchSize: 2, MaxPerMinute: 60})
	base := dto.DispatchPlanRequest{BusinessID: 1, CampaignID: campaign.ID}

	t.Run("csv", func(t *testing.T) {
		out, err := flow.ExportPlan(context.Background(), &dto.ExportDispatchPlanRequest{DispatchPlanRequest: base, Format: ExportFormatCSV})
		require.NoError(t, err)
		assert.Equal(t, "text/csv", out.ContentType)
		assert.Contains(t, out.FileName, ".csv")

		records, err := csv.NewReader(bytes.NewReader(out.Content)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, planExportHeader, records[0])
		assert.Equal(t, []string{"2", "2", "1"}, records[2][:3])
		assert.Equal(t, "2", records[2][4])
	})

	t.Run("xlsx", func(t *testing.T) {
		out, err := flow.ExportPlan(context.Background(), &dto.ExportDispatchPlanRequest{DispatchPlanRequest: base, Format: ExportFormatXLSX})
		require.NoError(t, err)

		xl, err := excelize.OpenReader(bytes.NewReader(out.Content))
		require.NoError(t, err)
		defer xl.Close()

		rows, err := xl.GetRows("plan")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "batch_number", rows[0][0])

		total, err := xl.GetCellValue("summary", "B4")
		require.NoError(t, err)
		assert.Equal(t, "3", total)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := flow.ExportPlan(context.Background(), &dto.ExportDispatchPlanRequest{DispatchPlanRequest: base, Format: "pdf"})
		assert.ErrorIs(t, err, ErrInvalidExportFormat)
	})
}
