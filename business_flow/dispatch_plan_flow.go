package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
)

// planPageSize is the recipient page read per query while planning
const planPageSize = 1000

// DispatchPlanFlow projects a campaign's pending recipients into throttled batches.
// It never writes.
type DispatchPlanFlow interface {
	GetPlan(ctx context.Context, req *dto.DispatchPlanRequest) (*dto.DispatchPlanResponse, error)
	ExportPlan(ctx context.Context, req *dto.ExportDispatchPlanRequest) (*dto.ExportDispatchPlanResponse, error)
}

// DispatchPlanFlowImpl implements the dispatch plan business flow
type DispatchPlanFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	templateRepo  repository.MessageTemplateRepository
	recipientRepo repository.MaterializedRecipientRepository
	cfg           config.DispatchConfig
}

// NewDispatchPlanFlow creates a new dispatch plan flow instance
func NewDispatchPlanFlow(
	campaignRepo repository.CampaignRepository,
	templateRepo repository.MessageTemplateRepository,
	recipientRepo repository.MaterializedRecipientRepository,
	cfg config.DispatchConfig,
) DispatchPlanFlow {
	return &DispatchPlanFlowImpl{
		campaignRepo:  campaignRepo,
		templateRepo:  templateRepo,
		recipientRepo: recipientRepo,
		cfg:           cfg,
	}
}

// ThrottleSettings are the provider limits a plan obeys
type ThrottleSettings struct {
	MaxBatchSize  int
	MaxPerMinute  int
	MinGapSeconds int
}

// ThrottleFor applies campaign overrides over the configured defaults
func ThrottleFor(campaign *models.Campaign, cfg config.DispatchConfig) ThrottleSettings {
	t := ThrottleSettings{
		MaxBatchSize:  cfg.MaxBatchSize,
		MaxPerMinute:  cfg.MaxPerMinute,
		MinGapSeconds: cfg.MinGapSecond,
	}
	if campaign == nil {
		return t
	}
	if v := campaign.MaxBatchSize; v != nil && *v > 0 {
		t.MaxBatchSize = *v
	}
	if v := campaign.MaxPerMinute; v != nil && *v > 0 {
		t.MaxPerMinute = *v
	}
	if v := campaign.MinGapSeconds; v != nil && *v >= 0 {
		t.MinGapSeconds = *v
	}
	return t
}

// Validate rejects settings that cannot be scheduled
func (t ThrottleSettings) Validate() error {
	if t.MaxBatchSize < 1 || t.MaxPerMinute < 1 || t.MinGapSeconds < 0 {
		return fmt.Errorf("%w: batch=%d per_minute=%d min_gap=%d", ErrInvalidThrottleConfig, t.MaxBatchSize, t.MaxPerMinute, t.MinGapSeconds)
	}
	return nil
}

// SpacingSeconds is the gap between two messages of one batch
func (t ThrottleSettings) SpacingSeconds() float64 {
	return 60 / float64(t.MaxPerMinute)
}

// BatchGapSeconds is the distance between the start of a batch of size messages and the next one
func (t ThrottleSettings) BatchGapSeconds(size int) int {
	// ceil(60*size/perMinute) in integers
	window := (60*size + t.MaxPerMinute - 1) / t.MaxPerMinute
	return max(window, t.MinGapSeconds)
}

// BuildDispatchPlan splits recipients, given as byte estimates in send order, into batches.
// offset(1) = 0 and offset(n) = offset(n-1) + max(ceil(60*size(n-1)/perMinute), minGap).
// The k-th message (from 0) is planned no earlier than 60*k/perMinute seconds, so the last one
// lands at or after 60*(N-1)/perMinute, which equals ceil(N/perMinute)*60 - 60/perMinute when
// perMinute divides N.
func BuildDispatchPlan(byteEstimates []int, t ThrottleSettings) ([]dto.DispatchBatchItem, dto.ThrottleSummary) {
	spacing := t.SpacingSeconds()
	summary := dto.ThrottleSummary{
		MaxBatchSize:    t.MaxBatchSize,
		MaxPerMinute:    t.MaxPerMinute,
		MinGapSeconds:   t.MinGapSeconds,
		TotalRecipients: len(byteEstimates),
	}

	batches := make([]dto.DispatchBatchItem, 0, (len(byteEstimates)+t.MaxBatchSize-1)/t.MaxBatchSize)
	offset := 0
	for start := 0; start < len(byteEstimates); {
		size := min(t.MaxBatchSize, len(byteEstimates)-start)
		bytes := 0
		for _, b := range byteEstimates[start : start+size] {
			bytes += b
		}

		batches = append(batches, dto.DispatchBatchItem{
			BatchNumber:           len(batches) + 1,
			StartIndex:            start,
			RecipientCount:        size,
			ByteEstimate:          bytes,
			StartOffsetSeconds:    offset,
			SpacingSeconds:        spacing,
			LastSendOffsetSeconds: float64(offset) + float64(size-1)*spacing,
		})
		summary.TotalBytes += bytes

		offset += t.BatchGapSeconds(size)
		start += size
	}

	summary.TotalBatches = len(batches)
	if n := len(batches); n > 0 {
		summary.EstimatedDurationSeconds = batches[n-1].LastSendOffsetSeconds
	}
	return batches, summary
}

// RecipientByteEstimate approximates the payload size of one message
func RecipientByteEstimate(template *models.MessageTemplate, r *models.MaterializedRecipient) int {
	n := len(template.BodyText) + len(template.HeaderText)
	for _, p := range r.ResolvedHeaderParams {
		n += len(p)
	}
	for _, p := range r.ResolvedParams {
		n += len(p)
	}
	for _, u := range r.ResolvedButtonURLs {
		n += len(u)
	}
	return n
}

// GetPlan returns the advisory schedule of the campaign's pending recipients
func (f *DispatchPlanFlowImpl) GetPlan(ctx context.Context, req *dto.DispatchPlanRequest) (*dto.DispatchPlanResponse, error) {
	campaign, err := loadCampaign(ctx, f.campaignRepo, req.BusinessID, req.CampaignID)
	if err != nil {
		return nil, err
	}

	throttle := ThrottleFor(campaign, f.cfg)
	if err := throttle.Validate(); err != nil {
		return nil, NewBusinessError("INVALID_THROTTLE_CONFIG", "Invalid throttle configuration", err)
	}

	if campaign.TemplateID == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_RESOLVED", "Campaign has no template", ErrTemplateNotResolved)
	}
	template, err := f.templateRepo.ByID(ctx, *campaign.TemplateID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if template == nil || template.BusinessID != campaign.BusinessID {
		return nil, NewBusinessError("TEMPLATE_NOT_RESOLVED", "Campaign template could not be resolved", ErrTemplateNotResolved)
	}

	estimates, err := f.pendingByteEstimates(ctx, campaign, template, req.Limit)
	if err != nil {
		return nil, NewBusinessError("RECIPIENT_LOOKUP_FAILED", "Failed to read recipients", err)
	}

	batches, summary := BuildDispatchPlan(estimates, throttle)
	return &dto.DispatchPlanResponse{
		CampaignID: campaign.ID,
		Throttle:   summary,
		Batches:    batches,
	}, nil
}

// pendingByteEstimates pages through pending recipients in id order
func (f *DispatchPlanFlowImpl) pendingByteEstimates(ctx context.Context, campaign *models.Campaign, template *models.MessageTemplate, limit int) ([]int, error) {
	status := models.RecipientStatusPending
	filter := models.MaterializedRecipientFilter{
		BusinessID: &campaign.BusinessID,
		CampaignID: &campaign.ID,
		Status:     &status,
	}

	var estimates []int
	for {
		pageSize := planPageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-len(estimates))
			if pageSize <= 0 {
				break
			}
		}
		page, err := f.recipientRepo.ListPage(ctx, filter, pageSize)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			estimates = append(estimates, RecipientByteEstimate(template, r))
		}
		if len(page) < pageSize {
			break
		}
		lastID := page[len(page)-1].ID
		filter.AfterID = &lastID
	}
	return estimates, nil
}
