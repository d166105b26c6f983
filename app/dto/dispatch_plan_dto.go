package dto

// DispatchPlanRequest represents the request to project a campaign's send schedule
type DispatchPlanRequest struct {
	BusinessID uint `json:"-"`
	CampaignID uint `json:"-"`
	Limit      int  `json:"limit,omitempty" validate:"omitempty,min=1"`
}

// ExportDispatchPlanRequest represents the request to download a dispatch plan
type ExportDispatchPlanRequest struct {
	DispatchPlanRequest
	Format string `json:"format" validate:"required,oneof=csv xlsx"`
}

// DispatchBatchItem is one throttled batch of the plan
type DispatchBatchItem struct {
	BatchNumber           int     `json:"batch_number"`
	StartIndex            int     `json:"start_index"`
	RecipientCount        int     `json:"recipient_count"`
	ByteEstimate          int     `json:"byte_estimate"`
	StartOffsetSeconds    int     `json:"start_offset_seconds"`
	SpacingSeconds        float64 `json:"spacing_seconds"`
	LastSendOffsetSeconds float64 `json:"last_send_offset_seconds"`
}

// ThrottleSummary reports the parameters and totals a plan was computed with
type ThrottleSummary struct {
	MaxBatchSize             int     `json:"max_batch_size"`
	MaxPerMinute             int     `json:"max_per_minute"`
	MinGapSeconds            int     `json:"min_gap_seconds"`
	TotalRecipients          int     `json:"total_recipients"`
	TotalBatches             int     `json:"total_batches"`
	TotalBytes               int     `json:"total_bytes"`
	EstimatedDurationSeconds float64 `json:"estimated_duration_seconds"`
}

// DispatchPlanResponse is the advisory schedule of a campaign
type DispatchPlanResponse struct {
	CampaignID uint                `json:"campaign_id"`
	Throttle   ThrottleSummary     `json:"throttle"`
	Batches    []DispatchBatchItem `json:"batches"`
}

// ExportDispatchPlanResponse is a rendered plan file
type ExportDispatchPlanResponse struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}
