package dto

// Row source types
const (
	RowSourceCsvBatch = "csv_batch"
	RowSourceContacts = "contacts"
	RowSourceAudience = "audience"
)

// RowSource selects where materialization rows come from. Exactly one of the ids is used, per Type.
type RowSource struct {
	Type       string `json:"type" validate:"required,oneof=csv_batch contacts audience"`
	CsvBatchID *uint  `json:"csv_batch_id,omitempty"`
	ContactIDs []uint `json:"contact_ids,omitempty"`
	AudienceID *uint  `json:"audience_id,omitempty"`
}

// MaterializeRecipientsRequest represents the request to freeze per-recipient payloads
type MaterializeRecipientsRequest struct {
	BusinessID   uint                  `json:"-"`
	CampaignID   uint                  `json:"-"`
	Source       RowSource             `json:"source" validate:"required"`
	Mapping      []VariableMappingItem `json:"mapping,omitempty" validate:"omitempty,dive"`
	PhoneField   string                `json:"phone_field,omitempty"`
	Normalize    *bool                 `json:"normalize,omitempty"`
	Deduplicate  *bool                 `json:"deduplicate,omitempty"`
	Limit        int                   `json:"limit,omitempty" validate:"omitempty,min=1,max=1000000"`
	Persist      bool                  `json:"persist"`
	AudienceName string                `json:"audience_name,omitempty" validate:"omitempty,max=255"`
}

// MaterializedRecipientSample is a preview of one resolved recipient
type MaterializedRecipientSample struct {
	Phone          string   `json:"phone"`
	HeaderParams   []string `json:"header_params"`
	Params         []string `json:"params"`
	ButtonURLs     []string `json:"button_urls"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// RowErrorItem describes a row excluded from the run
type RowErrorItem struct {
	Row     int    `json:"row"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

// MaterializeRecipientsResponse summarizes a materialization run
type MaterializeRecipientsResponse struct {
	AudienceID   *uint                         `json:"audience_id,omitempty"`
	Persisted    bool                          `json:"persisted"`
	Materialized int                           `json:"materialized"`
	Skipped      int                           `json:"skipped"`
	ErrorCount   int                           `json:"error_count"`
	Sample       []MaterializedRecipientSample `json:"sample"`
	Warnings     []string                      `json:"warnings"`
	Errors       []RowErrorItem                `json:"errors"`
}
