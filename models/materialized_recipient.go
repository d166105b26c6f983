package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RecipientStatus tracks a materialized recipient through sending
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusFailed    RecipientStatus = "failed"
	RecipientStatusReplied   RecipientStatus = "replied"
)

// Valid checks if the status is valid
func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientStatusPending, RecipientStatusSent, RecipientStatusDelivered,
		RecipientStatusFailed, RecipientStatusReplied:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for RecipientStatus
func (s *RecipientStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = ""
	case string:
		*s = RecipientStatus(v)
	case []byte:
		*s = RecipientStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RecipientStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for RecipientStatus
func (s RecipientStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid RecipientStatus: %s", s)
	}
	return string(s), nil
}

// MaterializedRecipient is a frozen per-recipient send payload.
// IdempotencyKey is derived from campaign, phone, template and resolved content.
type MaterializedRecipient struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	BusinessID           uint            `gorm:"not null;index:idx_materialized_recipients_business_id" json:"business_id"`
	CampaignID           uint            `gorm:"not null;index:idx_materialized_recipients_campaign_id" json:"campaign_id"`
	TemplateID           uint            `gorm:"not null" json:"template_id"`
	AudienceID           *uint           `gorm:"index:idx_materialized_recipients_audience_id" json:"audience_id,omitempty"`
	ContactID            *uint           `json:"contact_id,omitempty"`
	AudienceMemberID     *uint           `json:"audience_member_id,omitempty"`
	Phone                string          `gorm:"size:32;not null" json:"phone"`
	ResolvedHeaderParams pq.StringArray  `gorm:"type:text[];not null;default:'{}'" json:"resolved_header_params"`
	ResolvedParams       pq.StringArray  `gorm:"type:text[];not null;default:'{}'" json:"resolved_params"`
	ResolvedButtonURLs   pq.StringArray  `gorm:"type:text[];not null;default:'{}'" json:"resolved_button_urls"`
	IdempotencyKey       string          `gorm:"size:64;not null;uniqueIndex:uk_materialized_recipients_idempotency_key" json:"idempotency_key"`
	MaterializedAt       time.Time       `gorm:"not null" json:"materialized_at"`
	Status               RecipientStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	CreatedAt            time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MaterializedRecipient) TableName() string { return "materialized_recipients" }

// MaterializedRecipientFilter represents filter criteria for recipients
type MaterializedRecipientFilter struct {
	BusinessID *uint
	CampaignID *uint
	AudienceID *uint
	Status     *RecipientStatus
	AfterID    *uint
}
