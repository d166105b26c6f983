package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a WhatsApp campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusReady     CampaignStatus = "ready"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCanceled  CampaignStatus = "canceled"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusReady, CampaignStatusRunning,
		CampaignStatusCompleted, CampaignStatusCanceled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign is a tenant-owned WhatsApp campaign bound to one message template.
// Throttle fields override the dispatch defaults when set.
type Campaign struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	BusinessID    uint           `gorm:"not null;index:idx_campaigns_business_id" json:"business_id"`
	Name          string         `gorm:"size:255;not null" json:"name"`
	TemplateID    *uint          `gorm:"index:idx_campaigns_template_id" json:"template_id,omitempty"`
	Status        CampaignStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	MaxBatchSize  *int           `json:"max_batch_size,omitempty"`
	MaxPerMinute  *int           `json:"max_per_minute,omitempty"`
	MinGapSeconds *int           `json:"min_gap_seconds,omitempty"`
	CreatedAt     time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`

	Template *MessageTemplate `gorm:"foreignKey:TemplateID;references:ID" json:"template,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}
