package models

import (
	"time"

	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audience is a named recipient set of one campaign
type Audience struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_audiences_uuid" json:"uuid"`
	BusinessID uint      `gorm:"not null;index:idx_audiences_business_id" json:"business_id"`
	CampaignID uint      `gorm:"not null;uniqueIndex:uk_audiences_campaign_name,priority:1" json:"campaign_id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:uk_audiences_campaign_name,priority:2" json:"name"`
	CsvBatchID *uint     `json:"csv_batch_id,omitempty"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (Audience) TableName() string { return "audiences" }

// BeforeCreate is called before creating a new record
func (a *Audience) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// AudienceMember is a csv-origin member of an audience
type AudienceMember struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AudienceID uint      `gorm:"not null;uniqueIndex:uk_audience_members_audience_phone,priority:1" json:"audience_id"`
	Phone      string    `gorm:"size:32;not null;uniqueIndex:uk_audience_members_audience_phone,priority:2" json:"phone"`
	Name       string    `gorm:"size:255" json:"name"`
	Values     StringMap `gorm:"column:row_values;type:jsonb;not null;default:'{}'" json:"values"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (AudienceMember) TableName() string { return "audience_members" }
