package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboundJobStatus is the state of an outbound campaign job
type OutboundJobStatus string

const (
	OutboundJobStatusQueued    OutboundJobStatus = "queued"
	OutboundJobStatusRunning   OutboundJobStatus = "running"
	OutboundJobStatusSucceeded OutboundJobStatus = "succeeded"
	OutboundJobStatusFailed    OutboundJobStatus = "failed"
	OutboundJobStatusCanceled  OutboundJobStatus = "canceled"
)

// String returns the string representation of the status
func (s OutboundJobStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s OutboundJobStatus) Valid() bool {
	switch s {
	case OutboundJobStatusQueued, OutboundJobStatusRunning, OutboundJobStatusSucceeded,
		OutboundJobStatusFailed, OutboundJobStatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s OutboundJobStatus) IsTerminal() bool {
	return s == OutboundJobStatusSucceeded || s == OutboundJobStatusFailed || s == OutboundJobStatusCanceled
}

// Scan implements the sql.Scanner interface for OutboundJobStatus
func (s *OutboundJobStatus) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = ""
	case string:
		*s = OutboundJobStatus(v)
	case []byte:
		*s = OutboundJobStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into OutboundJobStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for OutboundJobStatus
func (s OutboundJobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid OutboundJobStatus: %s", s)
	}
	return string(s), nil
}

// OutboundCampaignJob is one durable send job for a campaign.
// LockedBy and LockedUntil form the lease of the worker running it.
type OutboundCampaignJob struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_outbound_campaign_jobs_uuid" json:"uuid"`
	BusinessID    uint              `gorm:"not null;index:idx_outbound_campaign_jobs_business_id" json:"business_id"`
	CampaignID    uint              `gorm:"not null;index:idx_outbound_campaign_jobs_campaign_id" json:"campaign_id"`
	Status        OutboundJobStatus `gorm:"size:20;not null;default:'queued';index:idx_outbound_campaign_jobs_status_next,priority:1" json:"status"`
	Attempt       int               `gorm:"not null;default:0" json:"attempt"`
	MaxAttempts   int               `gorm:"not null" json:"max_attempts"`
	NextAttemptAt time.Time         `gorm:"not null;index:idx_outbound_campaign_jobs_status_next,priority:2" json:"next_attempt_at"`
	LastError     *string           `gorm:"size:1024" json:"last_error,omitempty"`
	LockedBy      *string           `gorm:"size:128" json:"locked_by,omitempty"`
	LockedUntil   *time.Time        `json:"locked_until,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	CanceledAt    *time.Time        `json:"canceled_at,omitempty"`
	CreatedAt     time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (OutboundCampaignJob) TableName() string { return "outbound_campaign_jobs" }

// BeforeCreate is called before creating a new record
func (j *OutboundCampaignJob) BeforeCreate(tx *gorm.DB) error {
	if j.UUID == uuid.Nil {
		j.UUID = uuid.New()
	}
	if j.Status == "" {
		j.Status = OutboundJobStatusQueued
	}
	if j.NextAttemptAt.IsZero() {
		j.NextAttemptAt = utils.UTCNow()
	}
	return nil
}

// OutboundCampaignJobFilter represents filter criteria for jobs
type OutboundCampaignJobFilter struct {
	ID         *uint
	UUID       *uuid.UUID
	BusinessID *uint
	CampaignID *uint
	Status     *OutboundJobStatus
}
