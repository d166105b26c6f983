// Package models contains the persisted entities of the outbound campaign pipeline
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	BusinessID   *uint           `gorm:"index:idx_audit_business_id" json:"business_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionVariableMappingsSaved  = "variable_mappings_saved"
	AuditActionRecipientsMaterialized = "recipients_materialized"
	AuditActionOutboundJobEnqueued    = "outbound_job_enqueued"
	AuditActionOutboundJobRetryForced = "outbound_job_retry_forced"
	AuditActionOutboundJobCanceled    = "outbound_job_canceled"
)

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
