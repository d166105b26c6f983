package models

import (
	"time"
)

// MessageLogStatus is the provider delivery state of one sent message
type MessageLogStatus string

const (
	MessageLogStatusSending   MessageLogStatus = "sending"
	MessageLogStatusSent      MessageLogStatus = "sent"
	MessageLogStatusDelivered MessageLogStatus = "delivered"
	MessageLogStatusRead      MessageLogStatus = "read"
	MessageLogStatusFailed    MessageLogStatus = "failed"
)

// UnknownOutcomeError prefixes the error of a log whose send may have reached the provider
const UnknownOutcomeError = "unknown outcome"

func (s MessageLogStatus) rank() int {
	switch s {
	case MessageLogStatusSending:
		return 0
	case MessageLogStatusSent:
		return 1
	case MessageLogStatusDelivered:
		return 2
	case MessageLogStatusRead:
		return 3
	default:
		return -1
	}
}

// ParseMessageLogStatus maps a provider status string to a known status
func ParseMessageLogStatus(s string) (MessageLogStatus, bool) {
	switch st := MessageLogStatus(s); st {
	case MessageLogStatusSent, MessageLogStatusDelivered, MessageLogStatusRead, MessageLogStatusFailed:
		return st, true
	default:
		return "", false
	}
}

// CanAdvanceTo reports whether a delivery status update moves the log forward.
// Failed only overrides sending/sent and is left only for delivered or read.
func (s MessageLogStatus) CanAdvanceTo(next MessageLogStatus) bool {
	if next == MessageLogStatusFailed {
		return s == MessageLogStatusSending || s == MessageLogStatusSent
	}
	if next.rank() < 0 {
		return false
	}
	if s == MessageLogStatusFailed {
		return next == MessageLogStatusDelivered || next == MessageLogStatusRead
	}
	return next.rank() > s.rank()
}

// RecipientStatus returns the recipient status mirroring this delivery status
func (s MessageLogStatus) RecipientStatus() (RecipientStatus, bool) {
	switch s {
	case MessageLogStatusSent:
		return RecipientStatusSent, true
	case MessageLogStatusDelivered, MessageLogStatusRead:
		return RecipientStatusDelivered, true
	case MessageLogStatusFailed:
		return RecipientStatusFailed, true
	default:
		return "", false
	}
}

// MessageLog is one outbound send and its billing projection.
// The projection follows the newest ledger event (BillingEventAt).
type MessageLog struct {
	ID                    uint             `gorm:"primaryKey" json:"id"`
	BusinessID            uint             `gorm:"not null;index:idx_message_logs_business_created,priority:1" json:"business_id"`
	CampaignID            uint             `gorm:"not null;index:idx_message_logs_campaign_id" json:"campaign_id"`
	RecipientID           uint             `gorm:"not null;uniqueIndex:uk_message_logs_recipient_id" json:"recipient_id"`
	JobID                 *uint            `json:"job_id,omitempty"`
	Phone                 string           `gorm:"size:32;not null" json:"phone"`
	Status                MessageLogStatus `gorm:"size:20;not null;default:'sending'" json:"status"`
	Provider              string           `gorm:"size:32;not null" json:"provider"`
	ProviderMessageID     *string          `gorm:"size:255;index:idx_message_logs_provider_message_id" json:"provider_message_id,omitempty"`
	ConversationID        *string          `gorm:"size:255;index:idx_message_logs_conversation_id" json:"conversation_id,omitempty"`
	ConversationCategory  *string          `gorm:"size:64" json:"conversation_category,omitempty"`
	ConversationStartedAt *time.Time       `json:"conversation_started_at,omitempty"`
	Chargeable            *bool            `json:"chargeable,omitempty"`
	PriceAmount           *float64         `gorm:"type:numeric(18,6)" json:"price_amount,omitempty"`
	PriceCurrency         *string          `gorm:"size:8" json:"price_currency,omitempty"`
	BillingEventAt        *time.Time       `json:"billing_event_at,omitempty"`
	Error                 *string          `gorm:"type:text" json:"error,omitempty"`
	SentAt                *time.Time       `json:"sent_at,omitempty"`
	CreatedAt             time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_message_logs_business_created,priority:2" json:"created_at"`
	UpdatedAt             time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MessageLog) TableName() string { return "message_logs" }
