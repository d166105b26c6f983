package models

import (
	"encoding/json"
	"time"
)

// Well-known billing event types. Delivery statuses are stored verbatim.
const (
	BillingEventPricingUpdate  = "pricing_update"
	BillingEventSendResponse   = "send_response"
	BillingEventUnknownWebhook = "unknown_provider_webhook"
)

// ProviderBillingEvent is an append-only ledger row. It is never updated.
// A partial unique index guards (business, provider, event_type, provider_message_id)
// when provider_message_id is not null.
type ProviderBillingEvent struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	BusinessID           uint            `gorm:"not null;index:idx_pbe_business_occurred,priority:1" json:"business_id"`
	Provider             string          `gorm:"size:32;not null" json:"provider"`
	EventType            string          `gorm:"size:64;not null" json:"event_type"`
	ProviderMessageID    *string         `gorm:"size:255" json:"provider_message_id,omitempty"`
	ConversationID       *string         `gorm:"size:255;index:idx_pbe_conversation_id" json:"conversation_id,omitempty"`
	ConversationCategory *string         `gorm:"size:64" json:"conversation_category,omitempty"`
	ConversationExpireAt *time.Time      `json:"conversation_expire_at,omitempty"`
	Chargeable           *bool           `json:"chargeable,omitempty"`
	PriceAmount          *float64        `gorm:"type:numeric(18,6)" json:"price_amount,omitempty"`
	PriceCurrency        *string         `gorm:"size:8" json:"price_currency,omitempty"`
	RawPayload           json.RawMessage `gorm:"type:jsonb;not null" json:"raw_payload"`
	OccurredAt           time.Time       `gorm:"not null;index:idx_pbe_business_occurred,priority:2" json:"occurred_at"`
	CreatedAt            time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (ProviderBillingEvent) TableName() string { return "provider_billing_events" }

// HasPricing reports whether any pricing field is populated
func (e *ProviderBillingEvent) HasPricing() bool {
	return e.Chargeable != nil || e.PriceAmount != nil || e.PriceCurrency != nil || e.ConversationCategory != nil
}

// ProviderBillingEventFilter represents filter criteria for ledger reads
type ProviderBillingEventFilter struct {
	BusinessID     *uint
	Provider       *string
	EventType      *string
	OccurredAfter  *time.Time // inclusive
	OccurredBefore *time.Time // exclusive
}
