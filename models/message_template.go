package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HeaderType is the header kind of an approved WhatsApp template
type HeaderType string

const (
	HeaderTypeNone     HeaderType = "NONE"
	HeaderTypeText     HeaderType = "TEXT"
	HeaderTypeImage    HeaderType = "IMAGE"
	HeaderTypeVideo    HeaderType = "VIDEO"
	HeaderTypeDocument HeaderType = "DOCUMENT"
)

const (
	ButtonTypeURL         = "URL"
	ButtonTypeQuickReply  = "QUICK_REPLY"
	ButtonTypePhoneNumber = "PHONE_NUMBER"
)

// URLPlaceholder is the dynamic span inside a template button URL
const URLPlaceholder = "{{1}}"

// TemplateButton is one button definition of a template
type TemplateButton struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// IsDynamicURL reports whether the button is a URL button carrying a placeholder
func (b TemplateButton) IsDynamicURL() bool {
	return strings.EqualFold(b.Type, ButtonTypeURL) && strings.Contains(b.URL, URLPlaceholder)
}

// TemplateButtons is stored as jsonb
type TemplateButtons []TemplateButton

// Value implements the driver.Valuer interface for TemplateButtons
func (b TemplateButtons) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	return json.Marshal(b)
}

// Scan implements the sql.Scanner interface for TemplateButtons
func (b *TemplateButtons) Scan(value any) error {
	if value == nil {
		*b = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TemplateButtons", value)
	}

	return json.Unmarshal(bytes, b)
}

// MessageTemplate is the locally synced schema of an approved provider template
type MessageTemplate struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	BusinessID       uint            `gorm:"not null;index:idx_message_templates_business_id" json:"business_id"`
	Name             string          `gorm:"size:512;not null" json:"name"`
	Language         string          `gorm:"size:16;not null" json:"language"`
	Category         string          `gorm:"size:32" json:"category"`
	HeaderType       HeaderType      `gorm:"size:16;not null;default:'NONE'" json:"header_type"`
	HeaderText       string          `gorm:"type:text" json:"header_text"`
	HeaderParamCount int             `gorm:"not null;default:0" json:"header_param_count"`
	BodyText         string          `gorm:"type:text;not null" json:"body_text"`
	BodyParamCount   int             `gorm:"not null;default:0" json:"body_param_count"`
	Buttons          TemplateButtons `gorm:"type:jsonb;not null;default:'[]'" json:"buttons"`
	CreatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MessageTemplate) TableName() string { return "message_templates" }

// HasTextHeaderParam reports whether the header carries a substitutable parameter
func (t *MessageTemplate) HasTextHeaderParam() bool {
	return t.HeaderType == HeaderTypeText && t.HeaderParamCount > 0
}

// DynamicURLButtons returns the 1-based positions of parameterized URL buttons.
// Only the first three buttons are considered.
func (t *MessageTemplate) DynamicURLButtons() []int {
	var out []int
	for i, b := range t.Buttons {
		if i >= 3 {
			break
		}
		if b.IsDynamicURL() {
			out = append(out, i+1)
		}
	}
	return out
}
