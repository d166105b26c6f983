package dto

import "time"

// VariableMappingItem binds one template placeholder to a data source
type VariableMappingItem struct {
	Component    string `json:"component,omitempty" example:"BODY"`
	Index        int    `json:"index" example:"1"`
	SourceType   string `json:"source_type" validate:"required" example:"CsvColumn"`
	SourceKey    string `json:"source_key,omitempty" example:"first_name"`
	StaticValue  string `json:"static_value,omitempty"`
	Expression   string `json:"expression,omitempty" example:"upper(first_name) ?? 'friend'"`
	DefaultValue string `json:"default_value,omitempty"`
	Required     bool   `json:"required"`
}

// GetVariableMappingsRequest represents the request to read a campaign's mapping set
type GetVariableMappingsRequest struct {
	BusinessID uint `json:"-"`
	CampaignID uint `json:"-"`
}

// SaveVariableMappingsRequest replaces the whole mapping set of a campaign
type SaveVariableMappingsRequest struct {
	BusinessID uint                  `json:"-"`
	CampaignID uint                  `json:"-"`
	Items      []VariableMappingItem `json:"items" validate:"dive"`
}

// StoredVariableMapping is a persisted mapping in responses
type StoredVariableMapping struct {
	VariableMappingItem
	ID        uint      `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariableMappingsResponse lists mappings ordered HEADER, BODY, BUTTON:URL:1..3 then by index
type VariableMappingsResponse struct {
	CampaignID uint                    `json:"campaign_id"`
	Items      []StoredVariableMapping `json:"items"`
}
