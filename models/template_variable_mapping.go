package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ComponentKind enumerates the template parts a placeholder can live in
type ComponentKind int

const (
	ComponentBody ComponentKind = iota + 1
	ComponentHeader
	ComponentButtonURL
)

// MaxURLButtons bounds BUTTON:URL:<n>
const MaxURLButtons = 3

// Component is a closed union over BODY, HEADER and BUTTON:URL:<n>.
// Button is the 1-based button position and is only set for ComponentButtonURL.
type Component struct {
	Kind   ComponentKind
	Button int
}

var (
	BodyComponent   = Component{Kind: ComponentBody}
	HeaderComponent = Component{Kind: ComponentHeader}
)

// ButtonURLComponent returns the component of the n-th URL button
func ButtonURLComponent(n int) Component {
	return Component{Kind: ComponentButtonURL, Button: n}
}

// ParseComponent parses a component tag. Matching is case-insensitive.
func ParseComponent(tag string) (Component, error) {
	t := strings.ToUpper(strings.TrimSpace(tag))
	switch {
	case t == "BODY":
		return BodyComponent, nil
	case t == "HEADER":
		return HeaderComponent, nil
	case strings.HasPrefix(t, "BUTTON:URL:"):
		n, err := strconv.Atoi(strings.TrimPrefix(t, "BUTTON:URL:"))
		if err != nil || n < 1 || n > MaxURLButtons {
			return Component{}, fmt.Errorf("invalid button component %q", tag)
		}
		return ButtonURLComponent(n), nil
	default:
		return Component{}, fmt.Errorf("unknown component %q", tag)
	}
}

// String returns the canonical tag
func (c Component) String() string {
	switch c.Kind {
	case ComponentBody:
		return "BODY"
	case ComponentHeader:
		return "HEADER"
	case ComponentButtonURL:
		return "BUTTON:URL:" + strconv.Itoa(c.Button)
	default:
		return ""
	}
}

// Rank orders components as HEADER, BODY, BUTTON:URL:1..3
func (c Component) Rank() int {
	switch c.Kind {
	case ComponentHeader:
		return 0
	case ComponentBody:
		return 1
	case ComponentButtonURL:
		return 1 + c.Button
	default:
		return 100
	}
}

// Valid checks if the component is a member of the union
func (c Component) Valid() bool {
	switch c.Kind {
	case ComponentBody, ComponentHeader:
		return c.Button == 0
	case ComponentButtonURL:
		return c.Button >= 1 && c.Button <= MaxURLButtons
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for Component
func (c *Component) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Component", value)
	}
	parsed, err := ParseComponent(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements the driver.Valuer interface for Component
func (c Component) Value() (driver.Value, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid Component: %+v", c)
	}
	return c.String(), nil
}

// SourceType is where a placeholder value comes from
type SourceType string

const (
	SourceTypeContactField SourceType = "ContactField"
	SourceTypeCsvColumn    SourceType = "CsvColumn"
	SourceTypeStatic       SourceType = "Static"
	SourceTypeExpression   SourceType = "Expression"
)

// Valid checks if the source type is valid
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeContactField, SourceTypeCsvColumn, SourceTypeStatic, SourceTypeExpression:
		return true
	default:
		return false
	}
}

// TemplateVariableMapping binds one template placeholder of a campaign to a data source
type TemplateVariableMapping struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	BusinessID   uint       `gorm:"not null;index:idx_tvm_business_id" json:"business_id"`
	CampaignID   uint       `gorm:"not null;uniqueIndex:uk_tvm_campaign_component_index,priority:1" json:"campaign_id"`
	Component    Component  `gorm:"size:32;not null;uniqueIndex:uk_tvm_campaign_component_index,priority:2" json:"component"`
	Index        int        `gorm:"column:placeholder_index;not null;uniqueIndex:uk_tvm_campaign_component_index,priority:3" json:"index"`
	SourceType   SourceType `gorm:"size:20;not null" json:"source_type"`
	SourceKey    string     `gorm:"size:255" json:"source_key"`
	StaticValue  string     `gorm:"type:text" json:"static_value"`
	Expression   string     `gorm:"type:text" json:"expression"`
	DefaultValue string     `gorm:"type:text" json:"default_value"`
	Required     bool       `gorm:"not null;default:false" json:"required"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (TemplateVariableMapping) TableName() string { return "template_variable_mappings" }

// SameBinding reports whether two mappings resolve a placeholder identically
func (m *TemplateVariableMapping) SameBinding(o *TemplateVariableMapping) bool {
	return m.SourceType == o.SourceType &&
		m.SourceKey == o.SourceKey &&
		m.StaticValue == o.StaticValue &&
		m.Expression == o.Expression &&
		m.DefaultValue == o.DefaultValue &&
		m.Required == o.Required
}

// MappingKey identifies a placeholder within a campaign
type MappingKey struct {
	Component Component
	Index     int
}

// Key returns the placeholder key of the mapping
func (m *TemplateVariableMapping) Key() MappingKey {
	return MappingKey{Component: m.Component, Index: m.Index}
}
