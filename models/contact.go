package models

import "time"

// Contact is the CRM contact projection maintained by the ingestion collaborator
type Contact struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	BusinessID uint      `gorm:"not null;index:idx_contacts_business_id" json:"business_id"`
	Name       string    `gorm:"size:255" json:"name"`
	Phone      string    `gorm:"size:32;not null" json:"phone"`
	Email      string    `gorm:"size:255" json:"email"`
	Attributes StringMap `gorm:"type:jsonb;not null;default:'{}'" json:"attributes"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (Contact) TableName() string { return "contacts" }

// Field returns a named contact field. Built-in fields win over attributes.
func (c *Contact) Field(name string) (string, bool) {
	switch name {
	case "name":
		return c.Name, c.Name != ""
	case "phone":
		return c.Phone, c.Phone != ""
	case "email":
		return c.Email, c.Email != ""
	}
	v, ok := c.Attributes[name]
	return v, ok && v != ""
}
