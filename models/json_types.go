package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is a flat string map stored as jsonb
type StringMap map[string]string

// Value implements the driver.Valuer interface for StringMap
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for StringMap
func (m *StringMap) Scan(value any) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringMap", value)
	}

	return json.Unmarshal(bytes, m)
}
