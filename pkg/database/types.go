package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, err := scanBytes(value, "JSONStringSlice")
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, err := scanBytes(value, "JSONAny")
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONList is a custom GORM type for an ordered list of structs stored as JSON.
type JSONList[T any] []T

// Scan implements the sql.Scanner interface for JSONList.
func (l *JSONList[T]) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, err := scanBytes(value, "JSONList")
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface for JSONList.
func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBytes(value any, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported type for %s: %T", typeName, value)
	}
}
