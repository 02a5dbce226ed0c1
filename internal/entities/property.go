package entities

import (
	"fmt"
	"time"
)

// Property represents a property in a model schema
// Example: "property age: number" or "property id: number (id)"
type Property struct {
	Name     string // Property name (e.g., "first", "age")
	Type     string // Property type (e.g., "string", "number", "boolean")
	ID       bool   // Primary key
	Required bool
}

// PropertyTypes lists the types a property may declare
var PropertyTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"date":    true,
	"object":  true,
	"array":   true,
	"any":     true,
}

// Check reports whether value conforms to the property type.
// nil is always accepted; required-ness is checked separately.
func (p *Property) Check(value interface{}) error {
	if value == nil {
		return nil
	}
	ok := true
	switch p.Type {
	case "string":
		_, ok = value.(string)
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "date":
		switch value.(type) {
		case string, time.Time:
		default:
			ok = false
		}
	case "object":
		switch value.(type) {
		case map[string]interface{}, Record:
		default:
			ok = false
		}
	case "array":
		switch value.(type) {
		case []interface{}, []Record, []map[string]interface{}, []string:
		default:
			ok = false
		}
	}
	if !ok {
		return fmt.Errorf("property %s: expected %s, got %T", p.Name, p.Type, value)
	}
	return nil
}
