package entities

import (
	"fmt"
	"strings"
)

// AttributeSchema represents an attribute type definition in the schema
// Example: "attribute title: string" or "attribute tags: string[]"
type AttributeSchema struct {
	Name string // Attribute name (e.g., "title", "tags")
	Type string // Attribute type (e.g., "string", "int", "bool", "string[]")
}

// Check reports whether value conforms to the declared type.
// A nil value is always accepted; it clears the attribute.
func (a *AttributeSchema) Check(value interface{}) error {
	if value == nil {
		return nil
	}
	if elem, ok := strings.CutSuffix(a.Type, "[]"); ok {
		if _, ok := value.([]string); ok && elem == "string" {
			return nil
		}
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("attribute %q expects %s, got %T", a.Name, a.Type, value)
		}
		for i, item := range items {
			if !scalarMatches(elem, item) {
				return fmt.Errorf("attribute %q expects %s, element %d is %T", a.Name, a.Type, i, item)
			}
		}
		return nil
	}
	if !scalarMatches(a.Type, value) {
		return fmt.Errorf("attribute %q expects %s, got %T", a.Name, a.Type, value)
	}
	return nil
}

func scalarMatches(typ string, value interface{}) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "int", "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "float", "double", "number":
		switch value.(type) {
		case float32, float64, int, int32, int64:
			return true
		}
		return false
	}
	return false
}
