package entities

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Attributes holds the scalar fields of one record
// Example: {"title": "Hello", "published": true}
type Attributes map[string]interface{}

// Clone returns a shallow copy
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other over a copy of a
func (a Attributes) Merge(other Attributes) Attributes {
	out := a.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Marshal serializes the attributes to JSON for storage
func (a Attributes) Marshal() ([]byte, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]interface{}(a))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return data, nil
}

// UnmarshalAttributes deserializes stored JSON into attributes
func UnmarshalAttributes(data []byte) (Attributes, error) {
	attrs := Attributes{}
	if len(data) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}
	return attrs, nil
}
