package entities

import (
	"fmt"
	"strings"
)

// RecordRef identifies one record in the identity map
// Example: post:1
type RecordRef struct {
	Type string // Model type (e.g., "post", "comment")
	ID   string // Record ID (e.g., "1")
}

// NewRecordRef is shorthand for RecordRef{Type: typ, ID: id}
func NewRecordRef(typ, id string) RecordRef {
	return RecordRef{Type: typ, ID: id}
}

// String returns the reference in type:id form
func (r RecordRef) String() string {
	return r.Type + ":" + r.ID
}

// IsZero reports whether the reference is unset
func (r RecordRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// Validate checks if the reference is usable as an identity
func (r RecordRef) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("record type is required")
	}
	if r.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	return nil
}

// ParseRecordRef parses a reference in type:id form
func ParseRecordRef(s string) (RecordRef, error) {
	typ, id, ok := strings.Cut(s, ":")
	if !ok {
		return RecordRef{}, fmt.Errorf("invalid record reference %q: expected type:id", s)
	}
	ref := RecordRef{Type: typ, ID: id}
	if err := ref.Validate(); err != nil {
		return RecordRef{}, fmt.Errorf("invalid record reference %q: %w", s, err)
	}
	return ref, nil
}
