package entities

import (
	"fmt"
	"time"
)

// RelationTuple represents one persisted relationship membership
// Example: post:1#comments@comment:7
// This means: comment "7" is a member of the "comments" relation of post "1"
type RelationTuple struct {
	OwnerType  string // Owner type (e.g., "post")
	OwnerID    string // Owner ID (e.g., "1")
	Relation   string // Relation name (e.g., "comments")
	MemberType string // Member type (e.g., "comment")
	MemberID   string // Member ID (e.g., "7")
	Position   int    // Zero-based position inside the owner's ordered list
	CreatedAt  time.Time
}

// NewRelationTuple builds a tuple from two references
func NewRelationTuple(owner RecordRef, relation string, member RecordRef, position int) *RelationTuple {
	return &RelationTuple{
		OwnerType:  owner.Type,
		OwnerID:    owner.ID,
		Relation:   relation,
		MemberType: member.Type,
		MemberID:   member.ID,
		Position:   position,
	}
}

// Owner returns the owning record reference
func (rt *RelationTuple) Owner() RecordRef {
	return RecordRef{Type: rt.OwnerType, ID: rt.OwnerID}
}

// Member returns the member record reference
func (rt *RelationTuple) Member() RecordRef {
	return RecordRef{Type: rt.MemberType, ID: rt.MemberID}
}

// String returns a string representation of the relation tuple
// Format: owner_type:owner_id#relation@member_type:member_id
func (rt *RelationTuple) String() string {
	return fmt.Sprintf("%s:%s#%s@%s:%s",
		rt.OwnerType, rt.OwnerID, rt.Relation,
		rt.MemberType, rt.MemberID)
}

// Validate checks if the relation tuple is valid
func (rt *RelationTuple) Validate() error {
	if rt.OwnerType == "" {
		return fmt.Errorf("owner type is required")
	}
	if rt.OwnerID == "" {
		return fmt.Errorf("owner ID is required")
	}
	if rt.Relation == "" {
		return fmt.Errorf("relation is required")
	}
	if rt.MemberType == "" {
		return fmt.Errorf("member type is required")
	}
	if rt.MemberID == "" {
		return fmt.Errorf("member ID is required")
	}
	if rt.Position < 0 {
		return fmt.Errorf("position must not be negative")
	}
	return nil
}
