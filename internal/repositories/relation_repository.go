package repositories

import (
	"context"

	"github.com/asakaida/kizuna/internal/entities"
)

// RelationFilter defines filter criteria for querying relations
type RelationFilter struct {
	OwnerType  string // optional
	OwnerID    string // optional
	Relation   string // optional
	MemberType string // optional
	MemberID   string // optional
}

// RelationRepository defines the interface for relationship membership storage.
// Rows of one owner relation are returned in position order.
type RelationRepository interface {
	// Write creates a membership row or moves an existing one to the tuple's position
	Write(ctx context.Context, tenantID string, tuple *entities.RelationTuple) error

	// Delete removes a membership row
	Delete(ctx context.Context, tenantID string, tuple *entities.RelationTuple) error

	// Read retrieves membership rows matching the filter
	Read(ctx context.Context, tenantID string, filter *RelationFilter) ([]*entities.RelationTuple, error)

	// Members returns the ordered members of one owner relation
	Members(ctx context.Context, tenantID string, owner entities.RecordRef, relation string) ([]entities.RecordRef, error)

	// ReplaceMembers atomically replaces the members of one owner relation, preserving order
	ReplaceMembers(ctx context.Context, tenantID string, owner entities.RecordRef, relation string, members []entities.RecordRef) error

	// BatchWrite creates multiple rows in a single transaction
	BatchWrite(ctx context.Context, tenantID string, tuples []*entities.RelationTuple) error

	// BatchDelete removes multiple rows in a single transaction
	BatchDelete(ctx context.Context, tenantID string, tuples []*entities.RelationTuple) error
}
