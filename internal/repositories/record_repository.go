package repositories

import (
	"context"

	"github.com/asakaida/kizuna/internal/entities"
)

// RecordRepository defines the interface for record attribute storage
type RecordRepository interface {
	// Write creates or replaces the attributes of a record
	Write(ctx context.Context, tenantID string, ref entities.RecordRef, attrs entities.Attributes) error

	// Get returns the attributes of a record, or ErrNotFound
	Get(ctx context.Context, tenantID string, ref entities.RecordRef) (entities.Attributes, error)

	// GetMany returns the attributes of every record that exists; missing records are omitted
	GetMany(ctx context.Context, tenantID string, refs []entities.RecordRef) (map[entities.RecordRef]entities.Attributes, error)

	// Delete removes a record, or returns ErrNotFound
	Delete(ctx context.Context, tenantID string, ref entities.RecordRef) error
}
