package repositories

import (
	"context"

	"github.com/asakaida/kizuna/internal/entities"
)

// SchemaRepository defines the interface for schema data access
type SchemaRepository interface {
	// Create stores a new schema version for a tenant and returns the version ID
	Create(ctx context.Context, tenantID string, schemaDSL string) (string, error)

	// GetLatestVersion retrieves the latest schema version for a tenant
	GetLatestVersion(ctx context.Context, tenantID string) (*entities.Schema, error)

	// GetByVersion retrieves a specific schema version for a tenant
	GetByVersion(ctx context.Context, tenantID string, version string) (*entities.Schema, error)

	// ListVersions returns every version of a tenant, newest first
	ListVersions(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error)

	// Delete deletes all schemas for a tenant
	Delete(ctx context.Context, tenantID string) error
}
