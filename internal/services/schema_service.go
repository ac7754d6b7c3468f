package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/asakaida/kizuna/internal/services/parser"
)

// SchemaServiceInterface defines the interface for schema management operations
type SchemaServiceInterface interface {
	WriteSchema(ctx context.Context, tenantID string, schemaDSL string) (string, error)
	ReadSchema(ctx context.Context, tenantID string) (*entities.Schema, error)
	ValidateSchema(ctx context.Context, schemaDSL string) error
	FormatSchema(ctx context.Context, schemaDSL string) (string, error)
	DeleteSchema(ctx context.Context, tenantID string) error
	GetSchemaEntity(ctx context.Context, tenantID string, version string) (*entities.Schema, error)
	ListVersions(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error)
	LoadFile(ctx context.Context, tenantID string, path string) (*entities.Schema, error)
}

// SchemaService handles model schema versions
type SchemaService struct {
	schemaRepo repositories.SchemaRepository
}

// NewSchemaService creates a new SchemaService
func NewSchemaService(schemaRepo repositories.SchemaRepository) *SchemaService {
	return &SchemaService{
		schemaRepo: schemaRepo,
	}
}

// WriteSchema validates DSL and stores it as a new schema version
func (s *SchemaService) WriteSchema(ctx context.Context, tenantID string, schemaDSL string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant ID is required")
	}
	if schemaDSL == "" {
		return "", fmt.Errorf("schema DSL is required")
	}

	if _, err := parser.ParseSchema(tenantID, schemaDSL); err != nil {
		return "", err
	}

	// Every write is a new version; old versions stay readable.
	version, err := s.schemaRepo.Create(ctx, tenantID, schemaDSL)
	if err != nil {
		return "", fmt.Errorf("failed to create schema version: %w", err)
	}

	return version, nil
}

// ReadSchema returns the latest parsed schema of a tenant
func (s *SchemaService) ReadSchema(ctx context.Context, tenantID string) (*entities.Schema, error) {
	return s.GetSchemaEntity(ctx, tenantID, "")
}

// ValidateSchema validates a DSL string without saving it
func (s *SchemaService) ValidateSchema(ctx context.Context, schemaDSL string) error {
	if schemaDSL == "" {
		return fmt.Errorf("schema DSL is required")
	}
	_, err := parser.ParseSchema("", schemaDSL)
	return err
}

// FormatSchema validates DSL and returns it in canonical form
func (s *SchemaService) FormatSchema(ctx context.Context, schemaDSL string) (string, error) {
	schema, err := parser.ParseSchema("", schemaDSL)
	if err != nil {
		return "", err
	}
	return parser.NewGenerator().Generate(parser.SchemaToAST(schema)), nil
}

// DeleteSchema deletes every schema version of a tenant
func (s *SchemaService) DeleteSchema(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	if err := s.schemaRepo.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete schema: %w", err)
	}

	return nil
}

// GetSchemaEntity returns a parsed schema version; version "" means the latest
func (s *SchemaService) GetSchemaEntity(ctx context.Context, tenantID string, version string) (*entities.Schema, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}

	var stored *entities.Schema
	var err error
	if version == "" {
		stored, err = s.schemaRepo.GetLatestVersion(ctx, tenantID)
	} else {
		stored, err = s.schemaRepo.GetByVersion(ctx, tenantID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	parsed, err := parser.ParseSchema(tenantID, stored.DSL)
	if err != nil {
		return nil, fmt.Errorf("stored schema %s is invalid: %w", stored.Version, err)
	}

	parsed.Version = stored.Version
	parsed.CreatedAt = stored.CreatedAt
	parsed.UpdatedAt = stored.UpdatedAt

	return parsed, nil
}

// ListVersions returns the schema versions of a tenant, newest first
func (s *SchemaService) ListVersions(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	return s.schemaRepo.ListVersions(ctx, tenantID)
}

// LoadFile reads a DSL file and makes it the tenant's latest schema.
// A new version is only written when the file differs from the latest stored DSL.
func (s *SchemaService) LoadFile(ctx context.Context, tenantID string, path string) (*entities.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	dsl := string(data)

	latest, err := s.schemaRepo.GetLatestVersion(ctx, tenantID)
	switch {
	case err == nil && latest.DSL == dsl:
		return s.GetSchemaEntity(ctx, tenantID, latest.Version)
	case err != nil && !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}

	version, err := s.WriteSchema(ctx, tenantID, dsl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s.GetSchemaEntity(ctx, tenantID, version)
}
