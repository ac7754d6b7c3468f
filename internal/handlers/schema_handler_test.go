package handlers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/repositories"
)

// Mock SchemaService
type mockSchemaService struct {
	writeSchemaFunc     func(ctx context.Context, tenantID string, schemaDSL string) (string, error)
	getSchemaEntityFunc func(ctx context.Context, tenantID string, version string) (*entities.Schema, error)
	listVersionsFunc    func(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error)
}

func (m *mockSchemaService) WriteSchema(ctx context.Context, tenantID string, schemaDSL string) (string, error) {
	if m.writeSchemaFunc != nil {
		return m.writeSchemaFunc(ctx, tenantID, schemaDSL)
	}
	return "v1", nil
}

func (m *mockSchemaService) ReadSchema(ctx context.Context, tenantID string) (*entities.Schema, error) {
	return m.GetSchemaEntity(ctx, tenantID, "")
}

func (m *mockSchemaService) ValidateSchema(ctx context.Context, schemaDSL string) error {
	return nil
}

func (m *mockSchemaService) FormatSchema(ctx context.Context, schemaDSL string) (string, error) {
	return schemaDSL, nil
}

func (m *mockSchemaService) DeleteSchema(ctx context.Context, tenantID string) error {
	return nil
}

func (m *mockSchemaService) GetSchemaEntity(ctx context.Context, tenantID string, version string) (*entities.Schema, error) {
	if m.getSchemaEntityFunc != nil {
		return m.getSchemaEntityFunc(ctx, tenantID, version)
	}
	return &entities.Schema{}, nil
}

func (m *mockSchemaService) ListVersions(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error) {
	if m.listVersionsFunc != nil {
		return m.listVersionsFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockSchemaService) LoadFile(ctx context.Context, tenantID string, path string) (*entities.Schema, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestSchemaHandler_Write_Success(t *testing.T) {
	mockService := &mockSchemaService{
		writeSchemaFunc: func(ctx context.Context, tenantID string, schemaDSL string) (string, error) {
			if tenantID != "tenant1" {
				t.Errorf("expected tenant ID 'tenant1', got %s", tenantID)
			}
			return "01ARZ3NDEKTSV4RRFFQ69G5FAV", nil
		},
	}
	handler := NewSchemaHandler(mockService, "tenant1")

	resp, err := handler.Write(context.Background(), mustStruct(t, map[string]string{"schema": "entity post {}"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.AsMap()["version"]; got != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Errorf("expected version '01ARZ3NDEKTSV4RRFFQ69G5FAV', got %v", got)
	}
}

func TestSchemaHandler_Write_Errors(t *testing.T) {
	mockService := &mockSchemaService{
		writeSchemaFunc: func(ctx context.Context, tenantID string, schemaDSL string) (string, error) {
			return "", fmt.Errorf("failed to parse DSL: syntax error at line 1")
		},
	}
	handler := NewSchemaHandler(mockService, "tenant1")

	_, err := handler.Write(context.Background(), mustStruct(t, map[string]string{"schema": ""}))
	assertCode(t, err, codes.InvalidArgument)

	_, err = handler.Write(context.Background(), mustStruct(t, map[string]string{"schema": "invalid syntax"}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestSchemaHandler_Read(t *testing.T) {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mockService := &mockSchemaService{
		getSchemaEntityFunc: func(ctx context.Context, tenantID string, version string) (*entities.Schema, error) {
			switch version {
			case "":
				return &entities.Schema{DSL: "entity post {}", Version: "v2", UpdatedAt: updated}, nil
			case "v1":
				return &entities.Schema{DSL: "entity person {}", Version: "v1"}, nil
			}
			return nil, fmt.Errorf("failed to get schema: %w", repositories.ErrNotFound)
		},
	}
	handler := NewSchemaHandler(mockService, "tenant1")

	resp, err := handler.Read(context.Background(), mustStruct(t, map[string]string{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := resp.AsMap()
	if got["schema"] != "entity post {}" || got["version"] != "v2" || got["updated_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected response: %v", got)
	}

	resp, err = handler.Read(context.Background(), mustStruct(t, map[string]string{"version": "v1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.AsMap(); got["version"] != "v1" || got["updated_at"] != "" {
		t.Errorf("unexpected response: %v", got)
	}

	_, err = handler.Read(context.Background(), mustStruct(t, map[string]string{"version": "v9"}))
	assertCode(t, err, codes.NotFound)
}

func TestSchemaHandler_Versions(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mockService := &mockSchemaService{
		listVersionsFunc: func(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error) {
			return []*entities.SchemaVersion{{Version: "v2", CreatedAt: created}, {Version: "v1", CreatedAt: created}}, nil
		},
	}
	handler := NewSchemaHandler(mockService, "tenant1")

	resp, err := handler.Versions(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	versions, ok := resp.AsMap()["versions"].([]interface{})
	if !ok || len(versions) != 2 {
		t.Fatalf("unexpected versions: %v", resp.AsMap())
	}
	first := versions[0].(map[string]interface{})
	if first["version"] != "v2" || first["created_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected first version: %v", first)
	}

	failing := NewSchemaHandler(&mockSchemaService{
		listVersionsFunc: func(ctx context.Context, tenantID string) ([]*entities.SchemaVersion, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}, "tenant1")
	_, err = failing.Versions(context.Background(), nil)
	assertCode(t, err, codes.Internal)
}
