package handlers

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/asakaida/kizuna/internal/services"
)

// SchemaHandler handles Schema service gRPC requests
type SchemaHandler struct {
	schemaService services.SchemaServiceInterface
	tenantID      string
}

// NewSchemaHandler creates a new SchemaHandler
func NewSchemaHandler(schemaService services.SchemaServiceInterface, tenantID string) *SchemaHandler {
	return &SchemaHandler{
		schemaService: schemaService,
		tenantID:      tenantID,
	}
}

type schemaWriteRequest struct {
	Schema string `json:"schema"`
}

type schemaReadRequest struct {
	Version string `json:"version"`
}

type schemaVersion struct {
	Version   string `json:"version"`
	CreatedAt string `json:"created_at"`
}

// Write handles the Write RPC: {"schema"} -> {"version"}
func (h *SchemaHandler) Write(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in schemaWriteRequest
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}
	if in.Schema == "" {
		return nil, invalidArgument("schema is required")
	}

	version, err := h.schemaService.WriteSchema(ctx, h.tenantID, in.Schema)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to write schema: %v", err)
	}
	return EncodeStruct(map[string]string{"version": version})
}

// Read handles the Read RPC: {"version"?} -> {"schema", "version", "updated_at"}
func (h *SchemaHandler) Read(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in schemaReadRequest
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}

	schema, err := h.schemaService.GetSchemaEntity(ctx, h.tenantID, in.Version)
	if err != nil {
		return nil, handleReadSchemaError(err)
	}

	updatedAt := ""
	if !schema.UpdatedAt.IsZero() {
		updatedAt = schema.UpdatedAt.Format(time.RFC3339)
	}
	return EncodeStruct(map[string]string{
		"schema":     schema.DSL,
		"version":    schema.Version,
		"updated_at": updatedAt,
	})
}

// Versions handles the Versions RPC: {} -> {"versions": [{"version", "created_at"}]}, newest first
func (h *SchemaHandler) Versions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	versions, err := h.schemaService.ListVersions(ctx, h.tenantID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list schema versions: %v", err)
	}

	out := make([]schemaVersion, 0, len(versions))
	for _, v := range versions {
		out = append(out, schemaVersion{Version: v.Version, CreatedAt: v.CreatedAt.Format(time.RFC3339)})
	}
	return EncodeStruct(map[string]interface{}{"versions": out})
}

func handleReadSchemaError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return status.Errorf(codes.NotFound, "schema not found")
	}
	return status.Errorf(codes.Internal, "failed to read schema: %v", err)
}
