package handlers

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/store"
)

// RecordWriter persists record payloads
type RecordWriter interface {
	Write(ctx context.Context, p *store.Payload) error
	Delete(ctx context.Context, ref entities.RecordRef) error
}

// DataHandler handles Data service gRPC requests
type DataHandler struct {
	writer RecordWriter
	schema *entities.Schema
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(writer RecordWriter, schema *entities.Schema) *DataHandler {
	return &DataHandler{
		writer: writer,
		schema: schema,
	}
}

// Write handles the Write RPC. The request is a payload document; included
// resources are written before the primary data.
func (h *DataHandler) Write(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := DecodeDocument(req)
	if err != nil {
		return nil, invalidArgument("%v", err)
	}

	payloads := append(append([]*store.Payload{}, doc.Included...), doc.Data...)
	if len(payloads) == 0 {
		return nil, invalidArgument("at least one resource is required")
	}
	for i, p := range payloads {
		if err := h.validate(p); err != nil {
			return nil, invalidArgument("invalid resource at index %d: %v", i, err)
		}
	}

	for _, p := range payloads {
		if err := h.writer.Write(ctx, p); err != nil {
			return nil, toStatus("failed to write record", err)
		}
	}
	return EncodeStruct(map[string]interface{}{"written": len(payloads)})
}

// Delete handles the Delete RPC: {"type", "id"}
func (h *DataHandler) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in Ref
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}
	ref, err := in.RecordRef()
	if err != nil {
		return nil, invalidArgument("invalid record reference: %v", err)
	}

	if err := h.writer.Delete(ctx, ref); err != nil {
		return nil, toStatus("failed to delete record", err)
	}
	return &structpb.Struct{}, nil
}

func (h *DataHandler) validate(p *store.Payload) error {
	if err := p.Ref.Validate(); err != nil {
		return err
	}
	entity := h.schema.GetEntity(p.Ref.Type)
	if entity == nil {
		return fmt.Errorf("unknown record type %q", p.Ref.Type)
	}
	for name, value := range p.Attributes {
		attr := entity.GetAttributeSchema(name)
		if attr == nil {
			return fmt.Errorf("%s has no attribute %q", p.Ref.Type, name)
		}
		if err := attr.Check(value); err != nil {
			return err
		}
	}
	for key, rel := range p.Relationships {
		meta := entity.GetRelation(key)
		if meta == nil {
			return fmt.Errorf("%s has no relationship %q", p.Ref.Type, key)
		}
		if !meta.IsMany() && len(rel.Data) > 1 {
			return fmt.Errorf("%s.%s is one-to-one but lists %d members", p.Ref.Type, key, len(rel.Data))
		}
		for _, member := range rel.Data {
			if !meta.Accepts(member.Type) {
				return fmt.Errorf("%s.%s does not accept %s", p.Ref.Type, key, member)
			}
		}
	}
	return nil
}
