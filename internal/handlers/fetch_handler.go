package handlers

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/store"
)

// FetchHandler serves an adapter's payloads over the fetch service
type FetchHandler struct {
	adapter store.Adapter
	schema  *entities.Schema
}

// NewFetchHandler creates a new FetchHandler
func NewFetchHandler(adapter store.Adapter, schema *entities.Schema) *FetchHandler {
	return &FetchHandler{
		adapter: adapter,
		schema:  schema,
	}
}

// FindRecord handles the FindRecord RPC: {"type", "id"} -> {"data": resource}
func (h *FetchHandler) FindRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in Ref
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}
	ref, err := in.RecordRef()
	if err != nil {
		return nil, invalidArgument("invalid record reference: %v", err)
	}
	if h.schema.GetEntity(ref.Type) == nil {
		return nil, invalidArgument("unknown record type %q", ref.Type)
	}

	p, err := h.adapter.FindRecord(ctx, ref)
	if err != nil {
		return nil, toStatus("failed to find record", err)
	}
	return encodeDocument(&store.Document{Data: []*store.Payload{p}})
}

// FindMany handles the FindMany RPC: {"refs": [...]} -> {"data": [...]}
func (h *FetchHandler) FindMany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ManyRequest
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}
	refs := make([]entities.RecordRef, 0, len(in.Refs))
	for i, r := range in.Refs {
		ref, err := r.RecordRef()
		if err != nil {
			return nil, invalidArgument("invalid record reference at index %d: %v", i, err)
		}
		refs = append(refs, ref)
	}

	payloads, err := h.adapter.FindMany(ctx, refs)
	if err != nil {
		return nil, toStatus("failed to find records", err)
	}
	return encodeDocument(&store.Document{Data: payloads, Many: true})
}

// FindLink handles the FindLink RPC: {"owner", "link", "relation"} -> {"data": [...]}
func (h *FetchHandler) FindLink(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in LinkRequest
	if err := DecodeStruct(req, &in); err != nil {
		return nil, invalidArgument("%v", err)
	}
	owner, err := in.Owner.RecordRef()
	if err != nil {
		return nil, invalidArgument("invalid owner: %v", err)
	}
	if in.Link == "" {
		return nil, invalidArgument("link is required")
	}
	rel := h.schema.GetRelation(owner.Type, in.Relation)
	if rel == nil {
		return nil, invalidArgument("%s has no relationship %q", owner.Type, in.Relation)
	}

	payloads, err := h.adapter.FindLink(ctx, owner, in.Link, rel)
	if err != nil {
		return nil, toStatus("failed to find link", err)
	}
	return encodeDocument(&store.Document{Data: payloads, Many: true})
}

func encodeDocument(doc *store.Document) (*structpb.Struct, error) {
	out, err := EncodeStruct(doc)
	if err != nil {
		return nil, toStatus("failed to encode response", err)
	}
	return out, nil
}
