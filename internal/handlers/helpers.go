package handlers

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/relationships"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/asakaida/kizuna/internal/store"
)

// === Shared message types ===

// Ref is the wire form of a record reference
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewRef converts a record reference
func NewRef(ref entities.RecordRef) Ref {
	return Ref{Type: ref.Type, ID: ref.ID}
}

// RecordRef validates and converts the wire reference
func (r Ref) RecordRef() (entities.RecordRef, error) {
	ref := entities.NewRecordRef(r.Type, r.ID)
	if err := ref.Validate(); err != nil {
		return entities.RecordRef{}, err
	}
	return ref, nil
}

// ManyRequest asks for several records
type ManyRequest struct {
	Refs []Ref `json:"refs"`
}

// LinkRequest asks for the records behind a relationship link
type LinkRequest struct {
	Owner    Ref    `json:"owner"`
	Link     string `json:"link"`
	Relation string `json:"relation"`
}

// === Struct codec ===

// EncodeStruct converts any JSON-marshalable value to a Struct
func EncodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return structpb.NewStruct(m)
}

// DecodeStruct fills v from the JSON form of s
func DecodeStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// DecodeDocument parses a Struct holding a payload document
func DecodeDocument(s *structpb.Struct) (*store.Document, error) {
	if s == nil {
		return &store.Document{}, nil
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return store.ParseDocument(data)
}

// === Error mapping ===

func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidLink),
		errors.Is(err, relationships.ErrValidation),
		errors.Is(err, relationships.ErrProtocol):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, repositories.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	}
	return status.Errorf(codes.Internal, "%s: %v", op, err)
}

func invalidArgument(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
