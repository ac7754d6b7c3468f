package handlers

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/kizuna/internal/adapters/memory"
	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/services/parser"
	"github.com/asakaida/kizuna/internal/store"
)

const testDSL = `
entity post {
  relation comments @comment[] (async)
  attribute title: string
}

entity comment {
  relation post @post
  attribute body: string
}
`

func testSchema(t *testing.T) *entities.Schema {
	t.Helper()
	schema, err := parser.ParseSchema("default", testDSL)
	if err != nil {
		t.Fatalf("failed to parse schema: %v", err)
	}
	return schema
}

func testAdapter() *memory.Adapter {
	post := entities.NewRecordRef("post", "1")
	c1, c2 := entities.NewRecordRef("comment", "1"), entities.NewRecordRef("comment", "2")

	a := memory.New()
	a.Put(
		&store.Payload{
			Ref:           post,
			Attributes:    entities.Attributes{"title": "Hello"},
			Relationships: map[string]store.RelationshipPayload{"comments": store.ToMany(c1, c2).WithLink(store.LinkFor(post, "comments"))},
		},
		&store.Payload{Ref: c1, Attributes: entities.Attributes{"body": "first"}, Relationships: map[string]store.RelationshipPayload{"post": store.ToOne(&post)}},
		&store.Payload{Ref: c2, Attributes: entities.Attributes{"body": "second"}, Relationships: map[string]store.RelationshipPayload{"post": store.ToOne(&post)}},
	)
	return a
}

func mustStruct(t *testing.T, v interface{}) *structpb.Struct {
	t.Helper()
	s, err := EncodeStruct(v)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	return s
}

func mustDocument(t *testing.T, s *structpb.Struct) *store.Document {
	t.Helper()
	doc, err := DecodeDocument(s)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return doc
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := status.Code(err); got != want {
		t.Errorf("expected code %s, got %s (%v)", want, got, err)
	}
}

func TestFetchHandler_FindRecord(t *testing.T) {
	handler := NewFetchHandler(testAdapter(), testSchema(t))

	resp, err := handler.FindRecord(context.Background(), mustStruct(t, Ref{Type: "post", ID: "1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := mustDocument(t, resp)
	if doc.Many || len(doc.Data) != 1 {
		t.Fatalf("expected a single resource, got %+v", doc)
	}
	p := doc.Data[0]
	if p.Ref != entities.NewRecordRef("post", "1") || p.Attributes["title"] != "Hello" {
		t.Errorf("unexpected payload: %+v", p)
	}
	comments := p.Relationships["comments"]
	if !comments.HasData || len(comments.Data) != 2 || comments.Link == nil {
		t.Errorf("unexpected comments relationship: %+v", comments)
	}
}

func TestFetchHandler_FindRecord_Errors(t *testing.T) {
	handler := NewFetchHandler(testAdapter(), testSchema(t))

	tests := []struct {
		name string
		req  Ref
		code codes.Code
	}{
		{name: "missing id", req: Ref{Type: "post"}, code: codes.InvalidArgument},
		{name: "unknown type", req: Ref{Type: "widget", ID: "1"}, code: codes.InvalidArgument},
		{name: "not found", req: Ref{Type: "post", ID: "404"}, code: codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.FindRecord(context.Background(), mustStruct(t, tt.req))
			assertCode(t, err, tt.code)
		})
	}
}

func TestFetchHandler_FindMany(t *testing.T) {
	handler := NewFetchHandler(testAdapter(), testSchema(t))

	resp, err := handler.FindMany(context.Background(), mustStruct(t, ManyRequest{Refs: []Ref{
		{Type: "comment", ID: "2"}, {Type: "comment", ID: "9"}, {Type: "comment", ID: "1"},
	}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := mustDocument(t, resp)
	if !doc.Many || len(doc.Data) != 2 {
		t.Fatalf("expected two resources, got %+v", doc)
	}
	if doc.Data[0].Ref.ID != "2" || doc.Data[1].Ref.ID != "1" {
		t.Errorf("expected request order, got %s, %s", doc.Data[0].Ref, doc.Data[1].Ref)
	}

	_, err = handler.FindMany(context.Background(), mustStruct(t, ManyRequest{Refs: []Ref{{Type: "comment"}}}))
	assertCode(t, err, codes.InvalidArgument)
}

func TestFetchHandler_FindLink(t *testing.T) {
	handler := NewFetchHandler(testAdapter(), testSchema(t))
	owner := Ref{Type: "post", ID: "1"}

	resp, err := handler.FindLink(context.Background(), mustStruct(t, LinkRequest{
		Owner: owner, Link: "post/1/comments", Relation: "comments",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := mustDocument(t, resp)
	if len(doc.Data) != 2 || doc.Data[0].Ref.ID != "1" {
		t.Errorf("unexpected link payloads: %+v", doc.Data)
	}

	tests := []struct {
		name string
		req  LinkRequest
		code codes.Code
	}{
		{name: "missing link", req: LinkRequest{Owner: owner, Relation: "comments"}, code: codes.InvalidArgument},
		{name: "undeclared relation", req: LinkRequest{Owner: owner, Link: "post/1/tags", Relation: "tags"}, code: codes.InvalidArgument},
		{name: "malformed link", req: LinkRequest{Owner: owner, Link: "nope", Relation: "comments"}, code: codes.InvalidArgument},
		{name: "unknown owner", req: LinkRequest{Owner: Ref{Type: "post", ID: "9"}, Link: "post/9/comments", Relation: "comments"}, code: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.FindLink(context.Background(), mustStruct(t, tt.req))
			assertCode(t, err, tt.code)
		})
	}
}
