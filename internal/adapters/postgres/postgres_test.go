package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/asakaida/kizuna/internal/entities"
	pgrepo "github.com/asakaida/kizuna/internal/repositories/postgres"
	"github.com/asakaida/kizuna/internal/services/parser"
	"github.com/asakaida/kizuna/internal/store"
)

const blogDSL = `
entity person {
  relation posts @post[] (async, inverse: author)
  attribute name: string
}

entity post {
  relation author @person
  relation tags @tag[]
  attribute title: string
}

entity tag {
  attribute label: string
}
`

func ref(typ, id string) entities.RecordRef {
	return entities.NewRecordRef(typ, id)
}

func setupAdapter(t *testing.T) *Adapter {
	t.Helper()

	db := pgrepo.SetupTestDB(t)
	t.Cleanup(func() { pgrepo.CleanupTestDB(t, db) })

	schema, err := parser.ParseSchema("tenant1", blogDSL)
	if err != nil {
		t.Fatalf("Failed to parse schema: %v", err)
	}
	return New(pgrepo.NewPostgresRecordRepository(db), pgrepo.NewPostgresRelationRepository(db), schema, "tenant1")
}

func writeBlog(t *testing.T, a *Adapter) {
	t.Helper()
	ctx := context.Background()
	person := ref("person", "1")

	payloads := []*store.Payload{
		{Ref: ref("tag", "go"), Attributes: entities.Attributes{"label": "go"}},
		{Ref: ref("tag", "db"), Attributes: entities.Attributes{"label": "db"}},
		{Ref: person, Attributes: entities.Attributes{"name": "Ada"}, Relationships: map[string]store.RelationshipPayload{
			"posts": store.ToMany(ref("post", "2"), ref("post", "1")),
		}},
		{Ref: ref("post", "1"), Attributes: entities.Attributes{"title": "Hello"}, Relationships: map[string]store.RelationshipPayload{
			"author": store.ToOne(&person),
			"tags":   store.ToMany(ref("tag", "go"), ref("tag", "db")),
		}},
		{Ref: ref("post", "2"), Attributes: entities.Attributes{"title": "Second"}, Relationships: map[string]store.RelationshipPayload{
			"author": store.ToOne(&person),
		}},
	}
	for _, p := range payloads {
		if err := a.Write(ctx, p); err != nil {
			t.Fatalf("Failed to write %s: %v", p.Ref, err)
		}
	}
}

func TestAdapter_FindRecord(t *testing.T) {
	a := setupAdapter(t)
	writeBlog(t, a)
	ctx := context.Background()

	t.Run("正常系: 一対一と同期一対多はデータ付き", func(t *testing.T) {
		p, err := a.FindRecord(ctx, ref("post", "1"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if p.Attributes["title"] != "Hello" {
			t.Errorf("Unexpected attributes: %v", p.Attributes)
		}
		author := p.Relationships["author"]
		if !author.HasData || len(author.Data) != 1 || author.Data[0] != ref("person", "1") {
			t.Errorf("Unexpected author: %+v", author)
		}
		tags := p.Relationships["tags"]
		if !tags.HasData || len(tags.Data) != 2 || tags.Data[0] != ref("tag", "go") {
			t.Errorf("Unexpected tags: %+v", tags)
		}
	})

	t.Run("正常系: 非同期一対多はリンクのみ", func(t *testing.T) {
		p, err := a.FindRecord(ctx, ref("person", "1"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		posts := p.Relationships["posts"]
		if posts.HasData || posts.Link == nil || *posts.Link != "person/1/posts" {
			t.Errorf("Unexpected posts: %+v", posts)
		}
	})

	t.Run("異常系: 存在しないレコード", func(t *testing.T) {
		if _, err := a.FindRecord(ctx, ref("post", "404")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got: %v", err)
		}
	})
}

func TestAdapter_FindManyAndLink(t *testing.T) {
	a := setupAdapter(t)
	writeBlog(t, a)
	ctx := context.Background()

	t.Run("正常系: 要求順で存在するものだけ返す", func(t *testing.T) {
		payloads, err := a.FindMany(ctx, []entities.RecordRef{ref("tag", "db"), ref("tag", "none"), ref("tag", "go")})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(payloads) != 2 || payloads[0].Ref != ref("tag", "db") || payloads[1].Ref != ref("tag", "go") {
			t.Errorf("Unexpected payloads: %+v", payloads)
		}
	})

	t.Run("正常系: リンクは並び順を保つ", func(t *testing.T) {
		rel := &entities.Relation{Name: "posts", Kind: entities.KindHasMany, TargetType: "post"}
		payloads, err := a.FindLink(ctx, ref("person", "1"), store.LinkFor(ref("person", "1"), "posts"), rel)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(payloads) != 2 || payloads[0].Ref != ref("post", "2") || payloads[1].Ref != ref("post", "1") {
			t.Errorf("Unexpected payloads: %+v", payloads)
		}
	})

	t.Run("異常系: 他のレコードのリンク", func(t *testing.T) {
		rel := &entities.Relation{Name: "posts", Kind: entities.KindHasMany, TargetType: "post"}
		if _, err := a.FindLink(ctx, ref("person", "2"), "person/1/posts", rel); err == nil {
			t.Fatal("Expected error for a foreign link")
		}
		if _, err := a.FindLink(ctx, ref("person", "1"), "garbage", rel); err == nil {
			t.Fatal("Expected error for a malformed link")
		}
	})
}

func TestAdapter_Write(t *testing.T) {
	a := setupAdapter(t)
	writeBlog(t, a)
	ctx := context.Background()

	t.Run("異常系: 未知の型", func(t *testing.T) {
		if err := a.Write(ctx, &store.Payload{Ref: ref("widget", "1")}); err == nil {
			t.Fatal("Expected error for unknown type")
		}
	})

	t.Run("異常系: 未宣言の関連", func(t *testing.T) {
		err := a.Write(ctx, &store.Payload{Ref: ref("tag", "x"), Relationships: map[string]store.RelationshipPayload{
			"posts": store.ToMany(ref("post", "1")),
		}})
		if err == nil {
			t.Fatal("Expected error for undeclared relationship")
		}
	})

	t.Run("正常系: 削除で関連も消える", func(t *testing.T) {
		if err := a.Delete(ctx, ref("tag", "go")); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		p, err := a.FindRecord(ctx, ref("post", "1"))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if tags := p.Relationships["tags"].Data; len(tags) != 1 || tags[0] != ref("tag", "db") {
			t.Errorf("Unexpected tags after delete: %v", tags)
		}
	})
}
