package entities

import "testing"

func blogSchema() *Schema {
	return &Schema{
		TenantID: "tenant1",
		Entities: []*Entity{
			{
				Name: "post",
				Relations: []*Relation{
					{Name: "comments", Kind: KindHasMany, TargetType: "comment", ParentType: "post"},
					{Name: "author", Kind: KindBelongsTo, TargetType: "person", ParentType: "post"},
					{Name: "editor", Kind: KindBelongsTo, TargetType: "person", ParentType: "post", Options: RelationOptions{NoInverse: true}},
				},
			},
			{
				Name: "comment",
				Relations: []*Relation{
					{Name: "post", Kind: KindBelongsTo, TargetType: "post", ParentType: "comment"},
				},
			},
			{
				Name: "person",
				Relations: []*Relation{
					{Name: "posts", Kind: KindHasMany, TargetType: "post", ParentType: "person", Options: RelationOptions{Inverse: "author"}},
					{Name: "reviews", Kind: KindHasMany, TargetType: "post", ParentType: "person"},
					{Name: "friends", Kind: KindHasMany, TargetType: "person", ParentType: "person"},
				},
			},
		},
	}
}

func TestSchema_GetEntity(t *testing.T) {
	schema := blogSchema()

	tests := []struct {
		name       string
		entityName string
		wantNil    bool
	}{
		{name: "existing entity - post", entityName: "post"},
		{name: "existing entity - comment", entityName: "comment"},
		{name: "non-existing entity", entityName: "nonexistent", wantNil: true},
		{name: "empty name", entityName: "", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schema.GetEntity(tt.entityName)
			if (got == nil) != tt.wantNil {
				t.Fatalf("Schema.GetEntity(%q) = %v, wantNil %v", tt.entityName, got, tt.wantNil)
			}
			if got != nil && got.Name != tt.entityName {
				t.Errorf("Schema.GetEntity() name = %v, want %v", got.Name, tt.entityName)
			}
		})
	}
}

func TestSchema_InverseFor(t *testing.T) {
	schema := blogSchema()

	tests := []struct {
		name       string
		entityType string
		relation   string
		want       string
		wantErr    bool
	}{
		{name: "unique candidate", entityType: "comment", relation: "post", want: "comments"},
		{name: "reverse direction", entityType: "post", relation: "comments", want: "post"},
		{name: "explicit inverse", entityType: "person", relation: "posts", want: "author"},
		{name: "explicit inverse is found from the other side", entityType: "post", relation: "author", want: "posts"},
		{name: "no inverse option", entityType: "post", relation: "editor", want: ""},
		{name: "self reference", entityType: "person", relation: "friends", want: "friends"},
		{name: "unknown relation", entityType: "post", relation: "missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.InverseFor(tt.entityType, tt.relation)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Schema.InverseFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			name := ""
			if got != nil {
				name = got.Name
			}
			if name != tt.want {
				t.Errorf("Schema.InverseFor(%s.%s) = %q, want %q", tt.entityType, tt.relation, name, tt.want)
			}
		})
	}
}

func TestSchema_InverseFor_Ambiguous(t *testing.T) {
	schema := &Schema{
		Entities: []*Entity{
			{Name: "post", Relations: []*Relation{{Name: "author", Kind: KindBelongsTo, TargetType: "person"}}},
			{Name: "person", Relations: []*Relation{
				{Name: "drafts", Kind: KindHasMany, TargetType: "post"},
				{Name: "published", Kind: KindHasMany, TargetType: "post"},
			}},
		},
	}
	if _, err := schema.InverseFor("post", "author"); err == nil {
		t.Error("Schema.InverseFor() expected ambiguity error, got nil")
	}
}
