package entities

import "testing"

func TestAttributeSchema_Check(t *testing.T) {
	tests := []struct {
		name    string
		schema  AttributeSchema
		value   interface{}
		wantErr bool
	}{
		{name: "string", schema: AttributeSchema{Name: "title", Type: "string"}, value: "hello"},
		{name: "string mismatch", schema: AttributeSchema{Name: "title", Type: "string"}, value: 3, wantErr: true},
		{name: "bool", schema: AttributeSchema{Name: "published", Type: "bool"}, value: true},
		{name: "int from decoded json", schema: AttributeSchema{Name: "votes", Type: "int"}, value: float64(4)},
		{name: "int rejects fraction", schema: AttributeSchema{Name: "votes", Type: "int"}, value: 4.5, wantErr: true},
		{name: "float", schema: AttributeSchema{Name: "score", Type: "float"}, value: 4.5},
		{name: "string array", schema: AttributeSchema{Name: "tags", Type: "string[]"}, value: []interface{}{"a", "b"}},
		{name: "native string slice", schema: AttributeSchema{Name: "tags", Type: "string[]"}, value: []string{"a"}},
		{name: "array element mismatch", schema: AttributeSchema{Name: "tags", Type: "string[]"}, value: []interface{}{"a", 1}, wantErr: true},
		{name: "nil clears", schema: AttributeSchema{Name: "title", Type: "string"}, value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Check(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("AttributeSchema.Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAttributes_MarshalRoundTrip(t *testing.T) {
	attrs := Attributes{"title": "Hello", "votes": float64(3)}
	data, err := attrs.Marshal()
	if err != nil {
		t.Fatalf("Attributes.Marshal() error = %v", err)
	}
	got, err := UnmarshalAttributes(data)
	if err != nil {
		t.Fatalf("UnmarshalAttributes() error = %v", err)
	}
	if got["title"] != "Hello" || got["votes"] != float64(3) {
		t.Errorf("UnmarshalAttributes() = %v", got)
	}

	empty, err := UnmarshalAttributes(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("UnmarshalAttributes(nil) = %v, %v", empty, err)
	}
}

func TestAttributes_Merge(t *testing.T) {
	base := Attributes{"a": 1, "b": 2}
	merged := base.Merge(Attributes{"b": 3})
	if merged["a"] != 1 || merged["b"] != 3 {
		t.Errorf("Attributes.Merge() = %v", merged)
	}
	if base["b"] != 2 {
		t.Errorf("Attributes.Merge() mutated receiver: %v", base)
	}
}
