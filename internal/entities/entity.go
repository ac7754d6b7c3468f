package entities

// Entity represents a model type definition in the schema
// Example: "entity post { relation comments @comment[]; attribute title: string }"
type Entity struct {
	Name             string             // Model type name (e.g., "post", "comment")
	Relations        []*Relation        // Relation definitions
	AttributeSchemas []*AttributeSchema // Attribute type definitions
}

// GetRelation returns the relation definition by name
func (e *Entity) GetRelation(name string) *Relation {
	for _, r := range e.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// GetAttributeSchema returns the attribute schema by name
func (e *Entity) GetAttributeSchema(name string) *AttributeSchema {
	for _, a := range e.AttributeSchemas {
		if a.Name == name {
			return a
		}
	}
	return nil
}
