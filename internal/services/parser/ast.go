package parser

// SchemaAST represents the parsed schema AST
type SchemaAST struct {
	Entities []*EntityAST
}

// EntityAST represents an entity definition in the AST
type EntityAST struct {
	Name       string
	Relations  []*RelationAST
	Attributes []*AttributeAST
}

// RelationAST represents a relation definition in the AST
// Example: "relation comments @comment[] (async, inverse: post)"
type RelationAST struct {
	Name       string
	TargetType string // "any" for untyped relations
	Many       bool   // declared with []
	Options    []*RelationOptionAST
}

// RelationOptionAST is one entry of the parenthesized option list
type RelationOptionAST struct {
	Key   string // "async", "polymorphic" or "inverse"
	Value string // only set for key: value options
}

// Option returns the option with the given key, or nil
func (r *RelationAST) Option(key string) *RelationOptionAST {
	for _, o := range r.Options {
		if o.Key == key {
			return o
		}
	}
	return nil
}

// AttributeAST represents an attribute definition in the AST
type AttributeAST struct {
	Name string
	Type string // "string", "int", "bool", "string[]", etc.
}

// AnyType is the target type of an untyped relation
const AnyType = "any"
