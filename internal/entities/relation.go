package entities

// RelationKind distinguishes the three relationship variants
type RelationKind string

const (
	KindBelongsTo RelationKind = "belongsTo" // at most one related record
	KindHasMany   RelationKind = "hasMany"   // ordered list of related records
	KindImplicit  RelationKind = "implicit"  // undeclared back-reference kept for teardown
)

// RelationOptions holds the parenthesized options of a relation declaration
// Example: "relation author @person (async, inverse: posts)"
type RelationOptions struct {
	Async       bool   // Access returns a pending proxy instead of requiring loaded records
	Polymorphic bool   // Members may be of any type
	Inverse     string // Explicit inverse relation name on the target type
	NoInverse   bool   // "inverse: none", never mirrored as a declared relation
}

// Relation represents a relation definition in the schema
// Example: "relation comments @comment[]" or "relation post @post"
type Relation struct {
	Name       string       // Relation name (e.g., "comments", "author")
	Kind       RelationKind // belongsTo, hasMany or implicit
	TargetType string       // Target model type, empty when untyped
	ParentType string       // Type of the model declaring the relation
	InverseKey string       // Preset inverse key, used by implicit relations
	Options    RelationOptions
}

// IsMany reports whether the relation holds a list
func (r *Relation) IsMany() bool {
	return r.Kind == KindHasMany
}

// Accepts reports whether a record of the given type may become a member
func (r *Relation) Accepts(typ string) bool {
	if r.TargetType == "" || r.Options.Polymorphic {
		return true
	}
	return r.TargetType == typ
}
