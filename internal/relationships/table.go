package relationships

import (
	"fmt"
	"sort"

	"github.com/asakaida/kizuna/internal/entities"
)

// Relationships is the per-record table of relationships keyed by field name.
// Declared relationships are created on first access; implicit ones are
// created when another record mirrors an undeclared inverse onto this one.
type Relationships struct {
	owner Owner
	store Store
	rels  map[string]*Relationship
}

// NewRelationships creates an empty table for owner
func NewRelationships(owner Owner, store Store) *Relationships {
	return &Relationships{owner: owner, store: store, rels: make(map[string]*Relationship)}
}

// Get returns the relationship for key if it has been created
func (t *Relationships) Get(key string) *Relationship {
	return t.rels[key]
}

// Has reports whether the relationship for key has been created
func (t *Relationships) Has(key string) bool {
	_, ok := t.rels[key]
	return ok
}

// GetOrCreate returns the declared relationship for key, creating it on first access
func (t *Relationships) GetOrCreate(key string) (*Relationship, error) {
	if rel, ok := t.rels[key]; ok {
		return rel, nil
	}
	meta, ok := t.owner.Descriptor(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no relationship %q", ErrState, t.owner.Ref().Type, key)
	}
	rel := New(t.owner, t.store, meta)
	t.rels[key] = rel
	return rel, nil
}

// inverseOf returns the relationship on this table that mirrors from, the
// relationship of another record that just gained this table's owner.
func (t *Relationships) inverseOf(from *Relationship, self entities.RecordRef) *Relationship {
	key := from.inverseKey
	if rel, ok := t.rels[key]; ok {
		return rel
	}
	if meta, ok := t.owner.Descriptor(key); ok {
		rel := New(t.owner, t.store, meta)
		t.rels[key] = rel
		return rel
	}
	meta := &entities.Relation{
		Name:       key,
		Kind:       entities.KindImplicit,
		TargetType: from.owner.Ref().Type,
		ParentType: self.Type,
		InverseKey: from.meta.Name,
		Options:    entities.RelationOptions{Async: from.meta.Options.Async},
	}
	rel := New(t.owner, t.store, meta)
	t.rels[key] = rel
	return rel
}

// Keys returns the keys of every created relationship in sorted order
func (t *Relationships) Keys() []string {
	keys := make([]string, 0, len(t.rels))
	for key := range t.rels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ForEach calls fn for every created relationship in key order
func (t *Relationships) ForEach(fn func(key string, rel *Relationship)) {
	for _, key := range t.Keys() {
		if rel, ok := t.rels[key]; ok {
			fn(key, rel)
		}
	}
}

// Destroy tears down every relationship and empties the table
func (t *Relationships) Destroy() {
	t.ForEach(func(_ string, rel *Relationship) {
		rel.Destroy()
	})
	t.rels = make(map[string]*Relationship)
}
