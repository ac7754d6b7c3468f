package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/relationships"
)

// Model is one record in the identity map. A model that has only been
// referenced by another record's relationship exists but is not loaded.
type Model struct {
	store  *Store
	ref    entities.RecordRef
	entity *entities.Entity

	loaded   bool
	isNew    bool
	inFlight bool
	unloaded bool

	attrs       entities.Attributes
	serverAttrs entities.Attributes
	serverRels  map[string][]entities.RecordRef
	rels        *relationships.Relationships

	changes            []relationships.Change
	propertyChanges    []string
	recordArrayUpdates int
}

func newModel(s *Store, ref entities.RecordRef) *Model {
	m := &Model{
		store:       s,
		ref:         ref,
		entity:      s.schema.GetEntity(ref.Type),
		attrs:       entities.Attributes{},
		serverAttrs: entities.Attributes{},
		serverRels:  make(map[string][]entities.RecordRef),
	}
	m.rels = relationships.NewRelationships(m, s)
	return m
}

// Ref returns the record identity
func (m *Model) Ref() entities.RecordRef { return m.ref }

func (m *Model) String() string { return m.ref.String() }

// Descriptor returns the declared relation for key
func (m *Model) Descriptor(key string) (*entities.Relation, bool) {
	if m.entity == nil {
		return nil, false
	}
	rel := m.entity.GetRelation(key)
	return rel, rel != nil
}

// InverseFor returns the name of the declared inverse of key
func (m *Model) InverseFor(key string) (string, bool) {
	inverse, err := m.store.schema.InverseFor(m.ref.Type, key)
	if err != nil {
		m.store.logger.Warn("cannot resolve inverse", "record", m.ref.String(), "relationship", key, "error", err)
		return "", false
	}
	if inverse == nil {
		return "", false
	}
	return inverse.Name, true
}

// ServerSnapshot returns the members of key as last confirmed by the server
func (m *Model) ServerSnapshot(key string) ([]entities.RecordRef, bool) {
	refs, ok := m.serverRels[key]
	if !ok {
		return nil, false
	}
	return append([]entities.RecordRef(nil), refs...), true
}

func (m *Model) RelationshipDidChange(change relationships.Change) {
	m.changes = append(m.changes, change)
}

func (m *Model) NotifyPropertyChange(key string) {
	m.propertyChanges = append(m.propertyChanges, key)
}

func (m *Model) UpdateRecordArrays() {
	m.recordArrayUpdates++
}

// IsLoaded reports whether the record's data has been pushed or created
func (m *Model) IsLoaded() bool { return m.loaded }

// IsNew reports whether the record was created on the client and not yet committed
func (m *Model) IsNew() bool { return m.isNew }

// IsUnloaded reports whether the record has been removed from its store
func (m *Model) IsUnloaded() bool { return m.unloaded }

// IsInFlight reports whether a save is pending between WillCommit and DidCommit
func (m *Model) IsInFlight() bool { return m.inFlight }

// Attr returns a single attribute value
func (m *Model) Attr(name string) (interface{}, bool) {
	v, ok := m.attrs[name]
	return v, ok
}

// Attributes returns a copy of the current attributes
func (m *Model) Attributes() entities.Attributes {
	return m.attrs.Clone()
}

// SetAttr changes an attribute after checking it against the schema
func (m *Model) SetAttr(name string, value interface{}) error {
	if err := m.checkLive("set attribute"); err != nil {
		return err
	}
	if err := m.checkAttr(name, value); err != nil {
		return err
	}
	m.attrs[name] = value
	m.NotifyPropertyChange(name)
	return nil
}

func (m *Model) checkAttr(name string, value interface{}) error {
	if m.entity == nil {
		return fmt.Errorf("%w: unknown record type %q", relationships.ErrValidation, m.ref.Type)
	}
	schema := m.entity.GetAttributeSchema(name)
	if schema == nil {
		return fmt.Errorf("%w: %s has no attribute %q", relationships.ErrValidation, m.ref.Type, name)
	}
	if err := schema.Check(value); err != nil {
		return fmt.Errorf("%w: %v", relationships.ErrValidation, err)
	}
	return nil
}

// applyServerAttributes merges pushed attributes into both the server
// and the current state. Local edits of other attributes are kept.
func (m *Model) applyServerAttributes(attrs entities.Attributes) error {
	for name, value := range attrs {
		if err := m.checkAttr(name, value); err != nil {
			return fmt.Errorf("push %s: %w", m.ref, err)
		}
	}
	for name, value := range attrs {
		m.serverAttrs[name] = value
		m.attrs[name] = value
	}
	return nil
}

// DirtyAttributes returns the names of attributes that differ from the server, sorted
func (m *Model) DirtyAttributes() []string {
	var dirty []string
	for name, value := range m.attrs {
		if server, ok := m.serverAttrs[name]; !ok || !reflect.DeepEqual(server, value) {
			dirty = append(dirty, name)
		}
	}
	for name := range m.serverAttrs {
		if _, ok := m.attrs[name]; !ok {
			dirty = append(dirty, name)
		}
	}
	sort.Strings(dirty)
	return dirty
}

// IsDirty reports whether any attribute or server-known relationship has
// local changes. New records are always dirty.
func (m *Model) IsDirty() bool {
	if m.isNew {
		return true
	}
	if len(m.DirtyAttributes()) > 0 {
		return true
	}
	dirty := false
	m.rels.ForEach(func(key string, rel *relationships.Relationship) {
		if _, known := m.serverRels[key]; known && rel.IsDirty() {
			dirty = true
		}
	})
	return dirty
}

// Relationship returns the relationship for key, creating it on first use
func (m *Model) Relationship(key string) (*relationships.Relationship, error) {
	if err := m.checkLive("access relationship"); err != nil {
		return nil, err
	}
	return m.rels.GetOrCreate(key)
}

// Relationships returns the record's relationship table
func (m *Model) Relationships() *relationships.Relationships { return m.rels }

// BelongsTo reads a one-to-one relationship
func (m *Model) BelongsTo(ctx context.Context, key string) (*relationships.RecordProxy, error) {
	rel, err := m.relationshipOfKind(key, entities.KindBelongsTo)
	if err != nil {
		return nil, err
	}
	return rel.GetRecord(ctx)
}

// SetBelongsTo assigns a one-to-one relationship. value may be a record,
// a reference, a proxy produced by a relationship read, or nil.
func (m *Model) SetBelongsTo(key string, value interface{}) error {
	rel, err := m.relationshipOfKind(key, entities.KindBelongsTo)
	if err != nil {
		return err
	}
	return rel.Sync(value)
}

// HasMany reads a one-to-many relationship
func (m *Model) HasMany(ctx context.Context, key string) (*relationships.ManyProxy, error) {
	rel, err := m.relationshipOfKind(key, entities.KindHasMany)
	if err != nil {
		return nil, err
	}
	return rel.GetRecords(ctx)
}

// SetHasMany replaces the members of a one-to-many relationship
func (m *Model) SetHasMany(key string, refs []entities.RecordRef) error {
	rel, err := m.relationshipOfKind(key, entities.KindHasMany)
	if err != nil {
		return err
	}
	return rel.Sync(refs)
}

func (m *Model) relationshipOfKind(key string, kind entities.RelationKind) (*relationships.Relationship, error) {
	rel, err := m.Relationship(key)
	if err != nil {
		return nil, err
	}
	if rel.Kind() != kind {
		return nil, fmt.Errorf("%w: %s.%s is %s, not %s", relationships.ErrProtocol, m.ref.Type, key, rel.Kind(), kind)
	}
	return rel, nil
}

// Rollback discards local attribute and relationship changes
func (m *Model) Rollback() error {
	if err := m.checkLive("rollback"); err != nil {
		return err
	}
	m.attrs = m.serverAttrs.Clone()
	for _, key := range m.rels.Keys() {
		rel := m.rels.Get(key)
		if rel.Kind() == entities.KindImplicit {
			continue
		}
		if err := rel.Rollback(); err != nil {
			return fmt.Errorf("rollback %s.%s: %w", m.ref, key, err)
		}
	}
	return nil
}

// WillCommit marks the start of a save
func (m *Model) WillCommit() error {
	if err := m.checkLive("commit"); err != nil {
		return err
	}
	if m.inFlight {
		return fmt.Errorf("%w: %s is already being saved", relationships.ErrState, m.ref)
	}
	m.inFlight = true
	return nil
}

// DidCommit confirms a save: the current state becomes the server state,
// then the optional server response is pushed over it.
func (m *Model) DidCommit(p *Payload) error {
	if !m.inFlight {
		return fmt.Errorf("%w: %s has no save in flight", relationships.ErrState, m.ref)
	}
	m.inFlight = false
	m.isNew = false
	m.serverAttrs = m.attrs.Clone()
	m.rels.ForEach(func(key string, rel *relationships.Relationship) {
		if rel.Kind() == entities.KindImplicit {
			return
		}
		refs := rel.Members().ToArray()
		m.serverRels[key] = refs
		rel.SetServerMembers(refs)
	})
	if p == nil {
		return nil
	}
	if p.Ref != m.ref {
		return fmt.Errorf("%w: commit response for %s returned %s", relationships.ErrIdentity, m.ref, p.Ref)
	}
	_, err := m.store.Push(p)
	return err
}

// Changes returns the relationship change notifications received so far
func (m *Model) Changes() []relationships.Change {
	return append([]relationships.Change(nil), m.changes...)
}

// PropertyChanges returns the property names notified so far, in order
func (m *Model) PropertyChanges() []string {
	return append([]string(nil), m.propertyChanges...)
}

// RecordArrayUpdates returns how often record-array membership was refreshed
func (m *Model) RecordArrayUpdates() int { return m.recordArrayUpdates }

// ResetChanges clears the recorded notifications
func (m *Model) ResetChanges() {
	m.changes = nil
	m.propertyChanges = nil
	m.recordArrayUpdates = 0
}

// Unload removes the record from its store
func (m *Model) Unload() error {
	return m.store.Unload(m.ref)
}

func (m *Model) checkLive(op string) error {
	if m.unloaded {
		return fmt.Errorf("%w: cannot %s on unloaded record %s", relationships.ErrState, op, m.ref)
	}
	return nil
}
