// Package store keeps an identity map of records and their relationships,
// resolves identities through an Adapter and merges fetched payloads into
// the relationship graph.
//
// A Store is not safe for concurrent use: every method, and every method of
// the models it hands out, must run on the goroutine that drives its loop.
// Adapter calls run on their own goroutines and their results are merged
// while the driver awaits a future or calls Settle.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/infrastructure/metrics"
	"github.com/asakaida/kizuna/internal/relationships"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a record does not exist in the backend.
var ErrNotFound = repositories.ErrNotFound

// Store is the identity map and fetch coordinator for one schema
type Store struct {
	loop      *relationships.Loop
	schema    *entities.Schema
	adapter   Adapter
	models    map[entities.RecordRef]*Model
	unloading map[entities.RecordRef]bool
	group     singleflight.Group

	metrics      *metrics.Recorder
	logger       *slog.Logger
	newID        func() string
	fetchTimeout time.Duration
}

// New creates a store for schema backed by adapter
func New(schema *entities.Schema, adapter Adapter, opts ...Option) *Store {
	s := &Store{
		loop:      relationships.NewLoop(),
		schema:    schema,
		adapter:   adapter,
		models:    make(map[entities.RecordRef]*Model),
		unloading: make(map[entities.RecordRef]bool),
		logger:    slog.Default(),
		newID:     func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loop returns the loop that serializes graph mutations
func (s *Store) Loop() *relationships.Loop { return s.loop }

// Schema returns the schema the store was built for
func (s *Store) Schema() *entities.Schema { return s.schema }

// Settle drives the loop until every started fetch has been merged
func (s *Store) Settle(ctx context.Context) error {
	return s.loop.Settle(ctx)
}

// Len returns the number of records in the identity map, loaded or not
func (s *Store) Len() int { return len(s.models) }

// IsLoaded reports whether ref has been pushed or created
func (s *Store) IsLoaded(ref entities.RecordRef) bool {
	m, ok := s.models[ref]
	return ok && m.loaded
}

// Relationships returns the relationship table of ref, creating an
// unloaded placeholder record when ref has not been seen yet.
func (s *Store) Relationships(ref entities.RecordRef) (*relationships.Relationships, bool) {
	if s.unloading[ref] {
		return nil, false
	}
	return s.modelFor(ref).rels, true
}

// Peek returns a loaded record without fetching
func (s *Store) Peek(ref entities.RecordRef) (*Model, bool) {
	m, ok := s.models[ref]
	if !ok || !m.loaded {
		return nil, false
	}
	return m, true
}

func (s *Store) modelFor(ref entities.RecordRef) *Model {
	if m, ok := s.models[ref]; ok {
		return m
	}
	m := newModel(s, ref)
	s.models[ref] = m
	return m
}

// Push merges a payload into the identity map: attributes are applied,
// every relationship with data becomes the new server snapshot and is
// synced, and links are updated.
//
// A payload that fails validation leaves the identity map untouched.
func (s *Store) Push(p *Payload) (*Model, error) {
	if err := s.checkPayload(p); err != nil {
		return nil, err
	}
	entity := s.schema.GetEntity(p.Ref.Type)

	m := s.modelFor(p.Ref)
	if err := m.applyServerAttributes(p.Attributes); err != nil {
		return nil, err
	}
	m.loaded = true
	m.isNew = false

	keys := make([]string, 0, len(p.Relationships))
	for key := range p.Relationships {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := s.pushRelationship(m, entity, key, p.Relationships[key]); err != nil {
			return nil, fmt.Errorf("push %s.%s: %w", p.Ref, key, err)
		}
	}
	return m, nil
}

// checkPayload reports every reason Push would reject p, without touching the graph
func (s *Store) checkPayload(p *Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", relationships.ErrProtocol)
	}
	if err := p.Ref.Validate(); err != nil {
		return fmt.Errorf("%w: %v", relationships.ErrValidation, err)
	}
	entity := s.schema.GetEntity(p.Ref.Type)
	if entity == nil {
		return fmt.Errorf("%w: unknown record type %q", relationships.ErrValidation, p.Ref.Type)
	}
	if s.unloading[p.Ref] {
		return fmt.Errorf("%w: %s is being unloaded", relationships.ErrState, p.Ref)
	}

	for name, value := range p.Attributes {
		attr := entity.GetAttributeSchema(name)
		if attr == nil {
			return fmt.Errorf("push %s: %w: %s has no attribute %q", p.Ref, relationships.ErrValidation, p.Ref.Type, name)
		}
		if err := attr.Check(value); err != nil {
			return fmt.Errorf("push %s: %w: %v", p.Ref, relationships.ErrValidation, err)
		}
	}

	for key, rp := range p.Relationships {
		meta := entity.GetRelation(key)
		if meta == nil || !rp.HasData {
			continue
		}
		if meta.Kind == entities.KindBelongsTo && len(rp.Data) > 1 {
			return fmt.Errorf("push %s.%s: %w: one-to-one relationship received %d members",
				p.Ref, key, relationships.ErrProtocol, len(rp.Data))
		}
		for _, member := range rp.Data {
			if err := member.Validate(); err != nil {
				return fmt.Errorf("push %s.%s: %w: %v", p.Ref, key, relationships.ErrValidation, err)
			}
			if !meta.Accepts(member.Type) {
				return fmt.Errorf("push %s.%s: %w: expects %s, got %s",
					p.Ref, key, relationships.ErrValidation, meta.TargetType, member)
			}
		}
	}
	return nil
}

func (s *Store) pushRelationship(m *Model, entity *entities.Entity, key string, rp RelationshipPayload) error {
	meta := entity.GetRelation(key)
	if meta == nil {
		s.logger.Warn("ignoring undeclared relationship in payload", "record", m.ref.String(), "relationship", key)
		return nil
	}
	rel, err := m.rels.GetOrCreate(key)
	if err != nil {
		return err
	}

	if rp.HasData {
		var value interface{} = rp.Data
		if meta.Kind == entities.KindBelongsTo {
			switch len(rp.Data) {
			case 0:
				value = nil
			case 1:
				value = rp.Data[0]
			default:
				return fmt.Errorf("%w: one-to-one relationship received %d members", relationships.ErrProtocol, len(rp.Data))
			}
		}
		m.serverRels[key] = append([]entities.RecordRef(nil), rp.Data...)
		rel.SetServerMembers(rp.Data)
		if err := rel.Sync(value); err != nil {
			return err
		}
	}
	if rp.Link != nil {
		if err := rel.UpdateLink(*rp.Link); err != nil {
			return err
		}
	}
	return nil
}

// PushMany pushes payloads in order. Every payload is validated first, so
// a batch with one bad payload is rejected as a whole and merges nothing.
func (s *Store) PushMany(payloads []*Payload) ([]*Model, error) {
	for i, p := range payloads {
		if err := s.checkPayload(p); err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
	}
	models := make([]*Model, 0, len(payloads))
	for _, p := range payloads {
		m, err := s.Push(p)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// PushDocument decodes a document, pushes its included resources and then
// its primary data, and returns the models of the primary data.
func (s *Store) PushDocument(data []byte) ([]*Model, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relationships.ErrProtocol, err)
	}
	all := make([]*Payload, 0, len(doc.Included)+len(doc.Data))
	all = append(append(all, doc.Included...), doc.Data...)
	models, err := s.PushMany(all)
	if err != nil {
		return nil, err
	}
	return models[len(doc.Included):], nil
}

// Create builds a new client-side record with a generated id
func (s *Store) Create(typ string, attrs entities.Attributes) (*Model, error) {
	entity := s.schema.GetEntity(typ)
	if entity == nil {
		return nil, fmt.Errorf("%w: unknown record type %q", relationships.ErrValidation, typ)
	}
	ref := entities.NewRecordRef(typ, s.newID())
	if _, exists := s.models[ref]; exists {
		return nil, fmt.Errorf("%w: generated id %s already in use", relationships.ErrIdentity, ref)
	}

	m := newModel(s, ref)
	for name, value := range attrs {
		if err := m.checkAttr(name, value); err != nil {
			return nil, err
		}
	}
	m.attrs = attrs.Clone()
	m.loaded = true
	m.isNew = true
	for _, rel := range entity.Relations {
		m.serverRels[rel.Name] = nil
	}
	s.models[ref] = m
	return m, nil
}

// CreateRecord is Create for callers that only need the record identity
func (s *Store) CreateRecord(typ string, attrs entities.Attributes) (relationships.Record, error) {
	m, err := s.Create(typ, attrs)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Unload removes ref from the identity map. Related records stop
// referencing it; its own relationships are destroyed.
func (s *Store) Unload(ref entities.RecordRef) error {
	m, ok := s.models[ref]
	if !ok {
		return fmt.Errorf("record %s: %w", ref, ErrNotFound)
	}

	s.unloading[ref] = true
	defer delete(s.unloading, ref)

	m.rels.ForEach(func(_ string, rel *relationships.Relationship) {
		rel.Disconnect()
	})
	m.rels.Destroy()
	m.unloaded = true
	delete(s.models, ref)
	return nil
}

// Find resolves ref, fetching it when it is not loaded
func (s *Store) Find(ctx context.Context, ref entities.RecordRef) *relationships.Future[*Model] {
	return relationships.Then(s.FindRecord(ctx, ref), func(rec relationships.Record) (*Model, error) {
		return rec.(*Model), nil
	})
}

// FindRecord resolves ref through the adapter unless it is loaded.
// Concurrent fetches of the same record share one adapter call.
func (s *Store) FindRecord(ctx context.Context, ref entities.RecordRef) *relationships.Future[relationships.Record] {
	if m, ok := s.Peek(ref); ok {
		return relationships.Resolved[relationships.Record](s.loop, m)
	}

	fetch := relationships.Go(s.loop, func() (*Payload, error) {
		ctx, cancel := s.fetchContext(ctx)
		defer cancel()
		v, err, _ := s.group.Do("record:"+ref.String(), func() (interface{}, error) {
			p, err := s.adapter.FindRecord(ctx, ref)
			s.metrics.Fetch(metrics.FetchRecord, err)
			return p, err
		})
		if err != nil {
			return nil, err
		}
		return v.(*Payload), nil
	})

	return relationships.Then(fetch, func(p *Payload) (relationships.Record, error) {
		m, err := s.Push(p)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// FindMany resolves refs, fetching only those that are not loaded.
// The result follows the order of refs.
func (s *Store) FindMany(ctx context.Context, refs []entities.RecordRef) *relationships.Future[[]relationships.Record] {
	seen := make(map[entities.RecordRef]bool, len(refs))
	var missing []entities.RecordRef
	for _, ref := range refs {
		if !seen[ref] && !s.IsLoaded(ref) {
			missing = append(missing, ref)
		}
		seen[ref] = true
	}
	if len(missing) == 0 {
		records, err := s.recordsFor(refs)
		if err != nil {
			return relationships.Rejected[[]relationships.Record](s.loop, err)
		}
		return relationships.Resolved(s.loop, records)
	}

	fetch := relationships.Go(s.loop, func() ([]*Payload, error) {
		ctx, cancel := s.fetchContext(ctx)
		defer cancel()
		payloads, err := s.adapter.FindMany(ctx, missing)
		s.metrics.Fetch(metrics.FetchMany, err)
		return payloads, err
	})

	return relationships.Then(fetch, func(payloads []*Payload) ([]relationships.Record, error) {
		if _, err := s.PushMany(payloads); err != nil {
			return nil, err
		}
		return s.recordsFor(refs)
	})
}

// ReloadMany fetches every ref from the adapter, loaded or not, and merges
// the result. The result follows the order of refs.
func (s *Store) ReloadMany(ctx context.Context, refs []entities.RecordRef) *relationships.Future[[]relationships.Record] {
	if len(refs) == 0 {
		return relationships.Resolved(s.loop, []relationships.Record{})
	}
	unique := make([]entities.RecordRef, 0, len(refs))
	seen := make(map[entities.RecordRef]bool, len(refs))
	for _, ref := range refs {
		if !seen[ref] {
			unique = append(unique, ref)
		}
		seen[ref] = true
	}

	fetch := relationships.Go(s.loop, func() ([]*Payload, error) {
		ctx, cancel := s.fetchContext(ctx)
		defer cancel()
		payloads, err := s.adapter.FindMany(ctx, unique)
		s.metrics.Fetch(metrics.FetchMany, err)
		return payloads, err
	})

	return relationships.Then(fetch, func(payloads []*Payload) ([]relationships.Record, error) {
		if _, err := s.PushMany(payloads); err != nil {
			return nil, err
		}
		return s.recordsFor(refs)
	})
}

// FindBelongsTo fetches the link of a one-to-one relationship
func (s *Store) FindBelongsTo(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *relationships.Future[relationships.Record] {
	return relationships.Then(s.fetchLink(ctx, owner, link, rel), func(payloads []*Payload) (relationships.Record, error) {
		switch len(payloads) {
		case 0:
			return nil, nil
		case 1:
			m, err := s.Push(payloads[0])
			if err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, fmt.Errorf("%w: link %q of %s.%s returned %d records",
			relationships.ErrProtocol, link, owner, rel.Name, len(payloads))
	})
}

// FindHasMany fetches the link of a one-to-many relationship
func (s *Store) FindHasMany(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *relationships.Future[[]relationships.Record] {
	return relationships.Then(s.fetchLink(ctx, owner, link, rel), func(payloads []*Payload) ([]relationships.Record, error) {
		models, err := s.PushMany(payloads)
		if err != nil {
			return nil, err
		}
		records := make([]relationships.Record, len(models))
		for i, m := range models {
			records[i] = m
		}
		return records, nil
	})
}

func (s *Store) fetchLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *relationships.Future[[]*Payload] {
	return relationships.Go(s.loop, func() ([]*Payload, error) {
		ctx, cancel := s.fetchContext(ctx)
		defer cancel()
		payloads, err := s.adapter.FindLink(ctx, owner, link, rel)
		s.metrics.Fetch(metrics.FetchLink, err)
		if err != nil {
			s.logger.Debug("link fetch failed", "owner", owner.String(), "relationship", rel.Name, "link", link, "error", err)
		}
		return payloads, err
	})
}

// fetchContext detaches adapter calls from caller cancellation so every
// started fetch settles, bounded by the fetch timeout.
func (s *Store) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.fetchTimeout > 0 {
		return context.WithTimeout(ctx, s.fetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Store) recordsFor(refs []entities.RecordRef) ([]relationships.Record, error) {
	records := make([]relationships.Record, 0, len(refs))
	for _, ref := range refs {
		m, ok := s.Peek(ref)
		if !ok {
			return nil, fmt.Errorf("record %s: %w", ref, ErrNotFound)
		}
		records = append(records, m)
	}
	return records, nil
}
