package relationships

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asakaida/kizuna/internal/entities"
)

func ref(typ, id string) entities.RecordRef {
	return entities.NewRecordRef(typ, id)
}

func testSchema() *entities.Schema {
	return &entities.Schema{
		Entities: []*entities.Entity{
			{Name: "person", Relations: []*entities.Relation{
				{Name: "address", Kind: entities.KindBelongsTo, TargetType: "address", ParentType: "person"},
				{Name: "posts", Kind: entities.KindHasMany, TargetType: "post", ParentType: "person", Options: entities.RelationOptions{Inverse: "author"}},
			}},
			{Name: "address", Relations: []*entities.Relation{
				{Name: "person", Kind: entities.KindBelongsTo, TargetType: "person", ParentType: "address"},
			}},
			{Name: "post", Relations: []*entities.Relation{
				{Name: "comments", Kind: entities.KindHasMany, TargetType: "comment", ParentType: "post", Options: entities.RelationOptions{Async: true}},
				{Name: "author", Kind: entities.KindBelongsTo, TargetType: "person", ParentType: "post", Options: entities.RelationOptions{Async: true}},
				{Name: "tags", Kind: entities.KindHasMany, TargetType: "tag", ParentType: "post"},
				{Name: "attachments", Kind: entities.KindHasMany, ParentType: "post", Options: entities.RelationOptions{Polymorphic: true, NoInverse: true}},
			}},
			{Name: "comment", Relations: []*entities.Relation{
				{Name: "post", Kind: entities.KindBelongsTo, TargetType: "post", ParentType: "comment"},
			}},
			{Name: "tag"},
		},
	}
}

type fakeOwner struct {
	ref             entities.RecordRef
	store           *fakeStore
	table           *Relationships
	server          map[string][]entities.RecordRef
	changes         []Change
	propertyChanges map[string]int
	arrayUpdates    int
}

func (o *fakeOwner) Ref() entities.RecordRef { return o.ref }

func (o *fakeOwner) Descriptor(key string) (*entities.Relation, bool) {
	rel := o.store.schema.GetRelation(o.ref.Type, key)
	return rel, rel != nil
}

func (o *fakeOwner) InverseFor(key string) (string, bool) {
	inverse, err := o.store.schema.InverseFor(o.ref.Type, key)
	if err != nil || inverse == nil {
		return "", false
	}
	return inverse.Name, true
}

func (o *fakeOwner) ServerSnapshot(key string) ([]entities.RecordRef, bool) {
	refs, ok := o.server[key]
	return refs, ok
}

func (o *fakeOwner) RelationshipDidChange(change Change) {
	o.changes = append(o.changes, change)
}

func (o *fakeOwner) NotifyPropertyChange(key string) {
	o.propertyChanges[key]++
}

func (o *fakeOwner) UpdateRecordArrays() {
	o.arrayUpdates++
}

type fakeStore struct {
	loop        *Loop
	schema      *entities.Schema
	records     map[entities.RecordRef]*fakeOwner
	loaded      map[entities.RecordRef]bool
	tornDown    map[entities.RecordRef]bool
	links       map[string][]entities.RecordRef
	linkErr     error
	gate        chan struct{}
	linkCalls   int
	manyCalls   int
	reloadCalls int
	recordCalls int
	created     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		loop:     NewLoop(),
		schema:   testSchema(),
		records:  make(map[entities.RecordRef]*fakeOwner),
		loaded:   make(map[entities.RecordRef]bool),
		tornDown: make(map[entities.RecordRef]bool),
		links:    make(map[string][]entities.RecordRef),
	}
}

func (s *fakeStore) owner(r entities.RecordRef) *fakeOwner {
	if o, ok := s.records[r]; ok {
		return o
	}
	o := &fakeOwner{
		ref:             r,
		store:           s,
		server:          make(map[string][]entities.RecordRef),
		propertyChanges: make(map[string]int),
	}
	o.table = NewRelationships(o, s)
	s.records[r] = o
	return o
}

func (s *fakeStore) rel(t *testing.T, owner entities.RecordRef, key string) *Relationship {
	t.Helper()
	rel, err := s.owner(owner).table.GetOrCreate(key)
	require.NoError(t, err)
	return rel
}

func (s *fakeStore) Loop() *Loop { return s.loop }

func (s *fakeStore) IsLoaded(r entities.RecordRef) bool { return s.loaded[r] }

func (s *fakeStore) Relationships(r entities.RecordRef) (*Relationships, bool) {
	if s.tornDown[r] {
		return nil, false
	}
	return s.owner(r).table, true
}

func (s *fakeStore) fetch(refs []entities.RecordRef, err error) *Future[[]Record] {
	gate := s.gate
	io := Go(s.loop, func() ([]entities.RecordRef, error) {
		if gate != nil {
			<-gate
		}
		return refs, err
	})
	return Then(io, func(refs []entities.RecordRef) ([]Record, error) {
		out := make([]Record, 0, len(refs))
		for _, r := range refs {
			s.loaded[r] = true
			out = append(out, s.owner(r))
		}
		return out, nil
	})
}

func (s *fakeStore) FindRecord(ctx context.Context, r entities.RecordRef) *Future[Record] {
	s.recordCalls++
	return Then(s.fetch([]entities.RecordRef{r}, nil), func(recs []Record) (Record, error) {
		return recs[0], nil
	})
}

func (s *fakeStore) FindMany(ctx context.Context, refs []entities.RecordRef) *Future[[]Record] {
	s.manyCalls++
	return s.fetch(refs, nil)
}

func (s *fakeStore) ReloadMany(ctx context.Context, refs []entities.RecordRef) *Future[[]Record] {
	s.reloadCalls++
	return s.fetch(refs, nil)
}

func (s *fakeStore) FindBelongsTo(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *Future[Record] {
	s.linkCalls++
	return Then(s.fetch(s.links[link], s.linkErr), func(recs []Record) (Record, error) {
		if len(recs) == 0 {
			return nil, nil
		}
		return recs[0], nil
	})
}

func (s *fakeStore) FindHasMany(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *Future[[]Record] {
	s.linkCalls++
	return s.fetch(s.links[link], s.linkErr)
}

func (s *fakeStore) CreateRecord(typ string, attrs entities.Attributes) (Record, error) {
	if s.schema.GetEntity(typ) == nil {
		return nil, fmt.Errorf("unknown type %q", typ)
	}
	s.created++
	o := s.owner(ref(typ, fmt.Sprintf("new-%d", s.created)))
	s.loaded[o.ref] = true
	return o, nil
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
