package relationships

import (
	"context"
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
)

// belongsTo holds at most one related record
type belongsTo struct {
	r             *Relationship
	inverseRecord *entities.RecordRef
}

func (b *belongsTo) addRecord(ref entities.RecordRef, _ int) error {
	r := b.r
	if r.members.Has(ref) {
		return nil
	}
	if !r.meta.Accepts(ref.Type) {
		return fmt.Errorf("%w: %s.%s expects %s, got %s",
			ErrValidation, r.owner.Ref().Type, r.meta.Name, r.meta.TargetType, ref)
	}
	if b.inverseRecord != nil {
		r.RemoveRecord(*b.inverseRecord)
	}
	next := ref
	b.inverseRecord = &next
	return r.addRecord(ref, NoIndex)
}

func (b *belongsTo) removeRecordFromOwn(ref entities.RecordRef) {
	if !b.r.members.Has(ref) {
		return
	}
	b.r.removeRecordFromOwn(ref)
	b.inverseRecord = nil
}

func (b *belongsTo) sync(value interface{}) error {
	if proxy, ok := value.(*RecordProxy); ok {
		if proxy == nil || proxy.origin == nil {
			return fmt.Errorf("%w: proxy assigned to %s.%s was not produced by a relationship",
				ErrIdentity, b.r.owner.Ref(), b.r.meta.Name)
		}
		value = proxy.Content
	}
	ref, ok, err := toRef(value)
	if err != nil {
		return err
	}
	if ok {
		return b.addRecord(ref, NoIndex)
	}
	if b.inverseRecord != nil {
		b.r.RemoveRecord(*b.inverseRecord)
	}
	return nil
}

func (b *belongsTo) notifyChanged(ref entities.RecordRef, _ int, kind ChangeKind) {
	b.r.owner.NotifyPropertyChange(b.r.meta.Name)
	b.r.owner.RelationshipDidChange(b.r.change(ref, kind))
}

func (b *belongsTo) fetchLink(ctx context.Context, generation uint64) *Future[any] {
	r := b.r
	fetch := r.store.FindBelongsTo(ctx, r.owner.Ref(), r.link, r.meta)
	return Then(fetch, func(rec Record) (any, error) {
		if r.isStale(generation) {
			return b.current(), nil
		}
		if rec == nil {
			if err := b.sync(nil); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if err := b.addRecord(rec.Ref(), NoIndex); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

func (b *belongsTo) destroy() {}

func (b *belongsTo) current() *entities.RecordRef {
	if b.inverseRecord == nil {
		return nil
	}
	ref := *b.inverseRecord
	return &ref
}

func (b *belongsTo) findRecord(ctx context.Context) *Future[Record] {
	if b.inverseRecord == nil {
		return Resolved[Record](b.r.store.Loop(), nil)
	}
	return b.r.store.FindRecord(ctx, *b.inverseRecord)
}

func (b *belongsTo) getRecord(ctx context.Context) (*RecordProxy, error) {
	r := b.r
	if r.meta.Options.Async {
		var completion *Future[Record]
		if r.link != "" {
			completion = Chain(r.FindLink(ctx), func(any) *Future[Record] {
				return b.findRecord(ctx)
			})
		} else {
			completion = b.findRecord(ctx)
		}
		return &RecordProxy{Content: b.current(), Completion: completion, origin: r}, nil
	}
	if b.inverseRecord != nil && !r.store.IsLoaded(*b.inverseRecord) {
		return nil, fmt.Errorf("%w: %s.%s points at %s which is not loaded; declare the relation async or load it first",
			ErrState, r.owner.Ref(), r.meta.Name, *b.inverseRecord)
	}
	return &RecordProxy{Content: b.current(), origin: r}, nil
}

// InverseRecord returns the current member of a one-to-one relationship
func (r *Relationship) InverseRecord() (entities.RecordRef, bool) {
	b, ok := r.behavior.(*belongsTo)
	if !ok || b.inverseRecord == nil {
		return entities.RecordRef{}, false
	}
	return *b.inverseRecord, true
}

// GetRecord reads a one-to-one relationship. Async relationships return a
// proxy with a pending completion; sync ones fail when the member is not loaded.
func (r *Relationship) GetRecord(ctx context.Context) (*RecordProxy, error) {
	b, ok := r.behavior.(*belongsTo)
	if !ok {
		return nil, r.wrongKind("GetRecord")
	}
	return b.getRecord(ctx)
}

// FindRecord resolves the current member of a one-to-one relationship through the store
func (r *Relationship) FindRecord(ctx context.Context) *Future[Record] {
	b, ok := r.behavior.(*belongsTo)
	if !ok {
		return Rejected[Record](r.store.Loop(), r.wrongKind("FindRecord"))
	}
	return b.findRecord(ctx)
}

// toRef normalizes the accepted one-to-one values
func toRef(value interface{}) (entities.RecordRef, bool, error) {
	switch v := value.(type) {
	case nil:
		return entities.RecordRef{}, false, nil
	case entities.RecordRef:
		return v, !v.IsZero(), nil
	case *entities.RecordRef:
		if v == nil {
			return entities.RecordRef{}, false, nil
		}
		return *v, !v.IsZero(), nil
	case []entities.RecordRef:
		switch len(v) {
		case 0:
			return entities.RecordRef{}, false, nil
		case 1:
			return v[0], true, nil
		}
		return entities.RecordRef{}, false, fmt.Errorf("%w: one-to-one value has %d members", ErrValidation, len(v))
	case Record:
		return v.Ref(), true, nil
	}
	return entities.RecordRef{}, false, fmt.Errorf("%w: cannot use %T as a record", ErrProtocol, value)
}
