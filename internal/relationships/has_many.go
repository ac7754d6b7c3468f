package relationships

import (
	"context"
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
)

// hasMany holds an ordered list of related records and its live projection
type hasMany struct {
	r         *Relationship
	manyArray *ManyArray
}

func newHasMany(r *Relationship) *hasMany {
	h := &hasMany{r: r}
	h.manyArray = newManyArray(r)
	return h
}

func (h *hasMany) addRecord(ref entities.RecordRef, idx int) error {
	if err := h.checkType(ref); err != nil {
		return err
	}
	return h.r.addRecord(ref, idx)
}

func (h *hasMany) checkType(ref entities.RecordRef) error {
	r := h.r
	if r.meta.Accepts(ref.Type) {
		return nil
	}
	return fmt.Errorf("%w: %s.%s expects %s, got %s",
		ErrValidation, r.owner.Ref().Type, r.meta.Name, r.meta.TargetType, ref)
}

func (h *hasMany) removeRecordFromOwn(ref entities.RecordRef) {
	h.r.removeRecordFromOwn(ref)
}

func (h *hasMany) sync(value interface{}) error {
	refs, err := toRefs(value)
	if err != nil {
		return err
	}
	target := NewMembers(refs...)
	for _, ref := range target.ToArray() {
		if err := h.checkType(ref); err != nil {
			return err
		}
	}

	r := h.r
	r.members.ForEach(func(ref entities.RecordRef, _ int) {
		if !target.Has(ref) {
			r.RemoveRecord(ref)
		}
	})
	for i, ref := range target.ToArray() {
		if err := h.addRecord(ref, i); err != nil {
			return err
		}
	}
	return nil
}

func (h *hasMany) notifyChanged(ref entities.RecordRef, idx int, kind ChangeKind) {
	r := h.r
	if kind == ChangeAdded && idx != NoIndex && !r.store.IsLoaded(ref) {
		r.owner.NotifyPropertyChange(r.meta.Name)
	}
	r.owner.RelationshipDidChange(r.change(ref, kind))
}

func (h *hasMany) fetchLink(ctx context.Context, generation uint64) *Future[any] {
	r := h.r
	fetch := r.store.FindHasMany(ctx, r.owner.Ref(), r.link, r.meta)
	return Then(fetch, func(records []Record) (any, error) {
		if r.isStale(generation) {
			return h.manyArray, nil
		}
		refs := make([]entities.RecordRef, 0, len(records))
		for _, rec := range records {
			refs = append(refs, rec.Ref())
		}
		if err := h.sync(refs); err != nil {
			return nil, err
		}
		h.manyArray.loaded = true
		return h.manyArray, nil
	})
}

func (h *hasMany) destroy() {
	h.manyArray.destroy()
}

func (h *hasMany) findRecords(ctx context.Context) *Future[*ManyArray] {
	fetch := h.r.store.FindMany(ctx, h.r.members.ToArray())
	return Then(fetch, func([]Record) (*ManyArray, error) {
		h.manyArray.loaded = true
		return h.manyArray, nil
	})
}

func (h *hasMany) reload(ctx context.Context) *Future[*ManyArray] {
	if h.r.link != "" {
		return Then(h.r.FetchLink(ctx), func(any) (*ManyArray, error) {
			return h.manyArray, nil
		})
	}
	fetch := h.r.store.ReloadMany(ctx, h.r.members.ToArray())
	return Then(fetch, func([]Record) (*ManyArray, error) {
		h.manyArray.loaded = true
		return h.manyArray, nil
	})
}

func (h *hasMany) getRecords(ctx context.Context) (*ManyProxy, error) {
	r := h.r
	if r.meta.Options.Async {
		var completion *Future[*ManyArray]
		if r.link != "" {
			completion = Chain(r.FindLink(ctx), func(any) *Future[*ManyArray] {
				return h.findRecords(ctx)
			})
		} else {
			completion = h.findRecords(ctx)
		}
		return &ManyProxy{Content: h.manyArray, Completion: completion}, nil
	}

	var missing []entities.RecordRef
	r.members.ForEach(func(ref entities.RecordRef, _ int) {
		if !r.store.IsLoaded(ref) {
			missing = append(missing, ref)
		}
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s.%s has %d unloaded members (first %s); declare the relation async or load them first",
			ErrState, r.owner.Ref(), r.meta.Name, len(missing), missing[0])
	}
	h.manyArray.loaded = true
	return &ManyProxy{Content: h.manyArray}, nil
}

// ManyArray returns the live list projection of a one-to-many relationship, or nil
func (r *Relationship) ManyArray() *ManyArray {
	h, ok := r.behavior.(*hasMany)
	if !ok {
		return nil
	}
	return h.manyArray
}

// GetRecords reads a one-to-many relationship
func (r *Relationship) GetRecords(ctx context.Context) (*ManyProxy, error) {
	h, ok := r.behavior.(*hasMany)
	if !ok {
		return nil, r.wrongKind("GetRecords")
	}
	return h.getRecords(ctx)
}

// FindRecords asks the store to materialize every member and marks the projection loaded
func (r *Relationship) FindRecords(ctx context.Context) *Future[*ManyArray] {
	h, ok := r.behavior.(*hasMany)
	if !ok {
		return Rejected[*ManyArray](r.store.Loop(), r.wrongKind("FindRecords"))
	}
	return h.findRecords(ctx)
}

// Reload refetches the link when one is set, otherwise every member, loaded or not
func (r *Relationship) Reload(ctx context.Context) *Future[*ManyArray] {
	h, ok := r.behavior.(*hasMany)
	if !ok {
		return Rejected[*ManyArray](r.store.Loop(), r.wrongKind("Reload"))
	}
	return h.reload(ctx)
}

// toRefs normalizes the accepted one-to-many values
func toRefs(value interface{}) ([]entities.RecordRef, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []entities.RecordRef:
		return v, nil
	case *Members:
		if v == nil {
			return nil, nil
		}
		return v.ToArray(), nil
	case *ManyArray:
		if v == nil {
			return nil, nil
		}
		return v.ToArray(), nil
	case []Record:
		refs := make([]entities.RecordRef, 0, len(v))
		for _, rec := range v {
			refs = append(refs, rec.Ref())
		}
		return refs, nil
	}
	return nil, fmt.Errorf("%w: cannot use %T as a record list", ErrProtocol, value)
}
