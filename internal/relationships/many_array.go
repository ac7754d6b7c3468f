package relationships

import (
	"context"
	"fmt"
	"sync"

	"github.com/asakaida/kizuna/internal/entities"
)

// ManyArray is the live list view of a one-to-many relationship.
// Reads go straight to the relationship's members and writes go through
// the relationship so that inverses stay consistent.
type ManyArray struct {
	rel          *Relationship
	loaded       bool
	loadingCount int
	didLoad      chan struct{}
	didLoadOnce  sync.Once
	destroyed    bool
}

func newManyArray(rel *Relationship) *ManyArray {
	return &ManyArray{rel: rel, didLoad: make(chan struct{})}
}

// Relationship returns the relationship the view belongs to
func (a *ManyArray) Relationship() *Relationship {
	return a.rel
}

// Length returns the current number of members
func (a *ManyArray) Length() int {
	if a.destroyed {
		return 0
	}
	return a.rel.members.Size()
}

// ObjectAt returns the member at position i
func (a *ManyArray) ObjectAt(i int) (entities.RecordRef, bool) {
	if a.destroyed {
		return entities.RecordRef{}, false
	}
	return a.rel.members.Get(i)
}

// ToArray returns a copy of the members in order
func (a *ManyArray) ToArray() []entities.RecordRef {
	if a.destroyed {
		return nil
	}
	return a.rel.members.ToArray()
}

// Contains reports whether ref is a member
func (a *ManyArray) Contains(ref entities.RecordRef) bool {
	return !a.destroyed && a.rel.members.Has(ref)
}

// Replace removes removeCount members starting at idx, then inserts refs at idx
func (a *ManyArray) Replace(idx, removeCount int, refs []entities.RecordRef) error {
	if a.destroyed {
		return a.destroyedErr("Replace")
	}
	if idx < 0 || idx > a.rel.members.Size() {
		return fmt.Errorf("%w: index %d out of range for %d members", ErrState, idx, a.rel.members.Size())
	}
	if removeCount > 0 {
		a.rel.RemoveRecords(a.rel.members.Slice(idx, idx+removeCount))
	}
	if len(refs) > 0 {
		return a.rel.AddRecordsAt(refs, idx)
	}
	return nil
}

// PushObject appends ref
func (a *ManyArray) PushObject(ref entities.RecordRef) error {
	return a.Replace(a.Length(), 0, []entities.RecordRef{ref})
}

// PushObjects appends every ref in order
func (a *ManyArray) PushObjects(refs ...entities.RecordRef) error {
	return a.Replace(a.Length(), 0, refs)
}

// RemoveObject removes ref when present
func (a *ManyArray) RemoveObject(ref entities.RecordRef) error {
	if a.destroyed {
		return a.destroyedErr("RemoveObject")
	}
	a.rel.RemoveRecord(ref)
	return nil
}

// CreateRecord creates a new record of the relationship's type and appends it
func (a *ManyArray) CreateRecord(attrs entities.Attributes) (Record, error) {
	if a.destroyed {
		return nil, a.destroyedErr("CreateRecord")
	}
	meta := a.rel.meta
	if meta.Options.Polymorphic || meta.TargetType == "" {
		return nil, fmt.Errorf("%w: cannot create a record through %s.%s because its type is not fixed",
			ErrValidation, a.rel.owner.Ref().Type, meta.Name)
	}
	rec, err := a.rel.store.CreateRecord(meta.TargetType, attrs)
	if err != nil {
		return nil, err
	}
	if err := a.PushObject(rec.Ref()); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reload refetches the relationship
func (a *ManyArray) Reload(ctx context.Context) *Future[*ManyArray] {
	if a.destroyed {
		return Rejected[*ManyArray](a.rel.store.Loop(), a.destroyedErr("Reload"))
	}
	return a.rel.Reload(ctx)
}

// IsLoaded reports whether every member has been materialized at least once
func (a *ManyArray) IsLoaded() bool {
	return a.loaded
}

// LoadingRecordsCount sets how many member loads are outstanding
func (a *ManyArray) LoadingRecordsCount(n int) {
	a.loadingCount = n
}

// LoadedRecord reports one finished member load; the last one marks the view loaded
func (a *ManyArray) LoadedRecord() {
	if a.loadingCount == 0 {
		return
	}
	a.loadingCount--
	if a.loadingCount == 0 {
		a.markLoaded()
	}
}

// DidLoad is closed the first time the view becomes loaded through LoadedRecord
func (a *ManyArray) DidLoad() <-chan struct{} {
	return a.didLoad
}

// IsDestroyed reports whether the owning relationship was destroyed
func (a *ManyArray) IsDestroyed() bool {
	return a.destroyed
}

func (a *ManyArray) markLoaded() {
	a.loaded = true
	a.didLoadOnce.Do(func() { close(a.didLoad) })
}

func (a *ManyArray) destroy() {
	a.destroyed = true
}

func (a *ManyArray) destroyedErr(op string) error {
	return fmt.Errorf("%w: %s on destroyed list %s.%s", ErrState, op, a.rel.owner.Ref(), a.rel.meta.Name)
}
