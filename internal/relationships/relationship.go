package relationships

import (
	"context"
	"fmt"
	"strings"

	"github.com/asakaida/kizuna/internal/entities"
)

// NoIndex requests append semantics from positional operations
const NoIndex = -1

const implicitKeyPrefix = "__implicit__"

// ImplicitKey returns the key under which an undeclared back-reference from ownerType is stored
func ImplicitKey(ownerType string) string {
	return implicitKeyPrefix + ownerType
}

// IsImplicitKey reports whether key names an implicit relationship
func IsImplicitKey(key string) bool {
	return strings.HasPrefix(key, implicitKeyPrefix)
}

// behavior is the per-variant part of a relationship
type behavior interface {
	addRecord(ref entities.RecordRef, idx int) error
	removeRecordFromOwn(ref entities.RecordRef)
	sync(value interface{}) error
	notifyChanged(ref entities.RecordRef, idx int, kind ChangeKind)
	fetchLink(ctx context.Context, generation uint64) *Future[any]
	destroy()
}

// Relationship is one named field of one owner record together with its
// current members, its server snapshot and its link state.
type Relationship struct {
	owner         Owner
	store         Store
	meta          *entities.Relation
	inverseKey    string
	members       *Members
	serverMembers *Members
	link          string
	linkFetch     *Future[any]
	generation    uint64
	behavior      behavior
}

// New builds the relationship described by meta for owner
func New(owner Owner, store Store, meta *entities.Relation) *Relationship {
	r := &Relationship{
		owner:         owner,
		store:         store,
		meta:          meta,
		members:       NewMembers(),
		serverMembers: NewMembers(),
	}
	r.inverseKey = r.resolveInverseKey()

	switch meta.Kind {
	case entities.KindHasMany:
		r.behavior = newHasMany(r)
	case entities.KindBelongsTo:
		r.behavior = &belongsTo{r: r}
	default:
		r.behavior = &implicit{r: r}
	}
	return r
}

func (r *Relationship) resolveInverseKey() string {
	if r.meta.InverseKey != "" {
		return r.meta.InverseKey
	}
	if r.meta.Options.Inverse != "" {
		return r.meta.Options.Inverse
	}
	if key, ok := r.owner.InverseFor(r.meta.Name); ok {
		return key
	}
	parent := r.meta.ParentType
	if parent == "" {
		parent = r.owner.Ref().Type
	}
	return ImplicitKey(parent)
}

// Key returns the field name
func (r *Relationship) Key() string { return r.meta.Name }

// Meta returns the relation descriptor
func (r *Relationship) Meta() *entities.Relation { return r.meta }

// Kind returns the relationship variant
func (r *Relationship) Kind() entities.RelationKind { return r.meta.Kind }

// InverseKey returns the field name on related records that mirrors this one
func (r *Relationship) InverseKey() string { return r.inverseKey }

// Owner returns the owning record
func (r *Relationship) Owner() Owner { return r.owner }

// Members returns the live member set. Callers must not mutate it.
func (r *Relationship) Members() *Members { return r.members }

// ServerMembers returns the last server-confirmed member set
func (r *Relationship) ServerMembers() *Members { return r.serverMembers }

// Link returns the related-resource locator, or "" when none is set
func (r *Relationship) Link() string { return r.link }

// IsDirty reports whether the members differ from the server snapshot
func (r *Relationship) IsDirty() bool {
	if r.meta.Kind == entities.KindImplicit {
		return false
	}
	return !r.members.Equal(r.serverMembers)
}

// SetServerMembers records refs as the server-confirmed value
func (r *Relationship) SetServerMembers(refs []entities.RecordRef) {
	r.serverMembers = NewMembers(refs...)
}

// AddRecord adds ref and mirrors the change onto ref's inverse
func (r *Relationship) AddRecord(ref entities.RecordRef) error {
	return r.behavior.addRecord(ref, NoIndex)
}

// AddRecordAt adds ref at position idx, or moves it there when already a member
func (r *Relationship) AddRecordAt(ref entities.RecordRef, idx int) error {
	return r.behavior.addRecord(ref, idx)
}

// AddRecords adds every ref in order
func (r *Relationship) AddRecords(refs []entities.RecordRef) error {
	return r.AddRecordsAt(refs, NoIndex)
}

// AddRecordsAt adds refs starting at idx, advancing the position after each one
func (r *Relationship) AddRecordsAt(refs []entities.RecordRef, idx int) error {
	for _, ref := range refs {
		if err := r.behavior.addRecord(ref, idx); err != nil {
			return err
		}
		if idx != NoIndex {
			idx++
		}
	}
	return nil
}

// RemoveRecord removes ref and mirrors the removal onto ref's inverse
func (r *Relationship) RemoveRecord(ref entities.RecordRef) {
	if !r.members.Has(ref) {
		return
	}
	r.behavior.removeRecordFromOwn(ref)
	r.removeRecordFromInverse(ref)
}

// RemoveRecords removes every ref
func (r *Relationship) RemoveRecords(refs []entities.RecordRef) {
	for _, ref := range refs {
		r.RemoveRecord(ref)
	}
}

// Clear removes every member with full inverse mirroring
func (r *Relationship) Clear() {
	r.members.ForEach(func(ref entities.RecordRef, _ int) {
		r.RemoveRecord(ref)
	})
}

// Disconnect detaches the inverse side of every member while keeping own
// members. In-flight fetches stop merging and the memoized link fetch is dropped.
func (r *Relationship) Disconnect() {
	r.invalidate()
	r.members.ForEach(func(ref entities.RecordRef, _ int) {
		r.removeRecordFromInverse(ref)
	})
}

// Reconnect re-establishes the inverse side of every member
func (r *Relationship) Reconnect() error {
	var firstErr error
	r.members.ForEach(func(ref entities.RecordRef, _ int) {
		if err := r.addRecordToInverse(ref); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Sync replaces the members with value, which is a single record for
// one-to-one relationships and a list for one-to-many relationships.
func (r *Relationship) Sync(value interface{}) error {
	return r.behavior.sync(value)
}

// UpdateLink sets the related-resource locator. Accepted values are a
// string, a *string or nil. A changed link discards any memoized fetch.
func (r *Relationship) UpdateLink(link interface{}) error {
	var next string
	switch v := link.(type) {
	case nil:
	case string:
		next = v
	case *string:
		if v != nil {
			next = *v
		}
	default:
		return fmt.Errorf("%w: link of %s.%s must be a string or nil, got %T",
			ErrProtocol, r.owner.Ref(), r.meta.Name, link)
	}
	if next == r.link {
		return nil
	}
	r.link = next
	r.invalidate()
	r.owner.NotifyPropertyChange(r.meta.Name)
	return nil
}

// FindLink fetches the link once and memoizes the pending or settled completion.
// A failed fetch clears the memo so that the next call retries.
func (r *Relationship) FindLink(ctx context.Context) *Future[any] {
	if r.linkFetch != nil {
		return r.linkFetch
	}
	if r.link == "" {
		return Rejected[any](r.store.Loop(), fmt.Errorf("%w: %s.%s has no link", ErrState, r.owner.Ref(), r.meta.Name))
	}
	f := r.behavior.fetchLink(ctx, r.generation)
	r.linkFetch = f
	f.onSettle(func() {
		if f.err != nil && r.linkFetch == f {
			r.linkFetch = nil
		}
	})
	return f
}

// FetchLink fetches the link without memoization and merges the result
func (r *Relationship) FetchLink(ctx context.Context) *Future[any] {
	if r.link == "" {
		return Rejected[any](r.store.Loop(), fmt.Errorf("%w: %s.%s has no link", ErrState, r.owner.Ref(), r.meta.Name))
	}
	return r.behavior.fetchLink(ctx, r.generation)
}

// Rollback restores the members to the owner's server snapshot and
// reconnects every member's inverse. In-flight fetches stop merging and the
// memoized link fetch is dropped.
func (r *Relationship) Rollback() error {
	r.invalidate()
	if snapshot, ok := r.owner.ServerSnapshot(r.meta.Name); ok {
		r.serverMembers = NewMembers(snapshot...)
		if err := r.behavior.sync(snapshot); err != nil {
			return err
		}
	}
	if err := r.Reconnect(); err != nil {
		return err
	}
	r.owner.UpdateRecordArrays()
	return nil
}

// Destroy tears down owned resources such as the list projection
func (r *Relationship) Destroy() {
	r.invalidate()
	r.behavior.destroy()
}

// invalidate marks every in-flight fetch stale and drops the memoized link
// fetch, so the next FindLink starts over instead of replaying a fetch
// whose result was never merged.
func (r *Relationship) invalidate() {
	r.generation++
	r.linkFetch = nil
}

// isStale reports whether a fetch started at generation must not be merged
func (r *Relationship) isStale(generation uint64) bool {
	return generation != r.generation
}

func (r *Relationship) addRecord(ref entities.RecordRef, idx int) error {
	if r.members.Has(ref) {
		if idx == NoIndex {
			return nil
		}
		return r.members.Move(ref, idx)
	}
	if idx == NoIndex {
		r.members.Add(ref)
	} else if err := r.members.AddAt(ref, idx); err != nil {
		return err
	}
	r.behavior.notifyChanged(ref, idx, ChangeAdded)
	if err := r.addRecordToInverse(ref); err != nil {
		return err
	}
	r.owner.UpdateRecordArrays()
	return nil
}

func (r *Relationship) removeRecordFromOwn(ref entities.RecordRef) {
	if _, ok := r.members.Delete(ref); !ok {
		return
	}
	r.behavior.notifyChanged(ref, NoIndex, ChangeRemoved)
	r.owner.UpdateRecordArrays()
}

func (r *Relationship) addRecordToInverse(ref entities.RecordRef) error {
	table, ok := r.store.Relationships(ref)
	if !ok {
		return nil
	}
	inverse := table.inverseOf(r, ref)
	return inverse.behavior.addRecord(r.owner.Ref(), NoIndex)
}

func (r *Relationship) removeRecordFromInverse(ref entities.RecordRef) {
	table, ok := r.store.Relationships(ref)
	if !ok {
		return
	}
	if inverse := table.Get(r.inverseKey); inverse != nil {
		inverse.behavior.removeRecordFromOwn(r.owner.Ref())
	}
}

func (r *Relationship) change(ref entities.RecordRef, kind ChangeKind) Change {
	previous, _ := r.owner.ServerSnapshot(r.meta.Name)
	return Change{Relation: r.meta, Kind: kind, Previous: previous, Value: ref}
}

func (r *Relationship) wrongKind(op string) error {
	return fmt.Errorf("%w: %s is not supported by %s relationship %s.%s",
		ErrState, op, r.meta.Kind, r.owner.Ref().Type, r.meta.Name)
}

// implicit relationships only track membership for inverse teardown
type implicit struct {
	r *Relationship
}

func (i *implicit) addRecord(ref entities.RecordRef, idx int) error {
	return i.r.addRecord(ref, idx)
}

func (i *implicit) removeRecordFromOwn(ref entities.RecordRef) {
	i.r.removeRecordFromOwn(ref)
}

func (i *implicit) sync(interface{}) error { return nil }

func (i *implicit) notifyChanged(entities.RecordRef, int, ChangeKind) {}

func (i *implicit) fetchLink(context.Context, uint64) *Future[any] {
	return Rejected[any](i.r.store.Loop(), i.r.wrongKind("fetchLink"))
}

func (i *implicit) destroy() {}
