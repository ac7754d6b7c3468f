package relationships

import (
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
)

// Members is an insertion-ordered set of record references.
// Positions are zero-based and membership is by identity; index maps every
// member to its current position.
type Members struct {
	list  []entities.RecordRef
	index map[entities.RecordRef]int
}

// NewMembers builds a set from refs, dropping duplicates after their first occurrence
func NewMembers(refs ...entities.RecordRef) *Members {
	m := &Members{index: make(map[entities.RecordRef]int, len(refs))}
	for _, ref := range refs {
		m.Add(ref)
	}
	return m
}

// Size returns the number of members
func (m *Members) Size() int {
	return len(m.list)
}

// IsEmpty reports whether the set has no members
func (m *Members) IsEmpty() bool {
	return len(m.list) == 0
}

// Has reports whether ref is a member
func (m *Members) Has(ref entities.RecordRef) bool {
	_, ok := m.index[ref]
	return ok
}

// IndexOf returns the position of ref, or -1
func (m *Members) IndexOf(ref entities.RecordRef) int {
	if i, ok := m.index[ref]; ok {
		return i
	}
	return -1
}

// Position returns the position of ref and whether it is a member
func (m *Members) Position(ref entities.RecordRef) (int, bool) {
	i, ok := m.index[ref]
	return i, ok
}

// Get returns the member at position i
func (m *Members) Get(i int) (entities.RecordRef, bool) {
	if i < 0 || i >= len(m.list) {
		return entities.RecordRef{}, false
	}
	return m.list[i], true
}

// Add appends ref. It is a no-op when ref is already present.
func (m *Members) Add(ref entities.RecordRef) {
	if m.Has(ref) {
		return
	}
	m.index[ref] = len(m.list)
	m.list = append(m.list, ref)
}

// AddAt inserts ref at position idx. An existing member is moved to idx instead.
func (m *Members) AddAt(ref entities.RecordRef, idx int) error {
	if m.Has(ref) {
		return m.Move(ref, idx)
	}
	if idx < 0 || idx > len(m.list) {
		return fmt.Errorf("%w: index %d out of range for %d members", ErrState, idx, len(m.list))
	}
	m.insertAt(ref, idx)
	return nil
}

// Delete removes ref and returns it; ok is false when ref was not a member
func (m *Members) Delete(ref entities.RecordRef) (entities.RecordRef, bool) {
	i, ok := m.index[ref]
	if !ok {
		return entities.RecordRef{}, false
	}
	m.removeAt(i)
	return ref, true
}

// DeleteAt removes the member at position i
func (m *Members) DeleteAt(i int) (entities.RecordRef, bool) {
	ref, ok := m.Get(i)
	if !ok {
		return entities.RecordRef{}, false
	}
	m.removeAt(i)
	return ref, true
}

func (m *Members) insertAt(ref entities.RecordRef, idx int) {
	m.list = append(m.list, entities.RecordRef{})
	copy(m.list[idx+1:], m.list[idx:])
	m.list[idx] = ref
	m.reindex(idx, len(m.list))
}

func (m *Members) removeAt(i int) {
	ref := m.list[i]
	m.list = append(m.list[:i], m.list[i+1:]...)
	delete(m.index, ref)
	m.reindex(i, len(m.list))
}

// reindex refreshes the positions of the members in [from, to)
func (m *Members) reindex(from, to int) {
	for i := from; i < to; i++ {
		m.index[m.list[i]] = i
	}
}

// Move relocates an existing member so that it ends up at position to
func (m *Members) Move(ref entities.RecordRef, to int) error {
	from, ok := m.index[ref]
	if !ok {
		return fmt.Errorf("%w: cannot move %s, it is not a member", ErrState, ref)
	}
	if to < 0 || to > len(m.list) {
		return fmt.Errorf("%w: index %d out of range for %d members", ErrState, to, len(m.list))
	}
	if to == len(m.list) {
		to--
	}
	if from == to {
		return nil
	}
	// shift the span between from and to by one, touching only that span
	if from < to {
		copy(m.list[from:to], m.list[from+1:to+1])
		m.list[to] = ref
		m.reindex(from, to+1)
	} else {
		copy(m.list[to+1:from+1], m.list[to:from])
		m.list[to] = ref
		m.reindex(to, from+1)
	}
	return nil
}

// Clear removes every member
func (m *Members) Clear() {
	m.list = nil
	m.index = make(map[entities.RecordRef]int)
}

// ToArray returns a copy of the members in order
func (m *Members) ToArray() []entities.RecordRef {
	out := make([]entities.RecordRef, len(m.list))
	copy(out, m.list)
	return out
}

// Slice returns a copy of the members in [from, to), clamped to the set bounds
func (m *Members) Slice(from, to int) []entities.RecordRef {
	if from < 0 {
		from = 0
	}
	if to > len(m.list) {
		to = len(m.list)
	}
	if from >= to {
		return []entities.RecordRef{}
	}
	out := make([]entities.RecordRef, to-from)
	copy(out, m.list[from:to])
	return out
}

// Copy returns an independent set with the same members
func (m *Members) Copy() *Members {
	return NewMembers(m.list...)
}

// ForEach calls fn for every member over a snapshot of the set
func (m *Members) ForEach(fn func(ref entities.RecordRef, i int)) {
	for i, ref := range m.ToArray() {
		fn(ref, i)
	}
}

// Filter returns the members for which keep is true
func (m *Members) Filter(keep func(ref entities.RecordRef) bool) []entities.RecordRef {
	var out []entities.RecordRef
	for _, ref := range m.list {
		if keep(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// Equal reports whether both sets hold the same members in the same order
func (m *Members) Equal(other *Members) bool {
	if other == nil {
		return m.IsEmpty()
	}
	if len(m.list) != len(other.list) {
		return false
	}
	for i := range m.list {
		if m.list[i] != other.list[i] {
			return false
		}
	}
	return true
}
