package relationships

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/kizuna/internal/entities"
)

var (
	a = ref("comment", "a")
	b = ref("comment", "b")
	c = ref("comment", "c")
	d = ref("comment", "d")
)

func TestMembers_Add(t *testing.T) {
	m := NewMembers()
	m.Add(a)
	m.Add(b)
	m.Add(a)

	assert.Equal(t, 2, m.Size())
	assert.Equal(t, []entities.RecordRef{a, b}, m.ToArray())
	assert.Equal(t, 1, m.IndexOf(b))
	assert.Equal(t, -1, m.IndexOf(c))
	assert.True(t, m.Has(a))
	assert.False(t, m.Has(c))
}

func TestMembers_NewMembersDropsDuplicates(t *testing.T) {
	m := NewMembers(a, b, a, c, b)
	assert.Equal(t, []entities.RecordRef{a, b, c}, m.ToArray())
}

func TestMembers_AddAt(t *testing.T) {
	tests := []struct {
		name    string
		ref     entities.RecordRef
		idx     int
		want    []entities.RecordRef
		wantErr error
	}{
		{name: "insert at front", ref: d, idx: 0, want: []entities.RecordRef{d, a, b, c}},
		{name: "insert in middle", ref: d, idx: 2, want: []entities.RecordRef{a, b, d, c}},
		{name: "insert at end", ref: d, idx: 3, want: []entities.RecordRef{a, b, c, d}},
		{name: "existing member moves", ref: c, idx: 0, want: []entities.RecordRef{c, a, b}},
		{name: "past the end", ref: d, idx: 4, want: []entities.RecordRef{a, b, c}, wantErr: ErrState},
		{name: "negative", ref: d, idx: -2, want: []entities.RecordRef{a, b, c}, wantErr: ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMembers(a, b, c)
			err := m.AddAt(tt.ref, tt.idx)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, m.ToArray())
			assert.Equal(t, len(tt.want), m.Size())
		})
	}
}

func TestMembers_Move(t *testing.T) {
	tests := []struct {
		name    string
		ref     entities.RecordRef
		to      int
		want    []entities.RecordRef
		wantErr error
	}{
		{name: "same position is a no-op", ref: b, to: 1, want: []entities.RecordRef{a, b, c}},
		{name: "last to first", ref: c, to: 0, want: []entities.RecordRef{c, a, b}},
		{name: "first to last", ref: a, to: 2, want: []entities.RecordRef{b, c, a}},
		{name: "to size appends", ref: a, to: 3, want: []entities.RecordRef{b, c, a}},
		{name: "absent member", ref: d, to: 0, want: []entities.RecordRef{a, b, c}, wantErr: ErrState},
		{name: "beyond size", ref: a, to: 4, want: []entities.RecordRef{a, b, c}, wantErr: ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMembers(a, b, c)
			err := m.Move(tt.ref, tt.to)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, m.ToArray())
		})
	}
}

func TestMembers_Delete(t *testing.T) {
	m := NewMembers(a, b, c)

	got, ok := m.Delete(b)
	assert.True(t, ok)
	assert.Equal(t, b, got)
	_, ok = m.Delete(b)
	assert.False(t, ok)
	assert.Equal(t, []entities.RecordRef{a, c}, m.ToArray())
	assert.False(t, m.Has(b))

	got, ok = m.DeleteAt(0)
	assert.True(t, ok)
	assert.Equal(t, a, got)
	_, ok = m.DeleteAt(5)
	assert.False(t, ok)
	assert.Equal(t, []entities.RecordRef{c}, m.ToArray())

	m.Clear()
	assert.True(t, m.IsEmpty())
	assert.False(t, m.Has(c))
}

func TestMembers_Slice(t *testing.T) {
	m := NewMembers(a, b, c)

	assert.Equal(t, []entities.RecordRef{b, c}, m.Slice(1, 3))
	assert.Equal(t, []entities.RecordRef{a, b, c}, m.Slice(-1, 10))
	assert.Empty(t, m.Slice(2, 1))
}

func TestMembers_CopyIsIndependent(t *testing.T) {
	m := NewMembers(a, b)
	cp := m.Copy()
	cp.Add(c)

	assert.Equal(t, 2, m.Size())
	assert.True(t, m.Equal(NewMembers(a, b)))
	assert.False(t, m.Equal(cp))
	assert.False(t, m.Equal(NewMembers(b, a)))
}

func TestMembers_ForEachAndFilter(t *testing.T) {
	m := NewMembers(a, b, c)

	var seen []entities.RecordRef
	m.ForEach(func(r entities.RecordRef, i int) {
		seen = append(seen, r)
		m.Delete(r)
	})
	assert.Equal(t, []entities.RecordRef{a, b, c}, seen)
	assert.True(t, m.IsEmpty())

	m = NewMembers(a, b, c)
	got := m.Filter(func(r entities.RecordRef) bool { return r != b })
	assert.Equal(t, []entities.RecordRef{a, c}, got)
}

func TestMembers_PositionFollowsShifts(t *testing.T) {
	m := NewMembers(a, b, c)

	require.NoError(t, m.AddAt(d, 0))
	for i, r := range []entities.RecordRef{d, a, b, c} {
		pos, ok := m.Position(r)
		assert.True(t, ok)
		assert.Equal(t, i, pos)
	}

	require.NoError(t, m.Move(d, 4))
	assert.Equal(t, 3, m.IndexOf(d))
	assert.Equal(t, 0, m.IndexOf(a))

	m.Delete(a)
	assert.Equal(t, 0, m.IndexOf(b))
	assert.Equal(t, 2, m.IndexOf(d))
	_, ok := m.Position(a)
	assert.False(t, ok)
	assert.Equal(t, -1, m.IndexOf(a))
}

func assertPositions(t *testing.T, m *Members, step int) {
	t.Helper()
	for i := 0; i < m.Size(); i++ {
		r, ok := m.Get(i)
		require.True(t, ok, "step %d: Get(%d)", step, i)
		require.Equal(t, i, m.IndexOf(r), "step %d: IndexOf(%s)", step, r)
		pos, ok := m.Position(r)
		require.True(t, ok, "step %d: Position(%s)", step, r)
		require.Equal(t, i, pos, "step %d: Position(%s)", step, r)
	}
	require.Len(t, m.index, m.Size(), "step %d: index size", step)
}

func TestMembers_RandomEditsKeepPositions(t *testing.T) {
	pool := make([]entities.RecordRef, 12)
	for i := range pool {
		pool[i] = ref("comment", fmt.Sprintf("r%d", i))
	}

	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			m := NewMembers()
			var model []entities.RecordRef

			for step := 0; step < 300; step++ {
				r := pool[rng.Intn(len(pool))]
				switch rng.Intn(6) {
				case 0:
					m.Add(r)
					if !containsRef(model, r) {
						model = append(model, r)
					}
				case 1:
					idx := rng.Intn(len(model) + 1)
					if containsRef(model, r) {
						break
					}
					require.NoError(t, m.AddAt(r, idx))
					model = append(model[:idx], append([]entities.RecordRef{r}, model[idx:]...)...)
				case 2:
					_, ok := m.Delete(r)
					require.Equal(t, containsRef(model, r), ok)
					model = withoutRef(model, r)
				case 3:
					if len(model) == 0 {
						break
					}
					idx := rng.Intn(len(model))
					got, ok := m.DeleteAt(idx)
					require.True(t, ok)
					require.Equal(t, model[idx], got)
					model = append(model[:idx:idx], model[idx+1:]...)
				default:
					if !containsRef(model, r) {
						require.Error(t, m.Move(r, 0))
						break
					}
					to := rng.Intn(len(model) + 1)
					require.NoError(t, m.Move(r, to))
					model = withoutRef(model, r)
					if to > len(model) {
						to = len(model)
					}
					model = append(model[:to], append([]entities.RecordRef{r}, model[to:]...)...)
				}
				require.Equal(t, nilIfEmpty(model), nilIfEmpty(m.ToArray()), "step %d", step)
				assertPositions(t, m, step)
			}
		})
	}
}

func containsRef(list []entities.RecordRef, r entities.RecordRef) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}
	return false
}

func withoutRef(list []entities.RecordRef, r entities.RecordRef) []entities.RecordRef {
	out := list[:0:0]
	for _, x := range list {
		if x != r {
			out = append(out, x)
		}
	}
	return out
}

func nilIfEmpty(list []entities.RecordRef) []entities.RecordRef {
	if len(list) == 0 {
		return nil
	}
	return list
}
