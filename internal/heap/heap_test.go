package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	name string
}

func TestMap_IdentityInvariant(t *testing.T) {
	h := New()
	e := &record{name: "alice"}
	n := NewNode("user", StatusManaged, map[string]any{"id": 1, "email": "a@example.com"})

	require.NoError(t, h.Attach(e, n, [][]string{{"id"}, {"email"}}))

	got, ok := h.Get(e)
	require.True(t, ok)
	assert.Same(t, n, got)
	assert.True(t, h.Has(e))

	found, ok := h.Find("user", map[string]any{"id": 1})
	require.True(t, ok)
	assert.Same(t, e, found)

	found, ok = h.Find("user", map[string]any{"email": "a@example.com"})
	require.True(t, ok)
	assert.Same(t, e, found)

	h.Detach(e)

	_, ok = h.Get(e)
	assert.False(t, ok)
	_, ok = h.Find("user", map[string]any{"id": 1})
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestMap_IdentityIsByReference(t *testing.T) {
	h := New()
	a := &record{name: "same"}
	b := &record{name: "same"}

	require.NoError(t, h.Attach(a, NewNode("user", StatusNew, nil), nil))

	assert.True(t, h.Has(a))
	assert.False(t, h.Has(b), "structurally equal entity must not be found")
}

func TestMap_FindNormalizesKeys(t *testing.T) {
	h := New()
	e := &record{}
	require.NoError(t, h.Attach(e, NewNode("user", StatusManaged, map[string]any{"id": int64(7)}), [][]string{{"id"}}))

	for _, key := range []any{7, int64(7), "7", uint8(7), 7.0} {
		found, ok := h.Find("user", map[string]any{"id": key})
		require.True(t, ok, "key %#v", key)
		assert.Same(t, e, found)
	}
}

func TestMap_FindCompositeIndexIgnoresFieldOrder(t *testing.T) {
	h := New()
	e := &record{}
	n := NewNode("membership", StatusManaged, map[string]any{"user_id": 1, "group_id": 2})
	require.NoError(t, h.Attach(e, n, [][]string{{"user_id", "group_id"}}))

	found, ok := h.Find("membership", map[string]any{"group_id": 2, "user_id": 1})
	require.True(t, ok)
	assert.Same(t, e, found)

	_, ok = h.Find("membership", map[string]any{"user_id": 1})
	assert.False(t, ok, "partial scope matches no index")
}

func TestMap_FindUnknown(t *testing.T) {
	h := New()

	_, ok := h.Find("user", map[string]any{"id": 1})
	assert.False(t, ok)
	_, ok = h.Find("user", nil)
	assert.False(t, ok)
	_, ok = h.Find("user", map[string]any{"id": nil})
	assert.False(t, ok)
}

func TestMap_NullValuesAreNotIndexed(t *testing.T) {
	h := New()
	e := &record{}
	require.NoError(t, h.Attach(e, NewNode("user", StatusNew, map[string]any{"id": nil}), [][]string{{"id"}}))

	assert.True(t, h.Has(e))
	_, ok := h.Find("user", map[string]any{"id": nil})
	assert.False(t, ok)
}

func TestMap_ReattachRefreshesIndex(t *testing.T) {
	h := New()
	e := &record{}
	n := NewNode("user", StatusNew, map[string]any{"id": nil})
	require.NoError(t, h.Attach(e, n, [][]string{{"id"}}))

	n.SetData(map[string]any{"id": 42})
	require.NoError(t, h.Attach(e, n, [][]string{{"id"}}))

	found, ok := h.Find("user", map[string]any{"id": 42})
	require.True(t, ok)
	assert.Same(t, e, found)
	assert.Equal(t, 1, h.Len())

	n.SetData(map[string]any{"id": 43})
	require.NoError(t, h.Attach(e, n, [][]string{{"id"}}))

	_, ok = h.Find("user", map[string]any{"id": 42})
	assert.False(t, ok, "stale key removed")
}

func TestMap_LatestAttachOwnsKey(t *testing.T) {
	h := New()
	first := &record{name: "first"}
	second := &record{name: "second"}
	require.NoError(t, h.Attach(first, NewNode("user", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))
	require.NoError(t, h.Attach(second, NewNode("user", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))

	h.Detach(first)

	found, ok := h.Find("user", map[string]any{"id": 1})
	require.True(t, ok, "detaching the previous owner keeps the newer entry")
	assert.Same(t, second, found)
}

func TestMap_RolesAreSeparate(t *testing.T) {
	h := New()
	u := &record{}
	c := &record{}
	require.NoError(t, h.Attach(u, NewNode("user", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))
	require.NoError(t, h.Attach(c, NewNode("comment", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))

	found, _ := h.Find("user", map[string]any{"id": 1})
	assert.Same(t, u, found)
	found, _ = h.Find("comment", map[string]any{"id": 1})
	assert.Same(t, c, found)
}

func TestMap_InvalidIndex(t *testing.T) {
	tests := []struct {
		name    string
		indexes [][]string
	}{
		{"empty set", [][]string{{}}},
		{"empty field", [][]string{{"id", ""}}},
		{"duplicate field", [][]string{{"id", "id"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			err := h.Attach(&record{}, NewNode("user", StatusNew, nil), tt.indexes)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIndex))
			assert.Equal(t, 0, h.Len(), "nothing attached on failure")
		})
	}
}

func TestMap_RejectsUnusableEntities(t *testing.T) {
	h := New()

	err := h.Attach(map[string]any{}, NewNode("user", StatusNew, nil), nil)
	assert.ErrorIs(t, err, ErrNotComparable)

	err = h.Attach(nil, NewNode("user", StatusNew, nil), nil)
	assert.ErrorIs(t, err, ErrNotComparable)

	err = h.Attach(&record{}, nil, nil)
	assert.ErrorIs(t, err, ErrNilNode)

	_, ok := h.Get([]int{1})
	assert.False(t, ok)
}

// keyed is a value entity whose comparability depends on what Value holds.
type keyed struct {
	ID    int
	Value any
}

func TestMap_ValueEntityHoldingSlice(t *testing.T) {
	h := New()
	e := keyed{ID: 1, Value: []string{"a"}}

	assert.NotPanics(t, func() {
		err := h.Attach(e, NewNode("user", StatusNew, nil), nil)
		assert.ErrorIs(t, err, ErrNotComparable)

		_, ok := h.Get(e)
		assert.False(t, ok)
		h.Detach(e)
	})
	assert.Equal(t, 0, h.Len())

	require.NoError(t, h.Attach(keyed{ID: 2, Value: "a"}, NewNode("user", StatusNew, nil), nil))
	_, ok := h.Get(keyed{ID: 2, Value: "a"})
	assert.True(t, ok)
}

func TestMap_Clean(t *testing.T) {
	h := New()
	e := &record{}
	require.NoError(t, h.Attach(e, NewNode("user", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))

	h.Clean()

	assert.Equal(t, 0, h.Len())
	_, ok := h.Find("user", map[string]any{"id": 1})
	assert.False(t, ok)
}

func TestNullHeap_TracksNothing(t *testing.T) {
	var h Heap = NullHeap{}
	e := &record{}

	require.NoError(t, h.Attach(e, NewNode("user", StatusManaged, map[string]any{"id": 1}), [][]string{{"id"}}))

	assert.False(t, h.Has(e))
	_, ok := h.Get(e)
	assert.False(t, ok)
	_, ok = h.Find("user", map[string]any{"id": 1})
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}
