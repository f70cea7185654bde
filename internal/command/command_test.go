package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/heap"
)

func newState(status heap.Status, data map[string]any) *heap.State {
	return heap.NewNode("test", status, data).State()
}

func TestInsert_RegistersGeneratedKey(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{}
	user := newState(heap.StatusNew, map[string]any{"id": nil, "balance": 100})
	ins := NewInsert("default", "users", user, "id")

	require.True(t, ins.IsReady())
	require.NoError(t, ins.Execute(ctx, drv))

	assert.True(t, ins.IsExecuted())
	require.Len(t, drv.statements, 1)
	assert.Equal(t, map[string]any{"balance": 100}, drv.statements[0].values, "null key column omitted")
	id, _ := user.Get("id")
	assert.Equal(t, 1, id)
}

func TestInsert_ForwardsKeyToDependent(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{}
	user := newState(heap.StatusNew, map[string]any{"id": nil})
	comment := newState(heap.StatusNew, map[string]any{"id": nil, "user_id": nil})

	userInsert := NewInsert("default", "users", user, "id")
	commentInsert := NewInsert("default", "comments", comment, "id")
	commentInsert.WaitContext("user_id", true, heap.StreamData)
	user.Forward("id", commentInsert, "user_id", false, heap.StreamData)

	assert.False(t, commentInsert.IsReady())

	root := NewSequence(commentInsert, userInsert)
	require.NoError(t, drain(ctx, root, drv))

	require.Len(t, drv.statements, 2)
	assert.Equal(t, "users", drv.statements[0].table)
	assert.Equal(t, "comments", drv.statements[1].table)
	assert.Equal(t, 1, drv.statements[1].values["user_id"])
}

func TestInsert_NotReadyIsBuildError(t *testing.T) {
	s := newState(heap.StatusNew, nil)
	ins := NewInsert("default", "users", s, "id")
	ins.WaitContext("tenant_id", true, heap.StreamData)

	err := ins.Execute(context.Background(), &fakeDriver{})

	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInsert_RollbackRearmsFreshWaits(t *testing.T) {
	ctx := context.Background()
	s := newState(heap.StatusNew, nil)
	ins := NewInsert("default", "comments", s, "id")
	ins.WaitContext("user_id", true, heap.StreamData)

	ins.Register("user_id", 5, true, heap.StreamData)
	require.NoError(t, ins.Execute(ctx, &fakeDriver{}))

	ins.Rollback()

	assert.False(t, ins.IsExecuted())
	assert.False(t, ins.IsReady())
}

func TestInsert_DriverErrorKeepsCommandPending(t *testing.T) {
	s := newState(heap.StatusNew, nil)
	ins := NewInsert("default", "users", s, "id")

	err := ins.Execute(context.Background(), &fakeDriver{fail: errConstraint})

	assert.ErrorIs(t, err, errConstraint)
	assert.False(t, IsBuildError(err))
	assert.False(t, ins.IsExecuted())
}

func TestUpdate_WritesChangedColumnsOnly(t *testing.T) {
	snapshot := map[string]any{"id": 1, "name": "a", "active": 1}
	s := newState(heap.StatusManaged, snapshot)
	s.Set("name", "b")
	s.Set("active", true)

	upd := NewUpdate("default", "users", s, snapshot)
	upd.AddScope("id", 1)
	drv := &fakeDriver{}

	require.NoError(t, upd.Execute(context.Background(), drv))

	require.Len(t, drv.statements, 1)
	assert.Equal(t, map[string]any{"name": "b"}, drv.statements[0].values)
	assert.Equal(t, map[string]any{"id": 1}, drv.statements[0].scope)
}

func TestUpdate_NothingToWriteIsNoop(t *testing.T) {
	snapshot := map[string]any{"id": 1}
	upd := NewUpdate("default", "users", newState(heap.StatusManaged, snapshot), snapshot)
	drv := &fakeDriver{}

	require.NoError(t, upd.Execute(context.Background(), drv))

	assert.True(t, upd.IsExecuted())
	assert.Empty(t, drv.statements)
}

func TestUpdate_EmptyScope(t *testing.T) {
	s := newState(heap.StatusManaged, nil)
	upd := NewDeferredUpdate("default", "users", s)
	upd.Register("name", "x", false, heap.StreamData)

	err := upd.Execute(context.Background(), &fakeDriver{})

	assert.True(t, IsBuildError(err))
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestUpdate_ScopeArrivesOnScopeStream(t *testing.T) {
	s := newState(heap.StatusNew, nil)
	upd := NewDeferredUpdate("default", "users", s)
	upd.WaitContext("id", true, heap.StreamScope)
	upd.Register("parent_id", 3, false, heap.StreamData)
	assert.False(t, upd.IsReady())

	upd.Register("id", 9, true, heap.StreamScope)
	require.True(t, upd.IsReady())

	drv := &fakeDriver{}
	require.NoError(t, upd.Execute(context.Background(), drv))
	assert.Equal(t, map[string]any{"parent_id": 3}, drv.statements[0].values)
	assert.Equal(t, map[string]any{"id": 9}, drv.statements[0].scope)

	upd.Rollback()
	assert.Empty(t, upd.Scope(), "fresh scope removed")
	assert.False(t, upd.IsReady())
}

func TestDelete_EmptyScopeIsBuildError(t *testing.T) {
	del := NewDelete("default", "users", map[string]any{"id": nil})

	err := del.Execute(context.Background(), &fakeDriver{})

	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	assert.ErrorIs(t, err, ErrEmptyScope)
	assert.False(t, del.IsExecuted())
}

func TestDelete_WaitsForSignal(t *testing.T) {
	del := NewDelete("default", "users", map[string]any{"id": 1})
	del.WaitContext("comment:1", true, heap.StreamSignal)
	assert.False(t, del.IsReady())

	del.Register("comment:1", true, true, heap.StreamSignal)
	assert.True(t, del.IsReady())

	drv := &fakeDriver{}
	require.NoError(t, del.Execute(context.Background(), drv))
	assert.Equal(t, []statement{{op: "delete", table: "users", scope: map[string]any{"id": 1}}}, drv.statements)
}

func TestSequence_RoutesToPrimary(t *testing.T) {
	s := newState(heap.StatusNew, nil)
	ins := NewInsert("default", "users", s, "id")
	seq := NewSequence()
	seq.AddPrimary(ins)
	seq.AddCommand(NewDelete("default", "logs", map[string]any{"id": 1}))

	seq.WaitContext("tenant_id", true, heap.StreamData)
	assert.False(t, ins.IsReady())

	seq.Register("tenant_id", 4, false, heap.StreamData)
	assert.True(t, ins.IsReady())
	assert.NoError(t, Validate(seq))
}

func TestSequence_WithoutPrimary(t *testing.T) {
	seq := NewSequence(NewDelete("default", "logs", map[string]any{"id": 1}))

	_, err := seq.Primary()
	assert.ErrorIs(t, err, ErrNoPrimary)

	seq.WaitContext("x", true, heap.StreamData)

	err = Validate(NewSequence(seq))
	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	assert.ErrorIs(t, err, ErrNoPrimary)
}

func TestIterator_FlattensNestedSequences(t *testing.T) {
	a := NewDelete("default", "a", map[string]any{"id": 1})
	b := NewDelete("default", "b", map[string]any{"id": 1})
	c := NewDelete("default", "c", map[string]any{"id": 1})
	d := NewDelete("default", "d", map[string]any{"id": 1})
	root := NewSequence(a, NewSequence(b, NewSequence(c)), nil, d)

	var tables []string
	for _, cmd := range Remaining(root) {
		tables = append(tables, cmd.(*Delete).Table())
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, tables)
}

func TestIterator_SkipsExecuted(t *testing.T) {
	a := NewDelete("default", "a", map[string]any{"id": 1})
	b := NewDelete("default", "b", map[string]any{"id": 1})
	require.NoError(t, a.Execute(context.Background(), &fakeDriver{}))

	got := Remaining(NewSequence(a, b))

	require.Len(t, got, 1)
	assert.Same(t, b, got[0])
}

func TestCondition_EvaluatedLazily(t *testing.T) {
	enabled := false
	calls := 0
	del := NewDelete("default", "a", map[string]any{"id": 1})
	cond := NewCondition(del, func() bool {
		calls++
		return enabled
	})
	root := NewSequence(cond)

	assert.Equal(t, 0, calls, "not evaluated at construction")
	assert.Empty(t, Remaining(root))
	assert.True(t, cond.IsExecuted())

	enabled = true
	got := Remaining(root)
	require.Len(t, got, 1)
	assert.Same(t, del, got[0])
	assert.False(t, cond.IsExecuted())
}

func TestSplit_RoutesBeforeAndAfterHead(t *testing.T) {
	ctx := context.Background()
	s := newState(heap.StatusNew, map[string]any{"id": nil, "friend_id": nil})
	head := NewInsert("default", "users", s, "id")
	tail := NewDeferredUpdate("default", "users", s)
	tail.WaitContext("id", true, heap.StreamScope)
	s.Forward("id", tail, "id", false, heap.StreamScope)

	split := NewSplit(head, tail)
	split.WaitContext("friend_id", true, heap.StreamData)

	assert.True(t, split.IsReady(), "head never blocks")
	assert.True(t, split.HasOptionalContext())

	drv := &fakeDriver{}
	require.NoError(t, split.Execute(ctx, drv))
	assert.True(t, head.IsExecuted())
	assert.False(t, split.IsReady(), "tail waits for friend_id")

	split.Register("friend_id", 42, true, heap.StreamData)
	require.True(t, split.IsReady())
	require.NoError(t, split.Execute(ctx, drv))

	assert.True(t, split.IsExecuted())
	require.Len(t, drv.statements, 2)
	assert.Equal(t, "update", drv.statements[1].op)
	assert.Equal(t, map[string]any{"friend_id": 42}, drv.statements[1].values)
	assert.Equal(t, map[string]any{"id": 1}, drv.statements[1].scope)
}

func TestSplit_ValueBeforeHeadSkipsTail(t *testing.T) {
	ctx := context.Background()
	s := newState(heap.StatusNew, map[string]any{"id": nil})
	head := NewInsert("default", "users", s, "id")
	tail := NewDeferredUpdate("default", "users", s)
	split := NewSplit(head, tail)
	split.WaitContext("friend_id", true, heap.StreamData)

	split.Register("friend_id", 7, false, heap.StreamData)
	assert.False(t, split.HasOptionalContext())

	drv := &fakeDriver{}
	require.NoError(t, drain(ctx, split, drv))

	require.Len(t, drv.statements, 1, "no follow-up update")
	assert.Equal(t, 7, drv.statements[0].values["friend_id"])
	assert.True(t, split.IsExecuted())
}

func TestSplit_MutualCycleDefersOneColumn(t *testing.T) {
	ctx := context.Background()
	build := func(name, ref string) (*heap.State, *Split) {
		s := newState(heap.StatusNew, map[string]any{"id": nil, ref: nil})
		tail := NewDeferredUpdate("default", name, s)
		tail.WaitContext("id", true, heap.StreamScope)
		s.Forward("id", tail, "id", false, heap.StreamScope)
		sp := NewSplit(NewInsert("default", name, s, "id"), tail)
		sp.WaitContext(ref, true, heap.StreamData)
		return s, sp
	}
	aState, a := build("a", "b_id")
	bState, b := build("b", "a_id")
	aState.Forward("id", b, "a_id", false, heap.StreamData)
	bState.Forward("id", a, "b_id", false, heap.StreamData)

	drv := &fakeDriver{}
	require.NoError(t, drain(ctx, NewSequence(a, b), drv))

	var updates int
	for _, st := range drv.statements {
		if st.op == "update" {
			updates++
		}
	}
	assert.Len(t, drv.statements, 3)
	assert.Equal(t, 1, updates)
	assert.True(t, a.IsExecuted())
	assert.True(t, b.IsExecuted())

	aRef, _ := aState.Get("b_id")
	bRef, _ := bState.Get("a_id")
	aID, _ := aState.Get("id")
	bID, _ := bState.Get("id")
	assert.Equal(t, bID, aRef)
	assert.Equal(t, aID, bRef)
}

func TestSplit_RollbackRestoresBothParts(t *testing.T) {
	ctx := context.Background()
	s := newState(heap.StatusNew, map[string]any{"id": nil})
	head := NewInsert("default", "users", s, "id")
	tail := NewDeferredUpdate("default", "users", s)
	tail.AddScope("id", 1)
	split := NewSplit(head, tail)
	split.WaitContext("friend_id", true, heap.StreamData)

	require.NoError(t, split.Execute(ctx, &fakeDriver{}))
	split.Register("friend_id", 3, true, heap.StreamData)
	require.NoError(t, split.Execute(ctx, &fakeDriver{}))

	split.Rollback()

	assert.False(t, head.IsExecuted())
	assert.False(t, tail.IsExecuted())
	assert.Empty(t, tail.Columns())
}

func TestMerge_SingleInsertWithUnion(t *testing.T) {
	ctx := context.Background()
	owner := newState(heap.StatusNew, map[string]any{"id": nil, "name": "ann"})
	address := newState(heap.StatusNew, map[string]any{"city": "Oslo"})
	profile := newState(heap.StatusNew, map[string]any{"bio": "hi"})

	ownerInsert := NewInsert("default", "users", owner, "id")
	addrInsert := NewInsert("default", "users", address, "").WithPrefix("address_")
	profileInsert := NewInsert("default", "users", profile, "").WithPrefix("profile_")
	m := NewMerge(ownerInsert, addrInsert, profileInsert)

	drv := &fakeDriver{}
	require.NoError(t, drain(ctx, NewSequence(m), drv))

	require.Len(t, drv.statements, 1)
	assert.Equal(t, map[string]any{
		"name":         "ann",
		"address_city": "Oslo",
		"profile_bio":  "hi",
	}, drv.statements[0].values)
	assert.True(t, addrInsert.IsExecuted())
	assert.True(t, profileInsert.IsExecuted())
}

func TestMerge_PrefixedUpdateIntoOwnerUpdate(t *testing.T) {
	ctx := context.Background()
	ownerSnap := map[string]any{"id": 7, "name": "ann"}
	addrSnap := map[string]any{"city": "Oslo", "zip": "0150"}
	owner := newState(heap.StatusManaged, ownerSnap)
	address := newState(heap.StatusManaged, addrSnap)
	address.Set("city", "Bergen")

	upd := NewUpdate("default", "users", owner, ownerSnap)
	upd.AddScope("id", 7)
	part := NewUpdate("default", "users", address, addrSnap).WithPrefix("address_")

	drv := &fakeDriver{}
	require.NoError(t, drain(ctx, NewSequence(NewMerge(upd, part)), drv))

	require.Len(t, drv.statements, 1)
	assert.Equal(t, map[string]any{"address_city": "Bergen"}, drv.statements[0].values)
	assert.Equal(t, map[string]any{"id": 7}, drv.statements[0].scope)
	assert.True(t, part.IsExecuted())
}

func TestMerge_WaitsForEveryPart(t *testing.T) {
	owner := NewInsert("default", "users", newState(heap.StatusNew, nil), "id")
	part := NewInsert("default", "users", newState(heap.StatusNew, nil), "")
	part.WaitContext("city", true, heap.StreamData)

	m := NewMerge(owner, part)

	assert.False(t, m.IsReady())
	part.Register("city", "Rome", false, heap.StreamData)
	assert.True(t, m.IsReady())
}

func TestWrapped_HooksAroundExecution(t *testing.T) {
	ctx := context.Background()
	var events []string
	del := NewDelete("default", "users", map[string]any{"id": 1})
	w := Wrap(del).
		OnBefore(func() { events = append(events, "before") }).
		OnAfter(func() { events = append(events, "after") }).
		OnComplete(func() { events = append(events, "complete") }).
		OnRollback(func() { events = append(events, "rollback") })

	require.NoError(t, w.Execute(ctx, &fakeDriver{}))
	w.Rollback()
	require.NoError(t, w.Execute(ctx, &fakeDriver{}))
	w.Complete()

	assert.Equal(t, []string{"before", "after", "rollback", "before", "after", "complete"}, events)
}

func TestWrapped_AfterHookSkippedOnFailure(t *testing.T) {
	var after bool
	w := Wrap(NewDelete("default", "users", map[string]any{"id": 1})).OnAfter(func() { after = true })

	err := w.Execute(context.Background(), &fakeDriver{fail: errConstraint})

	assert.ErrorIs(t, err, errConstraint)
	assert.False(t, after)
}
