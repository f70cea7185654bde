package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/orm"
	"github.com/roach88/orbit/internal/schema"
	"github.com/roach88/orbit/internal/store"
)

func traceOf(statements ...string) []TraceEvent {
	trace := make([]TraceEvent, len(statements))
	for i, s := range statements {
		var op, table string
		for j := range s {
			if s[j] == ' ' {
				op, table = s[:j], s[j+1:]
				break
			}
		}
		trace[i] = TraceEvent{Seq: int64(i + 1), Op: op, Table: table}
	}
	return trace
}

func TestAssertStatementCount(t *testing.T) {
	trace := traceOf("insert users", "insert comments", "update users")

	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"all tables", Assertion{Op: "insert", Count: 2}, true},
		{"one table", Assertion{Op: "insert", Table: "users", Count: 1}, true},
		{"zero", Assertion{Op: "delete", Count: 0}, true},
		{"too few", Assertion{Op: "insert", Count: 3}, false},
		{"too many", Assertion{Op: "update", Count: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertStatementCount(trace, tt.assertion)
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertStatementCount, ae.Type)
		})
	}
}

func TestAssertStatementOrder(t *testing.T) {
	trace := traceOf("insert users", "insert comments", "update users")

	assert.NoError(t, assertStatementOrder(trace, Assertion{Statements: []string{"insert users", "update users"}}),
		"intervening statements are allowed")
	assert.NoError(t, assertStatementOrder(trace, Assertion{Statements: []string{"INSERT  Users"}}),
		"case and spacing are normalized")

	err := assertStatementOrder(trace, Assertion{Statements: []string{"insert comments", "insert users"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Actual, `missing from "insert users" on`)

	err = assertStatementOrder(trace, Assertion{Statements: []string{"delete users"}})
	require.Error(t, err)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertStatementCount,
		Expected: "2 × insert",
		Actual:   "1 × insert",
		Trace:    []TraceEvent{{Seq: 1, Op: "insert", Table: "users", SQL: "INSERT INTO x", Args: []string{"a"}}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: statement_count")
	assert.Contains(t, msg, "Expected: 2 × insert")
	assert.Contains(t, msg, "Actual: 1 × insert")
	assert.Contains(t, msg, "[1] INSERT INTO x [a]")
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := schema.LoadFile("testdata/schemas/blog.cue")
	require.NoError(t, err)
	require.NoError(t, st.CreateTables(t.Context(), reg))

	_, err = st.Insert(t.Context(), "users", map[string]any{"id": 1, "name": "ann", "email": "ann@example.com"}, "")
	require.NoError(t, err)
	_, err = st.Insert(t.Context(), "users", map[string]any{"id": 2, "name": "bob"}, "")
	require.NoError(t, err)
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"subset match", Assertion{Table: "users", Where: map[string]any{"id": 1}, Expect: map[string]any{"name": "ann"}}, ""},
		{"integer tolerance", Assertion{Table: "users", Where: map[string]any{"name": "bob"}, Expect: map[string]any{"id": "2"}}, ""},
		{"null column", Assertion{Table: "users", Where: map[string]any{"id": 2}, Expect: map[string]any{"email": nil}}, ""},
		{"value mismatch", Assertion{Table: "users", Where: map[string]any{"id": 1}, Expect: map[string]any{"name": "bob"}}, "users.name = bob"},
		{"missing column", Assertion{Table: "users", Where: map[string]any{"id": 1}, Expect: map[string]any{"nickname": "a"}}, "users.nickname"},
		{"no row", Assertion{Table: "users", Where: map[string]any{"id": 3}, Expect: map[string]any{"name": "c"}}, "0 rows"},
		{"several rows", Assertion{Table: "users", Expect: map[string]any{"name": "ann"}}, "2 rows"},
		{"unknown table", Assertion{Table: "ghosts", Where: map[string]any{"id": 1}, Expect: map[string]any{"name": "a"}}, "final_state query failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertRowCount(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "users", Count: 2}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "users", Where: map[string]any{"email": nil}, Count: 1}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "comments", Count: 0}))

	err := assertRowCount(ctx, st, Assertion{Table: "users", Count: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 2 rows")
}

func TestAssertEntityState(t *testing.T) {
	reg, err := schema.LoadFile("testdata/schemas/blog.cue")
	require.NoError(t, err)
	o := orm.New(reg)

	loaded, err := o.Make("user", map[string]any{"id": 1, "name": "ann"})
	require.NoError(t, err)
	actx := &AssertionContext{
		ORM: o,
		Entities: map[string]*orm.Entity{
			"ann": loaded.(*orm.Entity),
			"bob": orm.NewEntity("user", map[string]any{"name": "bob"}),
		},
	}

	assert.NoError(t, assertEntityState(actx, Assertion{Entity: "ann", Status: "managed", Expect: map[string]any{"id": "1"}}))
	assert.NoError(t, assertEntityState(actx, Assertion{Entity: "bob", Status: "untracked"}))

	err = assertEntityState(actx, Assertion{Entity: "ann", Status: "new"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ann is managed")

	err = assertEntityState(actx, Assertion{Entity: "bob", Expect: map[string]any{"name": "ann"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob.name = bob")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = traceOf("insert users")

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertStatementCount, Op: "insert", Count: 1},
		{Type: AssertStatementOrder, Statements: []string{"insert comments"}},
		{Type: AssertFinalState, Table: "users", Expect: map[string]any{"name": "ann"}},
		{Type: AssertEntityState, Entity: "ann", Status: "new"},
		{Type: "trace_contains"},
	}, nil)

	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "statement_order")
	assert.Contains(t, errs[1], "final_state requires database context")
	assert.Contains(t, errs[2], "entity_state requires entity context")
	assert.Contains(t, errs[3], `unknown assertion type "trace_contains"`)
}
