package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/orbit/internal/orm"
	"github.com/roach88/orbit/internal/store"
	"github.com/roach88/orbit/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n%s", formatTrace(e.Trace))
	}
	return buf.String()
}

// AssertionContext provides what assertions read besides the trace.
type AssertionContext struct {
	Store    *store.Store
	ORM      *orm.ORM
	Entities map[string]*orm.Entity
	Ctx      context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database and entity access; it may be nil
// when only trace assertions are evaluated.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatementCount:
			err = assertStatementCount(result.Trace, assertion)
		case AssertStatementOrder:
			err = assertStatementOrder(result.Trace, assertion)
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			}
		case AssertEntityState:
			if actx == nil || actx.ORM == nil {
				err = fmt.Errorf("assertion[%d]: entity_state requires entity context", i)
			} else {
				err = assertEntityState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertStatementCount checks how many statements of an op (and table, when
// given) were executed.
func assertStatementCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Op == assertion.Op && (assertion.Table == "" || e.Table == assertion.Table) {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}

	target := assertion.Op
	if assertion.Table != "" {
		target += " " + assertion.Table
	}
	return &AssertionError{
		Type:     AssertStatementCount,
		Expected: fmt.Sprintf("%d × %s", assertion.Count, target),
		Actual:   fmt.Sprintf("%d × %s", count, target),
		Trace:    trace,
	}
}

// assertStatementOrder checks that the listed statements appear in order.
// Unlisted statements may appear in between.
func assertStatementOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, e := range trace {
		if next < len(assertion.Statements) && e.String() == normalizeStatement(assertion.Statements[next]) {
			next++
		}
	}
	if next == len(assertion.Statements) {
		return nil
	}

	actual := make([]string, len(trace))
	for i, e := range trace {
		actual[i] = e.String()
	}
	return &AssertionError{
		Type:     AssertStatementOrder,
		Expected: strings.Join(assertion.Statements, " -> "),
		Actual:   fmt.Sprintf("%s (missing from %q on)", strings.Join(actual, " -> "), assertion.Statements[next]),
		Trace:    trace,
	}
}

func normalizeStatement(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// assertFinalState checks that exactly one row of the table matches where
// and carries the expected values. Extra columns are ignored.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	rows, err := st.SelectByKey(ctx, assertion.Table, assertion.Where, orderColumn(assertion))
	if err != nil {
		return fmt.Errorf("final_state query failed: %w", err)
	}
	if len(rows) != 1 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("1 row in %s where %s", assertion.Table, formatMap(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}

	row := rows[0]
	for _, k := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[k]
		got, ok := row[k]
		if !ok || !value.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Table, k, want),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Table, k, got),
			}
		}
	}
	return nil
}

// assertRowCount checks the number of rows of the table matching where.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	rows, err := st.SelectByKey(ctx, assertion.Table, assertion.Where, orderColumn(assertion))
	if err != nil {
		return fmt.Errorf("row_count query failed: %w", err)
	}
	if len(rows) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatMap(assertion.Where)),
		Actual:   fmt.Sprintf("%d rows", len(rows)),
	}
}

// assertEntityState checks the fields and the heap status of an entity.
func assertEntityState(actx *AssertionContext, assertion Assertion) error {
	e, ok := actx.Entities[assertion.Entity]
	if !ok {
		return fmt.Errorf("entity_state: unknown entity %q", assertion.Entity)
	}

	if assertion.Status != "" {
		status := "untracked"
		if n, ok := actx.ORM.Heap().Get(e); ok {
			status = n.Status().String()
		}
		if status != assertion.Status {
			return &AssertionError{
				Type:     AssertEntityState,
				Expected: fmt.Sprintf("%s is %s", assertion.Entity, assertion.Status),
				Actual:   fmt.Sprintf("%s is %s", assertion.Entity, status),
			}
		}
	}

	for _, k := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[k]
		if got := e.Get(k); !value.Equal(want, got) {
			return &AssertionError{
				Type:     AssertEntityState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Entity, k, want),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Entity, k, got),
			}
		}
	}
	return nil
}

// orderColumn picks a stable ordering column for row lookups.
func orderColumn(assertion Assertion) string {
	if _, ok := assertion.Where["id"]; ok || len(assertion.Where) == 0 {
		return "id"
	}
	keys := make([]string, 0, len(assertion.Where))
	for k := range assertion.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

func formatMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
