package harness

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/orbit/internal/store"
)

// TraceEvent is one statement the store executed during a unit.
type TraceEvent struct {
	Seq   int64    `json:"seq"`
	Unit  int      `json:"unit"`
	Op    string   `json:"op"`
	Table string   `json:"table"`
	SQL   string   `json:"sql"`
	Args  []string `json:"args"`
}

// String renders the event as "op table".
func (e TraceEvent) String() string {
	return e.Op + " " + e.Table
}

// UnitOutcome records how one unit of work ended.
type UnitOutcome struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is false once any unit missed its expectation or any assertion
	// failed.
	Pass bool `json:"pass"`

	// Trace holds every statement executed by the units, in order.
	Trace []TraceEvent `json:"trace"`

	// Units holds one outcome per unit.
	Units []UnitOutcome `json:"units"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Units:  []UnitOutcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStatement appends a store statement to the trace.
func (r *Result) AddStatement(unit int, st store.Statement) {
	args := make([]string, len(st.Args))
	for i, a := range st.Args {
		args[i] = formatArg(a)
	}
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Unit:  unit,
		Op:    st.Op,
		Table: st.Table,
		SQL:   st.SQL,
		Args:  args,
	})
}

// Statements renders the trace as "op table" lines.
func (r *Result) Statements() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.String()
	}
	return out
}

// formatArg renders a statement parameter as text. Traces hold text only so
// they serialize as canonical JSON, which has no null or float.
func formatArg(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// formatTrace renders the trace for failure messages.
func formatTrace(trace []TraceEvent) string {
	var buf strings.Builder
	for _, e := range trace {
		fmt.Fprintf(&buf, "  [%d] %s %v\n", e.Seq, e.SQL, e.Args)
	}
	return buf.String()
}
