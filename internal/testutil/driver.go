package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/value"
)

// ErrNotInTransaction is returned by Commit and Rollback without Begin.
var ErrNotInTransaction = errors.New("no transaction in progress")

// Statement is one write seen by a MemoryDriver.
type Statement struct {
	Op     string
	Table  string
	Values map[string]any
	Scope  map[string]any
}

func (s Statement) String() string {
	switch s.Op {
	case "insert":
		return fmt.Sprintf("INSERT %s %s", s.Table, formatMap(s.Values))
	case "update":
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", s.Table, formatMap(s.Values), formatMap(s.Scope))
	case "delete":
		return fmt.Sprintf("DELETE %s WHERE %s", s.Table, formatMap(s.Scope))
	}
	return s.Op + " " + s.Table
}

type failure struct {
	op    string
	table string
	times int
	err   error
}

type snapshot struct {
	rows       map[string][]map[string]any
	statements int
}

// MemoryDriver is an in-memory command.Driver that records every write and
// supports nested transactions and injected failures.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryDriver struct {
	mu         sync.Mutex
	keys       *KeySequence
	rows       map[string][]map[string]any
	statements []Statement
	attempted  []Statement
	snapshots  []snapshot
	failures   []*failure
}

var _ command.Driver = (*MemoryDriver)(nil)

// NewMemoryDriver returns an empty driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		keys: NewKeySequence(),
		rows: make(map[string][]map[string]any),
	}
}

// FailOn makes the next times writes of op ("insert", "update", "delete")
// on table fail with err. An empty table matches every table.
func (d *MemoryDriver) FailOn(op, table string, times int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, &failure{op: op, table: table, times: times, err: err})
}

// Seed stores a row without recording a statement.
func (d *MemoryDriver) Seed(table string, row map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[table] = append(d.rows[table], value.Clone(row))
}

func (d *MemoryDriver) Insert(_ context.Context, table string, values map[string]any, pk string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Statement{Op: "insert", Table: table, Values: value.Clone(values)}
	d.attempted = append(d.attempted, st)
	if err := d.fail("insert", table); err != nil {
		return nil, err
	}

	row := value.Clone(values)
	var generated any
	if pk != "" && value.IsNull(row[pk]) {
		generated = d.keys.Next(table)
		row[pk] = generated
	}
	d.rows[table] = append(d.rows[table], row)
	d.statements = append(d.statements, st)
	return generated, nil
}

func (d *MemoryDriver) Update(_ context.Context, table string, values, scope map[string]any) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Statement{Op: "update", Table: table, Values: value.Clone(values), Scope: value.Clone(scope)}
	d.attempted = append(d.attempted, st)
	if err := d.fail("update", table); err != nil {
		return 0, err
	}

	var n int64
	for _, row := range d.rows[table] {
		if matches(row, scope) {
			for k, v := range values {
				row[k] = v
			}
			n++
		}
	}
	d.statements = append(d.statements, st)
	return n, nil
}

func (d *MemoryDriver) Delete(_ context.Context, table string, scope map[string]any) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := Statement{Op: "delete", Table: table, Scope: value.Clone(scope)}
	d.attempted = append(d.attempted, st)
	if err := d.fail("delete", table); err != nil {
		return 0, err
	}

	kept := d.rows[table][:0]
	var n int64
	for _, row := range d.rows[table] {
		if matches(row, scope) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	d.rows[table] = kept
	d.statements = append(d.statements, st)
	return n, nil
}

func (d *MemoryDriver) Begin(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows := make(map[string][]map[string]any, len(d.rows))
	for table, rs := range d.rows {
		copied := make([]map[string]any, len(rs))
		for i, r := range rs {
			copied[i] = value.Clone(r)
		}
		rows[table] = copied
	}
	d.snapshots = append(d.snapshots, snapshot{rows: rows, statements: len(d.statements)})
	return nil
}

func (d *MemoryDriver) Commit(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.snapshots) == 0 {
		return ErrNotInTransaction
	}
	d.snapshots = d.snapshots[:len(d.snapshots)-1]
	return nil
}

func (d *MemoryDriver) Rollback(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.snapshots) == 0 {
		return ErrNotInTransaction
	}
	s := d.snapshots[len(d.snapshots)-1]
	d.snapshots = d.snapshots[:len(d.snapshots)-1]
	d.rows = s.rows
	d.statements = d.statements[:s.statements]
	return nil
}

func (d *MemoryDriver) TransactionLevel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.snapshots)
}

// Statements returns the writes that were not rolled back.
func (d *MemoryDriver) Statements() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Statement(nil), d.statements...)
}

// Attempted returns every write the driver was asked for, including failed
// and rolled back ones.
func (d *MemoryDriver) Attempted() []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Statement(nil), d.attempted...)
}

// Count returns how many surviving statements have op.
func (d *MemoryDriver) Count(op string) int {
	n := 0
	for _, st := range d.Statements() {
		if st.Op == op {
			n++
		}
	}
	return n
}

// Rows returns copies of the rows of table.
func (d *MemoryDriver) Rows(table string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]any, len(d.rows[table]))
	for i, r := range d.rows[table] {
		out[i] = value.Clone(r)
	}
	return out
}

// ResetLog forgets recorded statements but keeps the rows.
func (d *MemoryDriver) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = nil
	d.attempted = nil
}

func (d *MemoryDriver) fail(op, table string) error {
	for _, f := range d.failures {
		if f.times <= 0 || f.op != op || (f.table != "" && f.table != table) {
			continue
		}
		f.times--
		return f.err
	}
	return nil
}

func matches(row, scope map[string]any) bool {
	for k, v := range scope {
		if !value.Equal(row[k], v) {
			return false
		}
	}
	return true
}

func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", k, m[k])
	}
	return out + "}"
}
