package command

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/value"
)

// Update writes changed columns of an existing row.
//
// A regular update writes every field of the state that differs from the
// snapshot it was built with. A deferred update (the tail of a Split) writes
// only the fields registered into it.
type Update struct {
	target
	state    *heap.State
	snapshot map[string]any
	deferred bool
	prefix   string

	fields      map[string]bool
	freshFields map[string]bool
	extra       map[string]any

	scope      map[string]any
	freshScope map[string]bool
}

var _ StoreCommand = (*Update)(nil)

// NewUpdate returns an update of the fields of state that differ from
// snapshot.
func NewUpdate(database, table string, state *heap.State, snapshot map[string]any) *Update {
	return &Update{
		target:      target{database: database, table: table},
		state:       state,
		snapshot:    value.Clone(snapshot),
		fields:      make(map[string]bool),
		freshFields: make(map[string]bool),
		scope:       make(map[string]any),
		freshScope:  make(map[string]bool),
	}
}

// NewDeferredUpdate returns an update that writes only registered fields.
func NewDeferredUpdate(database, table string, state *heap.State) *Update {
	u := NewUpdate(database, table, state, nil)
	u.deferred = true
	return u
}

// WithPrefix prefixes every state column, as embedded entities are stored
// in their owner's row.
func (c *Update) WithPrefix(prefix string) *Update {
	c.prefix = prefix
	return c
}

// AddScope sets a key of the WHERE clause.
func (c *Update) AddScope(key string, v any) {
	c.scope[key] = v
}

// Scope returns a copy of the WHERE clause values.
func (c *Update) Scope() map[string]any {
	return value.Clone(c.scope)
}

func (c *Update) IsReady() bool {
	return c.pending.Ready() && c.state.IsReady()
}

func (c *Update) Register(key string, v any, fresh bool, stream heap.Stream) {
	switch stream {
	case heap.StreamData:
		c.state.Register(key, v, fresh, heap.StreamData)
		if c.deferred && !value.IsNull(v) && !c.fields[key] {
			c.fields[key] = true
			if fresh {
				c.freshFields[key] = true
			}
		}
	case heap.StreamScope:
		if value.IsNull(v) {
			return
		}
		c.scope[key] = v
		if fresh {
			c.freshScope[key] = true
		}
	}
	c.resolve(key, v, fresh, stream)
}

func (c *Update) Columns() map[string]any {
	var cols map[string]any
	if c.deferred {
		cols = make(map[string]any, len(c.fields))
		for f := range c.fields {
			v, _ := c.state.Get(f)
			cols[f] = v
		}
	} else {
		cols = value.Diff(c.snapshot, c.state.Data())
	}
	if c.prefix != "" {
		prefixed := make(map[string]any, len(cols))
		for k, v := range cols {
			prefixed[c.prefix+k] = v
		}
		cols = prefixed
	}
	return mergeInto(cols, c.extra)
}

func (c *Update) MergeColumns(columns map[string]any) {
	c.extra = mergeInto(c.extra, columns)
}

func (c *Update) Execute(ctx context.Context, drv Driver) error {
	if c.executed {
		return nil
	}
	if !c.IsReady() {
		return &BuildError{Op: "update", Table: c.table, Err: ErrNotReady}
	}

	cols := c.Columns()
	if len(cols) == 0 {
		c.executed = true
		return nil
	}
	if len(c.scope) == 0 {
		return &BuildError{Op: "update", Table: c.table, Err: ErrEmptyScope}
	}
	if _, err := drv.Update(ctx, c.table, cols, c.Scope()); err != nil {
		return fmt.Errorf("update %s: %w", c.table, err)
	}
	c.executed = true
	return nil
}

func (c *Update) Complete() {
	c.pending.Commit()
	c.freshFields = make(map[string]bool)
	c.freshScope = make(map[string]bool)
}

func (c *Update) Rollback() {
	c.executed = false
	c.pending.Rollback()
	for f := range c.freshFields {
		delete(c.fields, f)
	}
	for k := range c.freshScope {
		delete(c.scope, k)
	}
	c.freshFields = make(map[string]bool)
	c.freshScope = make(map[string]bool)
}
