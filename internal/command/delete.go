package command

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/value"
)

// Delete removes the row selected by its scope.
type Delete struct {
	target
	scope      map[string]any
	freshScope map[string]bool
}

var _ Executable = (*Delete)(nil)

// NewDelete returns a delete from table. Null scope values are ignored; the
// missing keys can be registered later on the scope stream.
func NewDelete(database, table string, scope map[string]any) *Delete {
	d := &Delete{
		target:     target{database: database, table: table},
		scope:      make(map[string]any),
		freshScope: make(map[string]bool),
	}
	for k, v := range scope {
		if !value.IsNull(v) {
			d.scope[k] = v
		}
	}
	return d
}

// Scope returns a copy of the WHERE clause values.
func (c *Delete) Scope() map[string]any {
	return value.Clone(c.scope)
}

func (c *Delete) IsReady() bool {
	return c.pending.Ready()
}

func (c *Delete) Register(key string, v any, fresh bool, stream heap.Stream) {
	if stream == heap.StreamScope && !value.IsNull(v) {
		c.scope[key] = v
		if fresh {
			c.freshScope[key] = true
		}
	}
	c.resolve(key, v, fresh, stream)
}

func (c *Delete) Execute(ctx context.Context, drv Driver) error {
	if c.executed {
		return nil
	}
	if !c.IsReady() {
		return &BuildError{Op: "delete", Table: c.table, Err: ErrNotReady}
	}
	if len(c.scope) == 0 {
		return &BuildError{Op: "delete", Table: c.table, Err: ErrEmptyScope}
	}
	if _, err := drv.Delete(ctx, c.table, c.Scope()); err != nil {
		return fmt.Errorf("delete from %s: %w", c.table, err)
	}
	c.executed = true
	return nil
}

func (c *Delete) Complete() {
	c.pending.Commit()
	c.freshScope = make(map[string]bool)
}

func (c *Delete) Rollback() {
	c.executed = false
	c.pending.Rollback()
	for k := range c.freshScope {
		delete(c.scope, k)
	}
	c.freshScope = make(map[string]bool)
}
