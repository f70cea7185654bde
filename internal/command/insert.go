package command

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/value"
)

// Insert writes a new row from the data held by a node state. The columns
// are read when the command executes, so values forwarded into the state
// after the command was built are included.
type Insert struct {
	target
	state  *heap.State
	pk     string
	prefix string
	extra  map[string]any
}

var _ StoreCommand = (*Insert)(nil)

// NewInsert returns an insert into table. pk names the primary key column;
// a key generated by the driver is registered into the state under pk.
func NewInsert(database, table string, state *heap.State, pk string) *Insert {
	return &Insert{
		target: target{database: database, table: table},
		state:  state,
		pk:     pk,
	}
}

// WithPrefix prefixes every state column, as embedded entities are stored
// in their owner's row.
func (c *Insert) WithPrefix(prefix string) *Insert {
	c.prefix = prefix
	return c
}

// State returns the state the insert reads from.
func (c *Insert) State() *heap.State {
	return c.state
}

func (c *Insert) IsReady() bool {
	return c.pending.Ready() && c.state.IsReady()
}

func (c *Insert) Register(key string, v any, fresh bool, stream heap.Stream) {
	if stream == heap.StreamData {
		c.state.Register(key, v, fresh, heap.StreamData)
	}
	c.resolve(key, v, fresh, stream)
}

func (c *Insert) Columns() map[string]any {
	data := c.state.Data()
	if c.pk != "" && value.IsNull(data[c.pk]) {
		delete(data, c.pk)
	}
	cols := make(map[string]any, len(data)+len(c.extra))
	for k, v := range data {
		cols[c.prefix+k] = v
	}
	return mergeInto(cols, c.extra)
}

func (c *Insert) MergeColumns(columns map[string]any) {
	c.extra = mergeInto(c.extra, columns)
}

func (c *Insert) Execute(ctx context.Context, drv Driver) error {
	if c.executed {
		return nil
	}
	if !c.IsReady() {
		return &BuildError{Op: "insert", Table: c.table, Err: ErrNotReady}
	}

	cols := c.Columns()
	generated, err := drv.Insert(ctx, c.table, cols, c.pk)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c.table, err)
	}
	c.executed = true

	if c.pk == "" {
		return nil
	}
	key := generated
	if value.IsNull(key) {
		key = cols[c.pk]
	}
	if !value.IsNull(key) {
		c.state.Register(c.pk, key, true, heap.StreamData)
	}
	return nil
}

func (c *Insert) Complete() {
	c.pending.Commit()
}

func (c *Insert) Rollback() {
	c.executed = false
	c.pending.Rollback()
}
