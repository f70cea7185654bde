package transaction

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/pool"
	"github.com/roach88/orbit/internal/testutil"
)

// item is a minimal entity: a table row with an optional parent.
type item struct {
	table  string
	fields map[string]any
	parent *item
	db     string
}

func (it *item) database() string {
	if it.db == "" {
		return "default"
	}
	return it.db
}

type fakeORM struct {
	heap    *heap.Map
	drivers map[string]command.Driver
}

func newFakeORM(drv command.Driver) *fakeORM {
	return &fakeORM{heap: heap.New(), drivers: map[string]command.Driver{"default": drv}}
}

func (o *fakeORM) Heap() heap.Heap {
	return o.heap
}

func (o *fakeORM) Node(entity any) (*heap.Node, error) {
	if n, ok := o.heap.Get(entity); ok {
		return n, nil
	}
	it, ok := entity.(*item)
	if !ok {
		return nil, fmt.Errorf("unsupported entity %T", entity)
	}
	n := heap.NewNode(it.table, heap.StatusNew, nil)
	if err := o.heap.Attach(entity, n, nil); err != nil {
		return nil, err
	}
	return n, nil
}

func (o *fakeORM) Indexes(string) [][]string {
	return [][]string{{"id"}}
}

func (o *fakeORM) Hydrate(entity any, data map[string]any) {
	it := entity.(*item)
	for k, v := range data {
		it.fields[k] = v
	}
}

func (o *fakeORM) Driver(database string) (command.Driver, error) {
	d, ok := o.drivers[database]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", database)
	}
	return d, nil
}

// load tracks a stored row as a managed entity.
func (o *fakeORM) load(it *item) {
	n := heap.NewNode(it.table, heap.StatusManaged, it.fields)
	_ = o.heap.Attach(it, n, o.Indexes(it.table))
}

// fakeGenerator inserts new items, updates changed ones and wires parents
// through a required wait on parent_id.
type fakeGenerator struct {
	orm *fakeORM
}

func (g *fakeGenerator) Generate(_ context.Context, p *pool.Pool, t *pool.Tuple) (command.Command, error) {
	it := t.Entity.(*item)
	node := t.Node

	if t.Task == pool.TaskDelete {
		if node.Status() == heap.StatusNew {
			return nil, nil
		}
		if err := node.SetStatus(heap.StatusScheduledDelete); err != nil {
			return nil, err
		}
		id, _ := node.Get("id")
		return command.NewDelete(it.database(), it.table, map[string]any{"id": id}), nil
	}

	var cmd command.Command
	switch node.Status() {
	case heap.StatusNew:
		if err := node.SetStatus(heap.StatusScheduledInsert); err != nil {
			return nil, err
		}
		state := node.State()
		for k, v := range it.fields {
			state.Set(k, v)
		}
		cmd = command.NewInsert(it.database(), it.table, state, "id")
	case heap.StatusManaged:
		if !node.HasChanges(it.fields) {
			return nil, nil
		}
		if err := node.SetStatus(heap.StatusScheduledUpdate); err != nil {
			return nil, err
		}
		snapshot := node.Snapshot()
		state := node.State()
		for k, v := range it.fields {
			state.Set(k, v)
		}
		u := command.NewUpdate(it.database(), it.table, state, snapshot)
		u.AddScope("id", snapshot["id"])
		cmd = u
	default:
		return nil, nil
	}

	if it.parent != nil {
		parentNode, err := g.orm.Node(it.parent)
		if err != nil {
			return nil, err
		}
		if _, err := p.Attach(it.parent, pool.TaskStore, parentNode, true); err != nil {
			return nil, err
		}
		node.State().WaitField("parent_id", true)
		parentNode.State().Forward("id", node.State(), "parent_id", parentNode.Status() != heap.StatusNew && parentNode.Status() != heap.StatusScheduledInsert, heap.StreamData)
	}
	return cmd, nil
}

// commitFailingDriver fails every commit.
type commitFailingDriver struct {
	*testutil.MemoryDriver
}

func (d *commitFailingDriver) Commit(context.Context) error {
	return errConnectionLost
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUnit(orm *fakeORM, opts ...Option) *UnitOfWork {
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
	}, opts...)
	return New(orm, &fakeGenerator{orm: orm}, opts...)
}
