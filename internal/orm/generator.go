package orm

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/pool"
	"github.com/roach88/orbit/internal/schema"
	"github.com/roach88/orbit/internal/transaction"
	"github.com/roach88/orbit/internal/value"
)

// link is a foreign key column of a row that takes its value from a key of
// another row.
type link struct {
	parent *heap.Node
	source string
	key    string
	// deferred links may be written by a tail UPDATE when the row has to be
	// inserted before its parent.
	deferred bool
}

// Generator builds the commands of one unit of work from the relations
// declared in the schema.
//
// Relations are handled as follows:
//   - BelongsTo waits for the parent key and cascades the parent.
//   - RefersTo, and a nullable BelongsTo, split the write so a cycle costs
//     one tail UPDATE.
//   - HasOne and HasMany forward the parent key into the children and
//     cascade them. With Cascade set, deleting the parent deletes the
//     children first.
//   - Embedded entities are merged into the owner's row.
//
// A Generator belongs to a single unit of work.
type Generator struct {
	orm     *ORM
	links   map[*heap.Node][]link
	deletes map[any]*command.Wrapped
	hooks   map[any][]func(fresh bool)
}

var _ transaction.Generator = (*Generator)(nil)

// NewGenerator returns a generator over the schema and mapper of o.
func NewGenerator(o *ORM) *Generator {
	return &Generator{
		orm:     o,
		links:   make(map[*heap.Node][]link),
		deletes: make(map[any]*command.Wrapped),
		hooks:   make(map[any][]func(bool)),
	}
}

func (g *Generator) Generate(_ context.Context, p *pool.Pool, t *pool.Tuple) (command.Command, error) {
	role, err := g.orm.schema.Role(t.Node.Role())
	if err != nil {
		return nil, err
	}
	// Embedded entities are written by their owner.
	if role.Embeddable {
		return nil, nil
	}
	if t.Task == pool.TaskDelete {
		return g.delete(p, t, role)
	}
	return g.store(p, t, role)
}

func (g *Generator) store(p *pool.Pool, t *pool.Tuple, role *schema.Role) (command.Command, error) {
	// A cascaded delete promoted to a store no longer blocks its parent.
	g.release(t.Entity)

	node := t.Node
	status := node.Status()
	if status != heap.StatusNew && status != heap.StatusManaged {
		return nil, nil
	}

	data := columns(g.orm.mapper.Extract(t.Entity), role)
	if role.Discriminator != "" {
		data[role.Discriminator] = role.DiscriminatorValue
	}
	relations := g.orm.mapper.Relations(t.Entity)

	var waits []link
	for _, rel := range role.Relations {
		if rel.Type != schema.BelongsTo && rel.Type != schema.RefersTo {
			continue
		}
		parent, ok := relations[rel.Name]
		if !ok || parent == nil {
			continue
		}
		parentNode, err := g.cascade(p, parent)
		if err != nil {
			return nil, fmt.Errorf("relation %s.%s: %w", role.Name, rel.Name, err)
		}
		if key, ok := persistedKey(parentNode, rel.OuterKey); ok {
			data[rel.InnerKey] = key
			continue
		}
		data[rel.InnerKey] = nil
		waits = addLink(waits, link{
			parent:   parentNode,
			source:   rel.OuterKey,
			key:      rel.InnerKey,
			deferred: rel.Type == schema.RefersTo || rel.Nullable,
		})
	}
	for _, l := range g.links[node] {
		if key, ok := persistedKey(l.parent, l.source); ok {
			data[l.key] = key
			continue
		}
		data[l.key] = nil
		waits = addLink(waits, l)
	}
	delete(g.links, node)

	parts, err := g.embedded(p, role, relations, status == heap.StatusNew)
	if err != nil {
		return nil, err
	}

	var primary command.StoreCommand
	switch status {
	case heap.StatusNew:
		if err := node.SetStatus(heap.StatusScheduledInsert); err != nil {
			return nil, err
		}
		primary = command.NewInsert(role.Database, role.Table, load(node.State(), data), role.PrimaryKey)
	case heap.StatusManaged:
		if len(node.Changes(data)) == 0 && len(waits) == 0 && len(parts) == 0 {
			break
		}
		if err := node.SetStatus(heap.StatusScheduledUpdate); err != nil {
			return nil, err
		}
		snapshot := node.Snapshot()
		u := command.NewUpdate(role.Database, role.Table, load(node.State(), data), snapshot)
		u.AddScope(role.PrimaryKey, snapshot[role.PrimaryKey])
		primary = u
	}

	var own command.Command
	if primary != nil {
		var c command.Executable = primary
		if len(parts) > 0 {
			c = command.NewMerge(primary, parts...)
		}
		own = g.wire(c, node, role, waits)
	}

	var adopted []command.Command
	for _, rel := range role.Relations {
		if rel.Type != schema.HasOne && rel.Type != schema.HasMany {
			continue
		}
		for _, child := range related(relations[rel.Name]) {
			c, err := g.adopt(p, node, rel, child)
			if err != nil {
				return nil, fmt.Errorf("relation %s.%s: %w", role.Name, rel.Name, err)
			}
			if c != nil {
				adopted = append(adopted, c)
			}
		}
	}

	if len(adopted) == 0 {
		if own == nil {
			return nil, nil
		}
		return own, nil
	}
	seq := command.NewSequence()
	if own != nil {
		seq.AddPrimary(own)
	}
	for _, c := range adopted {
		seq.AddCommand(c)
	}
	return seq, nil
}

// wire makes c wait for the foreign keys still unknown. Required keys are
// awaited on the row state; deferred keys go through a split whose tail
// updates the row once the parent key exists.
func (g *Generator) wire(c command.Executable, node *heap.Node, role *schema.Role, waits []link) command.Executable {
	state := node.State()
	var split *command.Split
	for _, l := range waits {
		if !l.deferred {
			state.WaitField(l.key, true)
			l.parent.State().Forward(l.source, state, l.key, false, heap.StreamData)
			continue
		}
		if split == nil {
			tail := command.NewDeferredUpdate(role.Database, role.Table, state)
			if pk, ok := persistedKey(node, role.PrimaryKey); ok {
				tail.AddScope(role.PrimaryKey, pk)
			} else {
				tail.WaitContext(role.PrimaryKey, true, heap.StreamScope)
				state.Forward(role.PrimaryKey, tail, role.PrimaryKey, false, heap.StreamScope)
			}
			split = command.NewSplit(c, tail)
		}
		split.WaitContext(l.key, true, heap.StreamData)
		l.parent.State().Forward(l.source, split, l.key, false, heap.StreamData)
	}
	if split != nil {
		return split
	}
	return c
}

// embedded returns the writes of the embedded entities of an owner row.
// A new owner, or a new embedded entity, writes every embedded column;
// otherwise only changed columns are written.
func (g *Generator) embedded(p *pool.Pool, role *schema.Role, relations map[string]any, insert bool) ([]command.StoreCommand, error) {
	var parts []command.StoreCommand
	for _, rel := range role.Relations {
		if rel.Type != schema.Embedded {
			continue
		}
		entity := relations[rel.Name]
		if entity == nil {
			continue
		}
		target, err := g.orm.schema.Role(rel.Target)
		if err != nil {
			return nil, err
		}
		n, err := g.cascade(p, entity)
		if err != nil {
			return nil, fmt.Errorf("relation %s.%s: %w", role.Name, rel.Name, err)
		}
		data := columns(g.orm.mapper.Extract(entity), target)

		switch n.Status() {
		case heap.StatusNew:
			if err := n.SetStatus(heap.StatusScheduledInsert); err != nil {
				return nil, err
			}
			parts = append(parts, command.NewInsert(role.Database, role.Table, load(n.State(), data), "").WithPrefix(rel.Prefix))
		case heap.StatusManaged:
			if !insert && len(n.Changes(data)) == 0 {
				continue
			}
			if err := n.SetStatus(heap.StatusScheduledUpdate); err != nil {
				return nil, err
			}
			if insert {
				parts = append(parts, command.NewInsert(role.Database, role.Table, load(n.State(), data), "").WithPrefix(rel.Prefix))
				continue
			}
			snapshot := n.Snapshot()
			parts = append(parts, command.NewUpdate(role.Database, role.Table, load(n.State(), data), snapshot).WithPrefix(rel.Prefix))
		}
	}
	return parts, nil
}

// adopt cascades a child of a HasOne or HasMany relation and routes the
// parent key into it. A child still waiting for its command gets the key
// when it is generated; a child generated earlier is wired directly, and
// gets an UPDATE of its own when it had nothing to write. That UPDATE is
// skipped if the key, once known, equals the stored one.
func (g *Generator) adopt(p *pool.Pool, parent *heap.Node, rel schema.Relation, child any) (command.Command, error) {
	childNode, err := g.node(p, child)
	if err != nil {
		return nil, err
	}
	ct, err := p.Attach(child, pool.TaskStore, childNode, true)
	if err != nil {
		return nil, err
	}
	if ct.Task == pool.TaskDelete {
		return nil, nil
	}

	l := link{parent: parent, source: rel.InnerKey, key: rel.OuterKey}
	if ct.Pending() {
		g.links[childNode] = append(g.links[childNode], l)
		return nil, nil
	}

	key, known := persistedKey(parent, rel.InnerKey)
	if known {
		if cur, _ := childNode.Get(rel.OuterKey); value.Equal(cur, key) {
			return nil, nil
		}
	}

	var upd command.Command
	if ct.Command == nil {
		if childNode.Status() != heap.StatusManaged {
			return nil, nil
		}
		childRole, err := g.orm.schema.Role(childNode.Role())
		if err != nil {
			return nil, err
		}
		if err := childNode.SetStatus(heap.StatusScheduledUpdate); err != nil {
			return nil, err
		}
		snapshot := childNode.Snapshot()
		state := childNode.State()
		u := command.NewUpdate(childRole.Database, childRole.Table, state, snapshot)
		u.AddScope(childRole.PrimaryKey, snapshot[childRole.PrimaryKey])
		// The parent key may turn out to be the one already stored.
		cond := command.NewCondition(u, func() bool {
			cur, _ := state.Get(rel.OuterKey)
			return !state.IsReady() || !value.Equal(snapshot[rel.OuterKey], cur)
		})
		ct.Command = cond
		ct.Status = pool.StatusDeferred
		upd = cond
	}

	state := childNode.State()
	if known {
		state.Set(rel.OuterKey, key)
		return upd, nil
	}
	state.WaitField(rel.OuterKey, true)
	parent.State().Forward(rel.InnerKey, state, rel.OuterKey, false, heap.StreamData)
	return upd, nil
}

func (g *Generator) delete(p *pool.Pool, t *pool.Tuple, role *schema.Role) (command.Command, error) {
	node := t.Node
	if node.Status() != heap.StatusManaged {
		// Never stored: nothing to delete, and nothing to wait for.
		g.release(t.Entity)
		return nil, nil
	}

	snapshot := node.Snapshot()
	if err := node.SetStatus(heap.StatusScheduledDelete); err != nil {
		return nil, err
	}
	del := command.NewDelete(role.Database, role.Table, map[string]any{role.PrimaryKey: snapshot[role.PrimaryKey]})
	w := command.Wrap(del)

	relations := g.orm.mapper.Relations(t.Entity)
	for _, rel := range role.Relations {
		if !rel.Cascade || (rel.Type != schema.HasOne && rel.Type != schema.HasMany) {
			continue
		}
		for i, child := range related(relations[rel.Name]) {
			childNode, err := g.node(p, child)
			if err != nil {
				return nil, fmt.Errorf("relation %s.%s: %w", role.Name, rel.Name, err)
			}
			ct, err := p.Attach(child, pool.TaskDelete, childNode, true)
			if err != nil {
				return nil, err
			}
			if ct.Task != pool.TaskDelete {
				continue
			}
			signal := fmt.Sprintf("%s.%d", rel.Name, i)
			del.WaitContext(signal, true, heap.StreamSignal)
			g.after(child, ct, func(fresh bool) {
				del.Register(signal, nil, fresh, heap.StreamSignal)
			})
		}
	}

	for _, fn := range g.hooks[t.Entity] {
		w.OnAfter(func() { fn(true) })
	}
	delete(g.hooks, t.Entity)
	g.deletes[t.Entity] = w
	return w, nil
}

// after runs fn once the delete of child executed.
func (g *Generator) after(child any, ct *pool.Tuple, fn func(fresh bool)) {
	if w, ok := g.deletes[child]; ok {
		w.OnAfter(func() { fn(true) })
		return
	}
	if ct.Pending() {
		g.hooks[child] = append(g.hooks[child], fn)
		return
	}
	fn(false)
}

// release resolves the hooks of an entity that will not be deleted.
func (g *Generator) release(entity any) {
	for _, fn := range g.hooks[entity] {
		fn(false)
	}
	delete(g.hooks, entity)
}

// cascade attaches a related entity to the pool to be stored.
func (g *Generator) cascade(p *pool.Pool, entity any) (*heap.Node, error) {
	n, err := g.node(p, entity)
	if err != nil {
		return nil, err
	}
	if _, err := p.Attach(entity, pool.TaskStore, n, true); err != nil {
		return nil, err
	}
	return n, nil
}

// node returns the node of entity within the run. The pool is consulted
// first so an entity keeps one node even when the heap tracks nothing.
func (g *Generator) node(p *pool.Pool, entity any) (*heap.Node, error) {
	if t, ok := p.Get(entity); ok && t.Node != nil {
		return t.Node, nil
	}
	return g.orm.Node(entity)
}

// persistedKey returns the stored value of key when the row exists.
func persistedKey(n *heap.Node, key string) (any, bool) {
	switch n.Status() {
	case heap.StatusManaged, heap.StatusScheduledUpdate, heap.StatusScheduledDelete:
	default:
		return nil, false
	}
	v, ok := n.Snapshot()[key]
	return v, ok && !value.IsNull(v)
}

// addLink adds l unless a link for the same column exists. A required link
// wins over a deferred one.
func addLink(links []link, l link) []link {
	for i := range links {
		if links[i].key == l.key {
			links[i].deferred = links[i].deferred && l.deferred
			return links
		}
	}
	return append(links, l)
}

// columns keeps the fields of data that are columns of role.
func columns(data map[string]any, role *schema.Role) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if role.HasColumn(k) {
			out[k] = v
		}
	}
	return out
}

func load(state *heap.State, data map[string]any) *heap.State {
	for k, v := range data {
		state.Set(k, v)
	}
	return state
}
