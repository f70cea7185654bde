package orm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/schema"
	"github.com/roach88/orbit/internal/transaction"
	"github.com/roach88/orbit/internal/value"
)

var (
	// ErrUnknownDatabase is returned for a database without a driver.
	ErrUnknownDatabase = errors.New("unknown database")

	// ErrNoSelector is returned by Load when the driver cannot read rows.
	ErrNoSelector = errors.New("driver cannot select rows")
)

// Selector is implemented by drivers that can read rows back.
type Selector interface {
	SelectByKey(ctx context.Context, table string, scope map[string]any, orderBy string) ([]map[string]any, error)
}

// ORM ties a schema registry, an identity map and the drivers together.
//
// An ORM is not safe for concurrent use; run units of work one at a time.
type ORM struct {
	schema  *schema.Registry
	heap    heap.Heap
	drivers map[string]command.Driver
	mapper  Mapper
	logger  *slog.Logger
	uowOpts []transaction.Option
}

var _ transaction.ORM = (*ORM)(nil)

// Option configures an ORM.
type Option func(*ORM)

// WithDriver registers the driver of a database.
func WithDriver(database string, drv command.Driver) Option {
	return func(o *ORM) {
		o.drivers[database] = drv
	}
}

// WithHeap sets the identity map. Default: heap.New().
//
// With heap.NullHeap nothing is tracked between units of work: every
// persisted entity is treated as new and rows returned by Make or Load are
// not remembered.
func WithHeap(h heap.Heap) Option {
	return func(o *ORM) {
		o.heap = h
	}
}

// WithMapper sets the entity mapper. Default: EntityMapper.
func WithMapper(m Mapper) Option {
	return func(o *ORM) {
		o.mapper = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *ORM) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		o.logger = l
	}
}

// WithUnitOfWorkOptions sets options applied to every unit of work, before
// the options given to NewUnitOfWork.
func WithUnitOfWorkOptions(opts ...transaction.Option) Option {
	return func(o *ORM) {
		o.uowOpts = append(o.uowOpts, opts...)
	}
}

// New returns an ORM over the roles of reg.
func New(reg *schema.Registry, opts ...Option) *ORM {
	o := &ORM{
		schema:  reg,
		heap:    heap.New(),
		drivers: make(map[string]command.Driver),
		mapper:  EntityMapper{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Schema returns the role registry.
func (o *ORM) Schema() *schema.Registry {
	return o.schema
}

// Heap returns the identity map.
func (o *ORM) Heap() heap.Heap {
	return o.heap
}

// Node returns the node tracking entity. An untracked entity gets a New
// node, attached to the heap.
func (o *ORM) Node(entity any) (*heap.Node, error) {
	if n, ok := o.heap.Get(entity); ok {
		return n, nil
	}
	role, err := o.mapper.Role(entity)
	if err != nil {
		return nil, err
	}
	if _, err := o.schema.Role(role); err != nil {
		return nil, err
	}
	n := heap.NewNode(role, heap.StatusNew, nil)
	if err := o.heap.Attach(entity, n, o.Indexes(role)); err != nil {
		return nil, err
	}
	return n, nil
}

// Indexes returns the identity-map indexes of role.
func (o *ORM) Indexes(role string) [][]string {
	return o.schema.Indexes(role)
}

// Hydrate writes data into entity through the mapper.
func (o *ORM) Hydrate(entity any, data map[string]any) {
	o.mapper.Hydrate(entity, data)
}

// Driver returns the driver of database.
func (o *ORM) Driver(database string) (command.Driver, error) {
	drv, ok := o.drivers[database]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDatabase, database)
	}
	return drv, nil
}

// NewUnitOfWork returns a unit of work bound to this ORM.
func (o *ORM) NewUnitOfWork(opts ...transaction.Option) *transaction.UnitOfWork {
	all := append([]transaction.Option{transaction.WithLogger(o.logger)}, o.uowOpts...)
	all = append(all, opts...)
	return transaction.New(o, NewGenerator(o), all...)
}

// Make materializes a stored row as a Managed entity of role. A row whose
// discriminator names a child role becomes an entity of that role. When
// the identity map already tracks the row, the tracked entity is returned
// unchanged.
func (o *ORM) Make(role string, data map[string]any) (any, error) {
	r, err := o.schema.Role(role)
	if err != nil {
		return nil, err
	}
	if r.Discriminator != "" {
		if d, ok := data[r.Discriminator]; ok && !value.IsNull(d) {
			if name, ok := o.schema.RoleFor(o.schema.Root(role), fmt.Sprint(d)); ok && name != r.Name {
				if r, err = o.schema.Role(name); err != nil {
					return nil, err
				}
			}
		}
	}

	if pk, ok := data[r.PrimaryKey]; ok && !value.IsNull(pk) {
		if e, found := o.Find(r.Name, map[string]any{r.PrimaryKey: pk}); found {
			return e, nil
		}
	}

	own := make(map[string]any, len(r.Columns))
	for _, c := range r.Columns {
		if v, ok := data[c]; ok {
			own[c] = v
		}
	}

	relations := make(map[string]any)
	for _, rel := range r.Relations {
		if rel.Type != schema.Embedded {
			continue
		}
		embedded, err := o.makeEmbedded(rel, data)
		if err != nil {
			return nil, err
		}
		if embedded != nil {
			relations[rel.Name] = embedded
		}
	}

	entity := o.mapper.Instantiate(r.Name, own, relations)
	node := heap.NewNode(r.Name, heap.StatusManaged, own)
	if err := o.heap.Attach(entity, node, o.Indexes(r.Name)); err != nil {
		return nil, err
	}
	o.logger.Debug("entity materialized", "role", r.Name)
	return entity, nil
}

// makeEmbedded cuts the prefixed columns of an embedded role out of a row.
// A row with no non-null embedded column yields no entity.
func (o *ORM) makeEmbedded(rel schema.Relation, data map[string]any) (any, error) {
	target, err := o.schema.Role(rel.Target)
	if err != nil {
		return nil, err
	}
	sub := make(map[string]any, len(target.Columns))
	present := false
	for _, c := range target.Columns {
		v, ok := data[rel.Prefix+c]
		if !ok {
			continue
		}
		sub[c] = v
		present = present || !value.IsNull(v)
	}
	if !present {
		return nil, nil
	}
	entity := o.mapper.Instantiate(target.Name, sub, nil)
	if err := o.heap.Attach(entity, heap.NewNode(target.Name, heap.StatusManaged, sub), nil); err != nil {
		return nil, err
	}
	return entity, nil
}

// Find looks an entity up in the identity map by an indexed scope. Roles
// extending role are searched too.
func (o *ORM) Find(role string, scope map[string]any) (any, bool) {
	for _, name := range append([]string{role}, o.schema.Descendants(role)...) {
		if e, ok := o.heap.Find(name, scope); ok {
			return e, true
		}
	}
	return nil, false
}

// Load selects the rows of role matching scope and materializes them.
// Rows already tracked resolve to their tracked entities.
func (o *ORM) Load(ctx context.Context, role string, scope map[string]any) ([]any, error) {
	r, err := o.schema.Role(role)
	if err != nil {
		return nil, err
	}
	drv, err := o.Driver(r.Database)
	if err != nil {
		return nil, err
	}
	sel, ok := drv.(Selector)
	if !ok {
		return nil, fmt.Errorf("load %s: %w", role, ErrNoSelector)
	}

	where := value.Clone(scope)
	if r.Extends != "" && len(o.schema.Children(role)) == 0 {
		where[r.Discriminator] = r.DiscriminatorValue
	}
	rows, err := sel.SelectByKey(ctx, r.Table, where, r.PrimaryKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", role, err)
	}

	out := make([]any, 0, len(rows))
	for _, row := range rows {
		e, err := o.Make(role, row)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", role, err)
		}
		out = append(out, e)
	}
	o.logger.Debug("rows loaded", "role", role, "table", r.Table, "rows", len(out), "scope", strings.Join(scopeKeys(scope), ","))
	return out, nil
}

// Clean forgets every tracked entity.
func (o *ORM) Clean() {
	o.heap.Clean()
}

func scopeKeys(scope map[string]any) []string {
	keys := make([]string, 0, len(scope))
	for k := range scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
