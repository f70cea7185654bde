package orm

import (
	"fmt"
	"sort"

	"github.com/roach88/orbit/internal/value"
)

// Entity is a dynamic record of one role: column fields plus related
// entities by relation name. To-one relations hold an *Entity, to-many
// relations a []*Entity.
//
// Entities are compared by pointer identity. An Entity is not safe for
// concurrent use.
type Entity struct {
	role      string
	fields    map[string]any
	relations map[string]any
}

// NewEntity returns an entity of role with a copy of fields.
func NewEntity(role string, fields map[string]any) *Entity {
	return &Entity{
		role:      role,
		fields:    value.Clone(fields),
		relations: make(map[string]any),
	}
}

// Role returns the role name.
func (e *Entity) Role() string {
	return e.role
}

// Get returns a field, nil when unset.
func (e *Entity) Get(field string) any {
	return e.fields[field]
}

// Set writes a field.
func (e *Entity) Set(field string, v any) *Entity {
	e.fields[field] = v
	return e
}

// Fields returns a copy of the column fields.
func (e *Entity) Fields() map[string]any {
	return value.Clone(e.fields)
}

// Link sets a to-one relation. A nil target clears it.
func (e *Entity) Link(relation string, target *Entity) *Entity {
	if target == nil {
		delete(e.relations, relation)
		return e
	}
	e.relations[relation] = target
	return e
}

// Append adds targets to a to-many relation.
func (e *Entity) Append(relation string, targets ...*Entity) *Entity {
	list, _ := e.relations[relation].([]*Entity)
	e.relations[relation] = append(list, targets...)
	return e
}

// Related returns the target of a to-one relation.
func (e *Entity) Related(relation string) *Entity {
	t, _ := e.relations[relation].(*Entity)
	return t
}

// Collection returns the targets of a to-many relation.
func (e *Entity) Collection(relation string) []*Entity {
	list, _ := e.relations[relation].([]*Entity)
	return append([]*Entity(nil), list...)
}

func (e *Entity) String() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := e.role + "{"
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", k, e.fields[k])
	}
	return s + "}"
}
