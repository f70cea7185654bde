package orm

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEntity is returned when a mapper does not handle a value.
var ErrUnsupportedEntity = errors.New("unsupported entity")

// Mapper translates between entity values and column data.
type Mapper interface {
	// Role returns the role name of entity.
	Role(entity any) (string, error)
	// Extract returns the column fields of entity. Relations are excluded.
	Extract(entity any) map[string]any
	// Relations returns the related entities by relation name. A to-one
	// value is an entity, a to-many value a []any. Missing names are left
	// untouched by persistence.
	Relations(entity any) map[string]any
	// Hydrate writes changed column values back into entity.
	Hydrate(entity any, data map[string]any)
	// Instantiate builds an entity of role from stored data and its
	// materialized relations.
	Instantiate(role string, data map[string]any, relations map[string]any) any
}

// EntityMapper maps *Entity values.
type EntityMapper struct{}

var _ Mapper = EntityMapper{}

func (EntityMapper) Role(entity any) (string, error) {
	e, ok := entity.(*Entity)
	if !ok || e == nil {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedEntity, entity)
	}
	return e.role, nil
}

func (EntityMapper) Extract(entity any) map[string]any {
	e, ok := entity.(*Entity)
	if !ok {
		return map[string]any{}
	}
	return e.Fields()
}

func (EntityMapper) Relations(entity any) map[string]any {
	e, ok := entity.(*Entity)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(e.relations))
	for name, v := range e.relations {
		switch v := v.(type) {
		case *Entity:
			out[name] = v
		case []*Entity:
			list := make([]any, len(v))
			for i, t := range v {
				list[i] = t
			}
			out[name] = list
		}
	}
	return out
}

func (EntityMapper) Hydrate(entity any, data map[string]any) {
	e, ok := entity.(*Entity)
	if !ok {
		return
	}
	for k, v := range data {
		e.fields[k] = v
	}
}

func (EntityMapper) Instantiate(role string, data map[string]any, relations map[string]any) any {
	e := NewEntity(role, data)
	for name, v := range relations {
		if t, ok := v.(*Entity); ok {
			e.Link(name, t)
		}
	}
	return e
}

// related flattens a relation value into its entities.
func related(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			if e != nil {
				out = append(out, e)
			}
		}
		return out
	default:
		return []any{v}
	}
}
