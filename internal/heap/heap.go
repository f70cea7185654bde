package heap

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/orbit/internal/value"
)

// Heap is the identity map: it ties every tracked entity to exactly one Node
// and keeps secondary indices for lookups by key.
type Heap interface {
	// Attach tracks entity with node and (re)builds its index entries. Each
	// index is a set of field names whose values select the entity.
	Attach(entity any, node *Node, indexes [][]string) error
	// Detach forgets entity and removes its index entries.
	Detach(entity any)
	// Get returns the node of entity.
	Get(entity any) (*Node, bool)
	// Has reports whether entity is tracked.
	Has(entity any) bool
	// Find returns the entity of role whose indexed fields equal scope.
	Find(role string, scope map[string]any) (any, bool)
	// Clean forgets everything.
	Clean()
	// Len returns the number of tracked entities.
	Len() int
}

// indexEntry records where an entity was indexed so Detach can undo it.
type indexEntry struct {
	role  string
	index string
	key   string
}

// Map is the default Heap.
//
// Map is not safe for concurrent use.
type Map struct {
	nodes   map[any]*Node
	entries map[any][]indexEntry
	// indexes: role -> index name -> key -> entity
	indexes map[string]map[string]map[string]any
}

var _ Heap = (*Map)(nil)

// New returns an empty heap.
func New() *Map {
	return &Map{
		nodes:   make(map[any]*Node),
		entries: make(map[any][]indexEntry),
		indexes: make(map[string]map[string]map[string]any),
	}
}

func (h *Map) Attach(entity any, node *Node, indexes [][]string) error {
	if !keyable(entity) {
		return fmt.Errorf("attach %T: %w", entity, ErrNotComparable)
	}
	if node == nil {
		return fmt.Errorf("attach %T: %w", entity, ErrNilNode)
	}
	names := make([]string, len(indexes))
	for i, fields := range indexes {
		name, err := indexName(fields)
		if err != nil {
			return fmt.Errorf("attach %q: %w", node.Role(), err)
		}
		names[i] = name
	}

	h.removeEntries(entity)
	h.nodes[entity] = node

	data := node.Data()
	for i, fields := range indexes {
		key, ok := indexKey(fields, data)
		if !ok {
			continue
		}
		byName := h.indexes[node.Role()]
		if byName == nil {
			byName = make(map[string]map[string]any)
			h.indexes[node.Role()] = byName
		}
		byKey := byName[names[i]]
		if byKey == nil {
			byKey = make(map[string]any)
			byName[names[i]] = byKey
		}
		byKey[key] = entity
		h.entries[entity] = append(h.entries[entity], indexEntry{role: node.Role(), index: names[i], key: key})
	}
	return nil
}

func (h *Map) Detach(entity any) {
	if !keyable(entity) {
		return
	}
	h.removeEntries(entity)
	delete(h.nodes, entity)
}

func (h *Map) Get(entity any) (*Node, bool) {
	if !keyable(entity) {
		return nil, false
	}
	n, ok := h.nodes[entity]
	return n, ok
}

func (h *Map) Has(entity any) bool {
	_, ok := h.Get(entity)
	return ok
}

func (h *Map) Find(role string, scope map[string]any) (any, bool) {
	if len(scope) == 0 {
		return nil, false
	}
	fields := make([]string, 0, len(scope))
	for f := range scope {
		fields = append(fields, f)
	}
	name, err := indexName(fields)
	if err != nil {
		return nil, false
	}
	byKey := h.indexes[role][name]
	if byKey == nil {
		return nil, false
	}
	key, ok := indexKey(fields, scope)
	if !ok {
		return nil, false
	}
	e, ok := byKey[key]
	return e, ok
}

func (h *Map) Clean() {
	h.nodes = make(map[any]*Node)
	h.entries = make(map[any][]indexEntry)
	h.indexes = make(map[string]map[string]map[string]any)
}

func (h *Map) Len() int {
	return len(h.nodes)
}

func (h *Map) removeEntries(entity any) {
	for _, e := range h.entries[entity] {
		byKey := h.indexes[e.role][e.index]
		// A later attach of another entity may own the key now.
		if byKey[e.key] == entity {
			delete(byKey, e.key)
		}
	}
	delete(h.entries, entity)
}

// indexName returns the canonical name of an index: its sorted field names.
func indexName(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", ErrInvalidIndex
	}
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)
	for i, f := range sorted {
		if f == "" {
			return "", fmt.Errorf("%w: empty field name", ErrInvalidIndex)
		}
		if i > 0 && sorted[i-1] == f {
			return "", fmt.Errorf("%w: duplicate field %q", ErrInvalidIndex, f)
		}
	}
	return strings.Join(sorted, ","), nil
}

// indexKey builds the lookup key for fields in sorted order. It reports false
// when a value is missing, null or cannot be keyed.
func indexKey(fields []string, data map[string]any) (string, bool) {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	values := make([]any, len(sorted))
	for i, f := range sorted {
		v, ok := data[f]
		if !ok {
			return "", false
		}
		values[i] = v
	}
	key, err := value.CompositeKey(values...)
	if err != nil {
		return "", false
	}
	return key, true
}

func keyable(entity any) bool {
	if entity == nil {
		return false
	}
	return reflect.ValueOf(entity).Comparable()
}

// NullHeap tracks nothing. Use it when identity tracking is not wanted.
type NullHeap struct{}

var _ Heap = NullHeap{}

func (NullHeap) Attach(any, *Node, [][]string) error { return nil }
func (NullHeap) Detach(any) {}
func (NullHeap) Get(any) (*Node, bool) { return nil, false }
func (NullHeap) Has(any) bool { return false }
func (NullHeap) Find(string, map[string]any) (any, bool) { return nil, false }
func (NullHeap) Clean() {}
func (NullHeap) Len() int { return 0 }
