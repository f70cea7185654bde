package pool

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotComparable is returned for entities that cannot key a tuple.
var ErrNotComparable = errors.New("entity is not usable as a tuple key")

type slot struct {
	tuple *Tuple
	gen   uint64
	alive bool
}

// TupleStorage is an ordered, entity-keyed set of tuples that stays
// consistent while iterated.
//
// Detached tuples leave a tombstone in their slot. Tombstones are compacted
// away only when no iterator is open, so open cursors never shift.
type TupleStorage struct {
	slots     []slot
	index     map[any]int
	iterators map[*Iterator]struct{}
	dead      int
	gen       uint64
}

// NewTupleStorage returns an empty storage.
func NewTupleStorage() *TupleStorage {
	return &TupleStorage{
		index:     make(map[any]int),
		iterators: make(map[*Iterator]struct{}),
	}
}

// Attach appends t. It returns false, leaving the storage unchanged, when
// the entity of t already has a tuple.
func (s *TupleStorage) Attach(t *Tuple) (bool, error) {
	if t == nil || t.Entity == nil || !reflect.ValueOf(t.Entity).Comparable() {
		return false, fmt.Errorf("attach tuple: %w", ErrNotComparable)
	}
	if _, ok := s.index[t.Entity]; ok {
		return false, nil
	}
	s.gen++
	s.index[t.Entity] = len(s.slots)
	s.slots = append(s.slots, slot{tuple: t, gen: s.gen, alive: true})
	return true, nil
}

// Detach removes the tuple of entity. Open iterators that did not reach it
// yet will skip it.
func (s *TupleStorage) Detach(entity any) bool {
	if !usable(entity) {
		return false
	}
	i, ok := s.index[entity]
	if !ok {
		return false
	}
	delete(s.index, entity)
	s.slots[i] = slot{gen: s.slots[i].gen}
	s.dead++
	s.compact()
	return true
}

// Get returns the tuple of entity.
func (s *TupleStorage) Get(entity any) (*Tuple, bool) {
	if !usable(entity) {
		return nil, false
	}
	i, ok := s.index[entity]
	if !ok {
		return nil, false
	}
	return s.slots[i].tuple, true
}

// Generation returns the attach sequence number of the tuple of entity. A
// tuple detached and attached again gets a new generation.
func (s *TupleStorage) Generation(entity any) (uint64, bool) {
	if !usable(entity) {
		return 0, false
	}
	i, ok := s.index[entity]
	if !ok {
		return 0, false
	}
	return s.slots[i].gen, true
}

// Len returns the number of live tuples.
func (s *TupleStorage) Len() int {
	return len(s.index)
}

// Tuples returns the live tuples in insertion order.
func (s *TupleStorage) Tuples() []*Tuple {
	out := make([]*Tuple, 0, len(s.index))
	for _, sl := range s.slots {
		if sl.alive {
			out = append(out, sl.tuple)
		}
	}
	return out
}

// Iterator opens a new cursor at the first tuple. Close it when done, unless
// it was drained.
func (s *TupleStorage) Iterator() *Iterator {
	it := &Iterator{storage: s}
	s.iterators[it] = struct{}{}
	return it
}

// OpenIterators returns the number of iterators not yet closed.
func (s *TupleStorage) OpenIterators() int {
	return len(s.iterators)
}

// Clear drops every tuple and invalidates open iterators.
func (s *TupleStorage) Clear() {
	for it := range s.iterators {
		it.closed = true
	}
	s.slots = nil
	s.index = make(map[any]int)
	s.iterators = make(map[*Iterator]struct{})
	s.dead = 0
}

func (s *TupleStorage) release(it *Iterator) {
	delete(s.iterators, it)
	s.compact()
}

func (s *TupleStorage) compact() {
	if s.dead == 0 || len(s.iterators) > 0 {
		return
	}
	live := s.slots[:0]
	for _, sl := range s.slots {
		if sl.alive {
			s.index[sl.tuple.Entity] = len(live)
			live = append(live, sl)
		}
	}
	for i := len(live); i < len(s.slots); i++ {
		s.slots[i] = slot{}
	}
	s.slots = live
	s.dead = 0
}

// Iterator walks a TupleStorage.
type Iterator struct {
	storage *TupleStorage
	cursor  int
	closed  bool
}

// Next returns the next live tuple. Tuples attached after the iterator was
// opened are included. The iterator closes itself when drained.
func (it *Iterator) Next() (*Tuple, bool) {
	if it.closed {
		return nil, false
	}
	slots := it.storage.slots
	for it.cursor < len(slots) {
		sl := slots[it.cursor]
		it.cursor++
		if sl.alive {
			return sl.tuple, true
		}
	}
	it.Close()
	return nil, false
}

// Close releases the cursor. Closing twice is harmless.
func (it *Iterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.storage.release(it)
}

func usable(entity any) bool {
	return entity != nil && reflect.ValueOf(entity).Comparable()
}
