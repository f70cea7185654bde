package pool

import "github.com/roach88/orbit/internal/heap"

// Pool is the registry of tuples of one unit-of-work run.
type Pool struct {
	storage *TupleStorage
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{storage: NewTupleStorage()}
}

// Attach registers entity for task and returns its tuple. An entity has at
// most one tuple: attaching it again returns the existing tuple. An explicit
// registration (cascade false) of a tuple that was only proposed through a
// relation promotes it to Preparing with the new task.
func (p *Pool) Attach(entity any, task Task, node *heap.Node, cascade bool) (*Tuple, error) {
	if t, ok := p.storage.Get(entity); ok {
		if !cascade && t.Pending() {
			t.Status = StatusPreparing
			t.Task = task
			t.Cascade = false
		}
		return t, nil
	}

	status := StatusPreparing
	if cascade {
		status = StatusProposed
	}
	t := &Tuple{
		Entity:  entity,
		Task:    task,
		Node:    node,
		Status:  status,
		Cascade: cascade,
	}
	if _, err := p.storage.Attach(t); err != nil {
		return nil, err
	}
	if node != nil {
		node.Claim(p)
	}
	return t, nil
}

// Detach removes the tuple of entity.
func (p *Pool) Detach(entity any) bool {
	return p.storage.Detach(entity)
}

// Get returns the tuple of entity.
func (p *Pool) Get(entity any) (*Tuple, bool) {
	return p.storage.Get(entity)
}

// Has reports whether entity has a tuple.
func (p *Pool) Has(entity any) bool {
	_, ok := p.storage.Get(entity)
	return ok
}

// Iterator opens a cursor over the tuples.
func (p *Pool) Iterator() *Iterator {
	return p.storage.Iterator()
}

// Tuples returns the live tuples in registration order.
func (p *Pool) Tuples() []*Tuple {
	return p.storage.Tuples()
}

func (p *Pool) Len() int {
	return p.storage.Len()
}

// Storage exposes the underlying tuple storage.
func (p *Pool) Storage() *TupleStorage {
	return p.storage
}

// Clean drops every tuple.
func (p *Pool) Clean() {
	p.storage.Clear()
}
