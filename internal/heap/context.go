package heap

import (
	"fmt"
	"sort"
)

// Stream tells a consumer what a registered value is for.
type Stream int

const (
	// StreamData carries column values.
	StreamData Stream = iota + 1
	// StreamScope carries the key values that select a row (WHERE).
	StreamScope
	// StreamSignal carries ordering signals. Signal values are never written
	// as data; they only resolve waits.
	StreamSignal
)

func (s Stream) String() string {
	switch s {
	case StreamData:
		return "data"
	case StreamScope:
		return "scope"
	case StreamSignal:
		return "signal"
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

// Consumer receives forwarded values. States and commands are consumers.
//
// fresh marks values produced while executing the current pass (generated
// keys, for example). Fresh values are undone by a rollback; values known
// before execution started are kept.
type Consumer interface {
	Register(key string, value any, fresh bool, stream Stream)
}

// ContextKey identifies one awaited value.
type ContextKey struct {
	Stream Stream
	Name   string
}

func (k ContextKey) String() string {
	return k.Stream.String() + ":" + k.Name
}

// Pending tracks the values a piece of work still waits for. A required wait
// blocks readiness; an optional wait only marks the work as preferably
// postponed.
//
// The zero value is ready to use.
type Pending struct {
	waits map[ContextKey]bool
	// rearm holds waits resolved by fresh values so Rollback can restore them.
	rearm map[ContextKey]bool
}

// Wait declares a dependency on key. Declaring the same key twice keeps the
// stronger requirement.
func (p *Pending) Wait(key string, required bool, stream Stream) {
	if p.waits == nil {
		p.waits = make(map[ContextKey]bool)
	}
	k := ContextKey{Stream: stream, Name: key}
	p.waits[k] = p.waits[k] || required
}

// Resolve removes the wait on key, if any. It reports whether a wait was
// removed.
func (p *Pending) Resolve(key string, stream Stream, fresh bool) bool {
	k := ContextKey{Stream: stream, Name: key}
	required, ok := p.waits[k]
	if !ok {
		return false
	}
	delete(p.waits, k)
	if fresh {
		if p.rearm == nil {
			p.rearm = make(map[ContextKey]bool)
		}
		p.rearm[k] = required
	}
	return true
}

// IsWaiting reports whether key is still awaited.
func (p *Pending) IsWaiting(key string, stream Stream) bool {
	_, ok := p.waits[ContextKey{Stream: stream, Name: key}]
	return ok
}

// Ready reports whether no required wait is outstanding.
func (p *Pending) Ready() bool {
	for _, required := range p.waits {
		if required {
			return false
		}
	}
	return true
}

// HasOptional reports whether an optional wait is outstanding.
func (p *Pending) HasOptional() bool {
	for _, required := range p.waits {
		if !required {
			return true
		}
	}
	return false
}

// Len returns the number of outstanding waits.
func (p *Pending) Len() int {
	return len(p.waits)
}

// Keys returns the outstanding waits in a stable order.
func (p *Pending) Keys() []ContextKey {
	keys := make([]ContextKey, 0, len(p.waits))
	for k := range p.waits {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Stream != keys[j].Stream {
			return keys[i].Stream < keys[j].Stream
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Rollback re-arms every wait that was resolved by a fresh value.
func (p *Pending) Rollback() {
	for k, required := range p.rearm {
		p.Wait(k.Name, required, k.Stream)
	}
	p.rearm = nil
}

// Commit forgets the rollback bookkeeping.
func (p *Pending) Commit() {
	p.rearm = nil
}
