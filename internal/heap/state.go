package heap

import (
	"sort"

	"github.com/roach88/orbit/internal/value"
)

// subscription is one forwarding edge: values registered for the source key
// are pushed to target under targetKey on the given stream.
type subscription struct {
	target    Consumer
	targetKey string
	stream    Stream
}

// previous remembers what a field held before a fresh registration.
type previous struct {
	value   any
	existed bool
}

// State is the in-flight overlay of a Node: pending column data, the
// last-known relation values and the forwarding subscriptions.
type State struct {
	status    Status
	data      map[string]any
	relations map[string]any

	pending       Pending
	subscriptions map[string][]subscription

	fresh       map[string]previous
	registering map[string]bool
}

func newState(status Status, data, relations map[string]any) *State {
	return &State{
		status:        status,
		data:          value.Clone(data),
		relations:     cloneRelations(relations),
		subscriptions: make(map[string][]subscription),
		fresh:         make(map[string]previous),
		registering:   make(map[string]bool),
	}
}

// Status returns the overlay status.
func (s *State) Status() Status {
	return s.status
}

// Data returns a copy of the pending column data.
func (s *State) Data() map[string]any {
	return value.Clone(s.data)
}

// Get returns the pending value of one field.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set writes a field without resolving waits or forwarding. Use it to load
// extracted entity data into the overlay.
func (s *State) Set(key string, v any) {
	s.data[key] = v
}

// Register supplies a value for key. Data values are written into the
// overlay; every stream resolves a wait on key and the value is pushed to all
// subscribers of key. Null values are stored but neither resolve waits nor
// propagate.
func (s *State) Register(key string, v any, fresh bool, stream Stream) {
	if s.registering[key] {
		return
	}
	s.registering[key] = true
	defer delete(s.registering, key)

	if stream == StreamData {
		if fresh {
			if _, seen := s.fresh[key]; !seen {
				old, existed := s.data[key]
				s.fresh[key] = previous{value: old, existed: existed}
			}
		}
		s.data[key] = v
	}

	if value.IsNull(v) && stream != StreamSignal {
		return
	}

	s.pending.Resolve(key, StreamData, fresh)

	for _, sub := range s.subscriptions[key] {
		sub.target.Register(sub.targetKey, v, fresh, sub.stream)
	}
}

// Forward subscribes target to key. With trigger set, a value already known
// for key is pushed right away (as a non-fresh value).
func (s *State) Forward(key string, target Consumer, targetKey string, trigger bool, stream Stream) {
	sub := subscription{target: target, targetKey: targetKey, stream: stream}

	exists := false
	for _, existing := range s.subscriptions[key] {
		if existing == sub {
			exists = true
			break
		}
	}
	if !exists {
		s.subscriptions[key] = append(s.subscriptions[key], sub)
	}

	if !trigger {
		return
	}
	if v, ok := s.data[key]; ok && !value.IsNull(v) {
		target.Register(targetKey, v, false, stream)
	}
}

// Subscribers returns how many consumers are subscribed to key.
func (s *State) Subscribers(key string) int {
	return len(s.subscriptions[key])
}

// WaitField declares that the overlay needs a value for key before the row
// can be written. A value already present satisfies the wait immediately.
func (s *State) WaitField(key string, required bool) {
	if v, ok := s.data[key]; ok && !value.IsNull(v) {
		return
	}
	s.pending.Wait(key, required, StreamData)
}

// IsReady reports whether no required field is missing.
func (s *State) IsReady() bool {
	return s.pending.Ready()
}

// HasOptionalWaits reports whether an optional field is still missing.
func (s *State) HasOptionalWaits() bool {
	return s.pending.HasOptional()
}

// WaitingFields returns the fields still awaited, sorted.
func (s *State) WaitingFields() []string {
	keys := s.pending.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Name)
	}
	sort.Strings(out)
	return out
}

// SetRelation records the current value of a relation.
func (s *State) SetRelation(name string, v any) {
	s.relations[name] = v
}

// Relation returns the recorded value of a relation.
func (s *State) Relation(name string) (any, bool) {
	v, ok := s.relations[name]
	return v, ok
}

// Rollback restores every field changed by a fresh registration and re-arms
// the waits those registrations resolved.
func (s *State) Rollback() {
	for key, prev := range s.fresh {
		if prev.existed {
			s.data[key] = prev.value
		} else {
			delete(s.data, key)
		}
	}
	s.fresh = make(map[string]previous)
	s.pending.Rollback()
}

func cloneRelations(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
