package heap

import "github.com/roach88/orbit/internal/value"

// Node is the tracked record of one entity: its role, persistence status and
// the snapshot of column data last known to be stored. While a unit of work is
// in flight the node carries a State overlay.
type Node struct {
	role      string
	status    Status
	data      map[string]any
	relations map[string]any
	state     *State
	owner     any
}

// NewNode creates a node with a copy of data as its snapshot.
func NewNode(role string, status Status, data map[string]any) *Node {
	return &Node{
		role:      role,
		status:    status,
		data:      value.Clone(data),
		relations: make(map[string]any),
	}
}

// Role returns the entity role the node belongs to.
func (n *Node) Role() string {
	return n.role
}

// Status returns the overlay status while a state exists, otherwise the
// settled status.
func (n *Node) Status() Status {
	if n.state != nil {
		return n.state.status
	}
	return n.status
}

// SetStatus moves the node to s. Scheduled statuses live on the state
// overlay, which is created on demand.
func (n *Node) SetStatus(s Status) error {
	from := n.Status()
	if !CanTransition(from, s) {
		return &TransitionError{Role: n.role, From: from, To: s}
	}
	if s.Scheduled() || n.state != nil {
		n.State().status = s
		return nil
	}
	n.status = s
	return nil
}

// Data returns a copy of the current data: the overlay when present,
// otherwise the snapshot.
func (n *Node) Data() map[string]any {
	if n.state != nil {
		return n.state.Data()
	}
	return value.Clone(n.data)
}

// Snapshot returns a copy of the last stored data, ignoring any overlay.
func (n *Node) Snapshot() map[string]any {
	return value.Clone(n.data)
}

// Get returns one field of the current data.
func (n *Node) Get(key string) (any, bool) {
	if n.state != nil {
		return n.state.Get(key)
	}
	v, ok := n.data[key]
	return v, ok
}

// SetData replaces the current data.
func (n *Node) SetData(data map[string]any) {
	if n.state != nil {
		n.state.data = value.Clone(data)
		return
	}
	n.data = value.Clone(data)
}

// HasState reports whether an overlay exists.
func (n *Node) HasState() bool {
	return n.state != nil
}

// State returns the overlay, creating it from the snapshot if needed.
func (n *Node) State() *State {
	if n.state == nil {
		n.state = newState(n.status, n.data, n.relations)
	}
	return n.state
}

// Register writes a value into the current data.
func (n *Node) Register(key string, v any) {
	if n.state != nil {
		n.state.data[key] = v
		return
	}
	n.data[key] = v
}

// HasChanges reports whether data differs from the snapshot under tolerant
// equality.
func (n *Node) HasChanges(data map[string]any) bool {
	return len(value.Diff(n.data, data)) > 0
}

// Changes returns the fields of data that differ from the snapshot.
func (n *Node) Changes(data map[string]any) map[string]any {
	return value.Diff(n.data, data)
}

// Relation returns the last known value of a relation.
func (n *Node) Relation(name string) (any, bool) {
	if n.state != nil {
		return n.state.Relation(name)
	}
	v, ok := n.relations[name]
	return v, ok
}

// SetRelation records the value of a relation.
func (n *Node) SetRelation(name string, v any) {
	if n.state != nil {
		n.state.SetRelation(name, v)
		return
	}
	n.relations[name] = v
}

// SyncState commits the overlay into the snapshot, settles the status and
// drops the overlay. It returns the fields that changed; without an overlay
// it returns an empty map.
func (n *Node) SyncState() map[string]any {
	if n.state == nil {
		return map[string]any{}
	}
	changes := value.Diff(n.data, n.state.data)
	n.data = value.Clone(n.state.data)
	n.relations = cloneRelations(n.state.relations)
	n.status = settle(n.state.status)
	n.state.pending.Commit()
	n.state = nil
	return changes
}

// ForgetState drops the overlay without committing it.
func (n *Node) ForgetState() {
	n.state = nil
}

// Claim binds the node to the run identified by owner. An overlay left by
// another run, one that failed and was never retried, is dropped so the node
// falls back to its settled status.
func (n *Node) Claim(owner any) {
	if n.owner == owner {
		return
	}
	n.owner = owner
	n.state = nil
}

// Owner returns the run that last claimed the node.
func (n *Node) Owner() any {
	return n.owner
}
