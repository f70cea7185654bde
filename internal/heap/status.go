package heap

import "fmt"

// Status is the persistence status of a tracked entity.
type Status int

const (
	// StatusNew marks an entity that has never been stored.
	StatusNew Status = iota + 1
	// StatusManaged marks an entity whose snapshot matches a stored row.
	StatusManaged
	// StatusScheduledInsert marks a new entity queued for INSERT.
	StatusScheduledInsert
	// StatusScheduledUpdate marks a managed entity queued for UPDATE.
	StatusScheduledUpdate
	// StatusScheduledDelete marks a managed entity queued for DELETE.
	StatusScheduledDelete
	// StatusDeleted is terminal.
	StatusDeleted
)

var statusNames = map[Status]string{
	StatusNew:             "new",
	StatusManaged:         "managed",
	StatusScheduledInsert: "scheduled_insert",
	StatusScheduledUpdate: "scheduled_update",
	StatusScheduledDelete: "scheduled_delete",
	StatusDeleted:         "deleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Scheduled reports whether s is one of the in-flight statuses.
func (s Status) Scheduled() bool {
	return s == StatusScheduledInsert || s == StatusScheduledUpdate || s == StatusScheduledDelete
}

// transitions lists every allowed status change. Setting the current status
// again is always allowed and not listed.
var transitions = map[Status][]Status{
	StatusNew:             {StatusScheduledInsert},
	StatusScheduledInsert: {StatusManaged},
	StatusManaged:         {StatusScheduledUpdate, StatusScheduledDelete},
	StatusScheduledUpdate: {StatusManaged},
	StatusScheduledDelete: {StatusDeleted},
}

// CanTransition reports whether a node may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// settle maps a scheduled status to the status it ends in once the pass
// committed.
func settle(s Status) Status {
	switch s {
	case StatusScheduledInsert, StatusScheduledUpdate:
		return StatusManaged
	case StatusScheduledDelete:
		return StatusDeleted
	}
	return s
}
