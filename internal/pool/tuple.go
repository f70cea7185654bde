package pool

import (
	"fmt"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/heap"
)

// Task is what a tuple asks for.
type Task int

const (
	TaskStore Task = iota + 1
	TaskDelete
)

func (t Task) String() string {
	switch t {
	case TaskStore:
		return "store"
	case TaskDelete:
		return "delete"
	}
	return fmt.Sprintf("task(%d)", int(t))
}

// Status is the progress of a tuple through a run.
type Status int

const (
	// StatusPreparing: registered explicitly, command not generated yet.
	StatusPreparing Status = iota + 1
	// StatusProposed: discovered through a relation, command not generated
	// yet.
	StatusProposed
	// StatusDeferred: command generated, not executed.
	StatusDeferred
	// StatusWaiting: command could not run during the last pass.
	StatusWaiting
	// StatusProcessed: command executed, or there was nothing to do.
	StatusProcessed
)

var statusNames = map[Status]string{
	StatusPreparing: "preparing",
	StatusProposed:  "proposed",
	StatusDeferred:  "deferred",
	StatusWaiting:   "waiting",
	StatusProcessed: "processed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Tuple is one unit of pending work.
type Tuple struct {
	Entity  any
	Task    Task
	Node    *heap.Node
	Status  Status
	Command command.Command
	// Cascade is set when the tuple was discovered through a relation rather
	// than registered by the caller.
	Cascade bool
}

// Pending reports whether the command of the tuple has not been generated.
func (t *Tuple) Pending() bool {
	return t.Status == StatusPreparing || t.Status == StatusProposed
}

func (t *Tuple) String() string {
	role := ""
	if t.Node != nil {
		role = t.Node.Role()
	}
	return fmt.Sprintf("%s %s (%s)", t.Task, role, t.Status)
}
