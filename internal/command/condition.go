package command

import "github.com/roach88/orbit/internal/heap"

// Condition includes its command only while the predicate holds. The
// predicate is evaluated lazily, every time the condition is inspected.
type Condition struct {
	command   Command
	predicate func() bool
}

// NewCondition returns a condition guarding c.
func NewCondition(c Command, predicate func() bool) *Condition {
	return &Condition{command: c, predicate: predicate}
}

// Holds evaluates the predicate.
func (c *Condition) Holds() bool {
	return c.predicate == nil || c.predicate()
}

// Command returns the guarded command.
func (c *Condition) Command() Command {
	return c.command
}

func (c *Condition) IsReady() bool {
	return !c.Holds() || c.command.IsReady()
}

func (c *Condition) IsExecuted() bool {
	return !c.Holds() || c.command.IsExecuted()
}

func (c *Condition) WaitContext(key string, required bool, stream heap.Stream) {
	c.command.WaitContext(key, required, stream)
}

func (c *Condition) Register(key string, v any, fresh bool, stream heap.Stream) {
	c.command.Register(key, v, fresh, stream)
}
