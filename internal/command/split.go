package command

import (
	"context"

	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/value"
)

// Split pairs a head and a tail that write the same row.
//
// Dependencies declared on a split are optional for the head and required
// for the tail. Values registered before the head executed go to the head
// (and need no tail write); values registered afterwards go to the tail.
// A head is therefore always runnable, and each unresolved cycle edge costs
// exactly one column in the tail UPDATE.
type Split struct {
	head    Executable
	tail    Executable
	pending heap.Pending
}

var _ Executable = (*Split)(nil)

// NewSplit returns a split of head and tail.
func NewSplit(head, tail Executable) *Split {
	return &Split{head: head, tail: tail}
}

func (s *Split) Head() Executable {
	return s.head
}

func (s *Split) Tail() Executable {
	return s.tail
}

func (s *Split) Database() string {
	return s.head.Database()
}

func (s *Split) IsReady() bool {
	if !s.head.IsExecuted() {
		return s.head.IsReady()
	}
	return s.pending.Ready() && s.tail.IsReady()
}

func (s *Split) IsExecuted() bool {
	return s.head.IsExecuted() && s.tail.IsExecuted()
}

// HasOptionalContext reports whether the head would rather wait for a value
// it could still receive.
func (s *Split) HasOptionalContext() bool {
	return !s.head.IsExecuted() && HasOptionalContext(s.head)
}

func (s *Split) WaitContext(key string, required bool, stream heap.Stream) {
	s.head.WaitContext(key, false, stream)
	if required {
		s.pending.Wait(key, true, stream)
	}
}

func (s *Split) Register(key string, v any, fresh bool, stream heap.Stream) {
	if s.head.IsExecuted() {
		s.tail.Register(key, v, fresh, stream)
	} else {
		s.head.Register(key, v, fresh, stream)
	}
	if !value.IsNull(v) || stream == heap.StreamSignal {
		s.pending.Resolve(key, stream, fresh)
	}
}

// Execute runs the head, or the tail once the head ran.
func (s *Split) Execute(ctx context.Context, drv Driver) error {
	if !s.head.IsExecuted() {
		return s.head.Execute(ctx, drv)
	}
	if !s.pending.Ready() {
		return &BuildError{Op: "split", Err: ErrNotReady}
	}
	return s.tail.Execute(ctx, drv)
}

func (s *Split) Complete() {
	s.head.Complete()
	s.tail.Complete()
	s.pending.Commit()
}

func (s *Split) Rollback() {
	s.tail.Rollback()
	s.head.Rollback()
	s.pending.Rollback()
}
