package command

import (
	"context"

	"github.com/roach88/orbit/internal/heap"
)

// Wrapped decorates an executable command with hooks. The hooks never change
// what the inner command writes.
type Wrapped struct {
	inner      Executable
	before     []func()
	after      []func()
	onComplete []func()
	onRollback []func()
}

var _ Executable = (*Wrapped)(nil)

// Wrap returns inner decorated with no hooks.
func Wrap(inner Executable) *Wrapped {
	return &Wrapped{inner: inner}
}

// Inner returns the decorated command.
func (w *Wrapped) Inner() Executable {
	return w.inner
}

// OnBefore adds a hook run before the inner command executes.
func (w *Wrapped) OnBefore(fn func()) *Wrapped {
	w.before = append(w.before, fn)
	return w
}

// OnAfter adds a hook run after the inner command executed successfully.
func (w *Wrapped) OnAfter(fn func()) *Wrapped {
	w.after = append(w.after, fn)
	return w
}

// OnComplete adds a hook run when the transaction committed.
func (w *Wrapped) OnComplete(fn func()) *Wrapped {
	w.onComplete = append(w.onComplete, fn)
	return w
}

// OnRollback adds a hook run when the command is rolled back.
func (w *Wrapped) OnRollback(fn func()) *Wrapped {
	w.onRollback = append(w.onRollback, fn)
	return w
}

func (w *Wrapped) Database() string {
	return w.inner.Database()
}

func (w *Wrapped) IsReady() bool {
	return w.inner.IsReady()
}

func (w *Wrapped) IsExecuted() bool {
	return w.inner.IsExecuted()
}

func (w *Wrapped) HasOptionalContext() bool {
	return HasOptionalContext(w.inner)
}

func (w *Wrapped) WaitContext(key string, required bool, stream heap.Stream) {
	w.inner.WaitContext(key, required, stream)
}

func (w *Wrapped) Register(key string, v any, fresh bool, stream heap.Stream) {
	w.inner.Register(key, v, fresh, stream)
}

func (w *Wrapped) Execute(ctx context.Context, drv Driver) error {
	if w.inner.IsExecuted() {
		return nil
	}
	for _, fn := range w.before {
		fn()
	}
	if err := w.inner.Execute(ctx, drv); err != nil {
		return err
	}
	for _, fn := range w.after {
		fn()
	}
	return nil
}

func (w *Wrapped) Complete() {
	w.inner.Complete()
	for _, fn := range w.onComplete {
		fn()
	}
}

func (w *Wrapped) Rollback() {
	w.inner.Rollback()
	for _, fn := range w.onRollback {
		fn()
	}
}
