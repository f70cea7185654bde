package command

import (
	"context"

	"github.com/roach88/orbit/internal/heap"
)

// Merge coalesces several writes to the same row. The columns of every part
// are folded into the primary write, which runs once; the parts are then
// marked satisfied.
type Merge struct {
	primary StoreCommand
	parts   []StoreCommand
}

var _ StoreCommand = (*Merge)(nil)

// NewMerge returns a merge of parts into primary.
func NewMerge(primary StoreCommand, parts ...StoreCommand) *Merge {
	m := &Merge{primary: primary}
	for _, p := range parts {
		m.Add(p)
	}
	return m
}

// Add folds another part into the merge.
func (m *Merge) Add(part StoreCommand) {
	if part == nil {
		return
	}
	m.parts = append(m.parts, part)
}

func (m *Merge) Primary() StoreCommand {
	return m.primary
}

func (m *Merge) Parts() []StoreCommand {
	return m.parts
}

func (m *Merge) Database() string {
	return m.primary.Database()
}

func (m *Merge) Table() string {
	return m.primary.Table()
}

func (m *Merge) IsReady() bool {
	if !m.primary.IsReady() {
		return false
	}
	for _, p := range m.parts {
		if !p.IsReady() {
			return false
		}
	}
	return true
}

func (m *Merge) IsExecuted() bool {
	return m.primary.IsExecuted()
}

func (m *Merge) HasOptionalContext() bool {
	if HasOptionalContext(m.primary) {
		return true
	}
	for _, p := range m.parts {
		if HasOptionalContext(p) {
			return true
		}
	}
	return false
}

func (m *Merge) WaitContext(key string, required bool, stream heap.Stream) {
	m.primary.WaitContext(key, required, stream)
}

func (m *Merge) Register(key string, v any, fresh bool, stream heap.Stream) {
	m.primary.Register(key, v, fresh, stream)
}

// Columns returns the union of all columns. Later parts win on conflicts.
func (m *Merge) Columns() map[string]any {
	cols := m.primary.Columns()
	for _, p := range m.parts {
		cols = mergeInto(cols, p.Columns())
	}
	return cols
}

func (m *Merge) MergeColumns(columns map[string]any) {
	m.primary.MergeColumns(columns)
}

func (m *Merge) Satisfy() {
	m.primary.Satisfy()
	for _, p := range m.parts {
		p.Satisfy()
	}
}

func (m *Merge) Execute(ctx context.Context, drv Driver) error {
	if m.primary.IsExecuted() {
		return nil
	}
	for _, p := range m.parts {
		m.primary.MergeColumns(p.Columns())
	}
	if err := m.primary.Execute(ctx, drv); err != nil {
		return err
	}
	for _, p := range m.parts {
		p.Satisfy()
	}
	return nil
}

func (m *Merge) Complete() {
	m.primary.Complete()
	for _, p := range m.parts {
		p.Complete()
	}
}

func (m *Merge) Rollback() {
	for i := len(m.parts) - 1; i >= 0; i-- {
		m.parts[i].Rollback()
	}
	m.primary.Rollback()
}
