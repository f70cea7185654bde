package command

import (
	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/value"
)

// target holds what every storage command shares: where it writes, what it
// waits for and whether it ran.
type target struct {
	database string
	table    string
	pending  heap.Pending
	executed bool
}

func (t *target) Database() string {
	return t.database
}

func (t *target) Table() string {
	return t.table
}

func (t *target) IsExecuted() bool {
	return t.executed
}

func (t *target) WaitContext(key string, required bool, stream heap.Stream) {
	t.pending.Wait(key, required, stream)
}

func (t *target) HasOptionalContext() bool {
	return t.pending.HasOptional()
}

// Waiting returns the outstanding waits.
func (t *target) Waiting() []heap.ContextKey {
	return t.pending.Keys()
}

func (t *target) Satisfy() {
	t.executed = true
}

// resolve clears a wait unless v is null. Signals resolve regardless of
// their value.
func (t *target) resolve(key string, v any, fresh bool, stream heap.Stream) {
	if value.IsNull(v) && stream != heap.StreamSignal {
		return
	}
	t.pending.Resolve(key, stream, fresh)
}

func mergeInto(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
