package transaction

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// RunIDGenerator produces identifiers for unit-of-work runs. They show up in
// logs and errors so one run can be followed across attempts.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator generates "<prefix>-<n>" IDs. Use it in tests for
// deterministic output.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SequenceGenerator) Generate() string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "run"
	}
	return fmt.Sprintf("%s-%d", prefix, g.n.Add(1))
}
