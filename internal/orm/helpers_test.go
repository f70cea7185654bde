package orm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/schema"
	"github.com/roach88/orbit/internal/testutil"
	"github.com/roach88/orbit/internal/transaction"
)

// blogRegistry: users own comments, point at a favorite comment and embed
// an address.
func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Role{
			Name:       "user",
			Table:      "users",
			PrimaryKey: "id",
			Columns:    []string{"name", "email"},
			Indexes:    [][]string{{"email"}},
			Relations: []schema.Relation{
				{Name: "comments", Type: schema.HasMany, Target: "comment", Cascade: true},
				{Name: "favorite", Type: schema.RefersTo, Target: "comment", InnerKey: "favorite_id"},
				{Name: "address", Type: schema.Embedded, Target: "address", Prefix: "address_"},
			},
		},
		schema.Role{
			Name:       "comment",
			Table:      "comments",
			PrimaryKey: "id",
			Columns:    []string{"body"},
			Relations: []schema.Relation{
				{Name: "user", Type: schema.BelongsTo, Target: "user"},
			},
		},
		schema.Role{Name: "address", Embeddable: true, Columns: []string{"city", "zip"}},
		schema.Role{Name: "person", Table: "people", PrimaryKey: "id", Columns: []string{"name"}, Discriminator: "kind"},
		schema.Role{Name: "admin", Extends: "person", Columns: []string{"level"}},
	)
	require.NoError(t, err)
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestORM(t *testing.T, drv command.Driver) *ORM {
	t.Helper()
	return New(blogRegistry(t),
		WithDriver(schema.DefaultDatabase, drv),
		WithLogger(quietLogger()),
		WithUnitOfWorkOptions(transaction.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1"))),
	)
}

// persist registers entities in order and runs one unit of work.
func persist(t *testing.T, o *ORM, entities ...any) *transaction.Result {
	t.Helper()
	uow := o.NewUnitOfWork()
	for _, e := range entities {
		require.NoError(t, uow.Persist(e))
	}
	r, err := uow.Run(t.Context())
	require.NoError(t, err)
	return r
}

func statements(drv *testutil.MemoryDriver) []string {
	var out []string
	for _, st := range drv.Statements() {
		out = append(out, st.String())
	}
	return out
}
