package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		values  map[string]any
		pk      string
		sql     string
		args    []any
	}{
		{
			name:    "sqlite",
			dialect: SQLite,
			values:  map[string]any{"name": "ann", "balance": 100},
			pk:      "id",
			sql:     `INSERT INTO "users" ("balance", "name") VALUES (?, ?)`,
			args:    []any{100, "ann"},
		},
		{
			name:    "postgres returning",
			dialect: Postgres,
			values:  map[string]any{"name": "ann", "balance": 100},
			pk:      "id",
			sql:     `INSERT INTO "users" ("balance", "name") VALUES ($1, $2) RETURNING "id"`,
			args:    []any{100, "ann"},
		},
		{
			name:    "default values",
			dialect: SQLite,
			values:  map[string]any{},
			pk:      "id",
			sql:     `INSERT INTO "users" DEFAULT VALUES`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewCompiler(tt.dialect).Insert("users", tt.values, tt.pk)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, st.SQL)
			assert.Equal(t, tt.args, st.Args)
			assert.Equal(t, tt.dialect == Postgres, st.Returning)
		})
	}
}

func TestInsert_ValuesNeverInterpolated(t *testing.T) {
	st, err := NewCompiler(SQLite).Insert("users", map[string]any{"name": "'; DROP TABLE users; --"}, "id")
	require.NoError(t, err)

	assert.NotContains(t, st.SQL, "DROP")
	assert.Equal(t, []any{"'; DROP TABLE users; --"}, st.Args)
}

func TestInsert_StructuredValuesAsJSON(t *testing.T) {
	st, err := NewCompiler(SQLite).Insert("events", map[string]any{
		"payload": map[string]any{"b": 1, "a": []any{"x"}},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, []any{`{"a":["x"],"b":1}`}, st.Args)
}

func TestUpdate(t *testing.T) {
	st, err := NewCompiler(Postgres).Update("users",
		map[string]any{"name": "bob", "email": nil},
		map[string]any{"id": 5},
	)
	require.NoError(t, err)

	assert.Equal(t, `UPDATE "users" SET "email" = $1, "name" = $2 WHERE "id" = $3`, st.SQL)
	assert.Equal(t, []any{nil, "bob", 5}, st.Args)
}

func TestUpdate_Errors(t *testing.T) {
	c := NewCompiler(SQLite)

	_, err := c.Update("users", nil, map[string]any{"id": 1})
	assert.ErrorIs(t, err, ErrNoValues)

	_, err = c.Update("users", map[string]any{"a": 1}, nil)
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestDelete(t *testing.T) {
	st, err := NewCompiler(SQLite).Delete("comments", map[string]any{"user_id": 3, "parent_id": nil})
	require.NoError(t, err)

	assert.Equal(t, `DELETE FROM "comments" WHERE "parent_id" IS NULL AND "user_id" = ?`, st.SQL)
	assert.Equal(t, []any{3}, st.Args)

	_, err = NewCompiler(SQLite).Delete("comments", map[string]any{})
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		columns []string
		scope   map[string]any
		sql     string
	}{
		{
			name:    "sqlite all columns",
			dialect: SQLite,
			scope:   map[string]any{"id": 1},
			sql:     `SELECT * FROM "users" WHERE "id" = ? ORDER BY "id" ASC COLLATE BINARY`,
		},
		{
			name:    "postgres listed columns",
			dialect: Postgres,
			columns: []string{"id", "name"},
			scope:   map[string]any{"email": "a@b", "id": 1},
			sql:     `SELECT "id", "name" FROM "users" WHERE "email" = $1 AND "id" = $2 ORDER BY "id" ASC`,
		},
		{
			name:    "no scope",
			dialect: SQLite,
			sql:     `SELECT * FROM "users" ORDER BY "id" ASC COLLATE BINARY`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewCompiler(tt.dialect).Select("users", tt.columns, tt.scope, "id")
			require.NoError(t, err)
			assert.Equal(t, tt.sql, st.SQL)
		})
	}
}

func TestInvalidIdentifiers(t *testing.T) {
	c := NewCompiler(SQLite)

	_, err := c.Insert("users; --", map[string]any{"a": 1}, "id")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = c.Insert("users", map[string]any{"a b": 1}, "id")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = c.Delete("users", map[string]any{`id"`: 1})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = c.Select("users", nil, nil, "")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestUnsupportedParameter(t *testing.T) {
	_, err := NewCompiler(SQLite).Insert("users", map[string]any{"ch": make(chan int)}, "")
	assert.ErrorContains(t, err, "unsupported parameter type")
}

func TestParseDialect(t *testing.T) {
	for _, in := range []string{"sqlite", "SQLite3", ""} {
		d, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, SQLite, d)
	}
	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "postgres", d.String())

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestCreateTable(t *testing.T) {
	sql, err := NewCompiler(SQLite).CreateTable("users", "id", []string{"id", "name", "email"})
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "users" ("id" INTEGER PRIMARY KEY, "name", "email")`, sql)

	_, err = NewCompiler(Postgres).CreateTable("users", "id", nil)
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}
