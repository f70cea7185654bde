package schema

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertBlogSchema(t *testing.T, reg *Registry) {
	t.Helper()
	assert.Equal(t, []string{"address", "comment", "user"}, reg.Roles())

	user, err := reg.Role("user")
	require.NoError(t, err)
	assert.Equal(t, "users", user.Table)
	assert.Equal(t, [][]string{{"id"}, {"email"}}, reg.Indexes("user"))
	require.Len(t, user.Relations, 3)
	assert.Equal(t, "comments", user.Relations[0].Name, "declaration order kept")
	assert.Equal(t, HasMany, user.Relations[0].Type)
	assert.True(t, user.Relations[0].Cascade)

	favorite, ok := user.Relation("favorite")
	require.True(t, ok)
	assert.Equal(t, RefersTo, favorite.Type)
	assert.Equal(t, "favorite_id", favorite.InnerKey)
	assert.True(t, favorite.Nullable)

	address, ok := user.Relation("address")
	require.True(t, ok)
	assert.Equal(t, "address_", address.Prefix)

	embedded, err := reg.Role("address")
	require.NoError(t, err)
	assert.True(t, embedded.Embeddable)
	assert.Equal(t, []string{"city", "zip"}, embedded.Columns)

	warnings, err := AnalyzeCycles(reg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, LevelInfo, warnings[0].Level)
}

func TestLoadFile_CUE(t *testing.T) {
	reg, err := LoadFile("testdata/blog.cue")
	require.NoError(t, err)
	assertBlogSchema(t, reg)
}

func TestLoadFile_YAML(t *testing.T) {
	reg, err := LoadFile("testdata/blog.yaml")
	require.NoError(t, err)
	assertBlogSchema(t, reg)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.cue"))
	assert.ErrorContains(t, err, "read schema")

	txt := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = LoadFile(txt)
	assert.ErrorContains(t, err, "unsupported schema file")
}

func TestCompileCUE_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"no roles", `other: 1`, "role"},
		{"missing type", `role: a: {table: "a", primary: "id", relations: b: {target: "b"}}`, "relations.b.type"},
		{"bad type", `role: a: {table: "a", primary: "id", relations: b: {type: "owns", target: "b"}}`, "relations.b.type"},
		{"missing target", `role: a: {table: "a", primary: "id", relations: b: {type: "hasOne"}}`, "relations.b.target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			_, err := CompileCUE(v)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileCUE_TypeError(t *testing.T) {
	_, err := LoadCUE([]byte("role: a: {\n\ttable: 42\n}\n"), "bad.cue")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "42")
}

func TestDecodeYAML_Errors(t *testing.T) {
	_, err := DecodeYAML([]byte("roles:\n  - name: a\n    tabel: a\n"))
	assert.ErrorContains(t, err, "tabel", "unknown fields are rejected")

	_, err = DecodeYAML([]byte("roles: []\n"))
	var ce *CompileError
	assert.ErrorAs(t, err, &ce)

	_, err = DecodeYAML([]byte("roles:\n  - name: a\n    relations:\n      - {name: b, type: owns, target: b}\n"))
	assert.ErrorContains(t, err, "unknown relation type")
}
