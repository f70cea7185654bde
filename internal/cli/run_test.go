package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand_Text(t *testing.T) {
	out, err := execute(t, "run", userComment)

	require.NoError(t, err)
	assert.Contains(t, out, "unit 0")
	assert.Contains(t, out, `[1] INSERT INTO "users" ("email", "name") VALUES (?, ?) [ann@example.com ann]`)
	assert.Contains(t, out, `[2] INSERT INTO "comments"`)
	assert.Contains(t, out, "✓ user_comment (2 statements)")
}

func TestRunCommand_JSON(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", userComment)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "user_comment", resp.Data.Scenario)
	require.NotNil(t, resp.Data.Result)
	assert.True(t, resp.Data.Pass)
	require.Len(t, resp.Data.Trace, 2)
	assert.Equal(t, "insert", resp.Data.Trace[0].Op)
	assert.Equal(t, "users", resp.Data.Trace[0].Table)
}

func TestRunCommand_ExpectedFailurePasses(t *testing.T) {
	out, err := execute(t, "run", rollbackOnFail)

	require.NoError(t, err)
	assert.Contains(t, out, "unit 0 rolled back:")
	assert.Contains(t, out, "✓ rollback_on_failure")
}

func TestRunCommand_Metrics(t *testing.T) {
	cmd := NewRootCommand()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"run", "--metrics", userComment})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, errOut.String(), `orbit_unit_of_work_runs_total{outcome="success"} 1`)
	assert.Contains(t, errOut.String(), "# HELP orbit_rollbacks_total")
}

func TestRunCommand_FileDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "orbit.db")

	_, err := execute(t, "run", "--db", db, userComment)

	require.NoError(t, err)
	assert.FileExists(t, db)
}

func TestRunCommand_InvalidPolicy(t *testing.T) {
	_, err := execute(t, "run", "--policy", "sometimes", userComment)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown transaction policy")
}

func TestRunCommand_MissingScenario(t *testing.T) {
	out, err := execute(t, "run", "missing.yaml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestRunCommand_FailingScenario(t *testing.T) {
	schemaPath, err := filepath.Abs(blogSchema)
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "wrong.yaml", `name: wrong
description: expects a statement that never runs
schema: `+schemaPath+`
entities:
  ann:
    role: user
    fields: {name: ann}
units:
  - persist: [ann]
assertions:
  - type: statement_count
    op: delete
    count: 1
`)

	out, err := execute(t, "run", path)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
}
