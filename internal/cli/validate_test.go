package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCatalog(t *testing.T) {
	root, _ := testRoot(t, "text")

	out, err := execute(NewValidateCommand(root), "", catalogDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Catalog valid (4 table(s))")
}

func TestValidateDefaultsToConfiguredDir(t *testing.T) {
	root, _ := testRoot(t, "json")

	out, err := execute(NewValidateCommand(root), "")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 4, resp.Data.Tables)
}

func TestValidateReportsAllErrors(t *testing.T) {
	dir := t.TempDir()
	src := `package tables

table: BadName: {
	type:        "master"
	unique_keys: ["code"]
}

table: ports: {
	type:        "master"
	unique_keys: ["id", "port_code", "port_code"]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tables.cue"), []byte(src), 0o644))
	root, _ := testRoot(t, "text")

	out, err := execute(NewValidateCommand(root), "", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, out, "✗ Catalog invalid")
	assert.Contains(t, out, "E105")
	assert.Contains(t, out, "E104")
	assert.Contains(t, out, "E103")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	root, _ := testRoot(t, "json")

	out, err := execute(NewValidateCommand(root), "", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Details, "errors")
}
