package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/ir"
)

func TestPullCreatesSheet(t *testing.T) {
	root, _ := testRoot(t, "text")
	_, err := execute(NewPushCommand(root), "", "ports", writeSheet(t, portsSheet))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pulled.csv")
	out, err := execute(NewPullCommand(root), "", "ports", path)
	require.NoError(t, err)
	assert.Equal(t, "Success: Successfully loaded 2 record(s).\n", out)

	sheet := readSheet(t, path)
	require.Equal(t, 2, sheet.Len())
	headers := sheet.Headers()
	require.NotEmpty(t, headers)
	assert.Equal(t, ir.IDField, headers[0], "the identifier leads")
	assert.Contains(t, headers, "port_code")
	assert.Contains(t, headers, "created_by")
}

func TestPullEmptyTable(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := filepath.Join(t.TempDir(), "empty.csv")

	out, err := execute(NewPullCommand(root), "", "ports", path)
	require.NoError(t, err)
	assert.Equal(t, "Warning: No data found. Headers created.\n", out)
}

func TestPullJSON(t *testing.T) {
	root, _ := testRoot(t, "json")
	path := filepath.Join(t.TempDir(), "pulled.csv")

	out, err := execute(NewPullCommand(root), "", "ports", path)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ir.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.TitleWarning, resp.Data.Title)
}

func TestRefreshRestoresStoreValues(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)
	_, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)

	sheet := readSheet(t, path)
	require.NoError(t, sheet.WriteRow(0, ir.IRObject{"name": ir.IRString("local edit")}))
	require.NoError(t, sheet.WriteRow(1, ir.IRObject{"name": ir.IRString("other edit")}))
	require.NoError(t, saveSheet(path, sheet))

	out, err := execute(NewRefreshCommand(root), "", "ports", path, "--rows", "1")
	require.NoError(t, err)
	assert.Equal(t, "Success: 1 row(s) refreshed.\n", out)

	sheet = readSheet(t, path)
	assert.Equal(t, ir.IRString("Rotterdam"), sheet.Cell(0, "name"))
	assert.Equal(t, ir.IRString("other edit"), sheet.Cell(1, "name"), "unselected row keeps its edit")
}

func TestRefreshWithoutIDs(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewRefreshCommand(root), "", "ports", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsNoRowsSelected(err))
	assert.Contains(t, out, "Error [NO_ROWS_SELECTED]")
}

func TestRefreshMissingSheet(t *testing.T) {
	root, _ := testRoot(t, "text")

	_, err := execute(NewRefreshCommand(root), "", "ports", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "only pull creates a sheet")
}
