package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/config"
	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/store"
	"github.com/roach88/gridsync/internal/testutil"
)

var catalogDir = filepath.Join("..", "catalog", "testdata", "tables")

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cli.db"),
		store.WithClock(testutil.NewSteppingTime(testutil.Epoch, 0).Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testRoot returns root options wired to a fresh store and the test catalog.
func testRoot(t *testing.T, format string) (*RootOptions, *store.Store) {
	t.Helper()
	st := createTestStore(t)
	cfg := config.Default()
	cfg.CatalogDir = catalogDir
	cfg.CallerID = "tester"
	return &RootOptions{Format: format, cfg: cfg, store: st}, st
}

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readSheet(t *testing.T, path string) *grid.Sheet {
	t.Helper()
	s, err := loadSheet(path)
	require.NoError(t, err)
	return s
}

func execute(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const portsSheet = "id,port_code,name,version\n,NLRTM,Rotterdam,\n,SGSIN,Singapore,\n"

func TestPushInsertsAndWritesBack(t *testing.T) {
	root, st := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)
	assert.Equal(t, "Success: 2 row(s) created\n", out)

	sheet := readSheet(t, path)
	for pos := 0; pos < 2; pos++ {
		_, ok := ir.AsID(sheet.Cell(pos, ir.IDField))
		assert.True(t, ok, "row %d has an id", pos+1)
		assert.Equal(t, ir.IRInt(1), sheet.Cell(pos, "version"))
	}

	records, err := st.Fetch(context.Background(), "ports")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPushSelectedRows(t *testing.T) {
	root, st := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewPushCommand(root), "", "ports", path, "--rows", "2")
	require.NoError(t, err)
	assert.Equal(t, "Success: 1 row(s) created\n", out)

	sheet := readSheet(t, path)
	assert.True(t, ir.IsEmpty(sheet.Cell(0, ir.IDField)), "unselected row is untouched")
	assert.False(t, ir.IsEmpty(sheet.Cell(1, ir.IDField)))

	records, err := st.Fetch(context.Background(), "ports")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ir.IRString("SGSIN"), records[0]["port_code"])
}

func TestPushUpdateBumpsVersion(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	_, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)

	sheet := readSheet(t, path)
	require.NoError(t, sheet.WriteRow(0, ir.IRObject{"name": ir.IRString("Port of Rotterdam")}))
	require.NoError(t, saveSheet(path, sheet))

	out, err := execute(NewPushCommand(root), "", "ports", path, "--rows", "1")
	require.NoError(t, err)
	assert.Equal(t, "Success: 1 row(s) updated\n", out)

	sheet = readSheet(t, path)
	assert.Equal(t, ir.IRInt(2), sheet.Cell(0, "version"))
	assert.Equal(t, ir.IRInt(1), sheet.Cell(1, "version"))
}

func TestPushOutFlagLeavesInputUntouched(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)
	outPath := filepath.Join(t.TempDir(), "pushed.csv")

	_, err := execute(NewPushCommand(root), "", "ports", path, "--out", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, portsSheet, string(data))
	assert.False(t, ir.IsEmpty(readSheet(t, outPath).Cell(0, ir.IDField)))
}

func TestPushPartialFailure(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, "id,port_code,name\n999,XXTST,Nowhere\n,NLRTM,Rotterdam\n")

	out, err := execute(NewPushCommand(root), "", "ports", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsPartialFailure(err))
	assert.True(t, IsReported(err))

	assert.Contains(t, out, "Warning: 1 row(s) created. 1 row(s) failed")
	assert.Contains(t, out, "row 1: record 999 not found or not active")

	sheet := readSheet(t, path)
	assert.Equal(t, ir.IRInt(999), sheet.Cell(0, ir.IDField), "failed row keeps its id")
	assert.False(t, ir.IsEmpty(sheet.Cell(1, ir.IDField)))
}

func TestPushAllRowsFailed(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, "id,port_code,name\n999,XXTST,Nowhere\n")

	out, err := execute(NewPushCommand(root), "", "ports", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsRowsFailed(err))
	assert.True(t, IsReported(err))

	assert.Contains(t, out, "Warning: 1 row(s) failed")
	assert.Contains(t, out, "row 1: record 999 not found or not active")
}

func TestPushJSONCarriesReport(t *testing.T) {
	root, _ := testRoot(t, "json")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		PassID string `json:"pass_id"`
		Data   struct {
			Intent  string     `json:"intent"`
			Target  string     `json:"target"`
			Summary ir.Summary `json:"summary"`
			Result  struct {
				Inserted int `json:"inserted"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.PassID)
	assert.Equal(t, "upsert", resp.Data.Intent)
	assert.Equal(t, "ports", resp.Data.Target)
	assert.Equal(t, 2, resp.Data.Result.Inserted)
	assert.Equal(t, "2 row(s) created", resp.Data.Summary.Message)
}

func TestPushStampsTenant(t *testing.T) {
	root, st := testRoot(t, "text")
	tenant := int64(7)
	root.cfg.TenantID = &tenant
	path := writeSheet(t, "id,cargo_type,description\n,bulk,dry bulk\n")

	out, err := execute(NewPushCommand(root), "", "cargo_types", path)
	require.NoError(t, err)
	assert.Equal(t, "Success: 1 row(s) created\n", out)

	records, err := st.Fetch(context.Background(), "cargo_types")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), mustID(t, records[0]["tenant_id"]))
	assert.Equal(t, ir.IRString("tester"), records[0]["created_by"])
}

func TestPushWithoutUniqueKeys(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, "id,note\n,checked\n")

	out, err := execute(NewPushCommand(root), "", "audit_notes", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, ir.IsUniqueKeysNotConfigured(err))
	assert.Contains(t, out, "Error [UNIQUE_KEYS_NOT_CONFIGURED]")
}

func TestPushUnknownTable(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewPushCommand(root), "", "harbours", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, errUnknownTable)
	assert.Contains(t, out, "Error [COMMAND_ERROR]")
}

func TestPushMissingSheet(t *testing.T) {
	root, _ := testRoot(t, "text")

	_, err := execute(NewPushCommand(root), "", "ports", filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPushInvalidRows(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	_, err := execute(NewPushCommand(root), "", "ports", path, "--rows", "5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPushWritesMetricsFile(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)
	metricsPath := filepath.Join(t.TempDir(), "gridsync.prom")

	_, err := execute(NewPushCommand(root), "", "ports", path, "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gridsync_passes_total{intent="upsert",result="ok"} 1`)
}

func TestDeleteWithConfirmation(t *testing.T) {
	root, st := testRoot(t, "text")
	path := writeSheet(t, portsSheet)
	_, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)

	out, err := execute(NewDeleteCommand(root), "n\n", "ports", path, "--rows", "1")
	require.NoError(t, err)
	assert.Empty(t, out, "declined delete prints no summary")
	records, err := st.Fetch(context.Background(), "ports")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	out, err = execute(NewDeleteCommand(root), "yes\n", "ports", path, "--rows", "1")
	require.NoError(t, err)
	assert.Equal(t, "Success: 1 row(s) successfully deleted.\n", out)

	records, err = st.Fetch(context.Background(), "ports")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ir.IRString("SGSIN"), records[0]["port_code"])
}

func TestDeleteYesSkipsPrompt(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)
	_, err := execute(NewPushCommand(root), "", "ports", path)
	require.NoError(t, err)

	out, err := execute(NewDeleteCommand(root), "", "ports", path, "--yes")
	require.NoError(t, err)
	assert.Equal(t, "Success: 2 row(s) successfully deleted.\n", out)
}

func TestDeleteRowsWithoutID(t *testing.T) {
	root, _ := testRoot(t, "text")
	path := writeSheet(t, portsSheet)

	out, err := execute(NewDeleteCommand(root), "", "ports", path, "--yes")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [")
}

func mustID(t *testing.T, v ir.IRValue) int64 {
	t.Helper()
	id, ok := ir.AsID(v)
	require.True(t, ok, "value %v is not an id", v)
	return id
}
