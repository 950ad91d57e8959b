package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/catalog"
)

func TestTablesFromCatalogDir(t *testing.T) {
	root, _ := testRoot(t, "text")

	out, err := execute(NewTablesCommand(root), "")
	require.NoError(t, err)
	assert.Contains(t, out, "master\n")
	assert.Contains(t, out, "cargo_types")
	assert.Contains(t, out, "cargo_type, tenant_id")
	assert.Contains(t, out, "Cargo classifications")

	// Types are listed in sorted order.
	assert.Less(t, strings.Index(out, "log\n"), strings.Index(out, "master\n"))
	assert.Less(t, strings.Index(out, "master\n"), strings.Index(out, "reference\n"))
}

func TestTablesJSONGroups(t *testing.T) {
	root, _ := testRoot(t, "json")

	out, err := execute(NewTablesCommand(root), "")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []TableGroup `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "master", resp.Data[1].Type)
	require.Len(t, resp.Data[1].Tables, 2)
	assert.Equal(t, "cargo_types", resp.Data[1].Tables[0].Name)
	assert.Equal(t, []string{"port_code"}, resp.Data[1].Tables[1].UniqueKeys)
}

func TestTablesPublishThenRemote(t *testing.T) {
	root, st := testRoot(t, "text")

	_, err := execute(NewTablesCommand(root), "", "--publish")
	require.NoError(t, err)

	records, err := st.Fetch(context.Background(), catalog.RemoteTarget)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	// Publishing again versions the rows instead of duplicating them.
	_, err = execute(NewTablesCommand(root), "", "--publish")
	require.NoError(t, err)
	records, err = st.Fetch(context.Background(), catalog.RemoteTarget)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, r := range records {
		assert.Equal(t, int64(2), mustID(t, r["version"]))
	}

	out, err := execute(NewTablesCommand(root), "", "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, "currencies")
	assert.Contains(t, out, "iso_code")
}

func TestTablesRemoteEmpty(t *testing.T) {
	root, _ := testRoot(t, "text")

	out, err := execute(NewTablesCommand(root), "", "--remote")
	require.NoError(t, err)
	assert.Equal(t, "No tables.\n", out)
}

func TestTablesMissingCatalogDir(t *testing.T) {
	root, _ := testRoot(t, "text")
	root.cfg.CatalogDir = filepath.Join(t.TempDir(), "absent")

	out, err := execute(NewTablesCommand(root), "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [CATALOG_ERROR]")
}

func TestResolveTablePrefersLocalCatalog(t *testing.T) {
	root, st := testRoot(t, "text")
	ctx := context.Background()

	table, err := resolveTable(ctx, root.cfg.CatalogDir, st, "ports")
	require.NoError(t, err)
	assert.Equal(t, []string{"port_code"}, table.UniqueKeys)

	_, err = resolveTable(ctx, "", st, "ports")
	assert.ErrorIs(t, err, errUnknownTable, "store catalog is empty")

	cat, errs := catalog.Load(catalogDir, catalog.LoadModeFailFast)
	require.Empty(t, errs)
	_, err = publishCatalog(ctx, st, cat, "tester")
	require.NoError(t, err)

	table, err = resolveTable(ctx, "", st, "currencies")
	require.NoError(t, err)
	assert.Equal(t, "reference", table.Type)
}
