package batch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/ir"
)

func ptr(v int64) *int64 { return &v }

func upsertParams() Params {
	return Params{
		Target:     "cargo_types",
		Intent:     ir.IntentUpsert,
		CallerID:   "u1",
		UniqueKeys: []string{"cargo_type"},
	}
}

func TestBuildPreservesTraversalOrder(t *testing.T) {
	rows := []ir.ClassifiedRow{
		{GridRow: ir.GridRow{Position: 4, Fields: ir.IRObject{"cargo_type": ir.IRString("bulk")}}, Operation: ir.OpInsert},
		{GridRow: ir.GridRow{Position: 1, Fields: ir.IRObject{"id": ir.IRString("55"), "cargo_type": ir.IRString("gas")}}, Operation: ir.OpUpdate, ID: ptr(55)},
		{GridRow: ir.GridRow{Position: 9, Fields: ir.IRObject{"cargo_type": ir.IRString("ro-ro")}}, Operation: ir.OpInsert},
	}

	req, err := Build(upsertParams(), rows)
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"table_name": "cargo_types",
		"operation": "upsert",
		"userid": "u1",
		"unique_keys": ["cargo_type"],
		"rows": [
			{"cargo_type": "bulk"},
			{"id": 55, "cargo_type": "gas"},
			{"cargo_type": "ro-ro"}
		]
	}`, string(data))
}

func TestBuildRejectsRejectedRows(t *testing.T) {
	rows := []ir.ClassifiedRow{
		{GridRow: ir.GridRow{Position: 0}, Operation: ir.OpReject, Reason: ir.ReasonMissingFields},
	}
	_, err := Build(upsertParams(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 was rejected")
}

func TestBuildRequiresUniqueKeys(t *testing.T) {
	p := upsertParams()
	p.UniqueKeys = nil
	rows := []ir.ClassifiedRow{{Operation: ir.OpInsert, GridRow: ir.GridRow{Fields: ir.IRObject{"a": ir.IRInt(1)}}}}

	_, err := Build(p, rows)
	require.Error(t, err)
	assert.True(t, ir.IsUniqueKeysNotConfigured(err))
}

func TestBuildDeleteWithoutUniqueKeys(t *testing.T) {
	p := Params{Target: "cargo_types", Intent: ir.IntentDelete, CallerID: "u1"}
	rows := []ir.ClassifiedRow{{Operation: ir.OpDelete, ID: ptr(3), GridRow: ir.GridRow{Fields: ir.IRObject{"id": ir.IRInt(3)}}}}

	req, err := Build(p, rows)
	require.NoError(t, err)
	assert.Equal(t, []string{}, req.UniqueKeys)
	require.Len(t, req.Rows, 1)
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(3)}, req.Rows[0].Object())
}

func TestBuildIntentMismatch(t *testing.T) {
	p := upsertParams()
	p.Intent = ir.IntentInsert
	rows := []ir.ClassifiedRow{{Operation: ir.OpUpdate, ID: ptr(1)}}

	_, err := Build(p, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"insert" batch cannot carry`)
}

func TestBuildInvalidIntentAndEmptyRows(t *testing.T) {
	p := upsertParams()
	p.Intent = "merge"
	_, err := Build(p, []ir.ClassifiedRow{{Operation: ir.OpInsert}})
	require.Error(t, err)

	_, err = Build(upsertParams(), nil)
	require.Error(t, err)
	assert.True(t, ir.IsNoRowsSelected(err))
}

func TestBuildCopiesIdentifiers(t *testing.T) {
	id := int64(10)
	rows := []ir.ClassifiedRow{{Operation: ir.OpUpdate, ID: &id, GridRow: ir.GridRow{Fields: ir.IRObject{"cargo_type": ir.IRString("x")}}}}

	req, err := Build(upsertParams(), rows)
	require.NoError(t, err)
	id = 11

	assert.Equal(t, int64(10), *req.Rows[0].ID)
}
