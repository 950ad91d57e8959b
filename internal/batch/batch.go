// Package batch assembles the single bulk request sent to the store for one
// reconciliation pass.
package batch

import (
	"fmt"
	"slices"

	"github.com/roach88/gridsync/internal/ir"
)

// Params identifies the target and caller of a batch.
type Params struct {
	Target     string
	Intent     ir.Intent
	CallerID   string
	UniqueKeys []string
}

// Build assembles the request payload from classified rows.
//
// Rows appear in the order given, which must be the grid traversal order:
// the demultiplexer relies on it. Rejected rows are a caller bug and fail
// the build. Every intent except delete needs unique keys; delete rows are
// addressed by identifier alone.
func Build(p Params, rows []ir.ClassifiedRow) (ir.BatchRequest, error) {
	if !ir.ValidIntents[p.Intent] {
		return ir.BatchRequest{}, fmt.Errorf("build batch: invalid intent %q", p.Intent)
	}
	if p.Target == "" {
		return ir.BatchRequest{}, fmt.Errorf("build batch: target is required")
	}
	if len(p.UniqueKeys) == 0 && p.Intent != ir.IntentDelete {
		return ir.BatchRequest{}, ir.NewUniqueKeysNotConfigured(p.Target)
	}
	if len(rows) == 0 {
		return ir.BatchRequest{}, ir.NewNoRowsSelected("No rows to send.")
	}

	req := ir.BatchRequest{
		Target:     p.Target,
		Intent:     p.Intent,
		CallerID:   p.CallerID,
		UniqueKeys: slices.Clone(p.UniqueKeys),
		Rows:       make([]ir.RequestRow, 0, len(rows)),
	}
	if req.UniqueKeys == nil {
		req.UniqueKeys = []string{}
	}

	for _, r := range rows {
		if err := checkOperation(p.Intent, r); err != nil {
			return ir.BatchRequest{}, err
		}
		req.Rows = append(req.Rows, requestRow(r))
	}
	return req, nil
}

// checkOperation verifies a row's classification fits the batch intent.
func checkOperation(intent ir.Intent, r ir.ClassifiedRow) error {
	ok := false
	switch r.Operation {
	case ir.OpReject:
		return fmt.Errorf("build batch: row %d was rejected (%s) and cannot be sent", r.DisplayRow(), r.Reason)
	case ir.OpInsert:
		ok = intent == ir.IntentInsert || intent == ir.IntentUpsert
	case ir.OpUpdate:
		ok = intent == ir.IntentUpdate || intent == ir.IntentUpsert
	case ir.OpDelete:
		ok = intent == ir.IntentDelete
	}
	if !ok {
		return fmt.Errorf("build batch: row %d is classified %q, which a %q batch cannot carry",
			r.DisplayRow(), r.Operation, intent)
	}
	if (r.Operation == ir.OpUpdate || r.Operation == ir.OpDelete) && r.ID == nil {
		return fmt.Errorf("build batch: row %d is classified %q but has no identifier", r.DisplayRow(), r.Operation)
	}
	return nil
}

func requestRow(r ir.ClassifiedRow) ir.RequestRow {
	fields := make(ir.IRObject, len(r.Fields))
	for k, v := range r.Fields {
		if k == ir.IDField {
			continue
		}
		fields[k] = v
	}
	var id *int64
	if r.ID != nil {
		v := *r.ID
		id = &v
	}
	return ir.RequestRow{ID: id, Fields: fields}
}
