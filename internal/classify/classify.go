// Package classify decides, per normalized row, which store operation the
// row stands for.
//
// Classification is pure: it looks only at the row's own cells, never at the
// store. A row with a numeric identifier is an update, a row without one is
// an insert, and a row that fails validation is a reject.
package classify

import (
	"github.com/roach88/gridsync/internal/ir"
)

// MsgNoDeletableRows is reported when a delete selection has no identifiers.
const MsgNoDeletableRows = "No valid rows with IDs found. Only rows with IDs can be deleted."

// Rules are the required-field rules for one target.
type Rules struct {
	// SystemFields are injected by the normalizer and must be present.
	SystemFields []string

	// UniqueKeys identify an entity within the target.
	UniqueKeys []string
}

// Required returns the required field names: system fields first, then
// unique keys, each in declared order, without repeats.
func (r Rules) Required() []string {
	seen := make(map[string]bool, len(r.SystemFields)+len(r.UniqueKeys))
	var out []string
	for _, group := range [][]string{r.SystemFields, r.UniqueKeys} {
		for _, f := range group {
			if f == "" || f == ir.IDField || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Classify classifies every row for an insert/update/upsert pass.
//
// All rows are classified before returning. When any row is rejected the
// returned error is a VALIDATION_ERROR listing every rejected row; the
// classified slice is returned either way so callers can inspect it.
func Classify(rows []ir.GridRow, rules Rules) ([]ir.ClassifiedRow, error) {
	required := rules.Required()
	out := make([]ir.ClassifiedRow, 0, len(rows))
	var issues []ir.RowIssue

	for _, row := range rows {
		c := classifyRow(row, required)
		if c.Operation == ir.OpReject {
			issues = append(issues, issueFor(c))
		}
		out = append(out, c)
	}

	if len(issues) > 0 {
		return out, ir.NewValidationError(issues)
	}
	return out, nil
}

func classifyRow(row ir.GridRow, required []string) ir.ClassifiedRow {
	c := ir.ClassifiedRow{GridRow: row}

	id, present, ok := ParseID(row.Fields)
	if present && !ok {
		c.Operation = ir.OpReject
		c.Reason = ir.ReasonIDNotNumeric
	}

	c.Missing = MissingFields(row.Fields, required)
	if len(c.Missing) > 0 && c.Operation != ir.OpReject {
		c.Operation = ir.OpReject
		c.Reason = ir.ReasonMissingFields
	}
	if c.Operation == ir.OpReject {
		return c
	}

	if present {
		c.Operation = ir.OpUpdate
		c.ID = &id
	} else {
		c.Operation = ir.OpInsert
	}
	return c
}

// ClassifyForDelete classifies rows for a delete pass.
//
// Rows without an identifier cannot be deleted and are skipped silently.
// A malformed identifier rejects the row. Required fields are not checked.
// Returns NO_ROWS_SELECTED when nothing deletable remains.
func ClassifyForDelete(rows []ir.GridRow) ([]ir.ClassifiedRow, error) {
	var out []ir.ClassifiedRow
	var issues []ir.RowIssue

	for _, row := range rows {
		id, present, ok := ParseID(row.Fields)
		if !present {
			continue
		}
		c := ir.ClassifiedRow{GridRow: row}
		if !ok {
			c.Operation = ir.OpReject
			c.Reason = ir.ReasonIDNotNumeric
			issues = append(issues, issueFor(c))
		} else {
			c.Operation = ir.OpDelete
			c.ID = &id
		}
		out = append(out, c)
	}

	if len(issues) > 0 {
		return out, ir.NewValidationError(issues)
	}
	if len(out) == 0 {
		return nil, ir.NewNoRowsSelected(MsgNoDeletableRows)
	}
	return out, nil
}

// ParseID reads the identifier cell of a row.
// present is false when the cell is absent or blank; ok is false when a
// present cell is not an integral number.
func ParseID(fields ir.IRObject) (id int64, present, ok bool) {
	v, exists := fields[ir.IDField]
	if !exists || ir.IsEmpty(v) {
		return 0, false, false
	}
	id, ok = ir.AsID(v)
	return id, true, ok
}

// MissingFields lists the required fields that are absent or blank, in the
// order given.
func MissingFields(fields ir.IRObject, required []string) []string {
	var missing []string
	for _, f := range required {
		if ir.IsEmpty(fields[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Accepted returns the rows that were not rejected, in order.
func Accepted(rows []ir.ClassifiedRow) []ir.ClassifiedRow {
	out := make([]ir.ClassifiedRow, 0, len(rows))
	for _, r := range rows {
		if r.Operation != ir.OpReject {
			out = append(out, r)
		}
	}
	return out
}

func issueFor(c ir.ClassifiedRow) ir.RowIssue {
	return ir.RowIssue{
		Row:     c.DisplayRow(),
		Reason:  c.Reason,
		Missing: c.Missing,
	}
}
