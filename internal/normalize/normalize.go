// Package normalize turns the raw rows of a grid selection into the clean
// field maps the classifier works on.
package normalize

import "github.com/roach88/gridsync/internal/ir"

// Messages reported with NO_ROWS_SELECTED.
const (
	MsgNoSelection = "No rows selected."
	MsgNoDataRows  = "No valid data rows found in the selection."
)

// Normalize drops blank rows, collapses repeated selections of the same grid
// position, strips empty fields and injects the system fields.
//
// Rows keep their first-seen order; when a position was selected more than
// once the last-seen values win. System fields overwrite whatever the grid
// holds for those columns.
//
// Returns a NO_ROWS_SELECTED error when rows is empty or every row is blank.
func Normalize(rows []ir.GridRow, system ir.IRObject) ([]ir.GridRow, error) {
	if len(rows) == 0 {
		return nil, ir.NewNoRowsSelected(MsgNoSelection)
	}

	var order []int
	latest := make(map[int]ir.IRObject, len(rows))
	for _, row := range rows {
		if isBlank(row.Fields) {
			continue
		}
		if _, seen := latest[row.Position]; !seen {
			order = append(order, row.Position)
		}
		latest[row.Position] = row.Fields
	}

	if len(order) == 0 {
		return nil, ir.NewNoRowsSelected(MsgNoDataRows)
	}

	out := make([]ir.GridRow, 0, len(order))
	for _, pos := range order {
		out = append(out, ir.GridRow{
			Position: pos,
			Fields:   clean(latest[pos], system),
		})
	}
	return out, nil
}

// isBlank reports whether every cell of the row is empty.
func isBlank(fields ir.IRObject) bool {
	for _, v := range fields {
		if !ir.IsEmpty(v) {
			return false
		}
	}
	return true
}

func clean(fields, system ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(fields)+len(system))
	for k, v := range fields {
		if ir.IsEmpty(v) {
			continue
		}
		out[k] = v
	}
	for k, v := range system {
		out[k] = v
	}
	return out
}
