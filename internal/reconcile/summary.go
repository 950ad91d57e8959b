package reconcile

import (
	"fmt"
	"strings"

	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
)

// Summary messages.
const (
	MsgNoChanges      = "No changes detected, update skipped."
	MsgDuplicate      = "Duplicate record, insert skipped"
	MsgNothingDeleted = "No rows were deleted."
	MsgNoRecordsFound = "No records found."
	MsgNoRowsWithID   = "No rows with ID detected. Please select rows with valid IDs."
	MsgNoMatchingRows = "No matching records found for the selected rows."
)

// Shortfall counts store results that did not fully reach the grid.
type Shortfall struct {
	// NotWritten is the number of bound rows whose write-back failed.
	NotWritten int
	// Withheld is the number of outcomes dropped because their queue did not
	// reconcile with the rows sent.
	Withheld int
}

// Any reports whether anything fell short.
func (s Shortfall) Any() bool {
	return s.NotWritten > 0 || s.Withheld > 0
}

func (s Shortfall) parts() []string {
	var parts []string
	if s.NotWritten > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) not written back", s.NotWritten))
	}
	if s.Withheld > 0 {
		parts = append(parts, fmt.Sprintf("%d result(s) withheld: store response did not reconcile", s.Withheld))
	}
	return parts
}

// UpsertSummary builds the message shown after an insert, update or upsert
// pass. The title is a warning whenever rows failed, a duplicate was
// skipped, results fell short of the grid or nothing changed.
func UpsertSummary(res ir.ReconciliationResult, sf Shortfall) ir.Summary {
	var parts []string
	if res.Inserted > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) created", res.Inserted))
	}
	if res.Duplicated > 0 {
		parts = append(parts, MsgDuplicate)
	}
	if res.Updated > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) updated", res.Updated))
	}
	if res.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) deleted", res.Deleted))
	}
	if n := len(res.Errors); n > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) failed", n))
	}
	parts = append(parts, sf.parts()...)

	if len(parts) == 0 {
		return ir.Summary{Title: ir.TitleWarning, Message: MsgNoChanges}
	}
	title := ir.TitleSuccess
	if len(res.Errors) > 0 || res.Duplicated > 0 || sf.Any() {
		title = ir.TitleWarning
	}
	return ir.Summary{Title: title, Message: strings.Join(parts, ". ")}
}

// DeleteSummary builds the message shown after a delete pass.
func DeleteSummary(res ir.ReconciliationResult, sf Shortfall) ir.Summary {
	msg := MsgNothingDeleted
	if res.Deleted > 0 {
		msg = fmt.Sprintf("%d row(s) successfully deleted.", res.Deleted)
	}
	if extra := sf.parts(); len(extra) > 0 {
		msg += " " + strings.Join(extra, ". ") + "."
	}
	title := ir.TitleSuccess
	switch {
	case len(res.Errors) > 0:
		title = ir.TitlePartialSuccess
	case sf.Any():
		title = ir.TitleWarning
	}
	return ir.Summary{Title: title, Message: msg}
}

// PopulateSummary builds the message shown after loading a target.
func PopulateSummary(count int) ir.Summary {
	title := ir.TitleSuccess
	if count == 0 {
		title = ir.TitleWarning
	}
	return ir.Summary{Title: title, Message: grid.PopulateMessage(count)}
}

// RefreshSummary builds the message shown after refreshing selected rows.
func RefreshSummary(count int) ir.Summary {
	if count == 0 {
		return ir.Summary{Title: ir.TitleWarning, Message: MsgNoMatchingRows}
	}
	return ir.Summary{Title: ir.TitleSuccess, Message: fmt.Sprintf("%d row(s) refreshed.", count)}
}
