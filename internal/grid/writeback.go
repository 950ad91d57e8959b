package grid

import (
	"slices"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/protect"
)

// WriteReport summarizes a write-back. Write-back is best effort: a row that
// cannot be written is reported and the rest still go through.
type WriteReport struct {
	Written int           `json:"written"`
	Failed  []ir.RowError `json:"failed,omitempty"`
}

// WriteBack applies bindings to the sheet, one row write per binding, in
// position order. Inserts and updates write the returned identifier and,
// when the sheet has the column, the version. Deletes clear is_active.
//
// The returned error is non-nil only when protection could not be lifted
// or restored.
func (s *Sheet) WriteBack(bindings map[int]ir.Binding) (WriteReport, error) {
	var report WriteReport
	positions := make([]int, 0, len(bindings))
	for p := range bindings {
		positions = append(positions, p)
	}
	slices.Sort(positions)

	err := protect.WithUnlocked(s, func() error {
		for _, p := range positions {
			if werr := s.WriteRow(p, bindingValues(bindings[p])); werr != nil {
				report.Failed = append(report.Failed, ir.RowError{RowPosition: p, Message: werr.Error()})
				continue
			}
			report.Written++
		}
		return nil
	})
	return report, err
}

func bindingValues(b ir.Binding) ir.IRObject {
	values := ir.IRObject{ir.IDField: ir.IRInt(b.ID)}
	if b.Version != nil {
		values["version"] = ir.IRInt(*b.Version)
	}
	if b.Operation == ir.LabelDelete {
		values["is_active"] = ir.IRBool(false)
	}
	return values
}
