package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gridsync/internal/ir"
)

func TestUpsertSummary(t *testing.T) {
	tests := []struct {
		name string
		res  ir.ReconciliationResult
		sf   Shortfall
		want ir.Summary
	}{
		{
			name: "nothing changed",
			want: ir.Summary{Title: ir.TitleWarning, Message: MsgNoChanges},
		},
		{
			name: "inserts only",
			res:  ir.ReconciliationResult{Inserted: 3},
			want: ir.Summary{Title: ir.TitleSuccess, Message: "3 row(s) created"},
		},
		{
			name: "inserts and updates",
			res:  ir.ReconciliationResult{Inserted: 1, Updated: 2},
			want: ir.Summary{Title: ir.TitleSuccess, Message: "1 row(s) created. 2 row(s) updated"},
		},
		{
			name: "duplicate warns",
			res:  ir.ReconciliationResult{Inserted: 1, Duplicated: 1},
			want: ir.Summary{Title: ir.TitleWarning, Message: "1 row(s) created. Duplicate record, insert skipped"},
		},
		{
			name: "failures warn",
			res: ir.ReconciliationResult{
				Updated: 1,
				Deleted: 1,
				Errors:  []ir.RowError{{RowPosition: 2, Message: "boom"}},
			},
			want: ir.Summary{Title: ir.TitleWarning, Message: "1 row(s) updated. 1 row(s) deleted. 1 row(s) failed"},
		},
		{
			name: "unwritten rows warn",
			res:  ir.ReconciliationResult{Inserted: 2},
			sf:   Shortfall{NotWritten: 1},
			want: ir.Summary{Title: ir.TitleWarning, Message: "2 row(s) created. 1 row(s) not written back"},
		},
		{
			name: "withheld results warn",
			sf:   Shortfall{Withheld: 2},
			want: ir.Summary{Title: ir.TitleWarning, Message: "2 result(s) withheld: store response did not reconcile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpsertSummary(tt.res, tt.sf))
		})
	}
}

func TestDeleteSummary(t *testing.T) {
	assert.Equal(t,
		ir.Summary{Title: ir.TitleSuccess, Message: "4 row(s) successfully deleted."},
		DeleteSummary(ir.ReconciliationResult{Deleted: 4}, Shortfall{}))
	assert.Equal(t,
		ir.Summary{Title: ir.TitleSuccess, Message: MsgNothingDeleted},
		DeleteSummary(ir.ReconciliationResult{}, Shortfall{}))
	assert.Equal(t,
		ir.Summary{Title: ir.TitlePartialSuccess, Message: "1 row(s) successfully deleted."},
		DeleteSummary(ir.ReconciliationResult{Deleted: 1, Errors: []ir.RowError{{RowPosition: -1}}}, Shortfall{}))
	assert.Equal(t,
		ir.Summary{Title: ir.TitleWarning, Message: "2 row(s) successfully deleted. 1 row(s) not written back."},
		DeleteSummary(ir.ReconciliationResult{Deleted: 2}, Shortfall{NotWritten: 1}))
}

func TestPopulateAndRefreshSummary(t *testing.T) {
	assert.Equal(t, ir.TitleWarning, PopulateSummary(0).Title)
	assert.Equal(t, "Successfully loaded 2 record(s).", PopulateSummary(2).Message)
	assert.Equal(t, ir.Summary{Title: ir.TitleWarning, Message: MsgNoMatchingRows}, RefreshSummary(0))
	assert.Equal(t, "5 row(s) refreshed.", RefreshSummary(5).Message)
}
