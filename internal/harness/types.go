package harness

import (
	"github.com/roach88/gridsync/internal/ir"
)

// StepTrace records what one flow step did.
type StepTrace struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	PassID string `json:"pass_id,omitempty"`

	// States is the state sequence of a push or delete pass. Pull and
	// refresh do not run the pass state machine.
	States []string `json:"states,omitempty"`

	// Requests is the number of rows sent in the step's bulk request, or
	// -1 when no request was sent.
	Requests int `json:"requests"`

	Bindings   []ir.Binding `json:"bindings,omitempty"`
	Violations []string     `json:"violations,omitempty"`
	Summary    ir.Summary   `json:"summary"`
	ErrorCode  string       `json:"error_code,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []StepTrace `json:"trace"`

	// Errors contains the failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Requests are the bulk requests the store received, in order.
	Requests []ir.BatchRequest `json:"requests,omitempty"`

	// Grid is the final content of the grid, one object per row.
	Grid []ir.IRObject `json:"grid"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
