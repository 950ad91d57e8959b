package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Trace    []StepTrace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, step := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %q", step.Step, step.Action, step.Summary.Title, step.Summary.Message)
			if step.ErrorCode != "" {
				fmt.Fprintf(&buf, " error=%s", step.ErrorCode)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext provides what assertions read besides the result.
type AssertionContext struct {
	Store *store.Store // nil for scripted scenarios
	Sheet *grid.Sheet
	Table string
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCell:
			err = assertCell(actx.Sheet, assertion, result.Trace)
		case AssertRequestCount:
			err = assertRequestCount(result, assertion)
		case AssertTransitions:
			err = assertTransitions(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires the %s store", i, StoreSQLite)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.Table, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertCell checks one grid cell.
func assertCell(sheet *grid.Sheet, a Assertion, trace []StepTrace) error {
	actual := sheet.Cell(a.Row-1, a.Column)
	if a.Empty {
		if ir.IsEmpty(actual) {
			return nil
		}
		return &AssertionError{
			Type:     AssertCell,
			Expected: fmt.Sprintf("row %d column %q to be empty", a.Row, a.Column),
			Actual:   ir.String(actual),
			Trace:    trace,
		}
	}

	want, err := ir.FromAny(a.Equals)
	if err != nil {
		return fmt.Errorf("cell row %d column %q: %w", a.Row, a.Column, err)
	}
	if !ir.Equal(want, actual) {
		return &AssertionError{
			Type:     AssertCell,
			Expected: fmt.Sprintf("row %d column %q = %s", a.Row, a.Column, ir.String(want)),
			Actual:   fmt.Sprintf("%s (%T)", ir.String(actual), actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertRequestCount checks how many bulk requests the flow sent.
func assertRequestCount(result *Result, a Assertion) error {
	if n := len(result.Requests); n != a.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d bulk request(s)", a.Count),
			Actual:   fmt.Sprintf("%d bulk request(s)", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTransitions checks the state sequence of one step.
func assertTransitions(trace []StepTrace, a Assertion) error {
	if a.Step < 1 || a.Step > len(trace) {
		return fmt.Errorf("transitions: step %d out of range (%d steps ran)", a.Step, len(trace))
	}
	got := trace[a.Step-1].States
	if !slices.Equal(got, a.States) {
		return &AssertionError{
			Type:     AssertTransitions,
			Expected: fmt.Sprintf("step %d states %v", a.Step, a.States),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one active record of the table
// matches Where and that it carries every Expect field.
func assertFinalState(ctx context.Context, st *store.Store, table string, a Assertion) error {
	where, err := convertToIRObject(a.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}
	expect, err := convertToIRObject(a.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	records, err := st.Fetch(ctx, table)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("fetch table %s", table),
			Actual:   fmt.Sprintf("fetch error: %v", err),
		}
	}

	var matched []ir.IRObject
	for _, r := range records {
		if matchFields(r, where) {
			matched = append(matched, r)
		}
	}
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("active record in %s where %s", table, formatFields(where)),
			Actual:   "record not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one active record in %s where %s", table, formatFields(where)),
			Actual:   fmt.Sprintf("%d records matched (assertion is ambiguous)", len(matched)),
		}
	}

	record := matched[0]
	for _, key := range expect.SortedKeys() {
		actual, exists := record[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in record: %v", key, record.SortedKeys()),
			}
		}
		if !ir.Equal(expect[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, ir.String(expect[key])),
				Actual:   fmt.Sprintf("field %q = %s", key, ir.String(actual)),
			}
		}
	}
	return nil
}

// matchFields reports whether record carries every field of want (subset
// match). Extra keys in record are ignored.
func matchFields(record, want ir.IRObject) bool {
	for k, v := range want {
		if !ir.Equal(v, record[k]) {
			return false
		}
	}
	return true
}

// formatFields creates a human-readable description of match conditions.
func formatFields(fields ir.IRObject) string {
	if len(fields) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, ir.String(fields[k])))
	}
	return strings.Join(parts, " AND ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
