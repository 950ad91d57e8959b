// Package demux correlates the store's flat result list back onto the grid
// rows that produced it.
//
// The store returns one outcome per successful row, tagged only with an
// operation label. Correlation is positional within each label: outcomes are
// split into per-label FIFO queues and the request rows are walked again in
// the order they were sent, each row consuming the next entry of the queue
// its classification maps to. This is only sound when the number of outcomes
// plus errors equals the number of rows sent, so that count is checked
// before anything is bound.
package demux

import (
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
)

// Violation describes a queue whose length does not reconcile with the rows
// that could have produced it. Write-back is skipped for that queue.
type Violation struct {
	// Queue is the outcome label, or "" for the batch-wide count check.
	Queue ir.OutcomeLabel `json:"queue"`

	// Outcomes is the number of entries the store returned for Queue.
	Outcomes int `json:"outcomes"`

	// Candidates is the number of rows that could consume Queue.
	Candidates int `json:"candidates"`

	Message string `json:"message"`
}

// Result is the outcome of demultiplexing one response.
type Result struct {
	// Bindings maps grid position to the write-back for that row.
	Bindings map[int]ir.Binding

	// Violations lists every integrity problem found. Never fatal.
	Violations []Violation

	// Withheld is the number of store outcomes left out of Summary because
	// their queue did not reconcile, including unknown labels.
	Withheld int

	// Summary aggregates counts and per-label records of the queues that
	// reconciled. Counts plus errors never exceed the rows sent, unless
	// the store reported more errors than rows.
	Summary ir.ReconciliationResult
}

// OK reports whether the response reconciled exactly.
func (r Result) OK() bool {
	return len(r.Violations) == 0
}

// Demux binds a bulk response to the rows that were sent.
//
// rows must be exactly the rows of the request, in request order. Store
// errors that echo a submitted row are matched to that row by content and
// the row takes no part in the walk. Errors without an echo are reported
// with position -1 and their row stays in the walk: when the batch-wide
// count still holds, that row may take the next outcome of its queue,
// since nothing says which row failed.
func Demux(rows []ir.ClassifiedRow, resp ir.BulkResponse) Result {
	res := Result{Bindings: make(map[int]ir.Binding)}

	queues, unknown := partition(resp.Data)
	for _, label := range unknown {
		res.Violations = append(res.Violations, Violation{
			Queue:   ir.OutcomeLabel(label),
			Message: fmt.Sprintf("store returned unknown operation label %q", label),
		})
	}

	failed, rowErrors := matchErrors(rows, resp.Errors)

	var inserts, updates, deletes int
	for i, r := range rows {
		if failed[i] {
			continue
		}
		switch r.Operation {
		case ir.OpInsert:
			inserts++
		case ir.OpUpdate:
			updates++
		case ir.OpDelete:
			deletes++
		}
	}

	totalOK := len(resp.Data)+len(resp.Errors) == len(rows)
	if !totalOK {
		res.Violations = append(res.Violations, Violation{
			Outcomes:   len(resp.Data) + len(resp.Errors),
			Candidates: len(rows),
			Message: fmt.Sprintf("store returned %d outcome(s) and %d error(s) for %d row(s)",
				len(resp.Data), len(resp.Errors), len(rows)),
		})
	}

	ins, upd, del, dup := queues[ir.LabelInsert], queues[ir.LabelUpdate], queues[ir.LabelDelete], queues[ir.LabelDuplicate]

	// Duplicates are suppressed inserts, so both queues draw on insert rows.
	insertCandidates := max(inserts-len(dup), 0)
	bindInsert := res.check(ir.LabelInsert, len(ins), insertCandidates, len(ins) <= insertCandidates, totalOK)
	// Duplicates are never bound, so only an overflow matters.
	countDup := res.check(ir.LabelDuplicate, len(dup), inserts, len(dup) <= inserts, true)
	bindUpdate := res.check(ir.LabelUpdate, len(upd), updates, len(upd) <= updates, totalOK)
	bindDelete := res.check(ir.LabelDelete, len(del), deletes, len(del) <= deletes, totalOK)

	// Errors that echo no row leave that row among the candidates, so the
	// trusted queues can still add up to more than was sent.
	trusted := counted(bindInsert, ins) + counted(countDup, dup) + counted(bindUpdate, upd) + counted(bindDelete, del)
	if trusted+len(rowErrors) > len(rows) {
		res.Violations = append(res.Violations, Violation{
			Outcomes:   trusted + len(rowErrors),
			Candidates: len(rows),
			Message: fmt.Sprintf("%d outcome(s) and %d error(s) exceed the %d row(s) sent; write-back skipped",
				trusted, len(rowErrors), len(rows)),
		})
		bindInsert, countDup, bindUpdate, bindDelete = false, false, false, false
	}
	if !bindInsert {
		ins = nil
	}
	if !countDup {
		dup = nil
	}
	if !bindUpdate {
		upd = nil
	}
	if !bindDelete {
		del = nil
	}
	res.Withheld = len(resp.Data) - len(ins) - len(dup) - len(upd) - len(del)

	var ci, cu, cd int
	for i, r := range rows {
		if failed[i] {
			continue
		}
		switch r.Operation {
		case ir.OpInsert:
			if ci < len(ins) {
				o := ins[ci]
				ci++
				res.Bindings[r.Position] = ir.Binding{
					Position:  r.Position,
					Operation: ir.LabelInsert,
					ID:        o.ID,
					Version:   o.Version,
				}
			}
		case ir.OpUpdate:
			if cu < len(upd) {
				o := upd[cu]
				cu++
				res.Bindings[r.Position] = ir.Binding{
					Position:   r.Position,
					Operation:  ir.LabelUpdate,
					ID:         o.ID,
					Version:    o.Version,
					PreviousID: r.ID,
				}
			}
		case ir.OpDelete:
			if cd < len(del) {
				o := del[cd]
				cd++
				res.Bindings[r.Position] = ir.Binding{
					Position:   r.Position,
					Operation:  ir.LabelDelete,
					ID:         o.ID,
					Version:    o.Version,
					PreviousID: r.ID,
				}
			}
		}
	}

	res.Summary = ir.ReconciliationResult{
		Total:             len(rows),
		Inserted:          len(ins),
		Updated:           len(upd),
		Deleted:           len(del),
		Duplicated:        len(dup),
		InsertedRecords:   ins,
		UpdatedRecords:    upd,
		DeletedRecords:    del,
		DuplicatedRecords: dup,
		Errors:            rowErrors,
	}
	return res
}

// check records a violation for a queue that cannot be bound and reports
// whether binding may proceed. When the batch-wide count holds, a queue is
// bindable unless it overflows its candidates. When it does not hold, only a
// queue that matches its candidates exactly is trusted.
func (r *Result) check(label ir.OutcomeLabel, outcomes, candidates int, fits, totalOK bool) bool {
	switch {
	case !fits:
		r.Violations = append(r.Violations, Violation{
			Queue:      label,
			Outcomes:   outcomes,
			Candidates: candidates,
			Message:    fmt.Sprintf("%d %s outcome(s) for %d candidate row(s); write-back skipped", outcomes, label, candidates),
		})
		return false
	case totalOK:
		return true
	case outcomes == candidates:
		return true
	default:
		r.Violations = append(r.Violations, Violation{
			Queue:      label,
			Outcomes:   outcomes,
			Candidates: candidates,
			Message:    fmt.Sprintf("%d %s outcome(s) do not reconcile with %d candidate row(s); write-back skipped", outcomes, label, candidates),
		})
		return false
	}
}

func counted(ok bool, q []ir.RemoteOutcome) int {
	if ok {
		return len(q)
	}
	return 0
}

// partition splits outcomes into per-label FIFO queues, preserving the
// store's order within each label. Unknown labels are returned separately.
func partition(outcomes []ir.RemoteOutcome) (map[ir.OutcomeLabel][]ir.RemoteOutcome, []string) {
	queues := make(map[ir.OutcomeLabel][]ir.RemoteOutcome, 4)
	var unknown []string
	for _, o := range outcomes {
		label, ok := ir.ParseOutcomeLabel(string(o.Operation))
		if !ok {
			unknown = append(unknown, string(o.Operation))
			continue
		}
		o.Operation = label
		queues[label] = append(queues[label], o)
	}
	return queues, unknown
}

// matchErrors pairs each store error that echoes a row with the first
// not-yet-failed request row of identical content.
func matchErrors(rows []ir.ClassifiedRow, errs []ir.StoreRowError) ([]bool, []ir.RowError) {
	failed := make([]bool, len(rows))
	if len(errs) == 0 {
		return failed, nil
	}

	objects := make([]ir.IRObject, len(rows))
	for i, r := range rows {
		objects[i] = ir.RequestRow{ID: r.ID, Fields: r.Fields}.Object()
	}

	out := make([]ir.RowError, 0, len(errs))
	for _, e := range errs {
		pos := -1
		if e.Row != nil {
			for i := range rows {
				if !failed[i] && ir.Equal(objects[i], e.Row) {
					failed[i] = true
					pos = rows[i].Position
					break
				}
			}
		}
		out = append(out, ir.RowError{RowPosition: pos, Message: e.Error})
	}
	return failed, out
}
