package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/reconcile"
	"github.com/roach88/gridsync/internal/remote"
	"github.com/roach88/gridsync/internal/store"
	"github.com/roach88/gridsync/internal/testutil"
)

const (
	defaultCaller = "harness"
	seedCaller    = "seed"
)

// Harness is the scenario execution environment: one grid, one store and a
// reconciler wired with deterministic helpers.
type Harness struct {
	db       *store.Store // nil for scripted scenarios
	scripted *scriptedStore
	store    *recordingStore
	sheet    *grid.Sheet
	rec      *reconcile.Reconciler
	table    ir.TableSpec
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database (or a scripted
// store) for isolation. The returned error reports a scenario that could
// not be executed; failed expectations are recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		table:  scenario.Table.Spec(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	var backend remote.Store
	if scenario.Store == StoreScripted {
		h.scripted = &scriptedStore{}
		backend = h.scripted
	} else {
		st, err := store.Open(":memory:",
			store.WithClock(testutil.NewSteppingTime(testutil.Epoch, 0).Now),
			store.WithLogger(h.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		h.db = st
		backend = st

		if err := h.seed(ctx, scenario.Seed); err != nil {
			return nil, fmt.Errorf("failed to seed store: %w", err)
		}
	}
	h.store = &recordingStore{next: backend}

	sheet, err := buildSheet(scenario.Headers, scenario.Rows)
	if err != nil {
		return nil, err
	}
	h.sheet = sheet

	caller := scenario.CallerID
	if caller == "" {
		caller = defaultCaller
	}
	opts := []reconcile.Option{
		reconcile.WithLogger(h.logger),
		reconcile.WithPassIDGenerator(testutil.NewCountingPassIDGenerator(scenario.PassPrefix)),
		reconcile.WithSequencer(testutil.NewDeterministicClock()),
		reconcile.WithCallerID(caller),
	}
	if scenario.TenantID != nil {
		opts = append(opts, reconcile.WithSystemField("tenant_id", ir.IRInt(*scenario.TenantID)))
	}
	h.rec = reconcile.New(h.store, opts...)

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result.Requests = h.store.sent()
	result.Grid = h.gridRows()

	actx := &AssertionContext{Store: h.db, Sheet: h.sheet, Table: h.table.Name, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seed inserts records directly into the store, bypassing the grid.
func (h *Harness) seed(ctx context.Context, records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]ir.RequestRow, len(records))
	for i, r := range records {
		obj, err := convertToIRObject(r)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		rows[i] = ir.RequestRow{Fields: obj}
	}
	resp, err := h.db.Bulk(ctx, ir.BatchRequest{
		Target:     h.table.Name,
		Intent:     ir.IntentInsert,
		CallerID:   seedCaller,
		UniqueKeys: h.table.UniqueKeys,
		Rows:       rows,
	})
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("seed rejected: %s", resp.Errors[0].Error)
	}
	return nil
}

func buildSheet(headers []string, rows []map[string]any) (*grid.Sheet, error) {
	sheet := grid.NewSheet(headers)
	for i, r := range rows {
		obj, err := convertToIRObject(r)
		if err != nil {
			return nil, fmt.Errorf("rows[%d]: %w", i, err)
		}
		sheet.AppendRow(obj)
	}
	return sheet, nil
}

// executeFlow runs the flow steps in order and checks their expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		for _, e := range step.Edit {
			values, err := convertToIRObject(e.Set)
			if err != nil {
				return fmt.Errorf("flow step %d: edit row %d: %w", i+1, e.Row, err)
			}
			if err := h.sheet.WriteRow(e.Row-1, values); err != nil {
				return fmt.Errorf("flow step %d: %w", i+1, err)
			}
		}

		if step.Select == "" {
			h.sheet.SelectAll()
		} else {
			positions, err := grid.ParseRows(step.Select)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i+1, err)
			}
			if err := h.sheet.Select(positions...); err != nil {
				return fmt.Errorf("flow step %d: %w", i+1, err)
			}
		}

		if h.scripted != nil {
			h.scripted.setStep(step)
		}

		sentBefore := len(h.store.sent())
		tr, err := h.executeStep(ctx, step)
		tr.Step = i + 1
		tr.Requests = -1
		if sent := h.store.sent(); len(sent) > sentBefore {
			tr.Requests = len(sent[len(sent)-1].Rows)
		}
		if err != nil {
			tr.ErrorCode = string(ir.CodeOf(err))
			tr.Error = err.Error()
		}
		result.Trace = append(result.Trace, tr)

		for _, msg := range checkExpect(tr, step.Expect, err) {
			result.AddError(msg)
		}

		h.logger.Info("flow step completed",
			"step", tr.Step,
			"action", step.Action,
			"pass", tr.PassID,
			"title", tr.Summary.Title,
			"error", tr.ErrorCode,
		)
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step FlowStep) (StepTrace, error) {
	tr := StepTrace{Action: step.Action}
	switch step.Action {
	case ActionPull, ActionRefresh:
		run := h.rec.Pull
		if step.Action == ActionRefresh {
			run = h.rec.Refresh
		}
		summary, err := run(ctx, h.sheet, h.table)
		tr.Summary = summary
		return tr, err
	}

	intent := ir.IntentUpsert
	if step.Action == ActionDelete {
		intent = ir.IntentDelete
	}
	report, err := h.rec.Run(ctx, h.sheet, h.table, intent)
	if report == nil {
		return tr, err
	}
	tr.PassID = report.PassID
	for _, t := range report.Transitions {
		tr.States = append(tr.States, string(t.To))
	}
	tr.Bindings = sortedBindings(report.Bindings)
	for _, v := range report.Violations {
		tr.Violations = append(tr.Violations, v.Message)
	}
	tr.Summary = report.Summary
	return tr, err
}

func sortedBindings(m map[int]ir.Binding) []ir.Binding {
	if len(m) == 0 {
		return nil
	}
	out := make([]ir.Binding, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b ir.Binding) int { return a.Position - b.Position })
	return out
}

// checkExpect compares a step's outcome with its expect clause. A step
// without an expect clause must not fail.
func checkExpect(tr StepTrace, expect *ExpectClause, err error) []string {
	var errs []string
	prefix := fmt.Sprintf("step %d (%s)", tr.Step, tr.Action)

	wantsError := expect != nil && (expect.Error != "" || expect.ErrorContains != "")
	if err != nil && !wantsError {
		return append(errs, fmt.Sprintf("%s: unexpected error: %v", prefix, err))
	}
	if expect == nil {
		return nil
	}
	if wantsError && err == nil {
		errs = append(errs, fmt.Sprintf("%s: expected error %s%s, got none", prefix, expect.Error, expect.ErrorContains))
	}
	if expect.Error != "" && err != nil && tr.ErrorCode != expect.Error {
		errs = append(errs, fmt.Sprintf("%s: error code = %q, want %q", prefix, tr.ErrorCode, expect.Error))
	}
	if expect.ErrorContains != "" && err != nil && !containsFold(err.Error(), expect.ErrorContains) {
		errs = append(errs, fmt.Sprintf("%s: error %q does not contain %q", prefix, err.Error(), expect.ErrorContains))
	}
	if expect.Title != "" && tr.Summary.Title != expect.Title {
		errs = append(errs, fmt.Sprintf("%s: title = %q, want %q", prefix, tr.Summary.Title, expect.Title))
	}
	if expect.Message != "" && tr.Summary.Message != expect.Message {
		errs = append(errs, fmt.Sprintf("%s: message = %q, want %q", prefix, tr.Summary.Message, expect.Message))
	}
	return errs
}

func (h *Harness) gridRows() []ir.IRObject {
	out := make([]ir.IRObject, 0, h.sheet.Len())
	for pos := 0; pos < h.sheet.Len(); pos++ {
		row, err := h.sheet.Row(pos)
		if err == nil {
			out = append(out, row)
		}
	}
	return out
}

// convertToIRObject converts a YAML-decoded map into an IRObject.
func convertToIRObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	return ir.ObjectFromMap(m)
}

// recordingStore remembers every bulk request it forwards.
type recordingStore struct {
	next remote.Store

	mu       sync.Mutex
	requests []ir.BatchRequest
}

func (s *recordingStore) Bulk(ctx context.Context, req ir.BatchRequest) (ir.BulkResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.next.Bulk(ctx, req)
}

func (s *recordingStore) Fetch(ctx context.Context, target string) ([]ir.IRObject, error) {
	return s.next.Fetch(ctx, target)
}

func (s *recordingStore) sent() []ir.BatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// scriptedStore answers with the response and records of the current step.
type scriptedStore struct {
	mu   sync.Mutex
	step FlowStep
}

func (s *scriptedStore) setStep(step FlowStep) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

func (s *scriptedStore) Bulk(_ context.Context, req ir.BatchRequest) (ir.BulkResponse, error) {
	s.mu.Lock()
	def := s.step.Response
	s.mu.Unlock()

	resp := ir.BulkResponse{Data: []ir.RemoteOutcome{}}
	if def == nil {
		return resp, nil
	}
	if def.Error != "" {
		return ir.BulkResponse{}, &remote.StoreError{Status: 200, Message: def.Error}
	}
	for _, o := range def.Data {
		label, _ := ir.ParseOutcomeLabel(o.Operation)
		resp.Data = append(resp.Data, ir.RemoteOutcome{ID: o.ID, Version: o.Version, Operation: label})
	}
	for i, e := range def.Errors {
		row, err := convertToIRObject(e.Row)
		if err != nil {
			return ir.BulkResponse{}, fmt.Errorf("scripted error %d: %w", i, err)
		}
		if len(row) == 0 {
			row = nil
		}
		resp.Errors = append(resp.Errors, ir.StoreRowError{Row: row, Error: e.Error, UniqueKeys: req.UniqueKeys})
	}
	return resp, nil
}

func (s *scriptedStore) Fetch(context.Context, string) ([]ir.IRObject, error) {
	s.mu.Lock()
	records := s.step.Records
	s.mu.Unlock()

	out := make([]ir.IRObject, len(records))
	for i, r := range records {
		obj, err := convertToIRObject(r)
		if err != nil {
			return nil, fmt.Errorf("scripted record %d: %w", i, err)
		}
		out[i] = obj
	}
	return out, nil
}
