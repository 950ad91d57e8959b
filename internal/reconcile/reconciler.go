package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/gridsync/internal/batch"
	"github.com/roach88/gridsync/internal/classify"
	"github.com/roach88/gridsync/internal/demux"
	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/normalize"
	"github.com/roach88/gridsync/internal/protect"
	"github.com/roach88/gridsync/internal/remote"
)

// ReasonIntentMismatch rejects a row whose classification the requested
// intent cannot carry, such as a row with an identifier in an insert pass.
const ReasonIntentMismatch = "row does not fit the requested operation"

// Grid is the grid a pass reads from and writes back to. *grid.Sheet
// implements it. Implementations must be comparable (pointer types) since
// the reconciler keys its in-flight set by grid.
type Grid interface {
	ReadSelection() []ir.GridRow
	WriteBack(bindings map[int]ir.Binding) (grid.WriteReport, error)
	Populate(records []ir.IRObject, policy *protect.Policy) int
	RefreshSelected(records []ir.IRObject) (int, error)
}

// SystemField is a field injected into every row sent to the store.
type SystemField struct {
	Name  string
	Value ir.IRValue
}

// Report records one pass. It is returned for every pass that started,
// including failed ones.
type Report struct {
	PassID      string                  `json:"pass_id"`
	Intent      ir.Intent               `json:"intent"`
	Target      string                  `json:"target"`
	RequestHash string                  `json:"request_hash,omitempty"`
	Transitions []Transition            `json:"transitions"`
	Rows        []ir.ClassifiedRow      `json:"rows,omitempty"`
	Result      ir.ReconciliationResult `json:"result"`
	Bindings    map[int]ir.Binding      `json:"bindings,omitempty"`
	Violations  []demux.Violation       `json:"violations,omitempty"`
	WriteBack   grid.WriteReport        `json:"write_back"`
	Summary     ir.Summary              `json:"summary"`
}

// Final returns the last state the pass entered.
func (r *Report) Final() State {
	if len(r.Transitions) == 0 {
		return StateIdle
	}
	return r.Transitions[len(r.Transitions)-1].To
}

// Failed reports whether the pass went through the Failed state.
func (r *Report) Failed() bool {
	for _, t := range r.Transitions {
		if t.To == StateFailed {
			return true
		}
	}
	return false
}

// IntegrityError folds the pass's violations into one INTEGRITY_VIOLATION
// error, or returns nil when the response reconciled.
func (r *Report) IntegrityError() error {
	if len(r.Violations) == 0 {
		return nil
	}
	msgs := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		msgs[i] = v.Message
	}
	return ir.NewIntegrityViolation(msgs)
}

// Reconciler runs passes against a store.
type Reconciler struct {
	store    remote.Store
	policy   *protect.Policy
	logger   *slog.Logger
	ids      PassIDGenerator
	seq      Sequencer
	observer Observer
	now      func() time.Time
	callerID string
	system   []SystemField

	mu     sync.Mutex
	active map[Grid]struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Transitions are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithPassIDGenerator sets the pass id source.
func WithPassIDGenerator(g PassIDGenerator) Option {
	return func(r *Reconciler) { r.ids = g }
}

// WithSequencer sets the clock that stamps transitions.
func WithSequencer(s Sequencer) Option {
	return func(r *Reconciler) { r.seq = s }
}

// WithObserver registers an observer for finished passes.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

// WithPolicy sets the protection policy used when populating a grid.
func WithPolicy(p *protect.Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithCallerID sets the caller identity sent with every batch.
func WithCallerID(id string) Option {
	return func(r *Reconciler) { r.callerID = id }
}

// WithSystemField injects name=value into every row. Injected fields are
// required, in the order they were added.
func WithSystemField(name string, value ir.IRValue) Option {
	return func(r *Reconciler) {
		r.system = append(r.system, SystemField{Name: name, Value: value})
	}
}

// New creates a Reconciler for store.
func New(store remote.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		policy:   protect.DefaultPolicy(),
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
		seq:      NewClock(),
		observer: nopObserver{},
		now:      time.Now,
		active:   make(map[Grid]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// acquire marks g busy, or fails with ErrPassInProgress.
func (r *Reconciler) acquire(g Grid) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[g]; busy {
		return nil, ir.ErrPassInProgress
	}
	r.active[g] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.active, g)
		r.mu.Unlock()
	}, nil
}

func (r *Reconciler) systemObject() ir.IRObject {
	obj := make(ir.IRObject, len(r.system))
	for _, f := range r.system {
		obj[f.Name] = f.Value
	}
	return obj
}

func (r *Reconciler) systemNames() []string {
	names := make([]string, len(r.system))
	for i, f := range r.system {
		names[i] = f.Name
	}
	return names
}

// Push sends the selected rows as an upsert: rows with an identifier
// update, rows without one insert.
func (r *Reconciler) Push(ctx context.Context, g Grid, table ir.TableSpec) (*Report, error) {
	return r.Run(ctx, g, table, ir.IntentUpsert)
}

// Delete deletes the selected rows that carry an identifier.
func (r *Reconciler) Delete(ctx context.Context, g Grid, table ir.TableSpec) (*Report, error) {
	return r.Run(ctx, g, table, ir.IntentDelete)
}

// Run executes one pass with the given intent.
//
// The report is nil only when the pass could not start (ErrPassInProgress).
// When the response did not reconcile, or the store rejected rows, the
// report is complete and the error is INTEGRITY_VIOLATION, ROWS_FAILED or
// PARTIAL_FAILURE (see ir.IsCompletedPass).
func (r *Reconciler) Run(ctx context.Context, g Grid, table ir.TableSpec, intent ir.Intent) (*Report, error) {
	release, err := r.acquire(g)
	if err != nil {
		return nil, err
	}
	defer release()

	start := r.now()
	p := &pass{
		r: r,
		report: &Report{
			PassID: r.ids.Generate(),
			Intent: intent,
			Target: table.Name,
		},
		state: StateIdle,
	}
	p.logger = r.logger.With("pass", p.report.PassID, "target", table.Name, "intent", string(intent))

	err = p.run(ctx, g, table)
	r.observer.ObservePass(p.report, err, r.now().Sub(start))
	return p.report, err
}

// pass carries the state of one Run.
type pass struct {
	r      *Reconciler
	report *Report
	state  State
	logger *slog.Logger
}

func (p *pass) enter(to State, detail string) {
	if !CanTransition(p.state, to) {
		panic(fmt.Sprintf("reconcile: illegal transition %s -> %s", p.state, to))
	}
	t := Transition{Seq: p.r.seq.Next(), From: p.state, To: to, Detail: detail}
	p.report.Transitions = append(p.report.Transitions, t)
	p.logger.Debug("transition", "seq", t.Seq, "from", string(t.From), "to", string(t.To), "detail", detail)
	p.state = to
}

// fail records err, passes through Failed back to Idle and returns err.
func (p *pass) fail(err error) error {
	p.enter(StateFailed, err.Error())
	p.enter(StateIdle, "")
	p.logger.Info("pass failed", "code", string(ir.CodeOf(err)), "error", err)
	return err
}

func (p *pass) run(ctx context.Context, g Grid, table ir.TableSpec) error {
	p.enter(StateValidating, "")

	accepted, err := p.validate(g, table)
	if err != nil {
		return p.fail(err)
	}

	req, err := batch.Build(batch.Params{
		Target:     table.Name,
		Intent:     p.report.Intent,
		CallerID:   p.r.callerID,
		UniqueKeys: table.UniqueKeys,
	}, accepted)
	if err != nil {
		return p.fail(err)
	}
	if hash, herr := ir.RequestHash(req); herr == nil {
		p.report.RequestHash = hash
	}

	p.enter(StateAwaitingStoreResponse, fmt.Sprintf("%d row(s)", len(req.Rows)))
	resp, err := p.r.store.Bulk(ctx, req)
	if err != nil {
		return p.fail(ir.NewTransportError(err))
	}

	p.enter(StateDemultiplexing, "")
	d := demux.Demux(accepted, resp)
	p.report.Result = d.Summary
	p.report.Bindings = d.Bindings
	p.report.Violations = d.Violations
	for _, v := range d.Violations {
		p.logger.Warn("integrity violation",
			"queue", string(v.Queue), "outcomes", v.Outcomes, "candidates", v.Candidates, "message", v.Message)
	}

	p.enter(StateWritingBack, fmt.Sprintf("%d binding(s)", len(d.Bindings)))
	wr, err := g.WriteBack(d.Bindings)
	p.report.WriteBack = wr
	if err != nil {
		return p.fail(fmt.Errorf("write back: %w", err))
	}
	for _, f := range wr.Failed {
		p.logger.Warn("write-back failed", "row", f.RowPosition+1, "error", f.Message)
	}

	sf := Shortfall{NotWritten: len(wr.Failed), Withheld: d.Withheld}
	if p.report.Intent == ir.IntentDelete {
		p.report.Summary = DeleteSummary(p.report.Result, sf)
	} else {
		p.report.Summary = UpsertSummary(p.report.Result, sf)
	}
	p.enter(StateIdle, "")

	p.logger.Info("pass complete",
		"inserted", p.report.Result.Inserted,
		"updated", p.report.Result.Updated,
		"deleted", p.report.Result.Deleted,
		"duplicated", p.report.Result.Duplicated,
		"failed", len(p.report.Result.Errors),
		"written", wr.Written)

	return p.outcome(len(req.Rows))
}

// outcome is the error a completed pass returns: the integrity violation
// if the response did not reconcile, otherwise ROWS_FAILED when the store
// accepted nothing and PARTIAL_FAILURE when it rejected some rows.
func (p *pass) outcome(sent int) error {
	if err := p.report.IntegrityError(); err != nil {
		return err
	}
	res := p.report.Result
	failed := len(res.Errors)
	if failed == 0 {
		return nil
	}
	if res.Inserted+res.Updated+res.Deleted+res.Duplicated == 0 {
		return ir.NewRowsFailed(sent)
	}
	return ir.NewPartialFailure(failed, sent)
}

// validate reads, normalizes and classifies the selection. It returns the
// rows to send, or the error that fails the pass before any network call.
func (p *pass) validate(g Grid, table ir.TableSpec) ([]ir.ClassifiedRow, error) {
	intent := p.report.Intent
	if intent != ir.IntentDelete && len(table.UniqueKeys) == 0 {
		return nil, ir.NewUniqueKeysNotConfigured(table.Name)
	}

	rows, err := normalize.Normalize(g.ReadSelection(), p.r.systemObject())
	if err != nil {
		return nil, err
	}

	var classified []ir.ClassifiedRow
	if intent == ir.IntentDelete {
		classified, err = classify.ClassifyForDelete(rows)
	} else {
		classified, err = classify.Classify(rows, classify.Rules{
			SystemFields: p.r.systemNames(),
			UniqueKeys:   table.UniqueKeys,
		})
	}
	p.report.Rows = classified
	if err != nil {
		return nil, err
	}

	if issues := mismatches(intent, classified); len(issues) > 0 {
		return nil, ir.NewValidationError(issues)
	}
	return classify.Accepted(classified), nil
}

// mismatches rejects rows an insert-only or update-only pass cannot carry.
func mismatches(intent ir.Intent, rows []ir.ClassifiedRow) []ir.RowIssue {
	var want ir.Operation
	switch intent {
	case ir.IntentInsert:
		want = ir.OpInsert
	case ir.IntentUpdate:
		want = ir.OpUpdate
	default:
		return nil
	}
	var issues []ir.RowIssue
	for _, row := range rows {
		if row.Operation != want {
			issues = append(issues, ir.RowIssue{Row: row.DisplayRow(), Reason: ReasonIntentMismatch})
		}
	}
	return issues
}

// Pull fetches every active record of table and loads it into g, replacing
// what was there.
func (r *Reconciler) Pull(ctx context.Context, g Grid, table ir.TableSpec) (ir.Summary, error) {
	release, err := r.acquire(g)
	if err != nil {
		return ir.Summary{}, err
	}
	defer release()

	records, err := r.store.Fetch(ctx, table.Name)
	if err != nil {
		return ir.Summary{}, ir.NewTransportError(err)
	}
	n := g.Populate(records, r.policy)
	r.logger.Info("pulled records", "target", table.Name, "loaded", n, "fetched", len(records))
	return PopulateSummary(n), nil
}

// Refresh overwrites the selected rows that carry an identifier with the
// store's current version of the same record.
func (r *Reconciler) Refresh(ctx context.Context, g Grid, table ir.TableSpec) (ir.Summary, error) {
	release, err := r.acquire(g)
	if err != nil {
		return ir.Summary{}, err
	}
	defer release()

	selected := g.ReadSelection()
	if len(selected) == 0 {
		return ir.Summary{}, ir.NewNoRowsSelected(normalize.MsgNoSelection)
	}
	if !slices.ContainsFunc(selected, hasID) {
		return ir.Summary{}, ir.NewNoRowsSelected(MsgNoRowsWithID)
	}

	records, err := r.store.Fetch(ctx, table.Name)
	if err != nil {
		return ir.Summary{}, ir.NewTransportError(err)
	}
	if len(records) == 0 {
		return ir.Summary{Title: ir.TitleWarning, Message: MsgNoRecordsFound}, nil
	}

	n, err := g.RefreshSelected(records)
	if err != nil {
		return ir.Summary{}, fmt.Errorf("refresh: %w", err)
	}
	r.logger.Info("refreshed rows", "target", table.Name, "refreshed", n)
	return RefreshSummary(n), nil
}

func hasID(row ir.GridRow) bool {
	_, present, ok := classify.ParseID(row.Fields)
	return present && ok
}
