package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// Deps are the collaborators of an Orchestrator. Refresher and Exporter are optional.
type Deps struct {
	Fetcher    Fetcher
	Normalizer *Normalizer
	Store      Store
	Refresher  Refresher
	Exporter   Exporter
}

// Options tune the sync schedule. Zero values fall back to the package defaults.
type Options struct {
	BackfillStart civil.Date
	WindowMonths  int
	LookbackDays  int
	OverlapDays   int
	Types         []domain.DecisionType
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if !o.BackfillStart.IsValid() {
		o.BackfillStart = DefaultBackfillStart
	}
	if o.WindowMonths <= 0 {
		o.WindowMonths = DefaultWindowMonths
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.OverlapDays <= 0 {
		o.OverlapDays = DefaultOverlapDays
	}
	if len(o.Types) == 0 {
		o.Types = domain.AllDecisionTypes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// WindowFailure is a window a historical run could not complete.
type WindowFailure struct {
	Type   domain.DecisionType
	Window domain.Window
	Err    error
}

// RunReport summarizes a finished run. RefreshErr and ExportErr are reported
// separately and never change Status.
type RunReport struct {
	RunID      int64
	Kind       domain.SyncKind
	Window     domain.Window
	Status     domain.RunStatus
	Fetched    int
	Stats      domain.ReconcileStats
	Failures   []WindowFailure
	Mismatches int
	RefreshErr error
	ExportErr  error
}

// Orchestrator drives historical and incremental syncs over its collaborators.
// It runs a single logical thread: one window completes before the next starts.
type Orchestrator struct {
	deps Deps
	opts Options
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{deps: deps, opts: opts.withDefaults()}
}

func (o *Orchestrator) today() civil.Date {
	return civil.DateOf(o.opts.Now().UTC())
}

// BackfillRange is [BackfillStart, tomorrow), so today's decisions are included.
func (o *Orchestrator) BackfillRange() domain.Window {
	return domain.Window{From: o.opts.BackfillStart, To: o.today().AddDays(1)}
}

// IncrementalRange computes the next incremental window from the last
// successful run: its end minus the overlap, or today minus the lookback
// when nothing has succeeded yet. The window always ends tomorrow.
func (o *Orchestrator) IncrementalRange(ctx context.Context) (domain.Window, error) {
	to := o.today().AddDays(1)
	from := o.today().AddDays(-o.opts.LookbackDays)

	last, err := o.deps.Store.LastSuccessfulRun(ctx)
	if err != nil {
		return domain.Window{}, fmt.Errorf("IncrementalRange: loading checkpoint: %w", err)
	}
	if last != nil && last.To.IsValid() {
		from = last.To.AddDays(-o.opts.OverlapDays)
	}
	if !from.Before(to) {
		from = to.AddDays(-1)
	}
	return domain.Window{From: from, To: to}, nil
}

// RunHistorical backfills r window by window, type outer and window inner.
// A window that fails is logged and skipped; the run then ends as partial.
func (o *Orchestrator) RunHistorical(ctx context.Context, r domain.Window) (*RunReport, error) {
	runID, err := o.deps.Store.StartRun(ctx, domain.SyncHistorical, r)
	if err != nil {
		return nil, fmt.Errorf("RunHistorical: starting run: %w", err)
	}
	ctx = logger.WithFields(ctx, map[string]any{"run_id": runID, "kind": string(domain.SyncHistorical)})
	log := logger.FromContext(ctx)
	log.Info().Str("range", r.String()).Int("window_months", o.opts.WindowMonths).Msg("historical sync started")

	report := &RunReport{RunID: runID, Kind: domain.SyncHistorical, Window: r}
	full := NewWindowPipeline(o.deps.Fetcher, o.deps.Normalizer, o.deps.Store)
	salvage := NewPipeline(&NormalizeStep{Normalizer: o.deps.Normalizer}, &ReconcileStep{Reconciler: o.deps.Store})
	var exportErrs []error
	attempted := 0

	for _, t := range o.opts.Types {
		for w := range Windows(r.From, r.To, o.opts.WindowMonths) {
			if err := ctx.Err(); err != nil {
				o.fail(ctx, report, err)
				return report, &domain.RunAbortedError{RunID: runID, Kind: domain.SyncHistorical, Err: err}
			}

			attempted++
			state := &WindowState{Type: t, Window: w, Policy: domain.PreserveExisting}
			err := full.Execute(ctx, state)

			var fe *domain.FetchError
			if errors.As(err, &fe) && state.Fetched() > 0 {
				// keep the pages that did arrive
				if serr := salvage.Execute(ctx, state); serr != nil {
					err = errors.Join(err, serr)
				}
			}

			report.Fetched += state.Fetched()
			report.Stats.Add(state.Stats)
			if state.Result != nil && state.Result.Mismatch() {
				report.Mismatches++
			}
			if err != nil {
				report.Failures = append(report.Failures, WindowFailure{Type: t, Window: w, Err: err})
				log.Error().Err(err).Str("type", string(t)).Str("window", w.String()).Msg("window failed; continuing")
				continue
			}
			if err := o.export(ctx, runID, state.Expenses()); err != nil {
				exportErrs = append(exportErrs, err)
			}

			log.Info().
				Str("type", string(t)).
				Str("window", w.String()).
				Int("fetched", state.Fetched()).
				Int("expenses_inserted", state.Stats.ExpensesInserted).
				Msg("window reconciled")
		}
	}

	report.ExportErr = errors.Join(exportErrs...)
	report.Status = domain.RunSucceeded
	var runErr error
	if n := len(report.Failures); n > 0 {
		report.Status = domain.RunPartial
		runErr = failureSummary(report.Failures)
		if n == attempted {
			report.Status = domain.RunFailed
		}
	}

	if err := o.deps.Store.CompleteRun(ctx, runID, o.outcome(report, runErr)); err != nil {
		return report, fmt.Errorf("RunHistorical: completing run %d: %w", runID, err)
	}
	o.finish(ctx, report)
	return report, nil
}

// RunIncremental syncs the window computed by IncrementalRange. All types are
// fetched first and reconciled in one transaction; the first error aborts the run.
// A checkpoint that cannot be read is recorded as a failed run over the
// default lookback window.
func (o *Orchestrator) RunIncremental(ctx context.Context) (*RunReport, error) {
	w, err := o.IncrementalRange(ctx)
	if err == nil {
		return o.RunIncrementalRange(ctx, w)
	}

	w = domain.Window{From: o.today().AddDays(-o.opts.LookbackDays), To: o.today().AddDays(1)}
	runID, startErr := o.deps.Store.StartRun(ctx, domain.SyncIncremental, w)
	if startErr != nil {
		return nil, errors.Join(err, fmt.Errorf("RunIncremental: starting run: %w", startErr))
	}
	report := &RunReport{RunID: runID, Kind: domain.SyncIncremental, Window: w}
	o.fail(logger.WithFields(ctx, map[string]any{"run_id": runID, "kind": string(domain.SyncIncremental)}), report, err)
	return report, &domain.RunAbortedError{RunID: runID, Kind: domain.SyncIncremental, Err: err}
}

// RunIncrementalRange runs an incremental sync over an explicit window.
func (o *Orchestrator) RunIncrementalRange(ctx context.Context, w domain.Window) (*RunReport, error) {
	runID, err := o.deps.Store.StartRun(ctx, domain.SyncIncremental, w)
	if err != nil {
		return nil, fmt.Errorf("RunIncremental: starting run: %w", err)
	}
	ctx = logger.WithFields(ctx, map[string]any{"run_id": runID, "kind": string(domain.SyncIncremental)})
	log := logger.FromContext(ctx)
	log.Info().Str("window", w.String()).Msg("incremental sync started")

	report := &RunReport{RunID: runID, Kind: domain.SyncIncremental, Window: w}
	abort := func(err error) (*RunReport, error) {
		o.fail(ctx, report, err)
		return report, &domain.RunAbortedError{RunID: runID, Kind: domain.SyncIncremental, Err: err}
	}

	collect := NewCollectPipeline(o.deps.Fetcher, o.deps.Normalizer)
	var batches []domain.DecisionBatch
	for _, t := range o.opts.Types {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		state := &WindowState{Type: t, Window: w, Policy: domain.RefreshLabels}
		if err := collect.Execute(ctx, state); err != nil {
			report.Fetched += state.Fetched()
			return abort(err)
		}
		report.Fetched += state.Fetched()
		if state.Result.Mismatch() {
			report.Mismatches++
		}
		batches = append(batches, state.Batches...)
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	reconcile := NewPipeline(&ReconcileStep{Reconciler: o.deps.Store})
	state := &WindowState{Window: w, Policy: domain.RefreshLabels, Batches: batches}
	if err := reconcile.Execute(ctx, state); err != nil {
		return abort(err)
	}
	report.Stats = state.Stats
	report.Status = domain.RunSucceeded

	if err := o.deps.Store.CompleteRun(ctx, runID, o.outcome(report, nil)); err != nil {
		return report, fmt.Errorf("RunIncremental: completing run %d: %w", runID, err)
	}
	report.ExportErr = o.export(ctx, runID, state.Expenses())
	o.finish(ctx, report)
	return report, nil
}

func (o *Orchestrator) outcome(r *RunReport, err error) domain.RunOutcome {
	return domain.RunOutcome{
		Status:          r.Status,
		RecordsFetched:  r.Fetched,
		RecordsInserted: r.Stats.ExpensesInserted,
		FailedWindows:   len(r.Failures),
		Err:             err,
	}
}

// fail records a terminal failure. It must not be skipped when ctx is
// cancelled, so the write detaches from ctx's cancellation. Errors are logged.
func (o *Orchestrator) fail(ctx context.Context, r *RunReport, cause error) {
	log := logger.FromContext(ctx)
	r.Status = domain.RunFailed
	log.Error().Err(cause).Msg("sync run failed")

	if err := o.deps.Store.CompleteRun(context.WithoutCancel(ctx), r.RunID, o.outcome(r, cause)); err != nil {
		log.Error().Err(err).Msg("recording run failure")
	}
}

// finish refreshes aggregates and logs the report.
func (o *Orchestrator) finish(ctx context.Context, r *RunReport) {
	log := logger.FromContext(ctx)
	if o.deps.Refresher != nil {
		if err := o.deps.Refresher.Refresh(ctx); err != nil {
			r.RefreshErr = err
			log.Error().Err(err).Msg("aggregate refresh failed; reconciled data is committed")
		}
	}
	if r.ExportErr != nil {
		log.Error().Err(r.ExportErr).Msg("warehouse export failed")
	}

	ev := log.Info()
	if r.Status != domain.RunSucceeded {
		ev = log.Warn()
	}
	ev.Str("status", string(r.Status)).
		Int("fetched", r.Fetched).
		Int("decisions_upserted", r.Stats.DecisionsUpserted).
		Int("expenses_inserted", r.Stats.ExpensesInserted).
		Int("expenses_updated", r.Stats.ExpensesUpdated).
		Int("failed_windows", len(r.Failures)).
		Int("count_mismatches", r.Mismatches).
		Msg("sync run finished")
}

func (o *Orchestrator) export(ctx context.Context, runID int64, expenses []domain.Expense) error {
	if o.deps.Exporter == nil || len(expenses) == 0 {
		return nil
	}
	return o.deps.Exporter.ExportExpenses(ctx, runID, expenses)
}

func failureSummary(fs []WindowFailure) error {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, fmt.Sprintf("%s %s: %v", f.Type, f.Window, f.Err))
	}
	return fmt.Errorf("%d window(s) failed: %s", len(fs), strings.Join(parts, "; "))
}
