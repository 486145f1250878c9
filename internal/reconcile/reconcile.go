// Package reconcile runs the cost collectors for a period, merges their
// records and compares the monthly totals with the ledger.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cloudspend/internal/core"
	"cloudspend/internal/ledger"
	"cloudspend/internal/log"
)

// LiveSource is implemented by live.Adapter.
type LiveSource interface {
	Fetch(ctx context.Context, start, end time.Time) core.Result
}

// FileSource is implemented by widecsv.Adapter.
type FileSource interface {
	Parse(path string) core.Result
}

// LedgerSource is implemented by ledger.Parser.
type LedgerSource interface {
	Extract(dir string) (ledger.Batch, error)
}

// Deps are the collectors a run may use. Nil collectors are skipped.
type Deps struct {
	Live   LiveSource
	Wide   FileSource
	Ledger LedgerSource
	Logger *log.Logger
}

// Options tune the comparison.
type Options struct {
	// Tolerance is the largest absolute variance still reported as a match.
	Tolerance decimal.Decimal
	// Parallel runs the collectors concurrently.
	Parallel bool
}

// DefaultOptions returns a one-cent tolerance with parallel collection.
func DefaultOptions() Options {
	return Options{Tolerance: decimal.New(1, -2), Parallel: true}
}

// Request selects the period and the file inputs of a run. Start is
// inclusive and End exclusive; a zero bound leaves that side open.
type Request struct {
	Start       time.Time
	End         time.Time
	WideCSVPath string
	LedgerDir   string
}

// Reconciler merges collector output into a Report.
type Reconciler struct {
	deps   Deps
	opts   Options
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// New returns a Reconciler.
func New(deps Deps, opts Options) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.Tolerance.IsNegative() {
		opts.Tolerance = opts.Tolerance.Neg()
	}
	return &Reconciler{
		deps:   deps,
		opts:   opts,
		logger: logger.WithComponent(log.ComponentReconcile),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run collects, merges and compares. It only returns an error when ctx is
// done; collector failures are reported in Report.Results.
func (r *Reconciler) Run(ctx context.Context, req Request) (*Report, error) {
	rep := &Report{
		RunID:     r.newID(),
		Start:     req.Start,
		End:       req.End,
		StartedAt: r.now().UTC(),
	}
	logger := r.logger.With(log.FieldRunID, rep.RunID)
	logger.InfoContext(ctx, "Starting reconciliation",
		log.FieldPeriodStart, formatDay(req.Start),
		log.FieldPeriodEnd, formatDay(req.End))

	var (
		liveRes, wideRes *core.Result
		batch            *ledger.Batch
		ledgerErr        error
	)
	collectors := []func(context.Context) error{}
	if r.deps.Live != nil {
		if req.Start.IsZero() || req.End.IsZero() {
			logger.WarnContext(ctx, "Live source needs a closed period, skipping", log.FieldSource, core.SourceLive)
		} else {
			collectors = append(collectors, func(ctx context.Context) error {
				res := r.deps.Live.Fetch(ctx, req.Start, req.End)
				liveRes = &res
				return ctx.Err()
			})
		}
	}
	if r.deps.Wide != nil && req.WideCSVPath != "" {
		collectors = append(collectors, func(ctx context.Context) error {
			res := r.deps.Wide.Parse(req.WideCSVPath)
			wideRes = &res
			return ctx.Err()
		})
	}
	if r.deps.Ledger != nil && req.LedgerDir != "" {
		collectors = append(collectors, func(ctx context.Context) error {
			b, err := r.deps.Ledger.Extract(req.LedgerDir)
			batch, ledgerErr = &b, err
			return ctx.Err()
		})
	}

	if err := r.collect(ctx, collectors); err != nil {
		return nil, err
	}

	// Precedence order: earlier results win a month.
	for _, res := range []*core.Result{liveRes, wideRes} {
		if res == nil {
			continue
		}
		rep.Results = append(rep.Results, *res)
		if res.Status == core.StatusFailed {
			logger.WarnContext(ctx, "Cost source failed",
				log.FieldSource, res.Source, log.FieldError, res.Err)
		}
	}
	rep.Records = mergeByPrecedence(rep.Results, req.Start, req.End)

	if batch != nil {
		rep.Ledger = *batch
		rep.Ledger.Entries = filterEntries(batch.Entries, req.Start, req.End)
	}
	if ledgerErr != nil {
		rep.LedgerErr = ledgerErr
		logger.WarnContext(ctx, "Ledger extraction failed", log.FieldError, ledgerErr)
	}

	rep.Comparisons = Compare(rep.Records, rep.Ledger.Entries, r.opts.Tolerance)
	rep.FinishedAt = r.now().UTC()

	if rep.NoData() {
		logger.InfoContext(ctx, "No data for the requested period")
		return rep, nil
	}
	logger.InfoContext(ctx, "Reconciliation complete",
		log.FieldRecords, len(rep.Records),
		log.FieldEntries, len(rep.Ledger.Entries),
		"mismatches", len(rep.Mismatches()),
		log.FieldDuration, rep.FinishedAt.Sub(rep.StartedAt).Milliseconds())
	return rep, nil
}

func (r *Reconciler) collect(ctx context.Context, collectors []func(context.Context) error) error {
	if !r.opts.Parallel {
		for _, c := range collectors {
			if err := c(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range collectors {
		g.Go(func() error { return c(gctx) })
	}
	return g.Wait()
}

// mergeByPrecedence keeps, for every month, the records of the first result
// that has data for it.
func mergeByPrecedence(results []core.Result, start, end time.Time) []core.CostRecord {
	claimed := map[core.Month]string{}
	var out []core.CostRecord
	for _, res := range results {
		byMonth := map[core.Month][]core.CostRecord{}
		for _, rec := range res.Records {
			if !inPeriod(rec.Date.Time, start, end) {
				continue
			}
			m := rec.Date.Month()
			byMonth[m] = append(byMonth[m], rec)
		}
		for m, recs := range byMonth {
			if _, ok := claimed[m]; ok {
				continue
			}
			claimed[m] = res.Source
			out = append(out, recs...)
		}
	}
	core.SortRecords(out)
	return out
}

func filterEntries(entries []core.LedgerEntry, start, end time.Time) []core.LedgerEntry {
	out := make([]core.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		first := e.Month.FirstDay().Time
		last := e.Month.Next().FirstDay().Time
		if !end.IsZero() && !first.Before(end) {
			continue
		}
		if !start.IsZero() && !last.After(start) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func inPeriod(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
