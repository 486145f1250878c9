package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"cloudspend/internal/events"
	"cloudspend/internal/ledger"
	"cloudspend/internal/log"
	"cloudspend/internal/reconcile"
	"cloudspend/internal/report"
	"cloudspend/internal/sources/live"
	"cloudspend/internal/sources/widecsv"
	"cloudspend/internal/storage"
	"cloudspend/internal/tags"
)

type reconcileCmd struct {
	start      string
	end        string
	wide       string
	ledgerDir  string
	contract   string
	out        string
	noLive     bool
	sequential bool
}

func (*reconcileCmd) Name() string { return "reconcile" }
func (*reconcileCmd) Synopsis() string {
	return "collect cloud spend, compare it with the ledger and write reports"
}
func (*reconcileCmd) Usage() string {
	return `cloudspend reconcile -start YYYY-MM-DD -end YYYY-MM-DD [-wide path] [-ledger dir] [-out dir] [-no-live]

  Collects spend from Cost Explorer and the wide CSV export, reads the
  ledger exports and writes records.csv, ledger.csv and reconciliation.csv.
  The period is [start, end).
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "first day of the period (inclusive)")
	f.StringVar(&c.end, "end", "", "day after the period (exclusive)")
	f.StringVar(&c.wide, "wide", "", "wide CSV export (default $WIDE_CSV_PATH)")
	f.StringVar(&c.ledgerDir, "ledger", "", "directory of ledger exports (default $LEDGER_DIR)")
	f.StringVar(&c.contract, "contract", "", "ledger contract YAML (default $LEDGER_CONTRACT_PATH)")
	f.StringVar(&c.out, "out", "", "output directory (default $OUTPUT_DIR)")
	f.BoolVar(&c.noLive, "no-live", false, "skip the Cost Explorer API")
	f.BoolVar(&c.sequential, "sequential", false, "run the collectors one after another")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup()
	if err != nil {
		return exitStatus(err)
	}
	ctx, stop := SignalContext(ctx)
	defer stop()
	_, err = c.run(ctx, e)
	return exitStatus(err)
}

func (c *reconcileCmd) run(ctx context.Context, e *env) (*reconcile.Report, error) {
	start, end, err := parsePeriod(c.start, c.end)
	if err != nil {
		return nil, err
	}
	logger := e.logger.WithComponent(log.ComponentApp)

	mapping, err := LoadTagMapping(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, err
	}

	contract, err := loadContract(firstNonEmpty(c.contract, e.cfg.LedgerContractPath))
	if err != nil {
		return nil, err
	}
	parser, err := ledger.NewParser(contract, e.logger)
	if err != nil {
		return nil, err
	}

	tolerance := decimal.NewFromFloat(e.cfg.VarianceTolerance)
	deps := reconcile.Deps{
		Wide: widecsv.New(mapping, e.logger, widecsv.Options{
			SkipRows:  e.cfg.WideCSVSkipRows,
			Tolerance: tolerance,
		}),
		Ledger: parser,
		Logger: e.logger,
	}
	if !c.noLive {
		deps.Live = c.liveSource(ctx, e, mapping)
	}

	rc := reconcile.New(deps, reconcile.Options{Tolerance: tolerance, Parallel: !c.sequential})
	rep, err := rc.Run(ctx, reconcile.Request{
		Start:       start,
		End:         end,
		WideCSVPath: firstNonEmpty(c.wide, e.cfg.WideCSVPath),
		LedgerDir:   firstNonEmpty(c.ledgerDir, e.cfg.LedgerDir),
	})
	if err != nil {
		return nil, err
	}

	if err := report.Summary(e.stdout, rep); err != nil {
		return rep, fmt.Errorf("write summary: %w", err)
	}
	if rep.NoData() {
		return rep, nil
	}

	w, err := report.NewWriter(firstNonEmpty(c.out, e.cfg.OutputDir), e.logger)
	if err != nil {
		return rep, err
	}
	if _, err := w.WriteRun(rep); err != nil {
		return rep, err
	}

	if err := saveRun(ctx, e, rep); err != nil {
		return rep, err
	}
	notify(ctx, e, rep, logger)
	return rep, nil
}

// liveSource builds the Cost Explorer adapter. Setup failures become an
// adapter that reports them as a failed result so the other sources still
// run.
func (c *reconcileCmd) liveSource(ctx context.Context, e *env, mapping tags.Mapping) reconcile.LiveSource {
	api, err := live.NewCostExplorer(ctx, live.Options{Profile: e.cfg.AWSProfile, Region: e.cfg.AWSRegion})
	if err != nil {
		return live.Unavailable(err, e.logger)
	}
	return live.New(api, mapping, e.logger)
}

func loadContract(path string) (ledger.Contract, error) {
	if path == "" {
		return ledger.DefaultContract(), nil
	}
	return ledger.LoadContract(path)
}

func saveRun(ctx context.Context, e *env, rep *reconcile.Report) error {
	store, err := OpenStore(ctx, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	if store == nil {
		return nil
	}
	defer store.Close()
	return store.SaveRun(ctx, storage.FromReport(rep))
}

// notify publishes the run summary. Delivery problems are logged only.
func notify(ctx context.Context, e *env, rep *reconcile.Report, logger *log.Logger) {
	pub, err := NewPublisher(e.cfg, e.logger)
	if err != nil {
		logger.WarnContext(ctx, "Run notifier unavailable", log.FieldError, err)
		return
	}
	defer pub.Close()

	if e.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PublishTimeout)
		defer cancel()
	}
	if err := pub.Publish(ctx, events.NewRunCompleted(rep)); err != nil {
		logger.WarnContext(ctx, "Run notification failed",
			log.FieldRunID, rep.RunID, log.FieldError, err)
	}
}
