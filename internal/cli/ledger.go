package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"cloudspend/internal/ledger"
	"cloudspend/internal/report"
)

type ledgerCmd struct {
	dir      string
	contract string
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "extract monthly cloud charges from ledger exports" }
func (*ledgerCmd) Usage() string {
	return `cloudspend ledger [-dir d] [-contract file]

  Parses every ledger export in the directory and prints one line per
  month, followed by the files that were skipped and why.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "", "directory of ledger exports (default $LEDGER_DIR)")
	f.StringVar(&c.contract, "contract", "", "ledger contract YAML (default $LEDGER_CONTRACT_PATH)")
}

func (c *ledgerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup()
	if err != nil {
		return exitStatus(err)
	}
	_, err = c.run(e)
	return exitStatus(err)
}

func (c *ledgerCmd) run(e *env) (ledger.Batch, error) {
	dir := firstNonEmpty(c.dir, e.cfg.LedgerDir)
	if dir == "" {
		return ledger.Batch{}, fmt.Errorf("%w: -dir or LEDGER_DIR is required", errUsage)
	}
	contract, err := loadContract(firstNonEmpty(c.contract, e.cfg.LedgerContractPath))
	if err != nil {
		return ledger.Batch{}, err
	}
	parser, err := ledger.NewParser(contract, e.logger)
	if err != nil {
		return ledger.Batch{}, err
	}
	batch, err := parser.Extract(dir)
	if err != nil {
		return batch, err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "month\tfiscal_year\tledger_cost\tformat\tfile")
	for _, en := range batch.Entries {
		note := ""
		if en.Ambiguous {
			note = " (ambiguous)"
		}
		fmt.Fprintf(tw, "%s\tFY%d\t%s\t%s%s\t%s\n",
			en.Month, en.Month.FiscalYear(), report.FormatMoney(en.LedgerCost), en.Format, note, en.File)
	}
	fmt.Fprintf(tw, "total\t\t%s\t\t\n", report.FormatMoney(batch.Total()))
	if err := tw.Flush(); err != nil {
		return batch, err
	}
	for _, s := range batch.Skipped {
		fmt.Fprintf(e.stdout, "skipped %s: %s\n", s.File, s.Reason)
	}
	return batch, nil
}
