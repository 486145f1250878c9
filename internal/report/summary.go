package report

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/reconcile"
)

// Currency of every amount the reports handle.
const Currency = money.USD

// FormatMoney renders d as a currency string, e.g. "$1,234.50".
func FormatMoney(d decimal.Decimal) string {
	cur := money.GetCurrency(Currency)
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// Summary writes a human-readable overview of rep.
func Summary(w io.Writer, rep *reconcile.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", rep.RunID)
	if !rep.Start.IsZero() || !rep.End.IsZero() {
		fmt.Fprintf(&b, "Period %s .. %s\n", day(rep.Start), day(rep.End))
	}

	b.WriteString("\nSources\n")
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, res := range rep.Results {
		line := fmt.Sprintf("  %s\t%s\t%d records", res.Source, res.Status, len(res.Records))
		if n := res.Audit.Total(); n > 0 {
			line += fmt.Sprintf("\t%d dropped", n)
		}
		if res.Err != nil {
			line += "\t" + res.Err.Error()
		}
		fmt.Fprintln(tw, line)
	}
	ledgerLine := fmt.Sprintf("  ledger\t%d entries\t%d skipped", len(rep.Ledger.Entries), len(rep.Ledger.Skipped))
	if rep.LedgerErr != nil {
		ledgerLine += "\t" + rep.LedgerErr.Error()
	}
	fmt.Fprintln(tw, ledgerLine)
	tw.Flush()

	if rep.NoData() {
		b.WriteString("\nNo data for the requested period.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("\nBy fiscal year\n")
	byFY := core.TotalsByFiscalYear(rep.Records)
	tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, fy := range slices.Sorted(maps.Keys(byFY)) {
		fmt.Fprintf(tw, "  FY%d\t%s\t\n", fy, FormatMoney(byFY[fy]))
	}
	fmt.Fprintf(tw, "  Total\t%s\t\n", FormatMoney(rep.RecordTotal()))
	tw.Flush()

	b.WriteString("\nBy application\n")
	tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, a := range byApplication(rep.Records) {
		fmt.Fprintf(tw, "  %s\t%s\n", a.Application, FormatMoney(a.Amount))
	}
	tw.Flush()

	if len(rep.Comparisons) > 0 {
		b.WriteString("\nReconciliation\n")
		tw = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  month\trecords\tledger\tvariance\tstatus")
		for _, c := range rep.Comparisons {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", c.Month, FormatMoney(c.RecordCost), FormatMoney(c.LedgerCost), FormatMoney(c.Variance), c.Status)
		}
		tw.Flush()
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func byApplication(records []core.CostRecord) []core.ApplicationAmount {
	totals := map[string]decimal.Decimal{}
	for _, r := range records {
		totals[r.Application] = totals[r.Application].Add(r.Cost)
	}
	out := make([]core.ApplicationAmount, 0, len(totals))
	for app, amt := range totals {
		out = append(out, core.ApplicationAmount{Application: app, Amount: amt})
	}
	slices.SortFunc(out, func(a, b core.ApplicationAmount) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Application, b.Application)
	})
	return out
}

func day(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
