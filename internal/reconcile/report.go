package reconcile

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/ledger"
)

const (
	StatusMatch      CompareStatus = "match"
	StatusMismatch   CompareStatus = "mismatch"
	StatusNoLedger   CompareStatus = "no_ledger"
	StatusLedgerOnly CompareStatus = "ledger_only"
)

// Run outcomes.
const (
	RunOK      = "ok"
	RunPartial = "partial"
	RunNoData  = "no_data"
)

type (
	CompareStatus string

	// Comparison is the record total of one month against its ledger total.
	Comparison struct {
		Month      core.Month
		RecordCost decimal.Decimal
		LedgerCost decimal.Decimal
		Variance   decimal.Decimal // RecordCost - LedgerCost
		Status     CompareStatus
	}

	// Report is everything a run produced.
	Report struct {
		RunID       string
		Start       time.Time
		End         time.Time
		StartedAt   time.Time
		FinishedAt  time.Time
		Results     []core.Result
		Records     []core.CostRecord
		Ledger      ledger.Batch
		LedgerErr   error
		Comparisons []Comparison
	}
)

// FiscalYear of the compared month.
func (c Comparison) FiscalYear() int { return c.Month.FiscalYear() }

// NoData reports whether the run found neither cost records nor ledger
// entries for the period.
func (r *Report) NoData() bool {
	return len(r.Records) == 0 && len(r.Ledger.Entries) == 0
}

// Err returns core.ErrNoData for an empty run, nil otherwise.
func (r *Report) Err() error {
	if r.NoData() {
		return core.ErrNoData
	}
	return nil
}

// Status summarizes the run: no_data when nothing was found, partial when
// a source failed or degraded or the ledger could not be read, ok otherwise.
func (r *Report) Status() string {
	if r.NoData() {
		return RunNoData
	}
	if r.LedgerErr != nil {
		return RunPartial
	}
	for _, res := range r.Results {
		if res.Status != core.StatusOK && res.Status != core.StatusNoData {
			return RunPartial
		}
	}
	return RunOK
}

// Mismatches returns the comparisons outside tolerance.
func (r *Report) Mismatches() []Comparison {
	var out []Comparison
	for _, c := range r.Comparisons {
		if c.Status == StatusMismatch {
			out = append(out, c)
		}
	}
	return out
}

// RecordTotal sums every merged record.
func (r *Report) RecordTotal() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		total = total.Add(rec.Cost)
	}
	return total
}

// Result returns the collector result for source, if it ran.
func (r *Report) Result(source string) (core.Result, bool) {
	for _, res := range r.Results {
		if res.Source == source {
			return res, true
		}
	}
	return core.Result{}, false
}

// Compare builds one comparison per month present in records or entries,
// in month order.
func Compare(records []core.CostRecord, entries []core.LedgerEntry, tolerance decimal.Decimal) []Comparison {
	recTotals := core.TotalsByMonth(records)
	ledTotals := core.LedgerTotalsByMonth(entries)

	months := make([]core.Month, 0, len(recTotals)+len(ledTotals))
	for m := range recTotals {
		months = append(months, m)
	}
	for m := range ledTotals {
		if _, ok := recTotals[m]; !ok {
			months = append(months, m)
		}
	}
	slices.SortFunc(months, core.Month.Compare)

	out := make([]Comparison, 0, len(months))
	for _, m := range months {
		rec, hasRec := recTotals[m]
		led, hasLed := ledTotals[m]
		c := Comparison{Month: m, RecordCost: rec, LedgerCost: led, Variance: rec.Sub(led)}
		switch {
		case hasRec && !hasLed:
			c.Status = StatusNoLedger
		case !hasRec && hasLed:
			c.Status = StatusLedgerOnly
		case c.Variance.Abs().LessThanOrEqual(tolerance):
			c.Status = StatusMatch
		default:
			c.Status = StatusMismatch
		}
		out = append(out, c)
	}
	return out
}
