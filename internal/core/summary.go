package core

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// ApplicationAmount represents an amount aggregated by application.
type ApplicationAmount struct {
	Application string
	Amount      decimal.Decimal
}

// MonthOverview is a compact summary for a specific month.
type MonthOverview struct {
	Month         Month
	Total         decimal.Decimal
	ByApplication []ApplicationAmount
}

// Consolidate sums records sharing the same date and application, keeping
// the first-seen order. Two raw tags mapped to the same canonical
// identifier end up as one record.
func Consolidate(records []CostRecord) []CostRecord {
	type key struct {
		date string
		app  string
	}
	index := make(map[key]int, len(records))
	out := make([]CostRecord, 0, len(records))
	for _, r := range records {
		k := key{r.Date.String(), r.Application}
		if i, ok := index[k]; ok {
			out[i].Cost = out[i].Cost.Add(r.Cost)
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// SortRecords orders records by date, then application.
func SortRecords(records []CostRecord) {
	slices.SortStableFunc(records, func(a, b CostRecord) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Application, b.Application)
	})
}

// TotalsByMonth sums record costs per calendar month.
func TotalsByMonth(records []CostRecord) map[Month]decimal.Decimal {
	out := map[Month]decimal.Decimal{}
	for _, r := range records {
		m := r.Date.Month()
		out[m] = out[m].Add(r.Cost)
	}
	return out
}

// TotalsByFiscalYear sums record costs per fiscal year.
func TotalsByFiscalYear(records []CostRecord) map[int]decimal.Decimal {
	out := map[int]decimal.Decimal{}
	for _, r := range records {
		fy := r.FiscalYear()
		out[fy] = out[fy].Add(r.Cost)
	}
	return out
}

// Overview builds the per-application breakdown of one month, largest first.
func Overview(records []CostRecord, month Month) MonthOverview {
	ov := MonthOverview{Month: month}
	byApp := map[string]decimal.Decimal{}
	for _, r := range records {
		if r.Date.Month() != month {
			continue
		}
		byApp[r.Application] = byApp[r.Application].Add(r.Cost)
		ov.Total = ov.Total.Add(r.Cost)
	}
	for app, amt := range byApp {
		ov.ByApplication = append(ov.ByApplication, ApplicationAmount{Application: app, Amount: amt})
	}
	slices.SortFunc(ov.ByApplication, func(a, b ApplicationAmount) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Application, b.Application)
	})
	return ov
}

// LedgerTotalsByMonth sums ledger entries per month.
func LedgerTotalsByMonth(entries []LedgerEntry) map[Month]decimal.Decimal {
	out := map[Month]decimal.Decimal{}
	for _, e := range entries {
		out[e.Month] = out[e.Month].Add(e.LedgerCost)
	}
	return out
}
