package core

import "time"

// FiscalYearStart is the first month of a fiscal year.
const FiscalYearStart = time.July

// FiscalYear returns the fiscal-year label for t: dates from July onwards
// belong to the fiscal year ending in the next calendar year.
func FiscalYear(t time.Time) int {
	if t.Month() >= FiscalYearStart {
		return t.Year() + 1
	}
	return t.Year()
}
