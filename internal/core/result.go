package core

import (
	"maps"
	"slices"
)

const (
	StatusOK      Status = "ok"
	StatusNoData  Status = "no_data"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Reasons counted by Audit.
const (
	ReasonNonNumericCost   = "non_numeric_cost"
	ReasonNegativeCost     = "negative_cost"
	ReasonInvalidDate      = "invalid_date"
	ReasonInvalidRecord    = "invalid_record"
	ReasonChecksumMismatch = "checksum_mismatch"
	ReasonNoMonthToken     = "no_month_token"
	ReasonNonPositive      = "non_positive_total"
	ReasonUnrecognized     = "unrecognized_format"
	ReasonParseFailure     = "parse_failure"
	ReasonAmbiguousLedger  = "ambiguous_credit_debit"
)

type (
	Status string

	// Result is what a cost-source adapter returns instead of an error, so
	// callers can tell "no data" from "failed" from "partial data".
	Result struct {
		Source  string
		Status  Status
		Records []CostRecord
		Err     error
		Audit   Audit
	}

	// Audit counts rows and files that were dropped or flagged, by reason.
	Audit map[string]int
)

// Add increments the counter for reason.
func (a Audit) Add(reason string, n int) {
	if n == 0 {
		return
	}
	a[reason] += n
}

// Merge adds every counter of b into a.
func (a Audit) Merge(b Audit) {
	for k, v := range b {
		a[k] += v
	}
}

// Total is the sum of all counters.
func (a Audit) Total() int {
	n := 0
	for _, v := range a {
		n += v
	}
	return n
}

// Reasons returns the counted reasons in lexical order.
func (a Audit) Reasons() []string {
	return slices.Sorted(maps.Keys(a))
}

// Failed builds a failed result for source.
func Failed(source string, err error) Result {
	return Result{Source: source, Status: StatusFailed, Err: err, Audit: Audit{}}
}

// Complete builds the result for a collection that did not fail outright:
// no records is StatusNoData, records with integrity problems is
// StatusPartial, otherwise StatusOK.
func Complete(source string, records []CostRecord, audit Audit, degraded bool) Result {
	r := Result{Source: source, Records: records, Audit: audit}
	switch {
	case len(records) == 0:
		r.Status = StatusNoData
	case degraded:
		r.Status = StatusPartial
	default:
		r.Status = StatusOK
	}
	return r
}

// HasData reports whether the result carries any record.
func (r Result) HasData() bool {
	return len(r.Records) > 0
}
