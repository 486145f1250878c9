package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NoTag is the application identifier given to spend that carries no
// application tag. It is applied before tag mapping.
const NoTag = "No Tag"

// Names of the cost sources, in descending precedence.
const (
	SourceLive    = "live_api"
	SourceWideCSV = "wide_csv"
)

const (
	LedgerStructured LedgerFormat = "structured"
	LedgerFreeText   LedgerFormat = "free_text"
)

type (
	LedgerFormat string

	Date struct {
		time.Time
	}

	// CostRecord is one normalized (date, application, cost) tuple.
	CostRecord struct {
		Date        Date
		Application string // canonical identifier, post-mapping
		Cost        decimal.Decimal
		Source      string // adapter that produced the record
	}

	// LedgerEntry is the total a single ledger export attributes to a month.
	LedgerEntry struct {
		Month      Month
		LedgerCost decimal.Decimal
		File       string
		Format     LedgerFormat
		// Ambiguous is set when both the credit and the debit sums of a
		// structured export were positive.
		Ambiguous bool
	}
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01",
	"1/2/2006",
	"01/02/2006",
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts the date shapes found in cost exports: ISO days,
// ISO timestamps, bare months and US-style slashed dates.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Month returns the calendar month the date falls in.
func (d Date) Month() Month {
	return NewMonth(d.Year(), d.Time.Month())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// FiscalYear returns the fiscal-year label of the record's date.
func (r CostRecord) FiscalYear() int {
	return FiscalYear(r.Date.Time)
}

func (r CostRecord) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Application) == "" {
		return ErrEmptyApplication
	}
	if r.Cost.IsNegative() {
		return ErrNegativeCost
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if e.Month.IsZero() {
		return ErrUnknownLedgerMonth
	}
	if !e.LedgerCost.IsPositive() {
		return ErrNonPositiveLedger
	}
	return nil
}
