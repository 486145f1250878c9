// Package widecsv reads cost-explorer style exports laid out with one row per
// date and one column per application.
package widecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/tags"
)

// Column names that hold aggregates rather than an application series.
const (
	TotalColumn            = "Total costs"
	ApplicationTotalColumn = "application total"
)

var unitSuffix = regexp.MustCompile(`\s*\(\s*[$€£¥]\s*\)\s*$`)

// Options tune how an export is read.
type Options struct {
	// SkipRows is the number of preamble rows following the header.
	SkipRows int
	// Tolerance is the allowed difference between the per-date total column
	// and the sum of the application cells.
	Tolerance decimal.Decimal
}

// DefaultOptions matches the console export: two preamble rows, one cent of
// checksum tolerance.
func DefaultOptions() Options {
	return Options{SkipRows: 2, Tolerance: decimal.New(1, -2)}
}

// Adapter converts wide exports into cost records. It holds no state between
// calls, so parsing the same file twice yields the same records.
type Adapter struct {
	mapping tags.Mapping
	logger  *log.Logger
	opts    Options
}

// New returns an Adapter. A negative SkipRows falls back to the default.
func New(mapping tags.Mapping, logger *log.Logger, opts Options) *Adapter {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.SkipRows < 0 {
		opts.SkipRows = DefaultOptions().SkipRows
	}
	if opts.Tolerance.IsNegative() {
		opts.Tolerance = opts.Tolerance.Neg()
	}
	return &Adapter{mapping: mapping, logger: logger.WithComponent(log.ComponentWideCSV), opts: opts}
}

// Parse reads the export at path.
func (a *Adapter) Parse(path string) core.Result {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("Wide CSV not found", log.FieldPath, path)
		} else {
			a.logger.Error("Failed to open wide CSV", log.FieldPath, path, log.FieldError, err)
		}
		return core.Failed(core.SourceWideCSV, fmt.Errorf("open wide csv: %w", err))
	}
	defer f.Close()

	res := a.Read(f)
	if res.Err != nil {
		res.Err = fmt.Errorf("%s: %w", path, res.Err)
	}
	a.logger.Info("Parsed wide CSV",
		append(log.NewFields().WithSource(core.SourceWideCSV, string(res.Status)).WithAudit(res.Audit).ToSlice(),
			log.FieldPath, path, log.FieldRecords, len(res.Records))...)
	return res
}

type column struct {
	index int
	name  string
}

// Read parses an export from r.
func (a *Adapter) Read(r io.Reader) core.Result {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return core.Failed(core.SourceWideCSV, fmt.Errorf("%w: %v", core.ErrFileFormat, err))
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		return core.Failed(core.SourceWideCSV, fmt.Errorf("%w: wide csv needs a date column and at least one series", core.ErrFileFormat))
	}

	apps, totalIdx := a.columns(rows[0])

	var (
		records  []core.CostRecord
		audit    = core.Audit{}
		degraded bool
	)
	data := rows[1:]
	if len(data) > a.opts.SkipRows {
		data = data[a.opts.SkipRows:]
	} else {
		data = nil
	}

	for i, row := range data {
		line := i + 2 + a.opts.SkipRows
		date, err := core.ParseDate(safeGet(row, 0))
		if err != nil {
			audit.Add(core.ReasonInvalidDate, 1)
			a.logger.Debug("Dropping row with invalid date", "line", line, log.FieldError, err)
			continue
		}

		sum := decimal.Zero
		for _, col := range apps {
			cell := strings.TrimSpace(safeGet(row, col.index))
			if cell == "" {
				continue
			}
			cost, err := core.ParseAmount(cell)
			if err != nil {
				audit.Add(core.ReasonNonNumericCost, 1)
				continue
			}
			sum = sum.Add(cost)
			if cost.IsNegative() {
				audit.Add(core.ReasonNegativeCost, 1)
				a.logger.Debug("Dropping negative cost", "line", line, log.FieldApplication, col.name, log.FieldCost, cost.String())
				continue
			}
			records = append(records, core.CostRecord{
				Date:        date,
				Application: a.mapping.Apply(col.name),
				Cost:        cost,
				Source:      core.SourceWideCSV,
			})
		}

		if totalIdx < 0 {
			continue
		}
		total, err := core.ParseAmount(safeGet(row, totalIdx))
		if err != nil {
			continue
		}
		if diff := total.Sub(sum).Abs(); diff.GreaterThan(a.opts.Tolerance) {
			degraded = true
			audit.Add(core.ReasonChecksumMismatch, 1)
			a.logger.Warn("Row total does not match application cells",
				"line", line, "date", date.String(), "total", total.String(), "sum", sum.String(), log.FieldVariance, diff.String())
		}
	}

	records = core.Consolidate(records)
	core.SortRecords(records)
	return core.Complete(core.SourceWideCSV, records, audit, degraded)
}

// columns returns the application series of header and the index of the
// per-date total column (or -1).
func (a *Adapter) columns(header []string) ([]column, int) {
	totalIdx := -1
	var apps []column
	for i, h := range header {
		if i == 0 {
			continue
		}
		name := CleanColumnName(h)
		switch {
		case strings.EqualFold(name, TotalColumn):
			if totalIdx < 0 {
				totalIdx = i
			}
		case strings.EqualFold(name, ApplicationTotalColumn), name == "":
		default:
			apps = append(apps, column{index: i, name: name})
		}
	}
	return apps, totalIdx
}

// CleanColumnName strips a trailing currency marker such as "($)" and any
// byte order mark from a header cell.
func CleanColumnName(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(unitSuffix.ReplaceAllString(h, ""))
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
