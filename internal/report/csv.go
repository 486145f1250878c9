// Package report writes run results as CSV files and a text summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/metrics"
	"cloudspend/internal/reconcile"
)

// Output file names.
const (
	RecordsFile        = "records.csv"
	LedgerFile         = "ledger.csv"
	ReconciliationFile = "reconciliation.csv"
	MonthlyMetricsFile = "datasets_files_published_monthly.csv"
	SubjectMetricsFile = "datasets_by_subject.csv"
)

// WriteRecords writes date,application,cost,fiscal_year,source rows. Amounts
// keep their full precision.
func WriteRecords(w io.Writer, records []core.CostRecord) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "application", "cost", "fiscal_year", "source"})
	for _, r := range records {
		_ = cw.Write([]string{
			r.Date.String(),
			r.Application,
			r.Cost.String(),
			strconv.Itoa(r.FiscalYear()),
			r.Source,
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedger writes month,ledger_cost,file,format rows.
func WriteLedger(w io.Writer, entries []core.LedgerEntry) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"month", "ledger_cost", "file", "format"})
	for _, e := range entries {
		_ = cw.Write([]string{e.Month.String(), e.LedgerCost.String(), e.File, string(e.Format)})
	}
	cw.Flush()
	return cw.Error()
}

// WriteComparisons writes month,fiscal_year,record_cost,ledger_cost,variance,status rows.
func WriteComparisons(w io.Writer, comps []reconcile.Comparison) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"month", "fiscal_year", "record_cost", "ledger_cost", "variance", "status"})
	for _, c := range comps {
		_ = cw.Write([]string{
			c.Month.String(),
			strconv.Itoa(c.FiscalYear()),
			c.RecordCost.String(),
			c.LedgerCost.String(),
			c.Variance.String(),
			string(c.Status),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthlyCounts writes date,datasets_published,files_published,downloads
// rows. Failed lookups are written as empty cells.
func WriteMonthlyCounts(w io.Writer, rows []metrics.MonthlyCounts) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "datasets_published", "files_published", "downloads"})
	for _, r := range rows {
		_ = cw.Write([]string{r.Month.String(), optional(r.Datasets), optional(r.Files), optional(r.Downloads)})
	}
	cw.Flush()
	return cw.Error()
}

// WriteSubjects writes subject,count rows.
func WriteSubjects(w io.Writer, rows []metrics.SubjectCount) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"subject", "count"})
	for _, r := range rows {
		_ = cw.Write([]string{r.Subject, strconv.FormatInt(r.Count, 10)})
	}
	cw.Flush()
	return cw.Error()
}

func optional(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

// Writer places report files in a directory.
type Writer struct {
	dir    string
	logger *log.Logger
}

// NewWriter returns a Writer for dir, creating it when missing.
func NewWriter(dir string, logger *log.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Writer{dir: dir, logger: logger.WithComponent(log.ComponentReport)}, nil
}

// WriteRun writes the records, ledger and reconciliation files of rep and
// returns their paths.
func (w *Writer) WriteRun(rep *reconcile.Report) ([]string, error) {
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{RecordsFile, func(out io.Writer) error { return WriteRecords(out, rep.Records) }},
		{LedgerFile, func(out io.Writer) error { return WriteLedger(out, rep.Ledger.Entries) }},
		{ReconciliationFile, func(out io.Writer) error { return WriteComparisons(out, rep.Comparisons) }},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := w.write(f.name, f.write)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteMetrics writes the monthly counts and, when present, the subject
// distribution.
func (w *Writer) WriteMetrics(rows []metrics.MonthlyCounts, subjects []metrics.SubjectCount) ([]string, error) {
	var paths []string
	path, err := w.write(MonthlyMetricsFile, func(out io.Writer) error { return WriteMonthlyCounts(out, rows) })
	if err != nil {
		return nil, err
	}
	paths = append(paths, path)
	if len(subjects) == 0 {
		return paths, nil
	}
	path, err = w.write(SubjectMetricsFile, func(out io.Writer) error { return WriteSubjects(out, subjects) })
	if err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

// write renders into a temporary file and renames it into place so readers
// never see a partial report.
func (w *Writer) write(name string, render func(io.Writer) error) (string, error) {
	path := filepath.Join(w.dir, name)
	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := render(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	w.logger.Info("Wrote report file", log.FieldPath, path)
	return path, nil
}
