package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/reconcile"
)

// timestampLayout is fixed width so stored values sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is the persisted form of a reconciliation run.
type Run struct {
	ID          string
	Start       time.Time
	End         time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	RecordTotal decimal.Decimal
	LedgerTotal decimal.Decimal

	Records     []core.CostRecord
	Ledger      []core.LedgerEntry
	Comparisons []reconcile.Comparison
}

// FromReport flattens a reconciliation report into a Run.
func FromReport(rep *reconcile.Report) Run {
	return Run{
		ID:          rep.RunID,
		Start:       rep.Start,
		End:         rep.End,
		StartedAt:   rep.StartedAt,
		FinishedAt:  rep.FinishedAt,
		Status:      rep.Status(),
		RecordTotal: rep.RecordTotal(),
		LedgerTotal: rep.Ledger.Total(),
		Records:     rep.Records,
		Ledger:      rep.Ledger.Entries,
		Comparisons: rep.Comparisons,
	}
}

// SaveRun stores run and its rows in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run Run) (err error) {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO runs (id, period_start, period_end, started_at, finished_at, status, record_total, ledger_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, day(run.Start), day(run.End), stamp(run.StartedAt), stamp(run.FinishedAt),
		run.Status, run.RecordTotal, run.LedgerTotal)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insertRecord := r.rebind(`
		INSERT INTO cost_records (run_id, date, application, cost, fiscal_year, source)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, rec := range run.Records {
		if _, err = tx.ExecContext(ctx, insertRecord,
			run.ID, rec.Date.String(), rec.Application, rec.Cost, rec.FiscalYear(), rec.Source); err != nil {
			return fmt.Errorf("insert cost record: %w", err)
		}
	}

	insertEntry := r.rebind(`
		INSERT INTO ledger_entries (run_id, month, ledger_cost, file, format, ambiguous)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for _, e := range run.Ledger {
		if _, err = tx.ExecContext(ctx, insertEntry,
			run.ID, e.Month.String(), e.LedgerCost, e.File, string(e.Format), e.Ambiguous); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	insertComparison := r.rebind(`
		INSERT INTO month_comparisons (run_id, month, fiscal_year, record_cost, ledger_cost, variance, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, c := range run.Comparisons {
		if _, err = tx.ExecContext(ctx, insertComparison,
			run.ID, c.Month.String(), c.FiscalYear(), c.RecordCost, c.LedgerCost, c.Variance, string(c.Status)); err != nil {
			return fmt.Errorf("insert comparison: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.InfoContext(ctx, "Run saved",
		log.FieldRunID, run.ID,
		log.FieldStatus, run.Status,
		log.FieldRecords, len(run.Records),
		log.FieldEntries, len(run.Ledger))
	return nil
}

// LatestRun returns the most recently finished run without its rows.
func (r *Repository) LatestRun(ctx context.Context) (Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, period_start, period_end, started_at, finished_at, status, record_total, ledger_total
		FROM runs
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`)

	var (
		run        Run
		start, end string
		started    timestamp
		finished   timestamp
	)
	err := row.Scan(&run.ID, &start, &end, &started, &finished, &run.Status, &run.RecordTotal, &run.LedgerTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if run.Start, err = parseDay(start); err != nil {
		return Run{}, err
	}
	if run.End, err = parseDay(end); err != nil {
		return Run{}, err
	}
	run.StartedAt, run.FinishedAt = started.Time, finished.Time
	return run, nil
}

// ListRecords returns the cost records of a run ordered by date and
// application.
func (r *Repository) ListRecords(ctx context.Context, runID string) ([]core.CostRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT date, application, cost, source
		FROM cost_records
		WHERE run_id = ?
		ORDER BY date, application`), runID)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	var out []core.CostRecord
	for rows.Next() {
		var (
			rec  core.CostRecord
			date string
		)
		if err := rows.Scan(&date, &rec.Application, &rec.Cost, &rec.Source); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if rec.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListLedgerEntries returns the ledger entries of a run in month order.
func (r *Repository) ListLedgerEntries(ctx context.Context, runID string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT month, ledger_cost, file, format, ambiguous
		FROM ledger_entries
		WHERE run_id = ?
		ORDER BY month, file`), runID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		var (
			e             core.LedgerEntry
			month, format string
		)
		if err := rows.Scan(&month, &e.LedgerCost, &e.File, &format, &e.Ambiguous); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Month, err = core.ParseMonth(month); err != nil {
			return nil, err
		}
		e.Format = core.LedgerFormat(format)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListComparisons returns the monthly comparisons of a run.
func (r *Repository) ListComparisons(ctx context.Context, runID string) ([]reconcile.Comparison, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT month, record_cost, ledger_cost, variance, status
		FROM month_comparisons
		WHERE run_id = ?
		ORDER BY month`), runID)
	if err != nil {
		return nil, fmt.Errorf("query comparisons: %w", err)
	}
	defer rows.Close()

	var out []reconcile.Comparison
	for rows.Next() {
		var (
			c             reconcile.Comparison
			month, status string
		)
		if err := rows.Scan(&month, &c.RecordCost, &c.LedgerCost, &c.Variance, &status); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		if c.Month, err = core.ParseMonth(month); err != nil {
			return nil, err
		}
		c.Status = reconcile.CompareStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// timestamp scans TIMESTAMP columns from either driver: lib/pq yields
// time.Time, SQLite may hand back the stored text.
type timestamp struct{ time.Time }

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func stamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period day %q: %w", s, err)
	}
	return t, nil
}
