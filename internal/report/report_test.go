package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/ledger"
	"cloudspend/internal/metrics"
	"cloudspend/internal/reconcile"
)

func sampleReport() *reconcile.Report {
	june, _ := core.ParseMonth("2024-06")
	records := []core.CostRecord{
		{Date: core.NewDate(2024, time.June, 1), Application: "dataverse", Cost: decimal.RequireFromString("1200.5"), Source: core.SourceLive},
		{Date: core.NewDate(2024, time.July, 1), Application: "wiki, legacy", Cost: decimal.RequireFromString("10"), Source: core.SourceWideCSV},
	}
	entries := []core.LedgerEntry{
		{Month: june, LedgerCost: decimal.RequireFromString("1200.50"), File: "ledger_2024-06.csv", Format: core.LedgerStructured},
	}
	return &reconcile.Report{
		RunID:       "run-1",
		Start:       time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
		Results:     []core.Result{core.Complete(core.SourceLive, records[:1], core.Audit{core.ReasonNegativeCost: 2}, false)},
		Records:     records,
		Ledger:      ledger.Batch{Entries: entries},
		Comparisons: reconcile.Compare(records, entries, decimal.New(1, -2)),
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
	}
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, sampleReport().Records); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "date,application,cost,fiscal_year,source\n" +
		"2024-06-01,dataverse,1200.5,2024,live_api\n" +
		"2024-07-01,\"wiki, legacy\",10,2025,wide_csv\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteRecordsKeepsSubCentAmounts(t *testing.T) {
	rep := sampleReport()
	rep.Records = nil
	for _, app := range []string{"a", "b", "c"} {
		rep.Records = append(rep.Records, core.CostRecord{
			Date:        core.NewDate(2024, time.June, 1),
			Application: app,
			Cost:        decimal.RequireFromString("0.0049999"),
			Source:      core.SourceLive,
		})
	}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, rep.Records); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	sum := decimal.Zero
	for _, row := range rows[1:] {
		sum = sum.Add(decimal.RequireFromString(row[2]))
	}
	if !sum.Equal(rep.RecordTotal()) {
		t.Fatalf("csv total %s, report total %s", sum, rep.RecordTotal())
	}
	if sum.String() != "0.0149997" {
		t.Fatalf("csv total %s", sum)
	}
}

func TestWriteComparisons(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteComparisons(&buf, sampleReport().Comparisons); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "month,fiscal_year,record_cost,ledger_cost,variance,status\n" +
		"2024-06,2024,1200.5,1200.5,0,match\n" +
		"2024-07,2025,10,0,10,no_ledger\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteMonthlyCounts(t *testing.T) {
	m, _ := core.ParseMonth("2024-01")
	n := int64(5)
	var buf bytes.Buffer
	if err := WriteMonthlyCounts(&buf, []metrics.MonthlyCounts{{Month: m, Datasets: &n, Files: &n}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "2024-01,5,5,\n") {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriterWriteRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter(dir, nil)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	paths, err := w.WriteRun(sampleReport())
	if err != nil {
		t.Fatalf("write run: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("paths: %v", paths)
	}
	b, err := os.ReadFile(filepath.Join(dir, LedgerFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "2024-06,1200.5,ledger_2024-06.csv,structured") {
		t.Fatalf("ledger.csv: %s", b)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"1234.5":  "$1,234.50",
		"0":       "$0.00",
		"0.005":   "$0.01",
		"-12.345": "-$12.35",
	}
	for in, want := range cases {
		if got := FormatMoney(decimal.RequireFromString(in)); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, sampleReport()); err != nil {
		t.Fatalf("summary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run run-1", "FY2024", "FY2025", "$1,210.50", "dataverse", "no_ledger", "2 dropped"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryNoData(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, &reconcile.Report{RunID: "empty"}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(buf.String(), "No data for the requested period") {
		t.Fatalf("got:\n%s", buf.String())
	}
}
