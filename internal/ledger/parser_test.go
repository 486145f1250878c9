package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
)

const structuredHeader = "Loc,Fund,Account,CC,Description,Debit,Credit\n"

func newParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(DefaultContract(), nil)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	return p
}

func writeLedger(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustMonth(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStructured(t *testing.T) {
	cases := []struct {
		name      string
		rows      string
		want      string // "" means no entry
		ambiguous bool
	}{
		{
			name: "credit only",
			rows: "4,12345,605000,DA,AWS,,500.00\n",
			want: "500",
		},
		{
			name: "negative credit falls back to debit",
			rows: "4,12345,605000,DA,AWS,20.00,-20.00\n",
			want: "20",
		},
		{
			name: "other accounts ignored",
			rows: "4,12345,605000,DA,AWS,,100.00\n4,12345,600100,DA,Other,,900.00\n4,12345,605000,XX,Other,,900.00\n",
			want: "100",
		},
		{
			name: "spreadsheet account code",
			rows: "4,12345,605000.0,DA,AWS,,\"1,250.75\"\n",
			want: "1250.75",
		},
		{
			name:      "both positive uses credit",
			rows:      "4,12345,605000,DA,AWS,30.00,70.00\n",
			want:      "70",
			ambiguous: true,
		},
		{
			name: "nothing booked",
			rows: "4,12345,600100,DA,Other,,900.00\n",
			want: "",
		},
	}
	p := newParser(t)
	month := mustMonth(t, "2024-03")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, reason, err := p.Parse("ledger_2024-03.csv", month, []byte(structuredHeader+tc.rows))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tc.want == "" {
				if reason != core.ReasonNonPositive {
					t.Fatalf("expected no entry, got %+v reason %q", entry, reason)
				}
				return
			}
			if reason != "" {
				t.Fatalf("unexpected reason %q", reason)
			}
			if !entry.LedgerCost.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("cost: got %s want %s", entry.LedgerCost, tc.want)
			}
			if entry.Format != core.LedgerStructured || entry.Month != month || entry.Ambiguous != tc.ambiguous {
				t.Fatalf("entry: %+v", entry)
			}
		})
	}
}

func TestStructuredBadAmount(t *testing.T) {
	_, reason, err := newParser(t).Parse("x_2024-03.csv", mustMonth(t, "2024-03"),
		[]byte(structuredHeader+"4,12345,605000,DA,AWS,,lots\n"))
	if !errors.Is(err, core.ErrFileFormat) || reason != core.ReasonUnrecognized {
		t.Fatalf("got %q %v", reason, err)
	}
}

func TestStructuredMissingColumn(t *testing.T) {
	_, _, err := newParser(t).Parse("x_2024-03.csv", mustMonth(t, "2024-03"),
		[]byte("Loc,Fund,Account,Debit,Credit\n4,12345,605000,,1\n"))
	if !errors.Is(err, core.ErrFileFormat) {
		t.Fatalf("expected ErrFileFormat, got %v", err)
	}
}

const report = `DEPARTMENTAL LEDGER REPORT             PAGE 1
 LOC FUND  ACCT   CC  SUB  DESCRIPTION                 PERIOD   AMOUNT
 4   12345 605000 DA  03   REF 99881 AWS CLOUD SERVICES 2024.03  1,200.50
 4   12345 605000 DA  03   REF 99882 AWS CLOUD SERVICES 2024.03  300.00
 4   12345 600100 DA  03   REF 99883 AWS CLOUD SERVICES 2024.03  999.99
 4   12345 605000 DA  03   OFFICE SUPPLIES              2024.03  45.00
`

func TestFreeText(t *testing.T) {
	entry, reason, err := newParser(t).Parse("charges 2024-03.csv", mustMonth(t, "2024-03"), []byte(report))
	if err != nil || reason != "" {
		t.Fatalf("parse: %q %v", reason, err)
	}
	if !entry.LedgerCost.Equal(decimal.RequireFromString("1500.50")) {
		t.Fatalf("cost: %s", entry.LedgerCost)
	}
	if entry.Format != core.LedgerFreeText {
		t.Fatalf("format: %s", entry.Format)
	}
}

func TestFreeTextNoMatches(t *testing.T) {
	content := "HEADER\n 4 12345 605000 DA 03 AWS CLOUD SERVICES pending\n"
	_, reason, err := newParser(t).Parse("c_2024-03.csv", mustMonth(t, "2024-03"), []byte(content))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if reason != core.ReasonNonPositive {
		t.Fatalf("expected no entry, got reason %q", reason)
	}
}

func TestFreeTextWithoutLabelIsUnrecognized(t *testing.T) {
	_, reason, err := newParser(t).Parse("c_2024-03.csv", mustMonth(t, "2024-03"), []byte("a,b,c\n1,2,3\n"))
	if !errors.Is(err, core.ErrFileFormat) || reason != core.ReasonUnrecognized {
		t.Fatalf("got %q %v", reason, err)
	}
}

func TestFormatDetectionIgnoresBOMAndBlankLines(t *testing.T) {
	content := "\ufeff\n\n" + structuredHeader + "4,12345,605000,DA,AWS,,12.00\n"
	entry, _, err := newParser(t).Parse("x_2024-03.csv", mustMonth(t, "2024-03"), []byte(content))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if entry.Format != core.LedgerStructured || !entry.LedgerCost.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("entry: %+v", entry)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	writeLedger(t, dir, "b_2024-02.csv", structuredHeader+"4,12345,605000,DA,AWS,,500.00\n")
	writeLedger(t, dir, "a_2024-01.csv", report)
	writeLedger(t, dir, "c_2024-04.csv", structuredHeader+"4,12345,600100,DA,Other,,1.00\n")
	writeLedger(t, dir, "d_2024-05.csv", "nothing to see\n")
	writeLedger(t, dir, "no-month.csv", structuredHeader)
	writeLedger(t, dir, "notes_2024-06.txt", report)
	if err := os.Mkdir(filepath.Join(dir, "archive_2024-07.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	batch, err := newParser(t).Extract(dir)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(batch.Entries) != 2 {
		t.Fatalf("entries: %+v", batch.Entries)
	}
	if batch.Entries[0].File != "a_2024-01.csv" || batch.Entries[0].Month.String() != "2024-01" {
		t.Fatalf("first entry: %+v", batch.Entries[0])
	}
	if batch.Entries[1].Month.String() != "2024-02" || !batch.Entries[1].LedgerCost.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("second entry: %+v", batch.Entries[1])
	}
	if !batch.Total().Equal(decimal.RequireFromString("2000.50")) {
		t.Fatalf("total: %s", batch.Total())
	}
	if len(batch.Skipped) != 3 {
		t.Fatalf("skipped: %+v", batch.Skipped)
	}
	want := core.Audit{core.ReasonNonPositive: 1, core.ReasonUnrecognized: 1, core.ReasonNoMonthToken: 1}
	for k, v := range want {
		if batch.Audit[k] != v {
			t.Fatalf("audit %s: got %d want %d (%v)", k, batch.Audit[k], v, batch.Audit)
		}
	}
}

func TestExtractMissingDir(t *testing.T) {
	if _, err := newParser(t).Extract(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"605000":    "605000",
		" 605000.0": "605000",
		"605000.00": "605000",
		"605000.5":  "605000.5",
		"DA":        "DA",
	}
	for in, want := range cases {
		if got := normalizeCode(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}
