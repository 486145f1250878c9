// Package ledger extracts the monthly cloud charge from departmental ledger
// exports.
//
// Two export shapes are recognized. Structured exports are CSV files whose
// first line starts with the contract's header signature; the charge is the
// credit (or, failing that, debit) total of the rows booked to the contract's
// account and cost center. Anything else is treated as a free-text report and
// scanned line by line for the charge label. Each file yields at most one
// entry, for the month named in its filename.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
)

const bom = "\ufeff"

// Skipped records a file that produced no entry and why.
type Skipped struct {
	File   string
	Reason string
	Err    error
}

// Batch is the outcome of one directory scan.
type Batch struct {
	Entries []core.LedgerEntry
	Skipped []Skipped
	Audit   core.Audit
}

// Total sums the entries of the batch.
func (b Batch) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range b.Entries {
		total = total.Add(e.LedgerCost)
	}
	return total
}

// Parser reads ledger exports according to a Contract.
type Parser struct {
	contract Contract
	pattern  *regexp.Regexp
	logger   *log.Logger
}

// NewParser validates contract and prepares the free-text matcher.
func NewParser(contract Contract, logger *log.Logger) (*Parser, error) {
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	re, err := contract.FreeText.linePattern()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Parser{contract: contract, pattern: re, logger: logger.WithComponent(log.ComponentLedger)}, nil
}

// Extract parses every ledger file in dir, in lexical filename order. Files
// that cannot be parsed are logged and listed in Batch.Skipped; only an
// unreadable directory is an error.
func (p *Parser) Extract(dir string) (Batch, error) {
	batch := Batch{Audit: core.Audit{}}
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return batch, fmt.Errorf("read ledger dir: %w", err)
	}

	began := time.Now()
	for _, de := range dirents {
		if de.IsDir() || !p.accepts(de.Name()) {
			continue
		}
		name := de.Name()
		month, ok := core.FindMonth(name)
		if !ok {
			batch.Audit.Add(core.ReasonNoMonthToken, 1)
			batch.Skipped = append(batch.Skipped, Skipped{File: name, Reason: core.ReasonNoMonthToken})
			p.logger.Debug("Skipping ledger file without month token", log.FieldFile, name)
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			p.skip(&batch, name, core.ReasonParseFailure, err)
			continue
		}
		entry, reason, err := p.Parse(name, month, content)
		if err != nil || reason != "" {
			p.skip(&batch, name, reason, err)
			continue
		}
		if entry.Ambiguous {
			batch.Audit.Add(core.ReasonAmbiguousLedger, 1)
			p.logger.Warn("Both credit and debit sums are positive, using credit",
				log.FieldFile, name, log.FieldMonth, month.String(), log.FieldLedgerCost, entry.LedgerCost.String())
		}
		batch.Entries = append(batch.Entries, entry)
	}

	p.logger.Info("Extracted ledger entries",
		append(log.NewFields().WithOperation(log.OpExtract).WithAudit(batch.Audit).ToSlice(),
			log.FieldPath, dir,
			log.FieldEntries, len(batch.Entries),
			log.FieldDuration, time.Since(began).Milliseconds())...)
	return batch, nil
}

// Parse extracts the entry of one file. A non-empty reason without an error
// means the file was understood but carries no positive charge.
func (p *Parser) Parse(name string, month core.Month, content []byte) (core.LedgerEntry, string, error) {
	text := normalize(content)

	var (
		entry core.LedgerEntry
		err   error
	)
	if strings.HasPrefix(text, p.contract.Structured.HeaderSignature) {
		entry, err = p.parseStructured(text)
		entry.Format = core.LedgerStructured
	} else {
		entry, err = p.parseFreeText(text)
		entry.Format = core.LedgerFreeText
	}
	if err != nil {
		reason := core.ReasonParseFailure
		if errors.Is(err, core.ErrFileFormat) {
			reason = core.ReasonUnrecognized
		}
		return core.LedgerEntry{}, reason, err
	}

	entry.Month = month
	entry.File = name
	if !entry.LedgerCost.IsPositive() {
		return core.LedgerEntry{}, core.ReasonNonPositive, nil
	}
	return entry, "", nil
}

func (p *Parser) parseStructured(text string) (core.LedgerEntry, error) {
	c := p.contract.Structured
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}

	header := rows[0]
	cols := map[string]int{}
	var missing []string
	for _, name := range []string{c.AccountColumn, c.CostCenterColumn, c.CreditColumn, c.DebitColumn} {
		i := slices.IndexFunc(header, func(h string) bool { return strings.EqualFold(strings.TrimSpace(h), name) })
		if i < 0 {
			missing = append(missing, name)
			continue
		}
		cols[name] = i
	}
	if len(missing) > 0 {
		return core.LedgerEntry{}, fmt.Errorf("%w: structured ledger missing columns %v", core.ErrFileFormat, missing)
	}

	credit, debit := decimal.Zero, decimal.Zero
	for i, row := range rows[1:] {
		if normalizeCode(cell(row, cols[c.AccountColumn])) != c.Account ||
			strings.TrimSpace(cell(row, cols[c.CostCenterColumn])) != c.CostCenter {
			continue
		}
		cv, err := core.ParseOptionalAmount(cell(row, cols[c.CreditColumn]))
		if err != nil {
			return core.LedgerEntry{}, fmt.Errorf("%w: line %d credit %q", core.ErrFileFormat, i+2, cell(row, cols[c.CreditColumn]))
		}
		dv, err := core.ParseOptionalAmount(cell(row, cols[c.DebitColumn]))
		if err != nil {
			return core.LedgerEntry{}, fmt.Errorf("%w: line %d debit %q", core.ErrFileFormat, i+2, cell(row, cols[c.DebitColumn]))
		}
		credit = credit.Add(cv)
		debit = debit.Add(dv)
	}

	if credit.IsPositive() {
		return core.LedgerEntry{LedgerCost: credit, Ambiguous: debit.IsPositive()}, nil
	}
	return core.LedgerEntry{LedgerCost: debit}, nil
}

func (p *Parser) parseFreeText(text string) (core.LedgerEntry, error) {
	if !strings.Contains(text, p.contract.FreeText.Label) {
		return core.LedgerEntry{}, fmt.Errorf("%w: no %q line items", core.ErrFileFormat, p.contract.FreeText.Label)
	}
	total := decimal.Zero
	for _, m := range p.pattern.FindAllStringSubmatch(text, -1) {
		amount, err := core.ParseAmount(m[1])
		if err != nil {
			return core.LedgerEntry{}, fmt.Errorf("parse amount %q: %w", m[1], err)
		}
		total = total.Add(amount)
	}
	return core.LedgerEntry{LedgerCost: total}, nil
}

func (p *Parser) accepts(name string) bool {
	ext := filepath.Ext(name)
	for _, want := range p.contract.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func (p *Parser) skip(batch *Batch, name, reason string, err error) {
	batch.Audit.Add(reason, 1)
	batch.Skipped = append(batch.Skipped, Skipped{File: name, Reason: reason, Err: err})
	if err != nil {
		p.logger.Warn("Skipping ledger file", log.FieldFile, name, log.FieldReason, reason, log.FieldError, err)
		return
	}
	p.logger.Info("Ledger file has no positive charge", log.FieldFile, name, log.FieldReason, reason)
}

// normalize drops a byte order mark and leading blank lines, and unifies
// line endings.
func normalize(content []byte) string {
	content = bytes.TrimPrefix(content, []byte(bom))
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.TrimLeft(text, " \t\n\r")
}

// normalizeCode turns spreadsheet-mangled codes such as "605000.0" back into
// "605000".
func normalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if head, tail, ok := strings.Cut(s, "."); ok && strings.Trim(tail, "0") == "" {
		return head
	}
	return s
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
