// Package tags maps raw application tags onto canonical application
// identifiers.
//
// A Mapping is built once per run from an `original_tag`/`mapped_tag` table
// (a CSV file or a Google Sheets range) and is read-only afterwards, so it can
// be shared by every cost-source adapter without locking.
package tags

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/sheets"
)

const (
	ColumnOriginal = "original_tag"
	ColumnMapped   = "mapped_tag"
)

// Mapping is an immutable raw-to-canonical identifier table.
// The zero value is the identity mapping.
type Mapping struct {
	m map[string]string
}

// Pair is one mapping row.
type Pair struct {
	Original string
	Mapped   string
}

// NewMapping copies src into a Mapping.
func NewMapping(src map[string]string) Mapping {
	m := make(map[string]string, len(src))
	for k, v := range src {
		m[k] = v
	}
	return Mapping{m: m}
}

// Apply returns the canonical identifier for id, or id itself when it is not
// a mapping key.
func (m Mapping) Apply(id string) string {
	if v, ok := m.m[id]; ok {
		return v
	}
	return id
}

// Lookup reports the mapped value for id and whether id is a key.
func (m Mapping) Lookup(id string) (string, bool) {
	v, ok := m.m[id]
	return v, ok
}

// Len returns the number of keys.
func (m Mapping) Len() int { return len(m.m) }

// Pairs lists the mapping sorted by original tag.
func (m Mapping) Pairs() []Pair {
	out := make([]Pair, 0, len(m.m))
	for k, v := range m.m {
		out = append(out, Pair{Original: k, Mapped: v})
	}
	slices.SortFunc(out, func(a, b Pair) int { return cmp.Compare(a.Original, b.Original) })
	return out
}

// Loader builds mappings from files or tabular readers, logging rows it
// had to skip.
type Loader struct {
	logger *log.Logger
}

// NewLoader returns a Loader. A nil logger discards messages.
func NewLoader(logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Discard()
	}
	return &Loader{logger: logger.WithComponent(log.ComponentTags)}
}

// Load reads a mapping CSV. A missing file returns the identity mapping and
// an error wrapping core.ErrConfigMissing; callers should log it and go on.
func (l *Loader) Load(path string) (Mapping, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Mapping{}, fmt.Errorf("tag mapping %s: %w", path, core.ErrConfigMissing)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("open tag mapping %s: %w", path, err)
	}
	defer f.Close()

	m, err := l.Parse(f)
	if err != nil {
		return Mapping{}, fmt.Errorf("tag mapping %s: %w", path, err)
	}
	l.logger.Info("Loaded tag mapping", log.FieldPath, path, log.FieldRecords, m.Len())
	return m, nil
}

// Parse reads a mapping table in CSV form.
func (l *Loader) Parse(r io.Reader) (Mapping, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", core.ErrFileFormat, err)
	}
	return l.FromRows(rows)
}

// LoadTable reads the mapping from a tabular source such as a Google Sheets range.
func (l *Loader) LoadTable(ctx context.Context, src sheets.TableReader) (Mapping, error) {
	rows, err := src.ReadTable(ctx)
	if err != nil {
		return Mapping{}, fmt.Errorf("read tag mapping table: %w", err)
	}
	m, err := l.FromRows(rows)
	if err != nil {
		return Mapping{}, err
	}
	l.logger.InfoContext(ctx, "Loaded tag mapping from table", log.FieldRecords, m.Len())
	return m, nil
}

// FromRows builds a mapping from a header row followed by data rows.
//
// Blank original tags are ignored. When a key repeats with a different target
// the last row wins. A row mapping a real tag onto the untagged sentinel is
// rejected so "No Tag" only ever means "untagged".
func (l *Loader) FromRows(rows [][]string) (Mapping, error) {
	if len(rows) == 0 {
		return Mapping{}, fmt.Errorf("%w: empty tag mapping table", core.ErrFileFormat)
	}
	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	colOriginal := indexOf(header, ColumnOriginal)
	colMapped := indexOf(header, ColumnMapped)
	if colOriginal == -1 || colMapped == -1 {
		return Mapping{}, fmt.Errorf("%w: tag mapping header must contain %s and %s, got %v",
			core.ErrFileFormat, ColumnOriginal, ColumnMapped, header)
	}

	m := make(map[string]string, len(rows)-1)
	for i, row := range rows[1:] {
		original := strings.TrimSpace(safeGet(row, colOriginal))
		mapped := strings.TrimSpace(safeGet(row, colMapped))
		if original == "" {
			continue
		}
		if mapped == "" {
			l.logger.Warn("Skipping tag mapping row without target", "row", i+2, log.FieldApplication, original)
			continue
		}
		if mapped == core.NoTag && original != core.NoTag {
			l.logger.Warn("Skipping tag mapping row targeting the untagged sentinel", "row", i+2, log.FieldApplication, original)
			continue
		}
		if prev, ok := m[original]; ok && prev != mapped {
			l.logger.Warn("Conflicting tag mapping, keeping last", "row", i+2,
				log.FieldApplication, original, "previous", prev, "mapped", mapped)
		}
		m[original] = mapped
	}
	return Mapping{m: m}, nil
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
