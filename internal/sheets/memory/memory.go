package memory

import (
	"context"
	"strings"
	"sync"

	ports "cloudspend/internal/sheets"
)

// Table is an in-memory sheets.TableReader, used for offline runs and tests.
type Table struct {
	mu   sync.Mutex
	rows [][]string
}

var _ ports.TableReader = (*Table)(nil)

// New copies rows, trimming every cell.
func New(rows [][]string) *Table {
	return &Table{rows: copyRows(rows)}
}

// ReadTable returns a copy of the stored rows.
func (t *Table) ReadTable(_ context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyRows(t.rows), nil
}

func copyRows(in [][]string) [][]string {
	out := make([][]string, 0, len(in))
	for _, row := range in {
		cp := make([]string, len(row))
		for i, v := range row {
			cp[i] = strings.TrimSpace(v)
		}
		out = append(out, cp)
	}
	return out
}
