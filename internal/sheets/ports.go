package sheets

import "context"

// Ports for inbound tabular sources.
type (
	// TableReader returns a rectangular-ish table of trimmed cell values,
	// header row first. Rows may be shorter than the header.
	TableReader interface {
		ReadTable(ctx context.Context) ([][]string, error)
	}
)
