package core

import "errors"

// Run-level failure categories. Adapters wrap them with %w and callers test
// them with errors.Is.
var (
	ErrConfigMissing = errors.New("configuration missing")
	ErrCredentials   = errors.New("credentials unavailable")
	ErrUpstreamAPI   = errors.New("upstream api error")
	ErrFileFormat    = errors.New("unrecognized file format")
	ErrDataIntegrity = errors.New("data integrity")
	ErrNoData        = errors.New("no data for requested period")
	ErrInvalidPeriod = errors.New("invalid period")

	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNegativeCost       = errors.New("negative cost")
	ErrEmptyApplication   = errors.New("empty application")
	ErrInvalidDate        = errors.New("invalid date")
	ErrNonPositiveLedger  = errors.New("non-positive ledger total")
	ErrUnknownLedgerMonth = errors.New("ledger entry without month")
)
