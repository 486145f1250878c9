package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRunID       = "run_id"
	FieldSource      = "source"
	FieldStatus      = "status"
	FieldFile        = "file"
	FieldPath        = "path"
	FieldMonth       = "month"
	FieldFiscalYear  = "fiscal_year"
	FieldApplication = "application"
	FieldFormat      = "format"
	FieldReason      = "reason"
	FieldRecords     = "records"
	FieldEntries     = "entries"
	FieldDropped     = "dropped"
	FieldCost        = "cost"
	FieldLedgerCost  = "ledger_cost"
	FieldVariance    = "variance"
	FieldPeriodStart = "period_start"
	FieldPeriodEnd   = "period_end"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldMetric      = "metric"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentConfig    = "config"
	ComponentTags      = "tags"
	ComponentLive      = "live_api"
	ComponentWideCSV   = "wide_csv"
	ComponentLedger    = "ledger"
	ComponentReconcile = "reconcile"
	ComponentReport    = "report"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentKafka     = "kafka"
	ComponentSheets    = "sheets"
	ComponentMetrics   = "metrics"
)

// Operations defines standard operation names
const (
	OpLoad      = "load"
	OpFetch     = "fetch"
	OpParse     = "parse"
	OpExtract   = "extract"
	OpReconcile = "reconcile"
	OpWrite     = "write"
	OpSave      = "save"
	OpPublish   = "publish"
	OpMigrate   = "migrate"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithSource adds the adapter name and its outcome
func (f LogFields) WithSource(source, status string) LogFields {
	f[FieldSource] = source
	f[FieldStatus] = status
	return f
}

// WithAudit adds one field per dropped-row reason, prefixed with "dropped_"
func (f LogFields) WithAudit(counts map[string]int) LogFields {
	total := 0
	for reason, n := range counts {
		f[FieldDropped+"_"+reason] = n
		total += n
	}
	f[FieldDropped] = total
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
