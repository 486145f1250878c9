// Package live collects monthly spend per application from AWS Cost Explorer.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/tags"
)

const (
	DefaultTagKey = "application"
	DefaultMetric = "NetUnblendedCost"

	dayLayout = "2006-01-02"
)

// CostExplorerAPI is the subset of the Cost Explorer client the adapter uses.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

var _ CostExplorerAPI = (*costexplorer.Client)(nil)

// Adapter turns Cost Explorer results into cost records.
type Adapter struct {
	api     CostExplorerAPI
	initErr error
	mapping tags.Mapping
	logger  *log.Logger
	tagKey  string
	metric  string
}

// New returns an adapter backed by api.
func New(api CostExplorerAPI, mapping tags.Mapping, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.Discard()
	}
	return &Adapter{
		api:     api,
		mapping: mapping,
		logger:  logger.WithComponent(log.ComponentLive),
		tagKey:  DefaultTagKey,
		metric:  DefaultMetric,
	}
}

// Unavailable returns an adapter whose every Fetch fails with err. It lets
// callers keep a live collector in the run when credentials could not be
// resolved, so the failure shows up in the run's results.
func Unavailable(err error, logger *log.Logger) *Adapter {
	a := New(nil, tags.Mapping{}, logger)
	a.initErr = err
	return a
}

// Fetch queries [start, end) with monthly granularity. It never returns an
// error: failures are reported through the result status.
func (a *Adapter) Fetch(ctx context.Context, start, end time.Time) core.Result {
	if a.initErr != nil {
		a.logger.WarnContext(ctx, "Live cost source unavailable", log.FieldError, a.initErr)
		return core.Failed(core.SourceLive, a.initErr)
	}
	if !start.Before(end) {
		err := fmt.Errorf("%w: empty period %s..%s", core.ErrInvalidPeriod, start.Format(dayLayout), end.Format(dayLayout))
		return core.Failed(core.SourceLive, err)
	}

	began := time.Now()
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(dayLayout)),
			End:   aws.String(end.Format(dayLayout)),
		},
		Granularity: cetypes.GranularityMonthly,
		Metrics:     []string{a.metric},
		GroupBy: []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeTag,
			Key:  aws.String(a.tagKey),
		}},
	}

	var (
		records []core.CostRecord
		audit   = core.Audit{}
		pages   int
	)
	for {
		out, err := a.api.GetCostAndUsage(ctx, input)
		if err != nil {
			err = classify(err)
			a.logger.ErrorContext(ctx, "Cost Explorer query failed", log.FieldError, err, "pages", pages)
			return core.Failed(core.SourceLive, err)
		}
		pages++
		for _, period := range out.ResultsByTime {
			records = append(records, a.convert(period, audit)...)
		}
		if aws.ToString(out.NextPageToken) == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	records = core.Consolidate(records)
	core.SortRecords(records)
	res := core.Complete(core.SourceLive, records, audit, false)
	a.logger.InfoContext(ctx, "Fetched live costs",
		append(log.NewFields().WithSource(core.SourceLive, string(res.Status)).WithAudit(audit).ToSlice(),
			log.FieldRecords, len(records),
			"pages", pages,
			log.FieldDuration, time.Since(began).Milliseconds())...)
	return res
}

func (a *Adapter) convert(period cetypes.ResultByTime, audit core.Audit) []core.CostRecord {
	if period.TimePeriod == nil {
		audit.Add(core.ReasonInvalidDate, len(period.Groups))
		return nil
	}
	date, err := core.ParseDate(aws.ToString(period.TimePeriod.Start))
	if err != nil {
		audit.Add(core.ReasonInvalidDate, len(period.Groups))
		return nil
	}

	out := make([]core.CostRecord, 0, len(period.Groups))
	for _, g := range period.Groups {
		app := a.applicationOf(g.Keys)
		metric, ok := g.Metrics[a.metric]
		if !ok {
			audit.Add(core.ReasonNonNumericCost, 1)
			continue
		}
		cost, err := core.ParseAmount(aws.ToString(metric.Amount))
		if err != nil {
			audit.Add(core.ReasonNonNumericCost, 1)
			a.logger.Debug("Dropping non-numeric cost", log.FieldApplication, app, log.FieldCost, aws.ToString(metric.Amount))
			continue
		}
		if cost.IsNegative() {
			audit.Add(core.ReasonNegativeCost, 1)
			a.logger.Debug("Dropping negative cost", log.FieldApplication, app, log.FieldCost, cost.String())
			continue
		}
		out = append(out, core.CostRecord{
			Date:        date,
			Application: app,
			Cost:        cost,
			Source:      core.SourceLive,
		})
	}
	return out
}

// applicationOf strips the "<tag>$" prefix of a group key, substitutes the
// untagged sentinel for an empty value, then applies the mapping.
func (a *Adapter) applicationOf(keys []string) string {
	var raw string
	if len(keys) > 0 {
		raw = keys[0]
	}
	raw = strings.TrimPrefix(raw, a.tagKey+"$")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = core.NoTag
	}
	return a.mapping.Apply(raw)
}

// classify maps SDK errors onto the run's error categories.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "InvalidClientTokenId", "ExpiredTokenException",
			"AccessDeniedException", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", core.ErrCredentials, apiErr.ErrorMessage())
		}
		return fmt.Errorf("%w: %s: %s", core.ErrUpstreamAPI, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%w: %v", core.ErrUpstreamAPI, err)
}
