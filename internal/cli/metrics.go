package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
	"cloudspend/internal/metrics"
	"cloudspend/internal/report"
)

type metricsCmd struct {
	from       string
	to         string
	out        string
	noSubjects bool
}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "export monthly Dataverse publication metrics" }
func (*metricsCmd) Usage() string {
	return `cloudspend metrics -from YYYY-MM [-to YYYY-MM] [-out dir] [-no-subjects]

  Writes cumulative dataset, file and download counts per month and the
  dataset distribution by subject.
`
}

func (c *metricsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "first month")
	f.StringVar(&c.to, "to", "", "last month (default: current month)")
	f.StringVar(&c.out, "out", "", "output directory (default $OUTPUT_DIR)")
	f.BoolVar(&c.noSubjects, "no-subjects", false, "skip the by-subject export")
}

func (c *metricsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup()
	if err != nil {
		return exitStatus(err)
	}
	ctx, stop := SignalContext(ctx)
	defer stop()
	_, err = c.run(ctx, e, time.Now())
	return exitStatus(err)
}

func (c *metricsCmd) run(ctx context.Context, e *env, now time.Time) ([]string, error) {
	from, err := core.ParseMonth(c.from)
	if err != nil {
		return nil, fmt.Errorf("%w: -from: %v", errUsage, err)
	}
	to := core.NewMonth(now.Year(), now.Month())
	if c.to != "" {
		if to, err = core.ParseMonth(c.to); err != nil {
			return nil, fmt.Errorf("%w: -to: %v", errUsage, err)
		}
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: -to %s is before -from %s", errUsage, to, from)
	}

	client, err := metrics.New(metrics.Config{
		BaseURL:   e.cfg.DataverseURL,
		Token:     e.cfg.DataverseToken,
		RateLimit: e.cfg.DataverseRateLimit,
	}, e.logger)
	if err != nil {
		return nil, err
	}

	rows, err := client.Collect(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var subjects []metrics.SubjectCount
	if !c.noSubjects {
		if subjects, err = client.BySubject(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.WithComponent(log.ComponentMetrics).WarnContext(ctx,
				"Subject distribution unavailable", log.FieldError, err)
		}
	}

	w, err := report.NewWriter(firstNonEmpty(c.out, e.cfg.OutputDir), e.logger)
	if err != nil {
		return nil, err
	}
	paths, err := w.WriteMetrics(rows, subjects)
	if err != nil {
		return paths, err
	}
	for _, p := range paths {
		fmt.Fprintln(e.stdout, p)
	}
	return paths, nil
}
