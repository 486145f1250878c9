package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"

	"cloudspend/internal/config"
	"cloudspend/internal/core"
	"cloudspend/internal/log"
)

var errUsage = errors.New("usage")

// Commands returns the cloudspend subcommands.
func Commands() []subcommands.Command {
	return []subcommands.Command{
		&reconcileCmd{},
		&ledgerCmd{},
		&tagsCmd{},
		&metricsCmd{},
	}
}

// env is what every subcommand needs before doing work.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	stdout io.Writer
}

func setup() (*env, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: SetupLogger(cfg), stdout: os.Stdout}, nil
}

// exitStatus maps an error to the process exit status, printing it.
func exitStatus(err error) subcommands.ExitStatus {
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
}

// parsePeriod reads optional start and end days. End is exclusive and must
// follow start when both are set.
func parsePeriod(start, end string) (time.Time, time.Time, error) {
	var s, e time.Time
	if start != "" {
		d, err := core.ParseDate(start)
		if err != nil {
			return s, e, fmt.Errorf("%w: -start: %v", errUsage, err)
		}
		s = d.Time
	}
	if end != "" {
		d, err := core.ParseDate(end)
		if err != nil {
			return s, e, fmt.Errorf("%w: -end: %v", errUsage, err)
		}
		e = d.Time
	}
	if !s.IsZero() && !e.IsZero() && !e.After(s) {
		return s, e, fmt.Errorf("%w: -end %s must be after -start %s", errUsage, end, start)
	}
	return s, e, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

