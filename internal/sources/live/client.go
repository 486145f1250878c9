package live

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"

	"cloudspend/internal/core"
)

// Cost Explorer is only served from us-east-1.
const DefaultRegion = "us-east-1"

// Options selects how AWS credentials are resolved.
type Options struct {
	Profile string // shared-config profile, used when no env credentials are set
	Region  string
}

// NewCostExplorer builds a Cost Explorer client. Credentials from
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY take precedence over the named
// profile. Credentials are retrieved once so a misconfiguration surfaces
// here as core.ErrCredentials instead of on the first query.
func NewCostExplorer(ctx context.Context, opts Options) (*costexplorer.Client, error) {
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = DefaultRegion
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile := strings.TrimSpace(opts.Profile); profile != "" && !envCredentials() {
		loaders = append(loaders, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", core.ErrCredentials, err)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%w: no credential provider", core.ErrCredentials)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCredentials, err)
	}
	return costexplorer.NewFromConfig(cfg), nil
}

func envCredentials() bool {
	return os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != ""
}
