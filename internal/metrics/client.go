// Package metrics reads publication metrics from a Dataverse installation.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cloudspend/internal/core"
	"cloudspend/internal/log"
)

// Metric names understood by the toMonth endpoint.
const (
	MetricDatasets  = "datasets"
	MetricFiles     = "files"
	MetricDownloads = "downloads"
)

// Config configures the client.
type Config struct {
	BaseURL   string
	Token     string        // sent as X-Dataverse-key when set
	RateLimit float64       // requests per second (default: 5)
	RateBurst int           // default: 1
	Timeout   time.Duration // per request (default: 30s)
	Transport http.RoundTripper
}

// Client is a rate-limited Dataverse metrics client.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

type (
	// MonthlyCounts holds the cumulative counts up to the end of Month.
	// A nil count means the lookup failed.
	MonthlyCounts struct {
		Month     core.Month
		Datasets  *int64
		Files     *int64
		Downloads *int64
	}

	// SubjectCount is the number of datasets tagged with a subject.
	SubjectCount struct {
		Subject string `json:"subject"`
		Count   int64  `json:"count"`
	}
)

// New returns a Client. BaseURL must be an absolute http(s) URL.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid dataverse url %q", core.ErrConfigMissing, cfg.BaseURL)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		base:       strings.TrimSuffix(u.String(), "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger.WithComponent(log.ComponentMetrics),
	}, nil
}

// Count returns the cumulative value of metric up to month.
func (c *Client) Count(ctx context.Context, metric string, month core.Month) (int64, error) {
	var body struct {
		Data struct {
			Count *int64 `json:"count"`
		} `json:"data"`
	}
	path := "/api/info/metrics/" + url.PathEscape(metric) + "/toMonth/" + month.String()
	if err := c.get(ctx, path, &body); err != nil {
		return 0, err
	}
	if body.Data.Count == nil {
		return 0, fmt.Errorf("%w: %s response has no count", core.ErrUpstreamAPI, path)
	}
	return *body.Data.Count, nil
}

// BySubject returns the dataset distribution by subject.
func (c *Client) BySubject(ctx context.Context) ([]SubjectCount, error) {
	var body struct {
		Data []SubjectCount `json:"data"`
	}
	if err := c.get(ctx, "/api/info/metrics/datasets/bySubject", &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Collect fetches datasets, files and downloads for every month in
// [from, to]. Failed lookups are logged and left nil; only a done context
// stops the collection.
func (c *Client) Collect(ctx context.Context, from, to core.Month) ([]MonthlyCounts, error) {
	months := core.MonthRange(from, to)
	out := make([]MonthlyCounts, 0, len(months))
	failed := 0
	for _, m := range months {
		row := MonthlyCounts{Month: m}
		for _, target := range []struct {
			metric string
			dst    **int64
		}{
			{MetricDatasets, &row.Datasets},
			{MetricFiles, &row.Files},
			{MetricDownloads, &row.Downloads},
		} {
			n, err := c.Count(ctx, target.metric, m)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return out, ctxErr
				}
				failed++
				c.logger.WarnContext(ctx, "Metric lookup failed",
					log.FieldMetric, target.metric, log.FieldMonth, m.String(), log.FieldError, err)
				continue
			}
			*target.dst = &n
		}
		out = append(out, row)
	}
	c.logger.InfoContext(ctx, "Collected repository metrics",
		"months", len(out), "failed_lookups", failed)
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Dataverse-key", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrUpstreamAPI, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", core.ErrUpstreamAPI, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(b)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("%w: GET %s: status %d: %s", core.ErrUpstreamAPI, path, resp.StatusCode, snippet)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("%w: decode %s: %v", core.ErrUpstreamAPI, path, err)
	}
	return nil
}
