package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "cloudspend/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client reads a single range of a spreadsheet as a table.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	rng           string
}

// Ensure interface conformance
var _ ports.TableReader = (*Client)(nil)

// Config selects the spreadsheet range and the service account to use.
type Config struct {
	SpreadsheetID   string
	Sheet           string // optional when Range already names a sheet
	Range           string // e.g. "A:B"
	CredentialsJSON string
	CredentialsFile string
}

// ConfigFromEnv fills credentials from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func ConfigFromEnv(spreadsheetID, sheet, rng string) Config {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(spreadsheetID),
		Sheet:           strings.TrimSpace(sheet),
		Range:           strings.TrimSpace(rng),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// New creates a read-only Sheets client using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.Range == "" {
		cfg.Range = "A:B"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.Sheet,
		rng:           cfg.Range,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case cfg.CredentialsJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadTable implements sheets.TableReader.
func (c *Client) ReadTable(ctx context.Context) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := qualifiedRange(c.sheet, c.rng)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return valuesToRows(resp.Values), nil
}
