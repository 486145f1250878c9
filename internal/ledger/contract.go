package ledger

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"cloudspend/internal/core"
)

// ContractVersion is the only contract schema this package understands.
const ContractVersion = 1

// Contract describes what a ledger export looks like and which lines carry
// the cloud charge.
type Contract struct {
	Version    int        `yaml:"version"`
	Extensions []string   `yaml:"extensions"`
	Structured Structured `yaml:"structured"`
	FreeText   FreeText   `yaml:"free_text"`
}

// Structured describes the tabular export.
type Structured struct {
	HeaderSignature  string `yaml:"header_signature"`
	AccountColumn    string `yaml:"account_column"`
	CostCenterColumn string `yaml:"cost_center_column"`
	CreditColumn     string `yaml:"credit_column"`
	DebitColumn      string `yaml:"debit_column"`
	Account          string `yaml:"account"`
	CostCenter       string `yaml:"cost_center"`
}

// FreeText describes the line layout of the report-style export:
// <location> <5-digit fund> <account> <cost center> <suffix> ... <label> <YYYY.MM> <amount>.
type FreeText struct {
	Location   string `yaml:"location"`
	Account    string `yaml:"account"`
	CostCenter string `yaml:"cost_center"`
	Suffix     string `yaml:"suffix"`
	Label      string `yaml:"label"`
}

// DefaultContract returns the contract for the campus ledger exports.
func DefaultContract() Contract {
	return Contract{
		Version:    ContractVersion,
		Extensions: []string{".csv"},
		Structured: Structured{
			HeaderSignature:  "Loc,Fund",
			AccountColumn:    "Account",
			CostCenterColumn: "CC",
			CreditColumn:     "Credit",
			DebitColumn:      "Debit",
			Account:          "605000",
			CostCenter:       "DA",
		},
		FreeText: FreeText{
			Location:   "4",
			Account:    "605000",
			CostCenter: "DA",
			Suffix:     "03",
			Label:      "AWS CLOUD SERVICES",
		},
	}
}

// LoadContract reads a YAML contract. Fields the document leaves out keep
// their DefaultContract values; the version must be given explicitly.
func LoadContract(path string) (Contract, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Contract{}, fmt.Errorf("read ledger contract: %w", err)
	}
	return ParseContract(b)
}

// ParseContract decodes a YAML contract document.
func ParseContract(b []byte) (Contract, error) {
	c := DefaultContract()
	c.Version = 0
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Contract{}, fmt.Errorf("%w: ledger contract: %v", core.ErrConfigMissing, err)
	}
	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	return c, nil
}

// Validate checks the version and that every matching field is set.
func (c Contract) Validate() error {
	if c.Version != ContractVersion {
		return fmt.Errorf("%w: unsupported ledger contract version %d (want %d)", core.ErrConfigMissing, c.Version, ContractVersion)
	}
	var errs []string
	required := map[string]string{
		"structured.header_signature":   c.Structured.HeaderSignature,
		"structured.account_column":     c.Structured.AccountColumn,
		"structured.cost_center_column": c.Structured.CostCenterColumn,
		"structured.credit_column":      c.Structured.CreditColumn,
		"structured.debit_column":       c.Structured.DebitColumn,
		"structured.account":            c.Structured.Account,
		"structured.cost_center":        c.Structured.CostCenter,
		"free_text.location":            c.FreeText.Location,
		"free_text.account":             c.FreeText.Account,
		"free_text.cost_center":         c.FreeText.CostCenter,
		"free_text.label":               c.FreeText.Label,
	}
	for _, name := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[name]) == "" {
			errs = append(errs, name+" is required")
		}
	}
	if len(c.Extensions) == 0 {
		errs = append(errs, "extensions must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid ledger contract: %s", core.ErrConfigMissing, strings.Join(errs, "; "))
	}
	return nil
}

// linePattern compiles the free-text line matcher. The single capture group
// is the comma-grouped amount.
func (f FreeText) linePattern() (*regexp.Regexp, error) {
	suffix := `\S*`
	if f.Suffix != "" {
		suffix = regexp.QuoteMeta(f.Suffix)
	}
	expr := regexp.QuoteMeta(f.Location) + `\s+\d{5}\s+` +
		regexp.QuoteMeta(f.Account) + `\s+` +
		regexp.QuoteMeta(f.CostCenter) + `\s+` +
		suffix + `.*?` +
		regexp.QuoteMeta(f.Label) + `\s+\d{4}\.\d{2}\s+([0-9,]+\.\d{2})`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Join(core.ErrConfigMissing, err)
	}
	return re, nil
}
