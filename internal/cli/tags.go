package cli

import (
	"context"
	"encoding/csv"
	"flag"

	"github.com/google/subcommands"

	"cloudspend/internal/tags"
)

type tagsCmd struct {
	path  string
	sheet string
}

func (*tagsCmd) Name() string     { return "tags" }
func (*tagsCmd) Synopsis() string { return "print the effective tag mapping" }
func (*tagsCmd) Usage() string {
	return `cloudspend tags [-path p] [-sheet id]

  Loads the tag mapping from a CSV file or a Google Sheets range and prints
  it as original,mapped rows.
`
}

func (c *tagsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "path", "", "mapping CSV (default $TAG_MAPPING_PATH)")
	f.StringVar(&c.sheet, "sheet", "", "spreadsheet id (default $TAG_MAPPING_SHEET_ID)")
}

func (c *tagsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := setup()
	if err != nil {
		return exitStatus(err)
	}
	_, err = c.run(ctx, e)
	return exitStatus(err)
}

func (c *tagsCmd) run(ctx context.Context, e *env) (tags.Mapping, error) {
	if c.path != "" {
		e.cfg.TagMappingPath = c.path
		e.cfg.TagMappingSheetID = ""
	}
	if c.sheet != "" {
		e.cfg.TagMappingSheetID = c.sheet
	}
	m, err := LoadTagMapping(ctx, e.cfg, e.logger)
	if err != nil {
		return m, err
	}

	cw := csv.NewWriter(e.stdout)
	_ = cw.Write([]string{tags.ColumnOriginal, tags.ColumnMapped})
	for _, p := range m.Pairs() {
		_ = cw.Write([]string{p.Original, p.Mapped})
	}
	cw.Flush()
	return m, cw.Error()
}
