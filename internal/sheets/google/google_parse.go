package google

import (
	"fmt"
	"strings"
)

// valuesToRows converts a values matrix (as returned by Sheets API) into
// string rows. Cells are trimmed, trailing empty cells are cut and rows that
// are entirely blank are dropped.
func valuesToRows(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, v := range values {
		row := toStrings(v)
		last := len(row)
		for last > 0 && row[last-1] == "" {
			last--
		}
		if last == 0 {
			continue
		}
		out = append(out, row[:last])
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// qualifiedRange prefixes rng with the sheet name unless it already names one.
func qualifiedRange(sheet, rng string) string {
	rng = strings.TrimSpace(rng)
	if strings.Contains(rng, "!") || strings.TrimSpace(sheet) == "" {
		return rng
	}
	return fmt.Sprintf("%s!%s", quoteSheet(sheet), rng)
}

func quoteSheet(name string) string {
	name = strings.TrimSpace(name)
	if strings.ContainsAny(name, " -'") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}
