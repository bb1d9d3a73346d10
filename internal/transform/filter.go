package transform

import (
	"sort"
	"strings"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// FilterPreviewData keeps the rows matching every filter (logical AND). A
// filter with an empty value places no constraint.
func FilterPreviewData(data []concat.PreviewRow, filters map[string]string) []concat.PreviewRow {
	out := make([]concat.PreviewRow, 0, len(data))
	for _, row := range data {
		if matches(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row concat.PreviewRow, filters map[string]string) bool {
	for col, want := range filters {
		if strings.TrimSpace(want) == "" {
			continue
		}
		if CellString(row[col]) != want {
			return false
		}
	}
	return true
}

// ColumnValues returns the distinct non-empty values of a column, sorted, for
// filter pickers.
func ColumnValues(data []concat.PreviewRow, column string) []string {
	seen := map[string]struct{}{}
	for _, row := range data {
		v, ok := row[column]
		if !ok {
			continue
		}
		s := CellString(v)
		if s == "" {
			continue
		}
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// NumericColumns returns, sorted, the columns holding at least one numeric
// value.
func NumericColumns(data []concat.PreviewRow) []string {
	seen := map[string]struct{}{}
	for _, row := range data {
		for k, v := range row {
			if _, ok := v.(float64); ok {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
