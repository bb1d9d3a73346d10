package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// APITable is the tabular payload returned by the analysis backend.
type APITable struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	// TotalRows is the size of the full dataset, not of Rows.
	TotalRows int `json:"totalRows,omitempty"`
}

// TransformAPIDataToPreview coerces every cell of the backend rows: numeric
// looking strings become float64, other strings pass through, numbers stay
// numbers and everything else is stringified. A nil table yields an empty
// slice.
func TransformAPIDataToPreview(data *APITable) []concat.PreviewRow {
	if data == nil || len(data.Rows) == 0 {
		return []concat.PreviewRow{}
	}
	out := make([]concat.PreviewRow, 0, len(data.Rows))
	for _, row := range data.Rows {
		pr := make(concat.PreviewRow, len(row))
		for k, v := range row {
			pr[k] = CoerceCell(v)
		}
		out = append(out, pr)
	}
	return out
}

// CoerceCell applies the preview coercion rules to a single value.
func CoerceCell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		if f, ok := ParseNumber(x); ok {
			return f
		}
		return x
	case float64:
		if isFinite(x) {
			return x
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return CoerceCell(float64(x))
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil && isFinite(f) {
			return f
		}
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// ParseNumber parses a trimmed numeric string. It rejects blanks, NaN and
// infinities.
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

// CellString renders a preview cell the way filters compare it.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
