package transform

import (
	"math"
	"sort"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// ColumnStats summarizes the numeric values of one preview column.
type ColumnStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// CalculateColumnStats computes statistics over the numeric cells of column.
// Strings are ignored, numeric-looking or not. It returns nil when the column
// holds no numeric value.
func CalculateColumnStats(data []concat.PreviewRow, column string) *ColumnStats {
	vals := numericValues(data, column)
	if len(vals) == 0 {
		return nil
	}
	st := &ColumnStats{Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range vals {
		st.Sum += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	st.Mean = round2(st.Sum / float64(len(vals)))
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	st.Median = quantile(sorted, 0.5)
	return st
}

func numericValues(data []concat.PreviewRow, column string) []float64 {
	var vals []float64
	for _, row := range data {
		if f, ok := row[column].(float64); ok && isFinite(f) {
			vals = append(vals, f)
		}
	}
	return vals
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// quantile interpolates linearly between the closest ranks of sorted. For
// q=0.5 this is the even/odd-aware median.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
