package transform

import (
	"math"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// DefaultBins is used when Histogram is asked for a non-positive bin count.
const DefaultBins = 10

// Bin is one equal-width histogram bucket. Lower is inclusive; Upper is
// exclusive except for the last bin.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// HistogramResult is the distribution of one numeric column.
type HistogramResult struct {
	Column string      `json:"column"`
	Bins   []Bin       `json:"bins"`
	Stats  ColumnStats `json:"stats"`
}

// Histogram buckets the numeric cells of column into equal-width bins. It
// returns nil when the column holds no numeric value.
func Histogram(data []concat.PreviewRow, column string, bins int) *HistogramResult {
	st := CalculateColumnStats(data, column)
	if st == nil {
		return nil
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	if st.Min == st.Max {
		return &HistogramResult{
			Column: column,
			Bins:   []Bin{{Lower: st.Min, Upper: st.Max, Count: st.Count}},
			Stats:  *st,
		}
	}
	width := (st.Max - st.Min) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = st.Min + float64(i)*width
		out[i].Upper = st.Min + float64(i+1)*width
	}
	out[bins-1].Upper = st.Max
	for _, v := range numericValues(data, column) {
		idx := int(math.Floor((v - st.Min) / width))
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return &HistogramResult{Column: column, Bins: out, Stats: *st}
}
