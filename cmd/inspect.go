package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/sheets"
	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

var (
	inspSheets  []string
	inspTarget  string
	inspColumn  string
	inspBins    int
	inspFilters []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarize a dataset: columns by category, brands and numeric stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wb, err := sheets.Open(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		sum := wb.Summary()
		fmt.Fprintf(out, "File: %s (%s)\n", sum.FileName, sum.FileType)
		fmt.Fprintf(out, "Rows: %d  Columns: %d  Sheets: %s\n", sum.RowCount, len(sum.Columns), strings.Join(sum.Sheets, ", "))

		sh, err := pickSheet(wb, inspSheets)
		if err != nil {
			return err
		}
		cats := transform.CategorizeColumns(sh.Columns)
		fmt.Fprintln(out, "\nColumn categories:")
		for _, c := range concat.Categories {
			if cols := cats[c]; len(cols) > 0 {
				fmt.Fprintf(out, "  %-12s %s\n", c+":", strings.Join(cols, ", "))
			}
		}

		if brands := transform.ExtractBrandNames(sh.Columns); len(brands) > 0 {
			fmt.Fprintf(out, "\nBrands: %s\n", strings.Join(brands, ", "))
		}
		if inspTarget != "" {
			md := transform.CreateBrandMetadata(inspTarget, sh.Columns, cats, timeNow())
			fmt.Fprintf(out, "Our brand: %s\n", orNone(md.OurBrand))
			fmt.Fprintf(out, "Competitors: %s\n", orNone(strings.Join(md.Categories.Competitors, ", ")))
			fmt.Fprintf(out, "Halo brands: %s\n", orNone(strings.Join(md.Categories.HaloBrands, ", ")))
		}

		filters, err := parseFilters(inspFilters)
		if err != nil {
			return err
		}
		rows := transform.FilterPreviewData(transform.TransformAPIDataToPreview(sh.Table(0)), filters)
		if len(filters) > 0 {
			fmt.Fprintf(out, "\nRows matching filters: %d\n", len(rows))
		}
		printStats(out, rows)

		if inspColumn != "" {
			h := transform.Histogram(rows, inspColumn, inspBins)
			if h == nil {
				return fmt.Errorf("column %q has no numeric values", inspColumn)
			}
			fmt.Fprintf(out, "\nHistogram of %s:\n", inspColumn)
			for _, b := range h.Bins {
				fmt.Fprintf(out, "  [%10.2f, %10.2f] %6d %s\n", b.Lower, b.Upper, b.Count, strings.Repeat("#", barWidth(b.Count, h.Stats.Count)))
			}
		}
		return nil
	},
}

// pickSheet returns the single sheet of a flat file, or the concatenation of
// the selected (default all) sheets of a workbook.
func pickSheet(wb *sheets.Workbook, selected []string) (*sheets.Sheet, error) {
	if len(selected) == 0 && len(wb.Sheets) == 1 {
		return &wb.Sheets[0], nil
	}
	if len(selected) == 1 {
		sh, ok := wb.Sheet(selected[0])
		if !ok {
			return nil, fmt.Errorf("sheet %q not found in %s", selected[0], wb.FileName)
		}
		return sh, nil
	}
	return wb.Concatenate(selected)
}

func printStats(out io.Writer, rows []concat.PreviewRow) {
	cols := transform.NumericColumns(rows)
	if len(cols) == 0 {
		return
	}
	fmt.Fprintln(out, "\nNumeric columns:")
	fmt.Fprintf(out, "  %-30s %8s %14s %12s %12s %12s %12s\n", "column", "count", "sum", "mean", "median", "min", "max")
	for _, c := range cols {
		st := transform.CalculateColumnStats(rows, c)
		if st == nil {
			continue
		}
		fmt.Fprintf(out, "  %-30s %8d %14.2f %12.2f %12.2f %12.2f %12.2f\n", c, st.Count, st.Sum, st.Mean, st.Median, st.Min, st.Max)
	}
}

func parseFilters(in []string) (map[string]string, error) {
	out := map[string]string{}
	for _, f := range in {
		col, val, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("invalid filter %q (want column=value)", f)
		}
		out[strings.TrimSpace(col)] = strings.TrimSpace(val)
	}
	return out, nil
}

func barWidth(n, total int) int {
	if total == 0 {
		return 0
	}
	return n * 40 / total
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringSliceVar(&inspSheets, "sheets", nil, "sheets to include (default all, stacked)")
	inspectCmd.Flags().StringVar(&inspTarget, "target", "", "target column; prints the brand split")
	inspectCmd.Flags().StringVar(&inspColumn, "column", "", "numeric column to draw a histogram for")
	inspectCmd.Flags().IntVar(&inspBins, "bins", transform.DefaultBins, "histogram bin count")
	inspectCmd.Flags().StringArrayVar(&inspFilters, "filter", nil, "row filter column=value (repeatable)")
}
