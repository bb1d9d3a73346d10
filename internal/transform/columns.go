// Package transform holds the pure data helpers used by the wizard steps:
// column categorization, brand extraction, preview coercion, filtering and
// column statistics.
package transform

import (
	"strings"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// categoryPatterns is evaluated in order; the first category with a matching
// substring wins.
var categoryPatterns = []struct {
	category concat.Category
	patterns []string
}{
	{concat.CategoryRevenue, []string{"volume", "value", "unit"}},
	{concat.CategoryDistribution, []string{"wtd", "stores"}},
	{concat.CategoryPricing, []string{"price", "rpi"}},
	{concat.CategoryPromotion, []string{"promo", "tup", "btl"}},
	{concat.CategoryMedia, []string{"grp", "spend"}},
}

// CategoryOf returns the category a single column name falls into.
func CategoryOf(column string) concat.Category {
	lower := strings.ToLower(column)
	for _, cp := range categoryPatterns {
		for _, p := range cp.patterns {
			if strings.Contains(lower, p) {
				return cp.category
			}
		}
	}
	return concat.CategoryOthers
}

// CategorizeColumns assigns every column to exactly one category. Duplicate
// names are kept once; input order is preserved within each category.
func CategorizeColumns(columns []string) concat.ColumnCategories {
	out := concat.NewColumnCategories()
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		c := CategoryOf(col)
		out[c] = append(out[c], col)
	}
	return out
}
