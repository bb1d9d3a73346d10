package transform

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// brandPattern captures the text that follows a volume/value/unit keyword,
// e.g. "Volume Brand_A" -> "Brand_A", "Value Brand_A Extra" -> "Brand_A Extra".
var brandPattern = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:volume|value|units?)[\s_:\-]+(.+)$`)

const minBrandLen = 2

// ExtractBrand returns the brand encoded in a single column name, or "".
func ExtractBrand(column string) string {
	m := brandPattern.FindStringSubmatch(column)
	if len(m) < 2 {
		return ""
	}
	b := strings.TrimSpace(m[1])
	if len([]rune(b)) < minBrandLen {
		return ""
	}
	return b
}

// ExtractBrandNames returns the distinct brands found in columns, in
// first-seen order.
func ExtractBrandNames(columns []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, col := range columns {
		b := ExtractBrand(col)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

// CreateBrandMetadata derives our brand from the target variable and splits
// every other extracted brand into halo brands (name contains, or is
// contained by, ours; case-insensitive) and competitors. When categories is
// non-nil only its Revenue columns are scanned for brands. The result is
// stamped with now.
func CreateBrandMetadata(targetVariable string, allColumns []string, categories concat.ColumnCategories, now time.Time) concat.BrandMetadata {
	target := strings.TrimSpace(targetVariable)
	ours := ExtractBrand(target)

	source := allColumns
	if categories != nil {
		source = categories[concat.CategoryRevenue]
	}
	all := ExtractBrandNames(source)
	if ours != "" && !slices.Contains(all, ours) {
		all = append([]string{ours}, all...)
	}

	md := concat.BrandMetadata{
		TargetVariable: target,
		OurBrand:       ours,
		AllBrands:      all,
		Categories: concat.BrandCategories{
			OurBrand:    []string{},
			Competitors: []string{},
			HaloBrands:  []string{},
		},
		ExtractedAt: now.UTC(),
	}
	if ours != "" {
		md.Categories.OurBrand = []string{ours}
	}
	lowerOurs := strings.ToLower(ours)
	for _, b := range all {
		if b == ours {
			continue
		}
		lb := strings.ToLower(b)
		if ours != "" && (strings.Contains(lb, lowerOurs) || strings.Contains(lowerOurs, lb)) {
			md.Categories.HaloBrands = append(md.Categories.HaloBrands, b)
			continue
		}
		md.Categories.Competitors = append(md.Categories.Competitors, b)
	}
	return md
}
