package concat

import (
	"sort"
	"strings"
)

// Sanitize returns a normalized deep copy of s. It never fails and never
// mutates its input. Sanitize(Sanitize(s)) equals Sanitize(s).
func Sanitize(s State) State {
	out := s.Clone()
	out.OriginalFileName = strings.TrimSpace(out.OriginalFileName)
	out.ConcatenatedFileName = strings.TrimSpace(out.ConcatenatedFileName)
	out.TargetVariable = strings.TrimSpace(out.TargetVariable)
	out.Status = Status(strings.TrimSpace(string(out.Status)))

	out.SelectedSheets = trimNonEmpty(out.SelectedSheets, true)
	out.SelectedFilters = trimNonEmpty(out.SelectedFilters, true)
	if out.PreviewData == nil {
		out.PreviewData = []PreviewRow{}
	}
	for i, row := range out.PreviewData {
		if row == nil {
			out.PreviewData[i] = PreviewRow{}
		}
	}

	out.ColumnCategories = sanitizeCategories(out.ColumnCategories)

	if bm := out.BrandMetadata; bm != nil {
		bm.TargetVariable = strings.TrimSpace(bm.TargetVariable)
		bm.OurBrand = strings.TrimSpace(bm.OurBrand)
		bm.AllBrands = trimNonEmpty(bm.AllBrands, true)
		bm.Categories.OurBrand = trimNonEmpty(bm.Categories.OurBrand, true)
		bm.Categories.Competitors = trimNonEmpty(bm.Categories.Competitors, true)
		bm.Categories.HaloBrands = trimNonEmpty(bm.Categories.HaloBrands, true)
		if !bm.ExtractedAt.IsZero() {
			bm.ExtractedAt = bm.ExtractedAt.UTC()
		}
	}
	if !out.ProcessedAt.IsZero() {
		out.ProcessedAt = out.ProcessedAt.UTC()
	}
	return out
}

// trimNonEmpty trims every entry, drops blanks and optionally removes
// duplicates while keeping first-seen order. The result is never nil.
func trimNonEmpty(in []string, dedupe bool) []string {
	out := make([]string, 0, len(in))
	var seen map[string]struct{}
	if dedupe {
		seen = make(map[string]struct{}, len(in))
	}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if dedupe {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
		}
		out = append(out, v)
	}
	return out
}

// sanitizeCategories rebuilds cc with every known key present. Unknown keys
// fold into Others in sorted key order, and a column keeps only its first
// category in Categories order.
func sanitizeCategories(cc ColumnCategories) ColumnCategories {
	out := NewColumnCategories()
	var unknown []string
	for k := range cc {
		if _, known := out[k]; !known {
			unknown = append(unknown, string(k))
		}
	}
	sort.Strings(unknown)

	seen := map[string]struct{}{}
	add := func(dst Category, cols []string) {
		for _, col := range trimNonEmpty(cols, false) {
			if _, dup := seen[col]; dup {
				continue
			}
			seen[col] = struct{}{}
			out[dst] = append(out[dst], col)
		}
	}
	for _, c := range Categories {
		add(c, cc[c])
	}
	for _, k := range unknown {
		add(CategoryOthers, cc[Category(k)])
	}
	return out
}
