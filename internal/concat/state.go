// Package concat holds the persisted concatenation record produced by the
// sheet-concatenation step, together with its sanitizer and validator.
package concat

import (
	"time"
)

// Status is the lifecycle tag of a concatenation record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known lifecycle tags.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Category is one of the fixed column categories.
type Category string

const (
	CategoryRevenue      Category = "Revenue"
	CategoryDistribution Category = "Distribution"
	CategoryPricing      Category = "Pricing"
	CategoryPromotion    Category = "Promotion"
	CategoryMedia        Category = "Media"
	CategoryOthers       Category = "Others"
)

// Categories lists the fixed categories in precedence order.
var Categories = []Category{
	CategoryRevenue,
	CategoryDistribution,
	CategoryPricing,
	CategoryPromotion,
	CategoryMedia,
	CategoryOthers,
}

// ColumnCategories maps each category to the column names assigned to it.
type ColumnCategories map[Category][]string

// NewColumnCategories returns a map with every category key present and empty.
func NewColumnCategories() ColumnCategories {
	cc := make(ColumnCategories, len(Categories))
	for _, c := range Categories {
		cc[c] = []string{}
	}
	return cc
}

// Columns returns every categorized column in category precedence order.
func (cc ColumnCategories) Columns() []string {
	var out []string
	for _, c := range Categories {
		out = append(out, cc[c]...)
	}
	return out
}

// PreviewRow is one sampled row: column name -> float64 or string.
type PreviewRow map[string]any

// BrandCategories partitions extracted brands relative to our brand.
type BrandCategories struct {
	OurBrand    []string `json:"ourBrand"`
	Competitors []string `json:"competitors"`
	HaloBrands  []string `json:"haloBrands"`
}

// BrandMetadata describes the brands found in the dataset's column names.
type BrandMetadata struct {
	TargetVariable string          `json:"targetVariable"`
	OurBrand       string          `json:"ourBrand"`
	AllBrands      []string        `json:"allBrands"`
	Categories     BrandCategories `json:"categories"`
	ExtractedAt    time.Time       `json:"extractedAt"`
}

// State is the concatenation record persisted by the backend, keyed by
// OriginalFileName.
type State struct {
	OriginalFileName     string           `json:"originalFileName" validate:"required"`
	ConcatenatedFileName string           `json:"concatenatedFileName" validate:"required"`
	SelectedSheets       []string         `json:"selectedSheets" validate:"required"`
	TargetVariable       string           `json:"targetVariable,omitempty"`
	SelectedFilters      []string         `json:"selectedFilters" validate:"dive,required"`
	BrandMetadata        *BrandMetadata   `json:"brandMetadata,omitempty"`
	PreviewData          []PreviewRow     `json:"previewData" validate:"required"`
	ColumnCategories     ColumnCategories `json:"columnCategories"`
	TotalRows            int              `json:"totalRows" validate:"gte=0"`
	ProcessedAt          time.Time        `json:"processedAt" validate:"required"`
	Status               Status           `json:"status" validate:"required,oneof=processing completed error"`
}

// Sentinel names marking a record built from blank identifiers. Such a record
// must never be persisted.
const (
	PlaceholderOriginalName     = "__invalid_original__"
	PlaceholderConcatenatedName = "__invalid_concatenated__"
)

// IsPlaceholder reports whether s was built from blank identifiers.
func (s *State) IsPlaceholder() bool {
	return s != nil && (s.OriginalFileName == PlaceholderOriginalName || s.ConcatenatedFileName == PlaceholderConcatenatedName)
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.SelectedSheets = cloneStrings(s.SelectedSheets)
	out.SelectedFilters = cloneStrings(s.SelectedFilters)
	if s.BrandMetadata != nil {
		bm := *s.BrandMetadata
		bm.AllBrands = cloneStrings(bm.AllBrands)
		bm.Categories = BrandCategories{
			OurBrand:    cloneStrings(bm.Categories.OurBrand),
			Competitors: cloneStrings(bm.Categories.Competitors),
			HaloBrands:  cloneStrings(bm.Categories.HaloBrands),
		}
		out.BrandMetadata = &bm
	}
	if s.PreviewData != nil {
		out.PreviewData = make([]PreviewRow, len(s.PreviewData))
		for i, row := range s.PreviewData {
			out.PreviewData[i] = cloneRow(row)
		}
	}
	if s.ColumnCategories != nil {
		out.ColumnCategories = make(ColumnCategories, len(s.ColumnCategories))
		for k, v := range s.ColumnCategories {
			out.ColumnCategories[k] = cloneStrings(v)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRow(row PreviewRow) PreviewRow {
	if row == nil {
		return nil
	}
	out := make(PreviewRow, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
