package concat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

func messyState() concat.State {
	return concat.State{
		OriginalFileName:     "  sales.xlsx ",
		ConcatenatedFileName: "sales_concatenated.xlsx\n",
		SelectedSheets:       []string{" North", "South", "North", ""},
		TargetVariable:       "   ",
		SelectedFilters:      []string{" Region ", "", "Region", "Channel"},
		PreviewData:          []concat.PreviewRow{{"Region": "North"}, nil},
		ColumnCategories: concat.ColumnCategories{
			concat.CategoryRevenue: {" Volume Brand_A "},
			"Legacy":               {"Week"},
		},
		TotalRows:   2,
		ProcessedAt: time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		Status:      " completed ",
		BrandMetadata: &concat.BrandMetadata{
			OurBrand:  " Brand_A ",
			AllBrands: []string{"Brand_A", "Brand_A", " Brand_B"},
		},
	}
}

func TestSanitizeNormalizes(t *testing.T) {
	out := concat.Sanitize(messyState())

	assert.Equal(t, "sales.xlsx", out.OriginalFileName)
	assert.Equal(t, "sales_concatenated.xlsx", out.ConcatenatedFileName)
	assert.Equal(t, []string{"North", "South"}, out.SelectedSheets)
	assert.Equal(t, "", out.TargetVariable)
	assert.Equal(t, []string{"Region", "Channel"}, out.SelectedFilters)
	assert.Equal(t, concat.StatusCompleted, out.Status)
	assert.Equal(t, concat.PreviewRow{}, out.PreviewData[1])
	assert.Equal(t, []string{"Volume Brand_A"}, out.ColumnCategories[concat.CategoryRevenue])
	assert.Equal(t, []string{"Week"}, out.ColumnCategories[concat.CategoryOthers])
	for _, c := range concat.Categories {
		assert.NotNil(t, out.ColumnCategories[c], "category %s", c)
	}
	assert.Equal(t, time.UTC, out.ProcessedAt.Location())
	assert.Equal(t, "Brand_A", out.BrandMetadata.OurBrand)
	assert.Equal(t, []string{"Brand_A", "Brand_B"}, out.BrandMetadata.AllBrands)
}

func TestSanitizeFillsMissingCollections(t *testing.T) {
	out := concat.Sanitize(concat.State{})
	assert.NotNil(t, out.SelectedSheets)
	assert.NotNil(t, out.SelectedFilters)
	assert.NotNil(t, out.PreviewData)
	assert.Len(t, out.ColumnCategories, len(concat.Categories))
}

func TestSanitizeIsIdempotent(t *testing.T) {
	once := concat.Sanitize(messyState())
	twice := concat.Sanitize(once)
	assert.Equal(t, once, twice)
}

func TestSanitizeFoldsUnknownCategoriesDeterministically(t *testing.T) {
	in := concat.State{ColumnCategories: concat.ColumnCategories{
		concat.CategoryOthers: {"o1"},
		"Foo":                 {"f1"},
		"Bar":                 {"b1"},
		"Baz":                 {"z1", "o1"},
		"Qux":                 {"q1"},
	}}
	for i := 0; i < 20; i++ {
		once := concat.Sanitize(in)
		require.Equal(t, []string{"o1", "b1", "z1", "f1", "q1"}, once.ColumnCategories[concat.CategoryOthers])
		assert.Equal(t, once, concat.Sanitize(once))
	}
}

func TestSanitizeKeepsColumnInFirstCategory(t *testing.T) {
	in := concat.State{ColumnCategories: concat.ColumnCategories{
		concat.CategoryMedia:   {"TV Spend", "Region"},
		concat.CategoryRevenue: {"Region", "Volume"},
	}}
	out := concat.Sanitize(in)
	assert.Equal(t, []string{"Region", "Volume"}, out.ColumnCategories[concat.CategoryRevenue])
	assert.Equal(t, []string{"TV Spend"}, out.ColumnCategories[concat.CategoryMedia])
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	in := messyState()
	_ = concat.Sanitize(in)
	assert.Equal(t, messyState(), in)
}

func TestCreatePlaceholderOnBlankNames(t *testing.T) {
	s := concat.Create(concat.CreateParams{OriginalFileName: "a.xlsx", ConcatenatedFileName: " "}, fixedNow)
	require.True(t, s.IsPlaceholder())
	assert.Equal(t, concat.PlaceholderOriginalName, s.OriginalFileName)
	assert.Equal(t, concat.PlaceholderConcatenatedName, s.ConcatenatedFileName)
	assert.Equal(t, concat.StatusError, s.Status)
}

func TestCreateDefaults(t *testing.T) {
	s := concat.Create(concat.CreateParams{OriginalFileName: "a.xlsx", ConcatenatedFileName: "a_c.xlsx"}, fixedNow)
	assert.False(t, s.IsPlaceholder())
	assert.Equal(t, concat.StatusCompleted, s.Status)
	assert.Equal(t, fixedNow, s.ProcessedAt)
	assert.Equal(t, []string{}, s.SelectedSheets)
}
