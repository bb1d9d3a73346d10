package concat

import (
	"strings"
	"time"
)

// CreateParams carries the inputs of Create. Zero values fall back to safe
// defaults; Status defaults to completed.
type CreateParams struct {
	OriginalFileName     string
	ConcatenatedFileName string
	SelectedSheets       []string
	TargetVariable       string
	SelectedFilters      []string
	BrandMetadata        *BrandMetadata
	PreviewData          []PreviewRow
	ColumnCategories     ColumnCategories
	TotalRows            int
	Status               Status
}

// Create builds a new record stamped with now. If either file name is blank
// after trimming it returns a placeholder record (see IsPlaceholder) with
// status error instead of failing.
func Create(p CreateParams, now time.Time) State {
	orig := strings.TrimSpace(p.OriginalFileName)
	cat := strings.TrimSpace(p.ConcatenatedFileName)
	if orig == "" || cat == "" {
		return Sanitize(State{
			OriginalFileName:     PlaceholderOriginalName,
			ConcatenatedFileName: PlaceholderConcatenatedName,
			ProcessedAt:          now.UTC(),
			Status:               StatusError,
		})
	}
	status := p.Status
	if status == "" {
		status = StatusCompleted
	}
	return Sanitize(State{
		OriginalFileName:     orig,
		ConcatenatedFileName: cat,
		SelectedSheets:       p.SelectedSheets,
		TargetVariable:       p.TargetVariable,
		SelectedFilters:      p.SelectedFilters,
		BrandMetadata:        p.BrandMetadata,
		PreviewData:          p.PreviewData,
		ColumnCategories:     p.ColumnCategories,
		TotalRows:            p.TotalRows,
		ProcessedAt:          now.UTC(),
		Status:               status,
	})
}
