// Package backend is the HTTP client for the analysis backend: the
// concatenation-state resource and the filtered-data, concatenate-sheets and
// histogram endpoints. Local adapts a store.Store to the same surface for
// offline use.
package backend

import (
	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

// Envelope is the response wrapper every backend endpoint uses.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FilterRequest asks for the rows of an uploaded file matching Filters.
type FilterRequest struct {
	FileName string            `json:"fileName"`
	Filters  map[string]string `json:"filters,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// ConcatenateRequest asks the backend to stack the selected sheets of an
// uploaded workbook.
type ConcatenateRequest struct {
	FileName       string   `json:"fileName"`
	SelectedSheets []string `json:"selectedSheets"`
	PreviewRows    int      `json:"previewRows,omitempty"`
}

// ConcatenateResult describes the concatenated file written by the backend.
type ConcatenateResult struct {
	ConcatenatedFileName string             `json:"concatenatedFileName"`
	Columns              []string           `json:"columns"`
	TotalRows            int                `json:"totalRows"`
	Preview              *transform.APITable `json:"preview"`
}

// HistogramRequest asks for distributions of numeric columns.
type HistogramRequest struct {
	FileName string            `json:"fileName"`
	Columns  []string          `json:"columns,omitempty"`
	Bins     int               `json:"bins,omitempty"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// StateList is the data payload of the concatenation-state list endpoint.
type StateList struct {
	Names []string `json:"names"`
}
