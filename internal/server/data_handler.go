package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/backend"
	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/sheets"
	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

const defaultPreviewRows = 100

// DataHandler serves the analysis endpoints over files in dataDir.
type DataHandler struct {
	dataDir string
}

// NewDataHandler creates a handler rooted at dataDir.
func NewDataHandler(dataDir string) *DataHandler {
	return &DataHandler{dataDir: dataDir}
}

// resolve maps a client-supplied file name into dataDir. Directory parts are
// dropped so a request cannot escape the data directory.
func (h *DataHandler) resolve(fileName string) (string, error) {
	base := filepath.Base(strings.TrimSpace(fileName))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", errors.New("fileName is required")
	}
	return filepath.Join(h.dataDir, base), nil
}

// loadRows reads every sheet of fileName as coerced preview rows. Multi-sheet
// workbooks are stacked first.
func (h *DataHandler) loadRows(fileName string) ([]string, []concat.PreviewRow, error) {
	path, err := h.resolve(fileName)
	if err != nil {
		return nil, nil, err
	}
	wb, err := sheets.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var sh *sheets.Sheet
	if len(wb.Sheets) == 1 {
		sh = &wb.Sheets[0]
	} else {
		sh, err = wb.Concatenate(nil)
		if err != nil {
			return nil, nil, err
		}
	}
	return sh.Columns, transform.TransformAPIDataToPreview(sh.Table(0)), nil
}

func (h *DataHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, fs.ErrNotExist) {
		status = http.StatusNotFound
	}
	log.Debug().Err(err).Str("path", r.URL.Path).Msg("analysis request failed")
	respondError(w, r, status, err.Error())
}

// brandColumns keeps columns that carry no brand or carry brand. An empty
// brand keeps everything.
func brandColumns(columns []string, brand string) []string {
	if brand == "" {
		return columns
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		b := transform.ExtractBrand(c)
		if b == "" || strings.EqualFold(b, brand) {
			out = append(out, c)
		}
	}
	return out
}

// FilteredData handles POST /api/filtered-data?brand=.
func (h *DataHandler) FilteredData(w http.ResponseWriter, r *http.Request) {
	var req backend.FilterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	cols, rows, err := h.loadRows(req.FileName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for col := range req.Filters {
		if !contains(cols, col) {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown filter column %q", col))
			return
		}
	}
	cols = brandColumns(cols, r.URL.Query().Get("brand"))
	matched := transform.FilterPreviewData(rows, req.Filters)

	n := len(matched)
	if req.Limit > 0 && req.Limit < n {
		n = req.Limit
	}
	table := &transform.APITable{Columns: cols, Rows: make([]map[string]any, 0, n), TotalRows: len(matched)}
	for _, row := range matched[:n] {
		m := make(map[string]any, len(cols))
		for _, c := range cols {
			m[c] = row[c]
		}
		table.Rows = append(table.Rows, m)
	}
	respondOK(w, r, table)
}

// ConcatenateSheets handles POST /api/concatenate-sheets. The result is
// written next to the source as <base>_concatenated.xlsx.
func (h *DataHandler) ConcatenateSheets(w http.ResponseWriter, r *http.Request) {
	var req backend.ConcatenateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	path, err := h.resolve(req.FileName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wb, err := sheets.Open(path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := wb.Concatenate(req.SelectedSheets)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := sheets.ConcatenatedFileName(req.FileName)
	if err := sheets.WriteXLSX(filepath.Join(h.dataDir, name), out); err != nil {
		log.Error().Err(err).Str("file", name).Msg("write concatenated workbook")
		respondError(w, r, http.StatusInternalServerError, "failed to write concatenated file")
		return
	}
	limit := req.PreviewRows
	if limit <= 0 {
		limit = defaultPreviewRows
	}
	log.Info().Str("originalFileName", req.FileName).Str("concatenatedFileName", name).Int("rows", len(out.Rows)).Msg("sheets concatenated")
	respondOK(w, r, backend.ConcatenateResult{
		ConcatenatedFileName: name,
		Columns:              out.Columns,
		TotalRows:            len(out.Rows),
		Preview:              out.Table(limit),
	})
}

// Histograms handles POST /api/histograms?brand=.
func (h *DataHandler) Histograms(w http.ResponseWriter, r *http.Request) {
	var req backend.HistogramRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	_, rows, err := h.loadRows(req.FileName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows = transform.FilterPreviewData(rows, req.Filters)
	cols := req.Columns
	if len(cols) == 0 {
		cols = transform.NumericColumns(rows)
	}
	cols = brandColumns(cols, r.URL.Query().Get("brand"))

	out := make([]transform.HistogramResult, 0, len(cols))
	for _, c := range cols {
		if hr := transform.Histogram(rows, c, req.Bins); hr != nil {
			out = append(out, *hr)
		}
	}
	respondOK(w, r, out)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
