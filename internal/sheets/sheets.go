// Package sheets reads uploaded spreadsheet files (CSV, TSV and XLSX) into
// in-memory tables, summarizes them for the upload step and concatenates
// selected sheets into a single table.
package sheets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/mixwizard-cli/internal/transform"
)

// Reader loads one file format.
type Reader interface {
	CanRead(filename string) bool
	Read(path string) (*Workbook, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(delimitedReader{})
	Register(xlsxReader{})
}

// ErrUnsupported indicates a file extension no reader handles.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// SourceColumn is prepended by Concatenate to record each row's origin sheet.
const SourceColumn = "Source Sheet"

// ConcatenatedSheet names the single sheet written for a concatenation.
const ConcatenatedSheet = "Concatenated"

// Sheet is one named table. Rows are padded to the header width.
type Sheet struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Workbook is a parsed file. Delimited files yield exactly one sheet.
type Workbook struct {
	FileName string  `json:"fileName"`
	FileType string  `json:"fileType"`
	Sheets   []Sheet `json:"sheets"`
}

// Summary is the upload-step descriptor of a file.
type Summary struct {
	FileName string   `json:"fileName"`
	Columns  []string `json:"columns"`
	RowCount int      `json:"rowCount"`
	FileType string   `json:"fileType"`
	Sheets   []string `json:"sheets"`
}

// Open selects a reader by file extension and parses path.
func Open(path string) (*Workbook, error) {
	for _, r := range registry {
		if r.CanRead(path) {
			wb, err := r.Read(path)
			if err != nil {
				return nil, err
			}
			wb.FileName = filepath.Base(path)
			return wb, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Summarize opens path and describes it.
func Summarize(path string) (*Summary, error) {
	wb, err := Open(path)
	if err != nil {
		return nil, err
	}
	return wb.Summary(), nil
}

// Summary lists the union of columns across sheets in first-seen order and
// the total number of data rows.
func (wb *Workbook) Summary() *Summary {
	s := &Summary{
		FileName: wb.FileName,
		FileType: wb.FileType,
		Columns:  []string{},
		Sheets:   make([]string, 0, len(wb.Sheets)),
	}
	seen := map[string]struct{}{}
	for _, sh := range wb.Sheets {
		s.Sheets = append(s.Sheets, sh.Name)
		s.RowCount += len(sh.Rows)
		for _, c := range sh.Columns {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			s.Columns = append(s.Columns, c)
		}
	}
	return s
}

// Sheet returns the named sheet.
func (wb *Workbook) Sheet(name string) (*Sheet, bool) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], true
		}
	}
	return nil, false
}

// Concatenate stacks the selected sheets under the union of their columns,
// with SourceColumn first. An empty selection means every sheet.
func (wb *Workbook) Concatenate(selected []string) (*Sheet, error) {
	names := selected
	if len(names) == 0 {
		for _, sh := range wb.Sheets {
			names = append(names, sh.Name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	parts := make([]*Sheet, 0, len(names))
	for _, n := range names {
		sh, ok := wb.Sheet(n)
		if !ok {
			return nil, fmt.Errorf("sheet %q not found in %s", n, wb.FileName)
		}
		parts = append(parts, sh)
	}

	cols := []string{SourceColumn}
	index := map[string]int{SourceColumn: 0}
	for _, sh := range parts {
		for _, c := range sh.Columns {
			if _, ok := index[c]; ok {
				continue
			}
			index[c] = len(cols)
			cols = append(cols, c)
		}
	}

	out := &Sheet{Name: ConcatenatedSheet, Columns: cols, Rows: [][]string{}}
	for _, sh := range parts {
		for _, row := range sh.Rows {
			rec := make([]string, len(cols))
			rec[0] = sh.Name
			for i, c := range sh.Columns {
				if i < len(row) {
					rec[index[c]] = row[i]
				}
			}
			out.Rows = append(out.Rows, rec)
		}
	}
	return out, nil
}

// ConcatenatedFileName derives the output file name for a concatenation of
// original, always as XLSX.
func ConcatenatedFileName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	return base + "_concatenated.xlsx"
}

// Table converts the first limit rows to the backend table shape. A
// non-positive limit keeps every row. TotalRows always reports the full size.
func (s *Sheet) Table(limit int) *transform.APITable {
	n := len(s.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	t := &transform.APITable{
		Columns:   append([]string(nil), s.Columns...),
		Rows:      make([]map[string]any, 0, n),
		TotalRows: len(s.Rows),
	}
	for _, row := range s.Rows[:n] {
		m := make(map[string]any, len(s.Columns))
		for i, c := range s.Columns {
			if i < len(row) {
				m[c] = row[i]
			} else {
				m[c] = ""
			}
		}
		t.Rows = append(t.Rows, m)
	}
	return t
}

// normalize trims header names, names blank headers after their position,
// de-duplicates repeated names and pads every row to the header width.
func normalize(name string, records [][]string) Sheet {
	sh := Sheet{Name: name, Columns: []string{}, Rows: [][]string{}}
	start := -1
	for i, r := range records {
		if !blankRow(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return sh
	}
	seen := map[string]int{}
	for i, h := range records[start] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = fmt.Sprintf("%s (%d)", h, n+1)
		} else {
			seen[h] = 1
		}
		sh.Columns = append(sh.Columns, h)
	}
	for _, r := range records[start+1:] {
		if blankRow(r) {
			continue
		}
		row := make([]string, len(sh.Columns))
		for i := range row {
			if i < len(r) {
				row[i] = strings.TrimSpace(r[i])
			}
		}
		sh.Rows = append(sh.Rows, row)
	}
	return sh
}

func blankRow(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
