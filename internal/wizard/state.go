// Package wizard implements the analysis wizard: the static step tables for
// the MMM and non-MMM variants, the controller that owns AnalysisState and
// gates navigation, and the on-disk session that lets each CLI invocation
// resume where the last one stopped.
package wizard

import (
	"encoding/json"
	"time"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// AnalysisType selects the wizard variant.
type AnalysisType string

const (
	AnalysisMMM    AnalysisType = "mmm"
	AnalysisNonMMM AnalysisType = "non-mmm"
)

// Valid reports whether t names a known variant.
func (t AnalysisType) Valid() bool {
	return t == AnalysisMMM || t == AnalysisNonMMM
}

// AnalysisMode is whether the MMM run starts fresh or reuses a prior model.
type AnalysisMode string

const (
	ModeNew      AnalysisMode = "new"
	ModeExisting AnalysisMode = "existing"
)

// Valid reports whether m is a known mode.
func (m AnalysisMode) Valid() bool {
	return m == ModeNew || m == ModeExisting
}

// UserType identifies who is running the analysis.
type UserType string

const (
	UserBrand   UserType = "brand"
	UserAgency  UserType = "agency"
	UserAnalyst UserType = "analyst"
)

// Valid reports whether u is a known user type.
func (u UserType) Valid() bool {
	switch u {
	case UserBrand, UserAgency, UserAnalyst:
		return true
	}
	return false
}

// FileSummary describes the uploaded dataset.
type FileSummary struct {
	Name     string   `json:"name"`
	Path     string   `json:"path,omitempty"`
	FileType string   `json:"fileType"`
	Columns  []string `json:"columns"`
	RowCount int      `json:"rowCount"`
	Sheets   []string `json:"sheets,omitempty"`
}

// ModelResult is the opaque output of the model-building step.
type ModelResult struct {
	Data        json.RawMessage `json:"data"`
	CompletedAt time.Time       `json:"completedAt"`
}

// AnalysisState is the wizard's working state. Only the Controller mutates it.
type AnalysisState struct {
	CurrentStep     int               `json:"currentStep"`
	UserType        UserType          `json:"userType,omitempty"`
	AnalysisType    AnalysisType      `json:"analysisType,omitempty"`
	AnalysisMode    AnalysisMode      `json:"analysisMode,omitempty"`
	UploadedFile    *FileSummary      `json:"uploadedFile,omitempty"`
	Concatenation   *concat.State     `json:"concatenation,omitempty"`
	TargetVariable  string            `json:"targetVariable,omitempty"`
	SelectedBrand   string            `json:"selectedBrand,omitempty"`
	SelectedFilters map[string]string `json:"selectedFilters,omitempty"`
	ModelResult     *ModelResult      `json:"modelResult,omitempty"`
}

// FileName returns the uploaded file's name, or "".
func (s AnalysisState) FileName() string {
	if s.UploadedFile == nil {
		return ""
	}
	return s.UploadedFile.Name
}

// Clone returns a deep copy of s.
func (s AnalysisState) Clone() AnalysisState {
	out := s
	if s.UploadedFile != nil {
		f := *s.UploadedFile
		f.Columns = append([]string(nil), f.Columns...)
		f.Sheets = append([]string(nil), f.Sheets...)
		out.UploadedFile = &f
	}
	if s.Concatenation != nil {
		c := s.Concatenation.Clone()
		out.Concatenation = &c
	}
	if s.SelectedFilters != nil {
		out.SelectedFilters = make(map[string]string, len(s.SelectedFilters))
		for k, v := range s.SelectedFilters {
			out.SelectedFilters[k] = v
		}
	}
	if s.ModelResult != nil {
		m := *s.ModelResult
		m.Data = append(json.RawMessage(nil), m.Data...)
		out.ModelResult = &m
	}
	return out
}
