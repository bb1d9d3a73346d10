package wizard

import (
	"fmt"
	"sync"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// StepConfig is one static entry of a step table.
type StepConfig struct {
	ID    int
	Name  string
	Title string
	// Component is the render target key of the step.
	Component  string
	CanAdvance func(*AnalysisState) bool
	// IsRequired is informational; gating is entirely CanAdvance.
	IsRequired bool
	NextLabel  string
	// PersistOnLeave saves the concatenation record before advancing.
	PersistOnLeave bool
}

// Sequence is an ordered step table with IDs 1..len.
type Sequence []StepConfig

// Last returns the terminal step's id.
func (q Sequence) Last() int { return len(q) }

// Step returns the step with the given id.
func (q Sequence) Step(id int) (StepConfig, bool) {
	if id < 1 || id > len(q) {
		return StepConfig{}, false
	}
	return q[id-1], true
}

// Registry holds the step table of each variant.
type Registry struct {
	mu        sync.RWMutex
	sequences map[AnalysisType]Sequence
	order     []AnalysisType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sequences: make(map[AnalysisType]Sequence)}
}

// Register adds the sequence for variant. IDs must run 1..len in order.
func (r *Registry) Register(variant AnalysisType, seq Sequence) error {
	if variant == "" {
		return fmt.Errorf("variant cannot be empty")
	}
	if len(seq) == 0 {
		return fmt.Errorf("variant %s has no steps", variant)
	}
	for i, s := range seq {
		if s.CanAdvance == nil {
			return fmt.Errorf("variant %s: step %d has no gate", variant, s.ID)
		}
		if s.ID != i+1 {
			return fmt.Errorf("variant %s: step at position %d has id %d", variant, i+1, s.ID)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sequences[variant]; exists {
		return fmt.Errorf("variant %s already registered", variant)
	}
	r.sequences[variant] = seq
	r.order = append(r.order, variant)
	return nil
}

// Sequence returns the step table of variant.
func (r *Registry) Sequence(variant AnalysisType) (Sequence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.sequences[variant]
	if !ok {
		return nil, fmt.Errorf("variant %s not registered", variant)
	}
	return seq, nil
}

// Step returns step id of variant.
func (r *Registry) Step(variant AnalysisType, id int) (StepConfig, error) {
	seq, err := r.Sequence(variant)
	if err != nil {
		return StepConfig{}, err
	}
	s, ok := seq.Step(id)
	if !ok {
		return StepConfig{}, fmt.Errorf("variant %s has no step %d", variant, id)
	}
	return s, nil
}

// Variants lists the registered variants in registration order.
func (r *Registry) Variants() []AnalysisType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]AnalysisType(nil), r.order...)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the process-wide registry with the MMM and
// non-MMM step tables.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		if err := r.Register(AnalysisMMM, mmmSequence()); err != nil {
			panic(err)
		}
		if err := r.Register(AnalysisNonMMM, nonMMMSequence()); err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func hasUserType(s *AnalysisState) bool     { return s.UserType.Valid() }
func hasAnalysisType(s *AnalysisState) bool { return s.AnalysisType.Valid() }
func hasAnalysisMode(s *AnalysisState) bool { return s.AnalysisMode.Valid() }
func hasTarget(s *AnalysisState) bool       { return s.TargetVariable != "" }
func hasBrand(s *AnalysisState) bool        { return len(s.SelectedBrand) > 0 }
func hasModelResult(s *AnalysisState) bool  { return s.ModelResult != nil }
func always(*AnalysisState) bool            { return true }
func never(*AnalysisState) bool             { return false }

func hasUpload(s *AnalysisState) bool {
	return s.UploadedFile != nil && len(s.UploadedFile.Columns) > 0
}

func hasConcatenation(s *AnalysisState) bool {
	c := s.Concatenation
	return c != nil && !c.IsPlaceholder() && c.Status == concat.StatusCompleted
}

func sharedPrefix() Sequence {
	return Sequence{
		{ID: 1, Name: "user-type", Title: "User Type", Component: "UserTypeStep", CanAdvance: hasUserType, IsRequired: true},
		{ID: 2, Name: "analysis-type", Title: "Analysis Type", Component: "AnalysisTypeStep", CanAdvance: hasAnalysisType, IsRequired: true},
	}
}

func mmmSequence() Sequence {
	return append(sharedPrefix(), Sequence{
		{ID: 3, Name: "analysis-mode", Title: "Analysis Mode", Component: "AnalysisModeStep", CanAdvance: hasAnalysisMode, IsRequired: true},
		{ID: 4, Name: "data-upload", Title: "Data Upload", Component: "DataUploadStep", CanAdvance: hasUpload, IsRequired: true},
		{ID: 5, Name: "data-concatenation", Title: "Data Concatenation", Component: "DataConcatenationStep", CanAdvance: hasConcatenation, IsRequired: true, PersistOnLeave: true},
		{ID: 6, Name: "target-variable", Title: "Target Variable", Component: "TargetVariableStep", CanAdvance: hasTarget, IsRequired: true, PersistOnLeave: true},
		{ID: 7, Name: "filter-selection", Title: "Filter Selection", Component: "FilterSelectionStep", CanAdvance: always, PersistOnLeave: true},
		{ID: 8, Name: "brand-selection", Title: "Brand Selection", Component: "BrandSelectionStep", CanAdvance: hasBrand, IsRequired: true, PersistOnLeave: true},
		{ID: 9, Name: "model-building", Title: "Model Building", Component: "ModelBuildingStep", CanAdvance: hasModelResult, IsRequired: true, NextLabel: "View Results"},
		{ID: 10, Name: "results", Title: "Results", Component: "ResultsStep", CanAdvance: never, IsRequired: true, NextLabel: "Complete"},
	}...)
}

func nonMMMSequence() Sequence {
	return append(sharedPrefix(), Sequence{
		{ID: 3, Name: "data-upload", Title: "Data Upload", Component: "DataUploadStep", CanAdvance: hasUpload, IsRequired: true},
		{ID: 4, Name: "data-concatenation", Title: "Data Concatenation", Component: "DataConcatenationStep", CanAdvance: hasConcatenation, IsRequired: true, PersistOnLeave: true},
		{ID: 5, Name: "filter-selection", Title: "Filter Selection", Component: "FilterSelectionStep", CanAdvance: always, PersistOnLeave: true},
		{ID: 6, Name: "brand-selection", Title: "Brand Selection", Component: "BrandSelectionStep", CanAdvance: hasBrand, IsRequired: true, PersistOnLeave: true, NextLabel: "View Summary"},
		{ID: 7, Name: "data-summary", Title: "Data Summary", Component: "DataSummaryStep", CanAdvance: never, IsRequired: true, NextLabel: "Complete"},
	}...)
}
