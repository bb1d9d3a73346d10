// Package statemgr saves, loads and updates concatenation records through a
// Backend. Every operation degrades transport failures to a boolean or a
// LoadResult; nothing here returns an error to the wizard.
package statemgr

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

// Backend is the persistence surface the manager talks to. GetState returns
// (nil, nil) when no record exists.
type Backend interface {
	GetState(ctx context.Context, originalFileName string) (*concat.State, error)
	PutState(ctx context.Context, st *concat.State) error
	DeleteState(ctx context.Context, originalFileName string) error
}

// LoadResult is the outcome of Load. Success with Restored=false means no
// record was found.
type LoadResult struct {
	Success  bool          `json:"success"`
	Restored bool          `json:"restored"`
	Data     *concat.State `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Patch carries partial updates for Update. Nil fields are left unchanged.
type Patch struct {
	ConcatenatedFileName *string
	SelectedSheets       []string
	TargetVariable       *string
	SelectedFilters      []string
	BrandMetadata        *concat.BrandMetadata
	PreviewData          []concat.PreviewRow
	ColumnCategories     concat.ColumnCategories
	TotalRows            *int
	Status               *concat.Status
}

// Manager is the state manager.
type Manager struct {
	backend Backend
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for processedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a Manager persisting through b.
func New(b Backend, opts ...Option) *Manager {
	m := &Manager{backend: b, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create builds a record stamped with the manager's clock. See concat.Create.
func (m *Manager) Create(p concat.CreateParams) concat.State {
	return concat.Create(p, m.now())
}

// Check sanitizes st and validates the result without persisting anything.
func (m *Manager) Check(st concat.State) (concat.State, concat.Result) {
	clean := concat.Sanitize(st)
	return clean, concat.Validate(&clean)
}

// Save sanitizes and validates st, then persists it keyed by its original
// file name. An invalid record returns false without contacting the backend.
func (m *Manager) Save(ctx context.Context, st concat.State) bool {
	clean, res := m.Check(st)
	if !res.IsValid {
		log.Warn().
			Str("originalFileName", clean.OriginalFileName).
			Strs("errors", res.Errors).
			Msg("refusing to save invalid concatenation state")
		return false
	}
	for _, w := range res.Warnings {
		log.Debug().Str("originalFileName", clean.OriginalFileName).Str("warning", w).Msg("concatenation state warning")
	}
	if err := m.backend.PutState(ctx, &clean); err != nil {
		log.Error().Err(err).Str("originalFileName", clean.OriginalFileName).Msg("save concatenation state failed")
		return false
	}
	log.Debug().
		Str("originalFileName", clean.OriginalFileName).
		Str("status", string(clean.Status)).
		Msg("concatenation state saved")
	return true
}

// Load retrieves the record for originalFileName.
func (m *Manager) Load(ctx context.Context, originalFileName string) LoadResult {
	name := strings.TrimSpace(originalFileName)
	if name == "" {
		return LoadResult{Success: false, Error: "originalFileName is required"}
	}
	st, err := m.backend.GetState(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("originalFileName", name).Msg("load concatenation state failed")
		return LoadResult{Success: false, Error: err.Error()}
	}
	if st == nil {
		return LoadResult{Success: true, Restored: false}
	}
	clean := concat.Sanitize(*st)
	if res := concat.Validate(&clean); !res.IsValid {
		log.Warn().
			Str("originalFileName", name).
			Strs("errors", res.Errors).
			Msg("stored concatenation state is invalid")
		return LoadResult{Success: false, Error: res.Err().Error()}
	}
	return LoadResult{Success: true, Restored: true, Data: &clean}
}

// Update loads the existing record, applies p, refreshes processedAt and
// saves. It returns false when no record exists.
func (m *Manager) Update(ctx context.Context, originalFileName string, p Patch) bool {
	res := m.Load(ctx, originalFileName)
	if !res.Success {
		return false
	}
	if !res.Restored {
		log.Warn().Str("originalFileName", originalFileName).Msg("update skipped: no existing concatenation state")
		return false
	}
	merged := apply(*res.Data, p)
	merged.ProcessedAt = m.now().UTC()
	return m.Save(ctx, merged)
}

// Delete removes the record for originalFileName.
func (m *Manager) Delete(ctx context.Context, originalFileName string) bool {
	name := strings.TrimSpace(originalFileName)
	if name == "" {
		return false
	}
	if err := m.backend.DeleteState(ctx, name); err != nil {
		log.Error().Err(err).Str("originalFileName", name).Msg("delete concatenation state failed")
		return false
	}
	return true
}

func apply(st concat.State, p Patch) concat.State {
	out := st.Clone()
	if p.ConcatenatedFileName != nil {
		out.ConcatenatedFileName = *p.ConcatenatedFileName
	}
	if p.SelectedSheets != nil {
		out.SelectedSheets = append([]string(nil), p.SelectedSheets...)
	}
	if p.TargetVariable != nil {
		out.TargetVariable = *p.TargetVariable
	}
	if p.SelectedFilters != nil {
		out.SelectedFilters = append([]string(nil), p.SelectedFilters...)
	}
	if p.BrandMetadata != nil {
		bm := *p.BrandMetadata
		out.BrandMetadata = &bm
	}
	if p.PreviewData != nil {
		out.PreviewData = p.PreviewData
	}
	if p.ColumnCategories != nil {
		out.ColumnCategories = p.ColumnCategories
	}
	if p.TotalRows != nil {
		out.TotalRows = *p.TotalRows
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	return out
}
