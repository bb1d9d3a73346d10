package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/statemgr"
)

var (
	// ErrPersistFailed is returned by Advance when saving the concatenation
	// record fails and the controller blocks on persistence failures.
	ErrPersistFailed = errors.New("failed to persist concatenation state")
	// ErrStale is returned when a ticket no longer matches the controller.
	ErrStale = errors.New("stale result discarded")
	// ErrBlankBrand rejects an empty brand selection.
	ErrBlankBrand = errors.New("brand name cannot be blank")
	// ErrVariantLocked rejects an analysis type change after step 2.
	ErrVariantLocked = errors.New("analysis type can only be changed on steps 1-2")
)

// Option configures a Controller.
type Option func(*Controller)

// WithStateManager sets the manager used to persist concatenation records.
func WithStateManager(m *statemgr.Manager) Option {
	return func(c *Controller) { c.mgr = m }
}

// WithRegistry overrides the step tables.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) { c.reg = r }
}

// BlockOnPersistFailure makes Advance refuse to leave a persisting step
// when the save fails.
func BlockOnPersistFailure(block bool) Option {
	return func(c *Controller) { c.blockOnPersist = block }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns AnalysisState. It is not safe for concurrent use.
type Controller struct {
	reg            *Registry
	mgr            *statemgr.Manager
	state          AnalysisState
	generation     uint64
	blockOnPersist bool
	now            func() time.Time
}

// New returns a controller positioned on step 1.
func New(opts ...Option) *Controller {
	return Resume(AnalysisState{CurrentStep: 1}, 0, opts...)
}

// Resume returns a controller over a previously saved state.
func Resume(st AnalysisState, generation uint64, opts ...Option) *Controller {
	c := &Controller{reg: DefaultRegistry(), now: time.Now, generation: generation}
	for _, o := range opts {
		o(c)
	}
	c.state = st.Clone()
	seq := c.Steps()
	if c.state.CurrentStep < 1 {
		c.state.CurrentStep = 1
	}
	if c.state.CurrentStep > seq.Last() {
		c.state.CurrentStep = seq.Last()
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() AnalysisState { return c.state.Clone() }

// Generation returns the navigation generation counter.
func (c *Controller) Generation() uint64 { return c.generation }

// Current returns the current step id.
func (c *Controller) Current() int { return c.state.CurrentStep }

// Variant returns the active variant. Until a type is chosen the MMM table
// is used; both tables share steps 1-2.
func (c *Controller) Variant() AnalysisType {
	if c.state.AnalysisType.Valid() {
		return c.state.AnalysisType
	}
	return AnalysisMMM
}

// Steps returns the active step table.
func (c *Controller) Steps() Sequence {
	seq, err := c.reg.Sequence(c.Variant())
	if err != nil {
		panic(fmt.Sprintf("wizard: %v", err))
	}
	return seq
}

// Step returns the configuration of the current step.
func (c *Controller) Step() StepConfig {
	s, _ := c.Steps().Step(c.state.CurrentStep)
	return s
}

// CanAdvance evaluates the current step's gate.
func (c *Controller) CanAdvance() bool {
	return c.Step().CanAdvance(&c.state)
}

// Advance moves to the next step when the gate allows it. Leaving a
// persisting step saves the concatenation record first; a failed save is
// logged and, unless BlockOnPersistFailure is set, does not stop navigation.
func (c *Controller) Advance(ctx context.Context) (bool, error) {
	step := c.Step()
	if !step.CanAdvance(&c.state) {
		log.Debug().Int("step", step.ID).Str("name", step.Name).Msg("advance blocked by gate")
		return false, nil
	}
	if step.PersistOnLeave && c.mgr != nil && c.state.Concatenation != nil {
		if !c.mgr.Save(ctx, *c.state.Concatenation) {
			log.Warn().
				Int("step", step.ID).
				Str("originalFileName", c.state.Concatenation.OriginalFileName).
				Bool("blocking", c.blockOnPersist).
				Msg("concatenation state not persisted")
			if c.blockOnPersist {
				return false, ErrPersistFailed
			}
		}
	}
	c.moveTo(step.ID + 1)
	return true, nil
}

// Retreat moves back one step. It is never gated.
func (c *Controller) Retreat() bool {
	if c.state.CurrentStep <= 1 {
		return false
	}
	c.moveTo(c.state.CurrentStep - 1)
	return true
}

// GoTo jumps back to an earlier step.
func (c *Controller) GoTo(id int) error {
	if id < 1 || id >= c.state.CurrentStep {
		return fmt.Errorf("can only go back to steps 1-%d", c.state.CurrentStep-1)
	}
	c.moveTo(id)
	return nil
}

func (c *Controller) moveTo(id int) {
	from := c.state.CurrentStep
	c.state.CurrentStep = id
	c.generation++
	log.Debug().Int("from", from).Int("step", id).Uint64("generation", c.generation).Msg("wizard step changed")
}

// Progress summarizes the position in the active table.
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
	Title   string  `json:"title"`
}

// Progress reports the current position.
func (c *Controller) Progress() Progress {
	seq := c.Steps()
	total := seq.Last()
	pct := 100.0
	if total > 1 {
		pct = float64(c.state.CurrentStep-1) / float64(total-1) * 100
	}
	return Progress{Current: c.state.CurrentStep, Total: total, Percent: pct, Title: c.Step().Title}
}

// Complete reports whether the terminal step has been reached.
func (c *Controller) Complete() bool {
	return c.state.CurrentStep == c.Steps().Last()
}

// SetUserType records who runs the analysis.
func (c *Controller) SetUserType(u UserType) error {
	u = UserType(strings.ToLower(strings.TrimSpace(string(u))))
	if !u.Valid() {
		return fmt.Errorf("unknown user type %q (want brand, agency or analyst)", u)
	}
	c.state.UserType = u
	return nil
}

// SetAnalysisType selects the variant. Only allowed on steps 1-2.
func (c *Controller) SetAnalysisType(t AnalysisType) error {
	t = AnalysisType(strings.ToLower(strings.TrimSpace(string(t))))
	if !t.Valid() {
		return fmt.Errorf("unknown analysis type %q (want mmm or non-mmm)", t)
	}
	if c.state.CurrentStep > 2 {
		return ErrVariantLocked
	}
	c.state.AnalysisType = t
	if t == AnalysisNonMMM {
		c.state.AnalysisMode = ""
	}
	return nil
}

// SetAnalysisMode chooses between a new and an existing model.
func (c *Controller) SetAnalysisMode(m AnalysisMode) error {
	m = AnalysisMode(strings.ToLower(strings.TrimSpace(string(m))))
	if !m.Valid() {
		return fmt.Errorf("unknown analysis mode %q (want new or existing)", m)
	}
	c.state.AnalysisMode = m
	return nil
}

// SetUploadedFile records the uploaded dataset. A different file clears
// everything derived from the previous one and invalidates tickets.
func (c *Controller) SetUploadedFile(f FileSummary) error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return errors.New("file name cannot be blank")
	}
	if c.state.FileName() != f.Name {
		c.state.Concatenation = nil
		c.state.TargetVariable = ""
		c.state.SelectedBrand = ""
		c.state.SelectedFilters = nil
		c.state.ModelResult = nil
		c.generation++
	}
	f.Columns = append([]string(nil), f.Columns...)
	f.Sheets = append([]string(nil), f.Sheets...)
	c.state.UploadedFile = &f
	return nil
}

// SetConcatenation stores the concatenation record for the uploaded file.
func (c *Controller) SetConcatenation(st concat.State) error {
	if name := c.state.FileName(); name != "" && st.OriginalFileName != name && !st.IsPlaceholder() {
		return fmt.Errorf("concatenation is for %q, uploaded file is %q", st.OriginalFileName, name)
	}
	clone := st.Clone()
	c.state.Concatenation = &clone
	return nil
}

// SetTargetVariable selects the model target. When the uploaded columns are
// known the target must be one of them.
func (c *Controller) SetTargetVariable(col string) error {
	col = strings.TrimSpace(col)
	if col == "" {
		return errors.New("target variable cannot be blank")
	}
	if f := c.state.UploadedFile; f != nil && len(f.Columns) > 0 && !slices.Contains(f.Columns, col) {
		return fmt.Errorf("column %q not found in %s", col, f.Name)
	}
	c.state.TargetVariable = col
	if c.state.Concatenation != nil {
		c.state.Concatenation.TargetVariable = col
	}
	return nil
}

// SetBrandMetadata attaches extracted brand metadata to the concatenation
// record.
func (c *Controller) SetBrandMetadata(md concat.BrandMetadata) {
	if c.state.Concatenation == nil {
		return
	}
	c.state.Concatenation.BrandMetadata = &md
}

// SetSelectedBrand selects the brand to analyze. A blank name clears the
// selection and returns ErrBlankBrand.
func (c *Controller) SetSelectedBrand(brand string) error {
	brand = strings.TrimSpace(brand)
	c.state.SelectedBrand = brand
	if brand == "" {
		return ErrBlankBrand
	}
	return nil
}

// SetFilter constrains column to value. An empty value removes the filter.
func (c *Controller) SetFilter(column, value string) error {
	column = strings.TrimSpace(column)
	if column == "" {
		return errors.New("filter column cannot be blank")
	}
	if strings.TrimSpace(value) == "" {
		c.ClearFilter(column)
		return nil
	}
	if c.state.SelectedFilters == nil {
		c.state.SelectedFilters = map[string]string{}
	}
	c.state.SelectedFilters[column] = value
	c.syncFilterColumns()
	return nil
}

// ClearFilter removes the filter on column.
func (c *Controller) ClearFilter(column string) {
	delete(c.state.SelectedFilters, strings.TrimSpace(column))
	if len(c.state.SelectedFilters) == 0 {
		c.state.SelectedFilters = nil
	}
	c.syncFilterColumns()
}

// syncFilterColumns mirrors the filtered column names into the
// concatenation record.
func (c *Controller) syncFilterColumns() {
	if c.state.Concatenation == nil {
		return
	}
	cols := make([]string, 0, len(c.state.SelectedFilters))
	for k := range c.state.SelectedFilters {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	c.state.Concatenation.SelectedFilters = cols
}

// SetModelResult stores the model output.
func (c *Controller) SetModelResult(data json.RawMessage) error {
	if !json.Valid(data) {
		return errors.New("model result is not valid JSON")
	}
	c.state.ModelResult = &ModelResult{Data: append(json.RawMessage(nil), data...), CompletedAt: c.now().UTC()}
	return nil
}

// Ticket identifies the file, step and generation an async request was
// issued for.
type Ticket struct {
	File       string `json:"file"`
	Step       int    `json:"step"`
	Generation uint64 `json:"generation"`
}

// Ticket captures the controller's current position.
func (c *Controller) Ticket() Ticket {
	return Ticket{File: c.state.FileName(), Step: c.state.CurrentStep, Generation: c.generation}
}

// IsCurrent reports whether t still matches the controller.
func (c *Controller) IsCurrent(t Ticket) bool {
	return t == c.Ticket()
}

// ApplyLoad installs a loaded concatenation record if t is still current.
// It reports whether the record was applied.
func (c *Controller) ApplyLoad(t Ticket, res statemgr.LoadResult) (bool, error) {
	if !c.IsCurrent(t) {
		log.Debug().Str("file", t.File).Int("step", t.Step).Msg("discarding stale load result")
		return false, ErrStale
	}
	if !res.Success {
		return false, fmt.Errorf("load concatenation state: %s", res.Error)
	}
	if !res.Restored || res.Data == nil {
		return false, nil
	}
	if err := c.SetConcatenation(*res.Data); err != nil {
		return false, err
	}
	if res.Data.TargetVariable != "" && c.state.TargetVariable == "" {
		c.state.TargetVariable = res.Data.TargetVariable
	}
	return true, nil
}

// RestoreConcatenation loads the record for name and applies it under t.
func (c *Controller) RestoreConcatenation(ctx context.Context, t Ticket, name string) (bool, error) {
	if c.mgr == nil {
		return false, errors.New("no state manager configured")
	}
	return c.ApplyLoad(t, c.mgr.Load(ctx, name))
}
