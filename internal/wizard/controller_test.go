package wizard_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/statemgr"
	"github.com/KaramelBytes/mixwizard-cli/internal/wizard"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingBackend struct {
	puts    int
	putErr  error
	records map[string]concat.State
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{records: map[string]concat.State{}}
}

func (b *recordingBackend) GetState(_ context.Context, name string) (*concat.State, error) {
	st, ok := b.records[name]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (b *recordingBackend) PutState(_ context.Context, st *concat.State) error {
	b.puts++
	if b.putErr != nil {
		return b.putErr
	}
	b.records[st.OriginalFileName] = st.Clone()
	return nil
}

func (b *recordingBackend) DeleteState(_ context.Context, name string) error {
	delete(b.records, name)
	return nil
}

var uploaded = wizard.FileSummary{
	Name:     "sales.xlsx",
	FileType: "xlsx",
	Columns:  []string{"Week", "Volume Brand_A", "Volume Brand_B", "Region"},
	RowCount: 4,
	Sheets:   []string{"North", "South"},
}

func concatenation() concat.State {
	return concat.Create(concat.CreateParams{
		OriginalFileName:     "sales.xlsx",
		ConcatenatedFileName: "sales_concatenated.xlsx",
		SelectedSheets:       []string{"North", "South"},
		PreviewData:          []concat.PreviewRow{{"Week": "W1", "Volume Brand_A": 10.0}},
		TotalRows:            4,
	}, fixedNow)
}

// driveToBrandStep walks an MMM wizard to step 8.
func driveToBrandStep(t *testing.T, c *wizard.Controller) {
	t.Helper()
	ctx := context.Background()
	advance := func() {
		t.Helper()
		ok, err := c.Advance(ctx)
		require.NoError(t, err)
		require.Truef(t, ok, "advance blocked on step %d", c.Current())
	}
	require.NoError(t, c.SetUserType(wizard.UserBrand))
	advance()
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisMMM))
	advance()
	require.NoError(t, c.SetAnalysisMode(wizard.ModeNew))
	advance()
	require.NoError(t, c.SetUploadedFile(uploaded))
	advance()
	require.NoError(t, c.SetConcatenation(concatenation()))
	advance()
	require.NoError(t, c.SetTargetVariable("Volume Brand_A"))
	advance()
	advance()
	require.Equal(t, 8, c.Current())
}

func TestBrandStepGating(t *testing.T) {
	c := wizard.New()
	driveToBrandStep(t, c)

	err := c.SetSelectedBrand("")
	assert.ErrorIs(t, err, wizard.ErrBlankBrand)
	ok, err := c.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 8, c.Current())

	require.NoError(t, c.SetSelectedBrand("Brand_A"))
	ok, err = c.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, c.Current())
}

func TestTerminalStepNeverAdvances(t *testing.T) {
	c := wizard.New()
	driveToBrandStep(t, c)
	require.NoError(t, c.SetSelectedBrand("Brand_A"))
	_, _ = c.Advance(context.Background())

	ok, _ := c.Advance(context.Background())
	assert.False(t, ok, "model step needs a result")
	require.NoError(t, c.SetModelResult(json.RawMessage(`{"roi":1.4}`)))
	ok, err := c.Advance(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, c.Current())
	assert.True(t, c.Complete())

	ok, err = c.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10, c.Current())
	assert.Equal(t, 100.0, c.Progress().Percent)
}

func TestRetreatIsUngated(t *testing.T) {
	c := wizard.New()
	assert.False(t, c.Retreat())

	driveToBrandStep(t, c)
	assert.True(t, c.Retreat())
	assert.Equal(t, 7, c.Current())

	require.NoError(t, c.GoTo(2))
	assert.Equal(t, 2, c.Current())
	assert.Error(t, c.GoTo(5))
	assert.Error(t, c.GoTo(2))
}

func TestAnalysisTypeOnlyOnFirstSteps(t *testing.T) {
	c := wizard.New()
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisNonMMM))
	assert.Equal(t, 7, c.Steps().Last())
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisMMM))
	assert.Equal(t, 10, c.Steps().Last())

	driveToBrandStep(t, c)
	assert.ErrorIs(t, c.SetAnalysisType(wizard.AnalysisNonMMM), wizard.ErrVariantLocked)
	assert.Equal(t, wizard.AnalysisMMM, c.Variant())
	assert.Error(t, c.SetAnalysisType("regression"))
}

func TestNonMMMSequence(t *testing.T) {
	ctx := context.Background()
	c := wizard.New()
	require.NoError(t, c.SetUserType("Agency"))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisNonMMM))
	_, _ = c.Advance(ctx)
	assert.Equal(t, "Data Upload", c.Step().Title)
	require.NoError(t, c.SetUploadedFile(uploaded))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetConcatenation(concatenation()))
	_, _ = c.Advance(ctx)
	assert.Equal(t, "Filter Selection", c.Step().Title)
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetSelectedBrand("Brand_B"))
	ok, err := c.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Data Summary", c.Step().Title)
	assert.True(t, c.Complete())
}

func TestConcatenationPersistedOnLeave(t *testing.T) {
	be := newRecordingBackend()
	mgr := statemgr.New(be, statemgr.WithClock(func() time.Time { return fixedNow }))
	c := wizard.New(wizard.WithStateManager(mgr))
	driveToBrandStep(t, c)

	// concatenation, target and filter steps each save on leave
	assert.Equal(t, 3, be.puts)
	saved, ok := be.records["sales.xlsx"]
	require.True(t, ok)
	assert.Equal(t, "sales_concatenated.xlsx", saved.ConcatenatedFileName)
}

func TestLaterStepsPersistTargetBrandAndFilters(t *testing.T) {
	ctx := context.Background()
	mgr := statemgr.New(newRecordingBackend(), statemgr.WithClock(func() time.Time { return fixedNow }))
	c := wizard.New(wizard.WithStateManager(mgr))

	require.NoError(t, c.SetUserType(wizard.UserBrand))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisMMM))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetAnalysisMode(wizard.ModeNew))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetUploadedFile(uploaded))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetConcatenation(concatenation()))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetTargetVariable("Volume Brand_A"))
	c.SetBrandMetadata(concat.BrandMetadata{
		TargetVariable: "Volume Brand_A",
		OurBrand:       "Brand_A",
		AllBrands:      []string{"Brand_A", "Brand_B"},
		ExtractedAt:    fixedNow,
	})
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetFilter("Region", "North"))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetSelectedBrand("Brand_A"))
	ok, err := c.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9, c.Current())

	res := mgr.Load(ctx, "sales.xlsx")
	require.True(t, res.Success, res.Error)
	require.True(t, res.Restored)
	assert.Equal(t, "Volume Brand_A", res.Data.TargetVariable)
	assert.Equal(t, []string{"Region"}, res.Data.SelectedFilters)
	require.NotNil(t, res.Data.BrandMetadata)
	assert.Equal(t, "Brand_A", res.Data.BrandMetadata.OurBrand)

	// a fresh run over the same file gets the saved target back
	other := wizard.New(wizard.WithStateManager(mgr))
	require.NoError(t, other.SetUploadedFile(uploaded))
	applied, err := other.RestoreConcatenation(ctx, other.Ticket(), "sales.xlsx")
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, "Volume Brand_A", other.State().TargetVariable)
	assert.Equal(t, []string{"Region"}, other.State().Concatenation.SelectedFilters)
}

func TestPersistFailureDoesNotBlockByDefault(t *testing.T) {
	be := newRecordingBackend()
	be.putErr = errors.New("backend down")
	c := wizard.New(wizard.WithStateManager(statemgr.New(be)))
	driveToBrandStep(t, c)
	assert.Equal(t, 3, be.puts)
	assert.Equal(t, 8, c.Current())
}

func TestPersistFailureBlocksWhenConfigured(t *testing.T) {
	be := newRecordingBackend()
	be.putErr = errors.New("backend down")
	ctx := context.Background()
	c := wizard.New(wizard.WithStateManager(statemgr.New(be)), wizard.BlockOnPersistFailure(true))

	require.NoError(t, c.SetUserType(wizard.UserAnalyst))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetAnalysisType(wizard.AnalysisNonMMM))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetUploadedFile(uploaded))
	_, _ = c.Advance(ctx)
	require.NoError(t, c.SetConcatenation(concatenation()))

	ok, err := c.Advance(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, wizard.ErrPersistFailed)
	assert.Equal(t, 4, c.Current())
}

func TestSetUploadedFileResetsDerivedState(t *testing.T) {
	c := wizard.New()
	require.NoError(t, c.SetUploadedFile(uploaded))
	require.NoError(t, c.SetConcatenation(concatenation()))
	require.NoError(t, c.SetTargetVariable("Volume Brand_A"))
	require.NoError(t, c.SetFilter("Region", "North"))
	assert.Equal(t, []string{"Region"}, c.State().Concatenation.SelectedFilters)

	before := c.Generation()
	other := uploaded
	other.Name = "other.csv"
	require.NoError(t, c.SetUploadedFile(other))
	st := c.State()
	assert.Nil(t, st.Concatenation)
	assert.Empty(t, st.TargetVariable)
	assert.Nil(t, st.SelectedFilters)
	assert.Greater(t, c.Generation(), before)

	assert.Error(t, c.SetTargetVariable("Missing Column"))
	assert.Error(t, c.SetConcatenation(concatenation()))
}

func TestFilters(t *testing.T) {
	c := wizard.New()
	require.NoError(t, c.SetFilter("Region", "North"))
	require.NoError(t, c.SetFilter("Channel", "Retail"))
	assert.Equal(t, map[string]string{"Region": "North", "Channel": "Retail"}, c.State().SelectedFilters)
	require.NoError(t, c.SetFilter("Channel", ""))
	c.ClearFilter("Region")
	assert.Nil(t, c.State().SelectedFilters)
	assert.Error(t, c.SetFilter(" ", "x"))
}

func TestStaleTicketDiscarded(t *testing.T) {
	ctx := context.Background()
	be := newRecordingBackend()
	mgr := statemgr.New(be)
	be.records["sales.xlsx"] = concatenation()

	c := wizard.New(wizard.WithStateManager(mgr))
	require.NoError(t, c.SetUserType(wizard.UserBrand))
	require.NoError(t, c.SetUploadedFile(uploaded))

	ticket := c.Ticket()
	_, _ = c.Advance(ctx)
	applied, err := c.RestoreConcatenation(ctx, ticket, "sales.xlsx")
	assert.ErrorIs(t, err, wizard.ErrStale)
	assert.False(t, applied)
	assert.Nil(t, c.State().Concatenation)

	applied, err = c.RestoreConcatenation(ctx, c.Ticket(), "sales.xlsx")
	require.NoError(t, err)
	assert.True(t, applied)
	require.NotNil(t, c.State().Concatenation)

	applied, err = c.RestoreConcatenation(ctx, c.Ticket(), "missing_file.xlsx")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyLoadFailure(t *testing.T) {
	c := wizard.New()
	applied, err := c.ApplyLoad(c.Ticket(), statemgr.LoadResult{Success: false, Error: "timeout"})
	assert.False(t, applied)
	assert.ErrorContains(t, err, "timeout")
}

func TestRegistry(t *testing.T) {
	r := wizard.DefaultRegistry()
	assert.Equal(t, []wizard.AnalysisType{wizard.AnalysisMMM, wizard.AnalysisNonMMM}, r.Variants())

	s, err := r.Step(wizard.AnalysisMMM, 5)
	require.NoError(t, err)
	assert.True(t, s.PersistOnLeave)
	s, err = r.Step(wizard.AnalysisNonMMM, 4)
	require.NoError(t, err)
	assert.True(t, s.PersistOnLeave)
	s, err = r.Step(wizard.AnalysisMMM, 7)
	require.NoError(t, err)
	assert.False(t, s.IsRequired)
	for _, id := range []int{6, 7, 8} {
		s, err = r.Step(wizard.AnalysisMMM, id)
		require.NoError(t, err)
		assert.True(t, s.PersistOnLeave, "mmm step %d", id)
	}
	for _, id := range []int{5, 6} {
		s, err = r.Step(wizard.AnalysisNonMMM, id)
		require.NoError(t, err)
		assert.True(t, s.PersistOnLeave, "non-mmm step %d", id)
	}
	s, err = r.Step(wizard.AnalysisMMM, 9)
	require.NoError(t, err)
	assert.False(t, s.PersistOnLeave)

	_, err = r.Step(wizard.AnalysisMMM, 11)
	assert.Error(t, err)

	nr := wizard.NewRegistry()
	assert.Error(t, nr.Register(wizard.AnalysisMMM, wizard.Sequence{{ID: 2, CanAdvance: func(*wizard.AnalysisState) bool { return true }}}))
	assert.Error(t, nr.Register(wizard.AnalysisMMM, wizard.Sequence{{ID: 1}}))
	assert.Error(t, nr.Register("", nil))
}

func TestSessionRoundTrip(t *testing.T) {
	dir := wizard.SessionDir(t.TempDir(), "q1")
	s, err := wizard.NewSession("q1", dir)
	require.NoError(t, err)

	c := s.Controller()
	require.NoError(t, c.SetUserType(wizard.UserBrand))
	_, _ = c.Advance(context.Background())
	require.NoError(t, c.SetUploadedFile(uploaded))
	s.Capture(c)
	require.NoError(t, s.Save())

	back, err := wizard.LoadSession(dir)
	require.NoError(t, err)
	assert.Equal(t, s.ID, back.ID)
	rc := back.Controller()
	assert.Equal(t, 2, rc.Current())
	assert.Equal(t, c.Generation(), rc.Generation())
	assert.Equal(t, "sales.xlsx", rc.State().FileName())

	names, err := wizard.ListSessions(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, names)

	_, err = wizard.NewSession("a/b", dir)
	assert.Error(t, err)
}
