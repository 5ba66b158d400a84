package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/chart"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/timestamp"
)

type fakeRuns struct {
	mu       sync.Mutex
	next     int64
	outcomes []string
}

func (f *fakeRuns) StartRun(sessionID, kind, detail string) (*store.ProcessingRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return &store.ProcessingRun{ID: f.next, SessionID: sessionID, Kind: kind}, nil
}

func (f *fakeRuns) CompleteRun(run *store.ProcessingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, run.Outcome)
	return nil
}

func (f *fakeRuns) count(outcome string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

func testDataset(n int) *models.Dataset {
	ds := &models.Dataset{
		Filename: "rig.csv",
		Headers:  []string{"DMEA", "RPM", "ROP", "Time"},
		Units:    []string{"m", "rpm", "m/h", ""},
	}
	for i := 0; i < n; i++ {
		ds.Rows = append(ds.Rows, models.Row{
			models.Number(1000 + float64(i)),
			models.Number(120),
			models.Number(10 + float64(i%10)),
			models.Number(45460 + float64(i)/86400),
		})
	}
	return ds
}

func newSession(t *testing.T, n int, runs Runs) *Session {
	t.Helper()
	s := New("test", testDataset(n), channels.Default(), runs)
	t.Cleanup(s.Close)
	return s
}

func TestCompleteMappingStartsDecimation(t *testing.T) {
	runs := &fakeRuns{}
	s := newSession(t, 100, runs)

	assert.Empty(t, s.Incomplete())
	assert.Equal(t, 100, s.Audit().Rows)
	assert.Equal(t, uint64(0), s.Result().Version)

	ds, err := s.CompleteMapping()
	require.NoError(t, err)
	assert.Equal(t, []string{"ML_DMEA", "ML_RPM", "ML_ROP", "TIME"}, ds.Headers)
	s.Wait()

	res := s.Result()
	assert.Equal(t, uint64(1), res.Version)
	assert.Equal(t, 100, res.Rows)
	require.Len(t, res.Points, 10)
	assert.Equal(t, 1005.0, res.Points[0].Depth)
	assert.Equal(t, 14.5, res.Points[0].ROP)
	assert.Equal(t, 1, runs.count("ok"))
}

func TestLatestConfigWins(t *testing.T) {
	runs := &fakeRuns{}
	s := newSession(t, 5000, runs)
	_, err := s.CompleteMapping()
	require.NoError(t, err)

	for _, interval := range []float64{1, 5, 25, 50} {
		cfg := models.DefaultDecimationConfig()
		cfg.DepthInterval = interval
		s.SetConfig(cfg)
	}
	s.Wait()

	res := s.Result()
	require.Len(t, res.Points, 100, "only the last configuration is published")
	assert.Equal(t, 1025.0, res.Points[0].Depth)
	assert.Equal(t, 5, runs.count("ok")+runs.count("superseded"))
	assert.GreaterOrEqual(t, runs.count("ok"), 1)
}

func TestSurveyEnrichesResult(t *testing.T) {
	s := newSession(t, 100, nil)
	s.SetSurvey([]models.SurveyStation{{MD: 0, Inclination: 0}, {MD: 2000, Inclination: 0}})
	_, err := s.CompleteMapping()
	require.NoError(t, err)
	s.Wait()

	res := s.Result()
	require.NotEmpty(t, res.Points)
	require.NotNil(t, res.Points[0].TVD)
	assert.Equal(t, res.Points[0].Depth, *res.Points[0].TVD)
	assert.Len(t, s.Survey(), 2)
}

func TestDeleteSelected(t *testing.T) {
	s := newSession(t, 100, nil)

	_, err := s.DeleteSelected()
	assert.ErrorIs(t, err, ErrNotMapped)

	_, err = s.CompleteMapping()
	require.NoError(t, err)
	s.Wait()

	require.NoError(t, s.TogglePoint(0))
	s.ToggleRow(50)
	assert.Len(t, s.Selection(), 11)
	assert.ErrorIs(t, s.TogglePoint(99), ErrNoSuchPoint)

	n, err := s.DeleteSelected()
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Empty(t, s.Selection())
	assert.Len(t, s.Rows(), 89)
	s.Wait()

	res := s.Result()
	assert.Equal(t, 89, res.Rows)
	require.Len(t, res.Points, 9, "data extent now starts at 1010")
	assert.Equal(t, 1015.0, res.Points[0].Depth)
	assert.Equal(t, uint64(3), res.Version, "trimmed result then re-decimated result")

	n, err = s.DeleteSelected()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteSelectedTrimsDataset(t *testing.T) {
	s := newSession(t, 10, nil)
	_, err := s.CompleteMapping()
	require.NoError(t, err)
	s.Wait()

	depths := func() []float64 {
		var out []float64
		for _, row := range s.Dataset().Rows {
			d, _ := row.Cell(0).Float()
			out = append(out, d)
		}
		return out
	}

	s.ToggleRow(2)
	_, err = s.DeleteSelected()
	require.NoError(t, err)
	assert.Len(t, s.Dataset().Rows, 9)
	assert.NotContains(t, depths(), 1002.0)

	s.ToggleRow(5)
	_, err = s.DeleteSelected()
	require.NoError(t, err)
	assert.Equal(t, []float64{1000, 1001, 1003, 1004, 1006, 1007, 1008, 1009}, depths())

	var ids []int
	for _, r := range s.Rows() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int{0, 1, 3, 4, 6, 7, 8, 9}, ids, "row ids stay the upload row index")
	s.Wait()
}

func TestSubscribe(t *testing.T) {
	s := newSession(t, 100, nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	_, err := s.CompleteMapping()
	require.NoError(t, err)

	select {
	case res := <-ch:
		assert.Equal(t, uint64(1), res.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no result published")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestApplyTimestampsBeforeMapping(t *testing.T) {
	s := newSession(t, 3, nil)

	res, err := timestamp.NewConverter().Convert(t.Context(), s.Dataset(), timestamp.Request{Columns: []string{"Time"}, Format: timestamp.Excel1900}, nil)
	require.NoError(t, err)
	require.NoError(t, s.ApplyTimestamps(res))

	ds, err := s.CompleteMapping()
	require.NoError(t, err)
	assert.Equal(t, "17/06/2024 00:00:00", ds.Rows[0][3].String())
}

func TestApplyTimestampsRejectsStaleConversion(t *testing.T) {
	s := newSession(t, 3, nil)
	raw := s.Dataset()

	_, err := s.CompleteMapping()
	require.NoError(t, err)
	s.Wait()

	res, err := timestamp.NewConverter().Convert(t.Context(), raw, timestamp.Request{Columns: []string{"Time"}, Format: timestamp.Excel1900}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ApplyTimestamps(res), ErrStale)
	assert.Equal(t, []string{"ML_DMEA", "ML_RPM", "ML_ROP", "TIME"}, s.Dataset().Headers)

	res, err = timestamp.NewConverter().Convert(t.Context(), s.Dataset(), timestamp.Request{Columns: []string{"TIME"}, Format: timestamp.Excel1900}, nil)
	require.NoError(t, err)
	require.NoError(t, s.ApplyTimestamps(res))
	ds := s.Dataset()
	assert.Equal(t, []string{"ML_DMEA", "ML_RPM", "ML_ROP", "TIME"}, ds.Headers)
	assert.Equal(t, "17/06/2024 00:00:00", ds.Rows[0][3].String())
}

func TestTimeBasedLog(t *testing.T) {
	ds := &models.Dataset{
		Filename: "surface.csv",
		Headers:  []string{"Time", "RPM", "ROP"},
		Units:    []string{"", "rpm", "m/h"},
		Kind:     models.KindTime,
	}
	for i := 0; i < 100; i++ {
		ds.Rows = append(ds.Rows, models.Row{
			models.Number(45460.5 + float64(i)/86400),
			models.Number(120),
			models.Number(10 + float64(i%10)),
		})
	}
	s := New("time", ds, channels.Default(), nil)
	t.Cleanup(s.Close)

	require.Empty(t, s.Incomplete())
	_, err := s.CompleteMapping()
	require.NoError(t, err)
	assert.True(t, s.Mapped())
	assert.Empty(t, s.Rows(), "serials have no position before conversion")

	res, err := timestamp.NewConverter().Convert(t.Context(), s.Dataset(), timestamp.Request{Columns: []string{"TIME"}, Format: timestamp.Excel1900}, nil)
	require.NoError(t, err)
	require.NoError(t, s.ApplyTimestamps(res))
	s.Wait()

	rows := s.Rows()
	require.Len(t, rows, 100)
	assert.Equal(t, 0.0, rows[0].Depth)
	assert.Equal(t, 99.0, rows[99].Depth)
	result := s.Result()
	require.Len(t, result.Points, 10)
	assert.Equal(t, 5.0, result.Points[0].Depth)
}

func TestChart(t *testing.T) {
	s := newSession(t, 100, nil)
	_, err := s.CompleteMapping()
	require.NoError(t, err)
	s.Wait()
	s.ToggleRow(3)

	png, version, err := s.Chart(models.MetricROP, chart.Options{Width: 200, Height: 300})
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	assert.Equal(t, uint64(1), version)
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	a := m.Create(testDataset(10), channels.Default())
	b := m.Create(testDataset(10), channels.Default())
	assert.NotEqual(t, a.ID, b.ID)

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Len(t, m.List(), 2)

	assert.True(t, m.Delete(a.ID))
	assert.False(t, m.Delete(a.ID))
	_, ok = m.Get(a.ID)
	assert.False(t, ok)

	assert.Equal(t, 0, m.Expire(time.Hour))
	assert.Equal(t, 1, m.Expire(-time.Hour))
	assert.Empty(t, m.List())
}
