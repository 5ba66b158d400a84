package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/chart"
	"github.com/lox/drillprep/internal/curation"
	"github.com/lox/drillprep/internal/decimate"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/mapping"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/survey"
	"github.com/lox/drillprep/internal/timestamp"
)

var (
	ErrNotMapped   = errors.New("mapping not complete")
	ErrNoSuchPoint = errors.New("no such decimated point")
	ErrStale       = errors.New("dataset changed since the conversion started")
)

// Runs records processing runs. *store.Store satisfies it.
type Runs interface {
	StartRun(sessionID, kind, detail string) (*store.ProcessingRun, error)
	CompleteRun(run *store.ProcessingRun) error
}

// Result is one published decimation. Version increases with every publish.
type Result struct {
	Version uint64                  `json:"version"`
	Points  []models.DecimatedPoint `json:"points"`
	Rows    int                     `json:"rows"`
	Error   string                  `json:"error,omitempty"`
}

// Session is one pass through the wizard for one uploaded file. Every
// mutation happens under mu; decimation runs on a snapshot in the background
// and only the run holding the current token may publish.
type Session struct {
	ID       string
	Created  time.Time
	UploadID int64

	mu         sync.Mutex
	raw        *models.Dataset
	audit      ingest.Audit
	mapping    *mapping.Mapping
	dataset    *models.Dataset
	ids        []int // upload row index of each dataset row
	rows       []models.DrillingRow
	config     models.DecimationConfig
	sections   []models.SectionData
	formations []models.FormationData
	stations   []models.SurveyStation
	selection  *curation.Selection
	result     Result
	subs       map[int]chan Result
	nextSub    int

	tokens decimate.Tokens
	engine *decimate.Engine
	runs   Runs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(id string, ds *models.Dataset, catalog *channels.Catalog, runs Runs) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        id,
		Created:   time.Now().UTC(),
		raw:       ds,
		audit:     ingest.AuditDataset(ds),
		mapping:   mapping.Build(ds, catalog),
		config:    models.DefaultDecimationConfig(),
		selection: curation.NewSelection(),
		subs:      make(map[int]chan Result),
		engine:    decimate.NewEngine(),
		runs:      runs,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close cancels any running decimation and waits for it to return.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until no decimation is running.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) Audit() ingest.Audit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audit
}

// Dataset returns the mapped dataset once mapping is complete, else the raw
// upload.
func (s *Session) Dataset() *models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// Mapped reports whether the mapping step has been completed.
func (s *Session) Mapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset != nil
}

func (s *Session) current() *models.Dataset {
	if s.dataset != nil {
		return s.dataset
	}
	return s.raw
}

func (s *Session) Mapping() []models.ColumnMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ColumnMapping(nil), s.mapping.Columns...)
}

func (s *Session) Incomplete() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Incomplete()
}

func (s *Session) UpdateMapping(i int, mapped, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping.Update(i, mapped, unit)
}

// CompleteMapping renames the dataset to standard channels, extracts the
// drilling rows and starts the first decimation. Completing again starts
// over from the upload, including rows deleted since.
func (s *Session) CompleteMapping() (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, err := s.mapping.Complete()
	if err != nil {
		return nil, err
	}
	s.dataset = ds
	s.ids = make([]int, len(ds.Rows))
	for i := range s.ids {
		s.ids[i] = i
	}
	s.rows = s.extract()
	s.selection.Clear()
	s.redecimate()
	return ds, nil
}

// extract builds drilling rows from the mapped dataset, keyed by upload row
// index. Must hold mu.
func (s *Session) extract() []models.DrillingRow {
	rows := mapping.DrillingRows(s.dataset)
	for i := range rows {
		rows[i].ID = s.ids[rows[i].ID]
	}
	return rows
}

// ApplyTimestamps swaps in a converted dataset. The conversion must have run
// on the dataset the session holds now; otherwise ErrStale is returned and
// nothing changes. A log positioned on time is re-extracted and decimated
// again, a depth log keeps its drilling rows.
func (s *Session) ApplyTimestamps(res *timestamp.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Source != s.current() {
		return ErrStale
	}
	if s.dataset == nil {
		s.raw = res.Dataset
		s.mapping.Rebase(res.Dataset)
		return nil
	}
	s.dataset = res.Dataset
	if s.dataset.FieldColumn(models.FieldDepth) < 0 {
		s.rows = s.extract()
		s.redecimate()
	}
	return nil
}

func (s *Session) Config() models.DecimationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Session) SetConfig(cfg models.DecimationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.redecimate()
}

func (s *Session) Sections() []models.SectionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SectionData(nil), s.sections...)
}

func (s *Session) SetSections(sections []models.SectionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = append([]models.SectionData(nil), sections...)
	s.redecimate()
}

func (s *Session) Formations() []models.FormationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FormationData(nil), s.formations...)
}

func (s *Session) SetFormations(formations []models.FormationData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formations = append([]models.FormationData(nil), formations...)
	s.redecimate()
}

// Survey returns the stations with computed TVD.
func (s *Session) Survey() []models.SurveyStation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return survey.ComputeTVD(s.stations)
}

func (s *Session) SetSurvey(stations []models.SurveyStation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations = append([]models.SurveyStation(nil), stations...)
	s.redecimate()
}

// Rows returns the current raw drilling rows.
func (s *Session) Rows() []models.DrillingRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Subscribe returns a channel that receives every published result. Slow
// subscribers only see the latest one.
func (s *Session) Subscribe() (<-chan Result, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Result, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Session) Selection() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.IDs()
}

// Chart renders one metric from a snapshot of rows, points and selection.
// The version of the result it drew is returned for caching.
func (s *Session) Chart(metric string, opts chart.Options) ([]byte, uint64, error) {
	s.mu.Lock()
	rows, result := s.rows, s.result
	sel := curation.NewSelection()
	for _, id := range s.selection.IDs() {
		sel.ToggleRow(id)
	}
	s.mu.Unlock()

	png, err := chart.Render(metric, rows, result.Points, sel, opts)
	if err != nil {
		return nil, 0, err
	}
	return png, result.Version, nil
}

func (s *Session) ToggleRow(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.ToggleRow(id)
}

// TogglePoint toggles every row behind the i-th point of the current result.
func (s *Session) TogglePoint(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.result.Points) {
		return fmt.Errorf("%w: %d", ErrNoSuchPoint, i)
	}
	s.selection.TogglePoint(s.result.Points[i])
	return nil
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Clear()
}

// DeleteSelected drops the selected rows from the mapped dataset and the
// drilling rows, drops every point built from them, publishes the trimmed
// result and re-decimates what is left.
func (s *Session) DeleteSelected() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		return 0, ErrNotMapped
	}
	n := s.selection.Len()
	if n == 0 {
		return 0, nil
	}

	ds := *s.dataset
	ds.Rows = make([]models.Row, 0, len(s.dataset.Rows))
	ids := make([]int, 0, len(s.ids))
	for i, row := range s.dataset.Rows {
		if !s.selection.Contains(s.ids[i]) {
			ds.Rows = append(ds.Rows, row)
			ids = append(ids, s.ids[i])
		}
	}
	s.dataset, s.ids = &ds, ids

	rows, points := s.selection.Delete(s.rows, s.result.Points)
	s.rows = rows
	s.publish(Result{Points: points, Rows: len(rows)})
	s.redecimate()
	return n, nil
}

// Decimate restarts decimation with the current state.
func (s *Session) Decimate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return ErrNotMapped
	}
	s.redecimate()
	return nil
}

// redecimate starts a run over a snapshot of the current state. Must hold mu.
func (s *Session) redecimate() {
	if s.dataset == nil {
		return
	}
	tok := s.tokens.Next()
	in := decimate.Input{
		Rows:       s.rows,
		Config:     s.config,
		Sections:   append([]models.SectionData(nil), s.sections...),
		Formations: append([]models.FormationData(nil), s.formations...),
	}
	stations := append([]models.SurveyStation(nil), s.stations...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(tok, in, stations)
	}()
}

func (s *Session) run(tok decimate.Token, in decimate.Input, stations []models.SurveyStation) {
	rec := s.startRun(in)

	points, err := s.engine.Run(s.ctx, tok, in)
	if err == nil {
		points = survey.Enrich(points, stations)
	}

	s.mu.Lock()
	current := tok.Current()
	switch {
	case err != nil:
	case !current:
		err = decimate.ErrSuperseded
	default:
		s.publish(Result{Points: points, Rows: len(in.Rows)})
	}
	s.mu.Unlock()

	s.completeRun(rec, len(in.Rows), len(points), err)
	if err != nil && !errors.Is(err, decimate.ErrSuperseded) && !errors.Is(err, context.Canceled) {
		zap.S().Errorf("session: %s: decimation: %v", s.ID, err)
	}
}

// publish must hold mu.
func (s *Session) publish(r Result) {
	r.Version = s.result.Version + 1
	s.result = r
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- r
	}
}

func (s *Session) startRun(in decimate.Input) *store.ProcessingRun {
	if s.runs == nil {
		return nil
	}
	detail, _ := json.Marshal(in.Config)
	run, err := s.runs.StartRun(s.ID, store.RunDecimate, string(detail))
	if err != nil {
		zap.S().Warnf("session: %s: record run: %v", s.ID, err)
		return nil
	}
	return run
}

func (s *Session) completeRun(run *store.ProcessingRun, rows, points int, err error) {
	if s.runs == nil || run == nil {
		return
	}
	run.InputRows.Int64, run.InputRows.Valid = int64(rows), true
	switch {
	case err == nil:
		run.Outcome = "ok"
		run.OutputRows.Int64, run.OutputRows.Valid = int64(points), true
	case errors.Is(err, decimate.ErrSuperseded):
		run.Outcome = "superseded"
	case errors.Is(err, context.Canceled):
		run.Outcome = "cancelled"
	default:
		run.Outcome = "error"
		run.ErrorMessage.String, run.ErrorMessage.Valid = err.Error(), true
	}
	if err := s.runs.CompleteRun(run); err != nil {
		zap.S().Warnf("session: %s: complete run: %v", s.ID, err)
	}
}
