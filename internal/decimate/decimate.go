package decimate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/metrics"
	"github.com/lox/drillprep/internal/models"
)

// DefaultBatchSize is the number of bins processed between cancellation
// checks.
const DefaultBatchSize = 256

// ErrSuperseded is returned when a newer run was started before this one
// finished. Its partial result is discarded.
var ErrSuperseded = errors.New("decimation run superseded")

// minOutlierSamples is the smallest bin that outlier removal applies to.
const minOutlierSamples = 4

// Input is a snapshot of everything a run depends on.
type Input struct {
	Rows       []models.DrillingRow
	Config     models.DecimationConfig
	Sections   []models.SectionData
	Formations []models.FormationData
}

// Range is a half-open depth interval [Start, End).
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Engine struct {
	BatchSize int

	onYield func() // test hook
}

func NewEngine() *Engine {
	return &Engine{BatchSize: DefaultBatchSize}
}

// Ranges resolves the depth ranges a run bins over.
func Ranges(in Input) []Range {
	switch in.Config.FilterMode {
	case models.FilterSection:
		for _, s := range in.Sections {
			if s.ID == in.Config.SelectedSection {
				return []Range{{s.StartDepth, s.EndDepth}}
			}
		}
		return nil
	case models.FilterFormation:
		for _, f := range in.Formations {
			if f.ID == in.Config.SelectedFormation {
				return []Range{{f.StartDepth, f.EndDepth}}
			}
		}
		return nil
	}

	if len(in.Sections) > 0 {
		out := make([]Range, len(in.Sections))
		for i, s := range in.Sections {
			out[i] = Range{s.StartDepth, s.EndDepth}
		}
		return out
	}

	// no sections: span the data
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range in.Rows {
		if r.Depth < 0 || r.AllZero() {
			continue
		}
		lo = math.Min(lo, r.Depth)
		hi = math.Max(hi, r.Depth)
	}
	if math.IsInf(lo, 1) {
		return nil
	}
	end := math.Ceil(hi)
	if end <= hi {
		end = hi + 1
	}
	return []Range{{math.Floor(lo), end}}
}

// Run decimates in under tok. It returns ErrSuperseded as soon as tok is no
// longer current, and the context error if ctx is cancelled.
func (e *Engine) Run(ctx context.Context, tok Token, in Input) ([]models.DecimatedPoint, error) {
	start := time.Now()
	mode := "binned"
	if in.Config.DepthInterval == 0 {
		mode = "raw"
	}

	points, err := e.run(ctx, tok, in)
	switch {
	case errors.Is(err, ErrSuperseded):
		metrics.DecimationRunsTotal.WithLabelValues("superseded").Inc()
		zap.S().Debugf("decimate: run %d superseded", tok.ID())
		return nil, err
	case err != nil:
		metrics.DecimationRunsTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	metrics.DecimationRunsTotal.WithLabelValues("ok").Inc()
	metrics.DecimationLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return points, nil
}

func (e *Engine) run(ctx context.Context, tok Token, in Input) ([]models.DecimatedPoint, error) {
	if in.Config.DepthInterval < 0 || math.IsNaN(in.Config.DepthInterval) {
		return nil, fmt.Errorf("decimate: invalid depth interval %v", in.Config.DepthInterval)
	}
	if err := e.check(ctx, tok); err != nil {
		return nil, err
	}

	rows := make([]models.DrillingRow, 0, len(in.Rows))
	for _, r := range in.Rows {
		if r.Depth < 0 || math.IsNaN(r.Depth) || r.AllZero() {
			continue
		}
		rows = append(rows, r)
	}

	if in.Config.DepthInterval == 0 {
		return e.passthrough(ctx, tok, rows)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Depth < rows[j].Depth })

	var out []models.DecimatedPoint
	for _, rng := range Ranges(in) {
		points, err := e.binRange(ctx, tok, rows, rng, in.Config)
		if err != nil {
			return nil, err
		}
		out = append(out, points...)
	}

	if err := e.check(ctx, tok); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) passthrough(ctx context.Context, tok Token, rows []models.DrillingRow) ([]models.DecimatedPoint, error) {
	out := make([]models.DecimatedPoint, 0, len(rows))
	for i, r := range rows {
		if i > 0 && i%e.batchSize() == 0 {
			if err := e.yield(ctx, tok); err != nil {
				return nil, err
			}
		}
		p := models.DecimatedPoint{Depth: r.Depth, Count: 1, RowIDs: []int{r.ID}}
		for _, m := range models.Metrics {
			if v, ok := r.Value(m); ok {
				p.SetMetric(m, v)
			}
		}
		out = append(out, p)
	}
	if err := e.check(ctx, tok); err != nil {
		return nil, err
	}
	return out, nil
}

// binRange walks bins of the configured width across rng. rows must be sorted
// by depth.
func (e *Engine) binRange(ctx context.Context, tok Token, rows []models.DrillingRow, rng Range, cfg models.DecimationConfig) ([]models.DecimatedPoint, error) {
	if rng.Start >= rng.End {
		return nil, nil
	}
	interval := cfg.DepthInterval
	nbins := int(math.Ceil((rng.End - rng.Start) / interval))

	lo := sort.Search(len(rows), func(i int) bool { return rows[i].Depth >= rng.Start })
	hi := sort.Search(len(rows), func(i int) bool { return rows[i].Depth >= rng.End })
	inRange := rows[lo:hi]

	var out []models.DecimatedPoint
	next := 0
	for k, steps := 0, 0; k < nbins && next < len(inRange); k, steps = k+1, steps+1 {
		if steps > 0 && steps%e.batchSize() == 0 {
			if err := e.yield(ctx, tok); err != nil {
				return nil, err
			}
		}

		// jump over empty bins
		if skip := int((inRange[next].Depth - rng.Start) / interval); skip > k {
			k = skip
		}
		binStart := rng.Start + float64(k)*interval
		binEnd := binStart + interval
		first := next
		for next < len(inRange) && inRange[next].Depth < binEnd {
			next++
		}
		bin := inRange[first:next]
		if len(bin) == 0 {
			continue
		}
		// the last bin of a range may be cut short by its end
		depth := binStart + (math.Min(binEnd, rng.End)-binStart)/2
		out = append(out, aggregate(bin, depth, cfg.OutlierRemoval))
	}

	if cfg.EnableSmoothing {
		out = smooth(out)
	}
	return out, nil
}

func aggregate(bin []models.DrillingRow, depth float64, outliers bool) models.DecimatedPoint {
	p := models.DecimatedPoint{Depth: depth, Count: len(bin), RowIDs: make([]int, len(bin))}
	for i, r := range bin {
		p.RowIDs[i] = r.ID
	}

	for _, m := range models.Metrics {
		var values []float64
		for _, r := range bin {
			if v, ok := r.Value(m); ok && v >= 0 && !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if outliers && len(values) >= minOutlierSamples {
			values = withoutOutliers(values)
		}
		mean, err := stats.Mean(values)
		if err != nil {
			mean = 0
		}
		p.SetMetric(m, mean)
	}
	return p
}

// withoutOutliers drops values outside the Tukey fences.
func withoutOutliers(values []float64) []float64 {
	q, err := stats.Quartile(values)
	if err != nil {
		return values
	}
	iqr := q.Q3 - q.Q1
	lower, upper := q.Q1-1.5*iqr, q.Q3+1.5*iqr

	kept := values[:0:0]
	for _, v := range values {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}
	return kept
}

// smooth applies a centred three point moving average to each metric.
func smooth(points []models.DecimatedPoint) []models.DecimatedPoint {
	if len(points) < 2 {
		return points
	}
	out := make([]models.DecimatedPoint, len(points))
	copy(out, points)
	for _, m := range models.Metrics {
		for i := range points {
			lo, hi := max(i-1, 0), min(i+1, len(points)-1)
			var window []float64
			for j := lo; j <= hi; j++ {
				window = append(window, points[j].Metric(m))
			}
			mean, _ := stats.Mean(window)
			out[i].SetMetric(m, mean)
		}
	}
	return out
}

func (e *Engine) batchSize() int {
	if e.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return e.BatchSize
}

func (e *Engine) yield(ctx context.Context, tok Token) error {
	if e.onYield != nil {
		e.onYield()
	}
	runtime.Gosched()
	return e.check(ctx, tok)
}

func (e *Engine) check(ctx context.Context, tok Token) error {
	if !tok.Current() {
		return ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("decimate: %w", err)
	}
	return nil
}
