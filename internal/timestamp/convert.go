package timestamp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/metrics"
	"github.com/lox/drillprep/internal/models"
)

const DefaultChunkSize = 100

var ErrNoColumns = errors.New("no timestamp columns selected")

type Request struct {
	Columns   []string   `json:"columns" validate:"required,min=1,max=2"`
	Format    string     `json:"format"`
	Reference *time.Time `json:"reference,omitempty"`
}

type Result struct {
	Dataset   *models.Dataset `json:"-"`
	Source    *models.Dataset `json:"-"` // the dataset that was converted
	Converted int             `json:"converted"`
	Invalid   int             `json:"invalid"`
}

// ProgressFunc receives completion percentages in [0,100].
type ProgressFunc func(percent int)

type Converter struct {
	ChunkSize int
}

func NewConverter() *Converter {
	return &Converter{ChunkSize: DefaultChunkSize}
}

// Convert rewrites the selected columns of a copy of ds into the canonical
// layout. With two columns the pair is merged into the first as date + time.
// Bad cells become invalid markers and are counted; they never stop the run.
func (c *Converter) Convert(ctx context.Context, ds *models.Dataset, req Request, progress ProgressFunc) (*Result, error) {
	var idx []int
	for _, col := range req.Columns {
		if i := ds.Column(col); i >= 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, ErrNoColumns
	}
	dual := len(idx) >= 2
	if !dual {
		if _, ok := lookup(req.Format); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
		}
	}

	chunk := c.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if progress == nil {
		progress = func(int) {}
	}

	ref := req.Reference
	if ref == nil {
		ref = ds.StartTime
	}

	out := ds.Clone()
	res := &Result{Dataset: out, Source: ds}
	total := len(out.Rows)

	for start := 0; start < total; start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("convert timestamps: %w", err)
		}
		progress(start * 100 / total)

		end := min(start+chunk, total)
		for r := start; r < end; r++ {
			row := out.Rows[r]
			for len(row) < len(out.Headers) {
				row = append(row, models.Cell{})
			}
			if dual {
				c.convertDual(row, idx[0], idx[1], res)
			} else {
				c.convertCell(row, idx[0], req.Format, ref, res)
			}
			out.Rows[r] = row
		}
	}
	progress(100)

	metrics.TimestampsConverted.WithLabelValues("ok").Add(float64(res.Converted))
	metrics.TimestampsConverted.WithLabelValues("invalid").Add(float64(res.Invalid))
	if res.Invalid > 0 {
		zap.S().Infof("timestamp: %d of %d rows invalid in %s", res.Invalid, total, ds.Filename)
	}
	return res, nil
}

func (c *Converter) convertCell(row models.Row, i int, format string, ref *time.Time, res *Result) {
	cell := row[i]
	if cell.IsEmpty() {
		return
	}
	t, err := Parse(cell.Raw(), format, ref)
	if err != nil {
		row[i] = models.Invalid(cell.Raw())
		res.Invalid++
		return
	}
	row[i] = models.Text(Render(t))
	res.Converted++
}

func (c *Converter) convertDual(row models.Row, di, ti int, res *Result) {
	date := row[di]
	if date.IsEmpty() {
		return
	}
	t, err := ParseDual(date.Raw(), row[ti].Raw())
	if err != nil {
		row[di] = models.Invalid(date.Raw())
		res.Invalid++
		return
	}
	row[di] = models.Text(Render(t))
	res.Converted++
}

type PreviewEntry struct {
	Original  string `json:"original"`
	Formatted string `json:"formatted"`
	Valid     bool   `json:"valid"`
}

// Preview pairs the first n non-empty values of column with their rendered
// form. Values that fail render as the invalid marker.
func Preview(ds *models.Dataset, column, format string, ref *time.Time, n int) []PreviewEntry {
	i := ds.Column(column)
	if i < 0 {
		return nil
	}
	if ref == nil {
		ref = ds.StartTime
	}
	var out []PreviewEntry
	for _, row := range ds.Rows {
		if len(out) >= n {
			break
		}
		cell := row.Cell(i)
		if cell.IsEmpty() {
			continue
		}
		e := PreviewEntry{Original: cell.Raw(), Formatted: models.InvalidTimestamp}
		if s, err := Convert(cell.Raw(), format, ref); err == nil {
			e.Formatted, e.Valid = s, true
		}
		out = append(out, e)
	}
	return out
}

// DetectColumn suggests a format from the first non-empty value of column.
func DetectColumn(ds *models.Dataset, column string) (string, bool) {
	i := ds.Column(column)
	if i < 0 {
		return "", false
	}
	for _, row := range ds.Rows {
		if cell := row.Cell(i); !cell.IsEmpty() {
			return Detect(cell.Raw())
		}
	}
	return "", false
}
