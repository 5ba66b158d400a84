package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/timestamp"
	"github.com/lox/drillprep/internal/units"
)

var (
	ErrIncompleteMapping = errors.New("mapping incomplete: every column needs a channel")
	ErrNoColumn          = errors.New("no such column")
)

// Mapping pairs each column of a dataset with a catalog channel. Columns the
// resolver could not place stay unresolved until edited.
type Mapping struct {
	ds      *models.Dataset
	Columns []models.ColumnMapping `json:"columns"`
}

// Build auto-populates a mapping for every column of ds.
func Build(ds *models.Dataset, catalog *channels.Catalog) *Mapping {
	m := &Mapping{ds: ds, Columns: make([]models.ColumnMapping, len(ds.Headers))}
	for i, h := range ds.Headers {
		col := models.ColumnMapping{
			Original:     h,
			OriginalUnit: ds.Unit(i),
			Mapped:       catalog.Resolve(h),
		}
		if col.Mapped != "" {
			col.MappedUnit = units.ForChannel(col.Mapped, col.OriginalUnit)
		}
		m.Columns[i] = col
	}
	return m
}

// Update sets the channel and unit of column i by hand. An empty unit is
// derived from the original one.
func (m *Mapping) Update(i int, mapped, unit string) error {
	if i < 0 || i >= len(m.Columns) {
		return fmt.Errorf("%w: %d", ErrNoColumn, i)
	}
	col := &m.Columns[i]
	col.Mapped = mapped
	switch {
	case mapped == "":
		col.MappedUnit = ""
	case unit == "":
		col.MappedUnit = units.ForChannel(mapped, col.OriginalUnit)
	default:
		col.MappedUnit = units.ForChannel(mapped, unit)
	}
	col.ManualEdit = true
	return nil
}

// Rebase points the mapping at a rewritten copy of the same dataset, such as
// one with converted timestamps. Column edits are kept.
func (m *Mapping) Rebase(ds *models.Dataset) {
	m.ds = ds
}

// Incomplete returns the indexes of unresolved columns.
func (m *Mapping) Incomplete() []int {
	var out []int
	for i, c := range m.Columns {
		if c.Mapped == "" {
			out = append(out, i)
		}
	}
	return out
}

// Complete returns a copy of the dataset with mapped names as headers and
// mapped units, or ErrIncompleteMapping.
func (m *Mapping) Complete() (*models.Dataset, error) {
	if missing := m.Incomplete(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = m.Columns[c].Original
		}
		return nil, fmt.Errorf("%w: %v", ErrIncompleteMapping, names)
	}

	out := m.ds.Clone()
	out.Headers = make([]string, len(m.Columns))
	out.Units = make([]string, len(m.Columns))
	for i, c := range m.Columns {
		out.Headers[i] = c.Mapped
		out.Units[i] = units.ForChannel(c.Mapped, c.MappedUnit)
	}
	return out, nil
}

// DrillingRows extracts the rows decimation works on. Rows are positioned
// on the mapped depth; a log without a depth column is positioned on its
// TIME column, in seconds since the first canonical timestamp. Rows without
// a position are skipped and a log with neither column yields no rows. The
// row ID is the row's index in ds.
func DrillingRows(ds *models.Dataset) []models.DrillingRow {
	position := depthPosition(ds)
	if position == nil {
		position = timePosition(ds)
	}
	if position == nil {
		return nil
	}
	cols := make(map[string]int, len(models.Metrics))
	for _, metric := range models.Metrics {
		cols[metric] = ds.FieldColumn(metric)
	}

	rows := make([]models.DrillingRow, 0, len(ds.Rows))
	for id, r := range ds.Rows {
		d, ok := position(r)
		if !ok {
			continue
		}
		dr := models.DrillingRow{ID: id, Depth: d, Values: make(map[string]*float64, len(cols))}
		for metric, c := range cols {
			if c < 0 {
				continue
			}
			if v, ok := r.Cell(c).Float(); ok {
				dr.Values[metric] = &v
			}
		}
		rows = append(rows, dr)
	}
	return rows
}

type positionFunc func(models.Row) (float64, bool)

func depthPosition(ds *models.Dataset) positionFunc {
	c := ds.FieldColumn(models.FieldDepth)
	if c < 0 {
		return nil
	}
	return func(r models.Row) (float64, bool) {
		return r.Cell(c).Float()
	}
}

// timePosition only reads converted timestamps; raw serials and invalid
// cells have no position until the timestamp step has run.
func timePosition(ds *models.Dataset) positionFunc {
	c := ds.FieldColumn(models.FieldTime)
	if c < 0 {
		return nil
	}
	parse := func(r models.Row) (time.Time, bool) {
		cell := r.Cell(c)
		if cell.Kind != models.CellText {
			return time.Time{}, false
		}
		t, err := timestamp.Parse(cell.Text, timestamp.DMY, nil)
		return t, err == nil
	}

	var first time.Time
	for _, r := range ds.Rows {
		if t, ok := parse(r); ok {
			first = t
			break
		}
	}
	return func(r models.Row) (float64, bool) {
		t, ok := parse(r)
		if !ok {
			return 0, false
		}
		return t.Sub(first).Seconds(), true
	}
}
