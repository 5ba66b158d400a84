package ingest

import (
	"encoding/json"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/lox/drillprep/internal/models"
)

const (
	FlagMissingColumn = "missing_column"
	FlagEmptyColumn   = "empty_column"
	FlagNonNumeric    = "non_numeric"
	FlagNegative      = "negative_values"
	FlagOutOfRange    = "out_of_range"
	FlagConstant      = "constant"
)

// Plausible bounds for the required numeric fields, in any common unit.
var plausible = map[string][2]float64{
	models.FieldDepth: {0, 50000},
	models.MetricWOB:  {0, 1000},
	models.MetricRPM:  {0, 1000},
	models.MetricROP:  {0, 3000},
	models.MetricTFLO: {0, 20000},
}

// RequiredFields are the logical fields an audit checks for.
var RequiredFields = []string{models.FieldDepth, models.MetricWOB, models.MetricRPM, models.MetricROP, models.MetricTFLO}

type Grade string

const (
	GradeGood Grade = "good"
	GradeFair Grade = "fair"
	GradePoor Grade = "poor"
)

type ColumnIssue struct {
	Column string   `json:"column"`
	Flags  []string `json:"flags"`
}

type Audit struct {
	Completeness int           `json:"completeness"`
	Conformity   int           `json:"conformity"`
	Statistics   int           `json:"statistics"`
	Overall      int           `json:"overall"`
	Grade        Grade         `json:"grade"`
	Rows         int           `json:"rows"`
	Issues       []ColumnIssue `json:"issues,omitempty"`
}

// AuditDataset scores a dataset:
//   - completeness: share of rows with every required field present
//   - conformity: share of required numeric cells that parse and are plausible
//   - statistics: share of numeric columns that actually vary
func AuditDataset(ds *models.Dataset) Audit {
	a := Audit{Rows: len(ds.Rows)}

	required := requiredFields(ds)
	cols := make(map[string]int, len(required))
	for _, field := range required {
		i := ds.FieldColumn(field)
		cols[field] = i
		if i < 0 {
			a.Issues = append(a.Issues, ColumnIssue{Column: field, Flags: []string{FlagMissingColumn}})
		}
	}

	complete := 0
	for _, row := range ds.Rows {
		ok := true
		for _, field := range required {
			if i := cols[field]; i < 0 || row.Cell(i).IsEmpty() {
				ok = false
				break
			}
		}
		if ok {
			complete++
		}
	}

	conforming, checked := 0, 0
	for field, bounds := range plausible {
		i, ok := cols[field]
		if !ok || i < 0 {
			continue
		}
		for _, row := range ds.Rows {
			cell := row.Cell(i)
			if cell.IsEmpty() {
				continue
			}
			checked++
			if v, ok := cell.Float(); ok && v >= bounds[0] && v <= bounds[1] {
				conforming++
			}
		}
	}

	numeric, varying := 0, 0
	for i, h := range ds.Headers {
		flags := ValidateColumn(ds, i, fieldFor(cols, i))
		values := columnValues(ds, i)
		if len(values) > 0 {
			numeric++
			if v, err := stats.Variance(values); err == nil && v > 0 {
				varying++
			}
		}
		if len(flags) > 0 {
			a.Issues = append(a.Issues, ColumnIssue{Column: h, Flags: flags})
		}
	}

	a.Completeness = percent(complete, len(ds.Rows))
	a.Conformity = 100
	if checked > 0 {
		a.Conformity = percent(conforming, checked)
	}
	a.Statistics = percent(varying, numeric)
	a.Overall = int(math.Round(float64(a.Completeness+a.Conformity+a.Statistics) / 3))
	a.Grade = GradeFor(a.Overall)
	return a
}

func requiredFields(ds *models.Dataset) []string {
	if ds.Kind == models.KindTime {
		return append([]string{models.FieldTime}, RequiredFields...)
	}
	return RequiredFields
}

func fieldFor(cols map[string]int, i int) string {
	for field, c := range cols {
		if c == i {
			return field
		}
	}
	return ""
}

// ValidateColumn returns the quality flags for column i. field names the
// logical field the column backs, or "" for other columns.
func ValidateColumn(ds *models.Dataset, i int, field string) []string {
	var flags []string

	present, numbers, negatives, outside := 0, 0, 0, 0
	bounds, bounded := plausible[field]
	for _, row := range ds.Rows {
		cell := row.Cell(i)
		if cell.IsEmpty() {
			continue
		}
		present++
		v, ok := cell.Float()
		if !ok {
			continue
		}
		numbers++
		if v < 0 {
			negatives++
		}
		if bounded && (v < bounds[0] || v > bounds[1]) {
			outside++
		}
	}

	if present == 0 {
		return []string{FlagEmptyColumn}
	}
	// a column that is mostly numbers with stray text
	if numbers > 0 && numbers < present && numbers*2 >= present {
		flags = append(flags, FlagNonNumeric)
	}
	if negatives > 0 {
		flags = append(flags, FlagNegative)
	}
	if outside > 0 {
		flags = append(flags, FlagOutOfRange)
	}
	if numbers > 1 {
		if v, err := stats.Variance(columnValues(ds, i)); err == nil && v == 0 {
			flags = append(flags, FlagConstant)
		}
	}
	return flags
}

func columnValues(ds *models.Dataset, i int) []float64 {
	var out []float64
	for _, row := range ds.Rows {
		if v, ok := row.Cell(i).Float(); ok {
			out = append(out, v)
		}
	}
	return out
}

// GradeFor buckets an overall score.
func GradeFor(score int) Grade {
	switch {
	case score >= 95:
		return GradeGood
	case score >= 85:
		return GradeFair
	}
	return GradePoor
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

func QualityFlagsToJSON(issues []ColumnIssue) string {
	if len(issues) == 0 {
		return ""
	}
	b, _ := json.Marshal(issues)
	return string(b)
}
