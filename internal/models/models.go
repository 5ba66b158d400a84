package models

import (
	"strconv"
	"strings"
	"time"
)

type DataKind string

const (
	KindDepth DataKind = "depth"
	KindTime  DataKind = "time"
)

type ChannelDefinition struct {
	ID           string   `json:"id" yaml:"id"`
	StandardName string   `json:"standardName" yaml:"standardName"`
	Aliases      []string `json:"aliases" yaml:"aliases"`
}

type ColumnMapping struct {
	Original     string `json:"original"`
	Mapped       string `json:"mapped"` // standard name, "" when unresolved
	OriginalUnit string `json:"originalUnit"`
	MappedUnit   string `json:"mappedUnit"`
	ManualEdit   bool   `json:"manualEdit"`
}

// Dataset is the single row shape every component consumes. Keyed records
// are converted to positional rows at the ingestion boundary.
type Dataset struct {
	Filename  string          `json:"filename"`
	Customer  string          `json:"customer,omitempty"`
	Well      string          `json:"well,omitempty"`
	Kind      DataKind        `json:"kind"`
	Headers   []string        `json:"headers"`
	Units     []string        `json:"units"`
	Rows      []Row           `json:"rows"`
	WellInfo  []WellInfoEntry `json:"wellInfo,omitempty"`
	LASHeader string          `json:"-"`
	StartTime *time.Time      `json:"startTime,omitempty"` // reference for elapsed timestamps
}

// Column returns the index of header, or -1.
func (d *Dataset) Column(header string) int {
	for i, h := range d.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// FieldColumn finds the column backing a logical field (FieldDepth or one of
// Metrics), trying each candidate header in order, case-insensitively.
func (d *Dataset) FieldColumn(field string) int {
	for _, name := range FieldCandidates[field] {
		for i, h := range d.Headers {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

// Unit returns the unit of column i, or "" when the unit row is short.
func (d *Dataset) Unit(i int) string {
	if i < 0 || i >= len(d.Units) {
		return ""
	}
	return d.Units[i]
}

// Clone copies headers, units and rows so the copy can be mutated freely.
func (d *Dataset) Clone() *Dataset {
	out := *d
	out.Headers = append([]string(nil), d.Headers...)
	out.Units = append([]string(nil), d.Units...)
	out.WellInfo = append([]WellInfoEntry(nil), d.WellInfo...)
	out.Rows = make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		out.Rows[i] = append(Row(nil), r...)
	}
	return &out
}

type WellInfoEntry struct {
	Mnemonic    string `json:"mnemonic"`
	Unit        string `json:"unit"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type Row []Cell

// Cell returns the cell at i; out of range cells are empty.
func (r Row) Cell(i int) Cell {
	if i < 0 || i >= len(r) {
		return Cell{}
	}
	return r[i]
}

// Empty reports whether every cell is empty.
func (r Row) Empty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// RowFromRecord converts a header-keyed record into a positional row.
func RowFromRecord(headers []string, record map[string]string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		row[i] = ParseCell(record[h])
	}
	return row
}

type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
	CellInvalid // unparsable timestamp, keeps the raw text for diagnostics
)

type Cell struct {
	Kind CellKind
	Num  float64
	Text string
}

// InvalidTimestamp is rendered in place of a timestamp that failed to parse.
const InvalidTimestamp = "Invalid Timestamp"

func Number(v float64) Cell   { return Cell{Kind: CellNumber, Num: v} }
func Text(s string) Cell      { return Cell{Kind: CellText, Text: s} }
func Invalid(raw string) Cell { return Cell{Kind: CellInvalid, Text: raw} }

func (c Cell) IsEmpty() bool   { return c.Kind == CellEmpty }
func (c Cell) IsInvalid() bool { return c.Kind == CellInvalid }
func (c Cell) IsNumber() bool  { return c.Kind == CellNumber }

// ParseCell classifies raw text from a file.
func ParseCell(s string) Cell {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cell{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(v)
	}
	return Text(s)
}

// Float returns the numeric value of the cell, parsing text when needed.
func (c Cell) Float() (float64, bool) {
	switch c.Kind {
	case CellNumber:
		return c.Num, true
	case CellText:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
		return v, err == nil
	}
	return 0, false
}

// String renders the cell the way exports write it.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellText:
		return c.Text
	case CellInvalid:
		return InvalidTimestamp
	}
	return ""
}

// Raw returns the original text of the cell, including invalid timestamps.
func (c Cell) Raw() string {
	if c.Kind == CellInvalid {
		return c.Text
	}
	return c.String()
}

// Tracked metrics carried by DrillingRow and DecimatedPoint.
const (
	MetricWOB  = "wob"
	MetricRPM  = "rpm"
	MetricROP  = "rop"
	MetricTFLO = "tflo"
)

var Metrics = []string{MetricWOB, MetricRPM, MetricROP, MetricTFLO}

const (
	FieldDepth = "depth"
	FieldTime  = "time"
)

// FieldCandidates lists, in preference order, the headers that can carry each
// logical field. Mapped standard names come first, raw rig names after.
var FieldCandidates = map[string][]string{
	FieldDepth: {"ML_DMEA", "ML_DBTM", "DMEA", "DBTM", "DEPTH", "DEPT"},
	FieldTime:  {"TIME", "TIMESTAMP", "DATETIME"},
	MetricWOB:  {"WOB", "ML_WOB", "SWOB"},
	MetricRPM:  {"ML_RPM", "ML_RPMA", "RPM", "RPMA"},
	MetricROP:  {"ML_ROP", "ROP"},
	MetricTFLO: {"ML_MFIA", "TFLO", "MFIA"},
}

type DrillingRow struct {
	ID     int                 `json:"id"`
	Depth  float64             `json:"depth"`
	Values map[string]*float64 `json:"values"`
}

// Value returns the metric value and whether it is present.
func (r DrillingRow) Value(metric string) (float64, bool) {
	v, ok := r.Values[metric]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// AllZero reports whether every tracked metric is present and exactly zero.
func (r DrillingRow) AllZero() bool {
	for _, m := range Metrics {
		v, ok := r.Value(m)
		if !ok || v != 0 {
			return false
		}
	}
	return true
}

type SectionData struct {
	ID           string  `json:"id" validate:"required"`
	StartDepth   float64 `json:"startDepth"`
	EndDepth     float64 `json:"endDepth"`
	HoleDiameter string  `json:"holeDiameter"`
	MudType      string  `json:"mudType"`
}

type FormationData struct {
	ID            string  `json:"id" validate:"required"`
	StartDepth    float64 `json:"startDepth"`
	EndDepth      float64 `json:"endDepth"`
	FormationName string  `json:"formationName"`
	MudType       string  `json:"mudType"`
}

type SurveyStation struct {
	MD          float64 `json:"md"`
	Inclination float64 `json:"inclination"`
	TVD         float64 `json:"tvd"`
}

type FilterMode string

const (
	FilterAll       FilterMode = "all"
	FilterSection   FilterMode = "section"
	FilterFormation FilterMode = "formation"
)

type DecimationConfig struct {
	DepthInterval     float64    `json:"depthInterval" validate:"gte=0"`
	FilterMode        FilterMode `json:"filterMode" validate:"oneof=all section formation"`
	SelectedSection   string     `json:"selectedSection,omitempty"`
	SelectedFormation string     `json:"selectedFormation,omitempty"`
	EnableSmoothing   bool       `json:"enableSmoothing"`
	OutlierRemoval    bool       `json:"outlierRemoval"`
}

func DefaultDecimationConfig() DecimationConfig {
	return DecimationConfig{DepthInterval: 10, FilterMode: FilterAll}
}

type DecimatedPoint struct {
	Depth  float64  `json:"depth"`
	WOB    float64  `json:"wob"`
	RPM    float64  `json:"rpm"`
	ROP    float64  `json:"rop"`
	TFLO   float64  `json:"tflo"`
	TVD    *float64 `json:"tvd,omitempty"`
	Count  int      `json:"count"`
	RowIDs []int    `json:"rowIds"`
}

// Metric returns the aggregated value of a tracked metric.
func (p DecimatedPoint) Metric(name string) float64 {
	switch name {
	case MetricWOB:
		return p.WOB
	case MetricRPM:
		return p.RPM
	case MetricROP:
		return p.ROP
	case MetricTFLO:
		return p.TFLO
	}
	return 0
}

// SetMetric stores an aggregated value for a tracked metric.
func (p *DecimatedPoint) SetMetric(name string, v float64) {
	switch name {
	case MetricWOB:
		p.WOB = v
	case MetricRPM:
		p.RPM = v
	case MetricROP:
		p.ROP = v
	case MetricTFLO:
		p.TFLO = v
	}
}
