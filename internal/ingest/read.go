package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lox/drillprep/internal/metrics"
	"github.com/lox/drillprep/internal/models"
)

// ErrUnsupportedFile is returned for anything other than LAS, CSV or XLSX.
var ErrUnsupportedFile = errors.New("unsupported file type: expected .las, .csv or .xlsx")

var supported = map[string]bool{".las": true, ".csv": true, ".xlsx": true}

// Supported reports whether filename has an extension Read accepts.
func Supported(filename string) bool {
	return supported[strings.ToLower(filepath.Ext(filename))]
}

// Read parses a sensor log. The extension picks the parser; nothing is
// returned unless the whole file parsed.
func Read(filename string, r io.Reader) (*models.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var (
		ds  *models.Dataset
		err error
	)
	switch ext {
	case ".las":
		ds, err = ReadLAS(r)
	case ".csv":
		ds, err = ReadCSV(r)
	case ".xlsx":
		ds, err = ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	ds.Filename = filepath.Base(filename)
	if ds.Kind == "" {
		ds.Kind = models.KindDepth
	}
	metrics.UploadsIngested.WithLabelValues(strings.TrimPrefix(ext, ".")).Inc()
	return ds, nil
}

// ReadCSV reads a log with channel names on row 1, units on row 2 and data
// from row 3. Ragged rows are padded or truncated to the header width.
func ReadCSV(r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX reads the first sheet of a workbook with the same two header rows
// as CSV.
func ReadXLSX(r io.Reader) (*models.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*models.Dataset, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, errors.New("no header row")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	ds := &models.Dataset{Headers: headers, Units: make([]string, len(headers))}
	if len(records) > 1 {
		for i := range headers {
			if i < len(records[1]) {
				ds.Units[i] = strings.TrimSpace(records[1][i])
			}
		}
	}

	for _, rec := range records[min(2, len(records)):] {
		if blank(rec) {
			continue
		}
		row := make(models.Row, len(headers))
		for i := range headers {
			if i < len(rec) {
				row[i] = models.ParseCell(rec[i])
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Records is a log handed over as header-keyed rows, as produced by tools
// that export JSON objects rather than tables. Values are kept as text.
type Records struct {
	Filename string              `json:"filename" validate:"required,max=255"`
	Headers  []string            `json:"headers" validate:"required,min=1,dive,required,max=128"`
	Units    []string            `json:"units" validate:"omitempty,dive,max=32"`
	Rows     []map[string]string `json:"rows"`
}

// ReadRecords resolves keyed rows to positional ones in header order.
// Keys missing from Headers are dropped.
func ReadRecords(rec Records) *models.Dataset {
	ds := &models.Dataset{
		Filename: filepath.Base(rec.Filename),
		Headers:  make([]string, len(rec.Headers)),
		Units:    make([]string, len(rec.Headers)),
		Kind:     models.KindDepth,
	}
	for i, h := range rec.Headers {
		ds.Headers[i] = strings.TrimSpace(h)
		if i < len(rec.Units) {
			ds.Units[i] = strings.TrimSpace(rec.Units[i])
		}
	}
	for _, r := range rec.Rows {
		row := models.RowFromRecord(rec.Headers, r)
		if !row.Empty() {
			ds.Rows = append(ds.Rows, row)
		}
	}
	metrics.UploadsIngested.WithLabelValues("records").Inc()
	return ds
}

// ReadBytes is Read over an in-memory payload.
func ReadBytes(filename string, data []byte) (*models.Dataset, error) {
	return Read(filename, bytes.NewReader(data))
}
