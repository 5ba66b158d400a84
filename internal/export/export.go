package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lox/drillprep/internal/models"
)

type Format string

const (
	FormatLAS  Format = "las"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown export format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatLAS, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/plain"
}

// Filename builds "<base>_<suffix>.<format>" from the uploaded file name.
func Filename(original, suffix string, f Format) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "export"
	}
	if suffix != "" {
		base += "_" + suffix
	}
	return base + "." + string(f)
}

func Write(w io.Writer, f Format, ds *models.Dataset) error {
	switch f {
	case FormatLAS:
		return WriteLAS(w, ds)
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatXLSX:
		return WriteXLSX(w, ds)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// WriteLAS writes a LAS 2.0 file. The header read from an uploaded LAS file
// is reused verbatim; otherwise a minimal ~Version/~Curve/~ASCII header is
// built from the dataset's headers and units. Data rows are tab separated.
func WriteLAS(w io.Writer, ds *models.Dataset) error {
	bw := bufio.NewWriter(w)

	if ds.LASHeader != "" {
		bw.WriteString(ds.LASHeader)
		bw.WriteByte('\n')
	} else {
		bw.WriteString("~Version Information\n")
		bw.WriteString("VERS.   2.0 : CWLS log ASCII Standard -VERSION 2.0\n")
		bw.WriteString("WRAP.    NO : One line per depth step\n")
		if len(ds.WellInfo) > 0 {
			bw.WriteString("~Well Information\n")
			for _, e := range ds.WellInfo {
				fmt.Fprintf(bw, "%s.%s %s : %s\n", e.Mnemonic, e.Unit, e.Value, e.Description)
			}
		}
		bw.WriteString("~Curve Information\n")
		for i, h := range ds.Headers {
			fmt.Fprintf(bw, "%s.%s : %s\n", h, ds.Unit(i), h)
		}
		bw.WriteString("~ASCII\n")
	}

	for _, row := range ds.Rows {
		for i := range ds.Headers {
			if i > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(row.Cell(i).String())
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteCSV writes the header row, the unit row, then the data rows.
func WriteCSV(w io.Writer, ds *models.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Headers); err != nil {
		return err
	}
	unitRow := make([]string, len(ds.Headers))
	for i := range ds.Headers {
		unitRow[i] = ds.Unit(i)
	}
	if err := cw.Write(unitRow); err != nil {
		return err
	}

	record := make([]string, len(ds.Headers))
	for _, row := range ds.Rows {
		for i := range ds.Headers {
			record[i] = row.Cell(i).String()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	dataSheet = "data"
	wellSheet = "well"
)

// WriteXLSX writes the data sheet with the same two header rows as CSV, and
// a well sheet when the dataset carries LAS well information.
func WriteXLSX(w io.Writer, ds *models.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), dataSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(ds.Headers))
	unitRow := make([]any, len(ds.Headers))
	for i, h := range ds.Headers {
		header[i] = h
		unitRow[i] = ds.Unit(i)
	}
	if err := setRow(f, dataSheet, 1, header); err != nil {
		return err
	}
	if err := setRow(f, dataSheet, 2, unitRow); err != nil {
		return err
	}
	for n, row := range ds.Rows {
		values := make([]any, len(ds.Headers))
		for i := range ds.Headers {
			c := row.Cell(i)
			switch {
			case c.IsNumber():
				values[i] = c.Num
			case c.IsEmpty():
				values[i] = nil
			default:
				values[i] = c.String()
			}
		}
		if err := setRow(f, dataSheet, n+3, values); err != nil {
			return err
		}
	}

	if len(ds.WellInfo) > 0 {
		if _, err := f.NewSheet(wellSheet); err != nil {
			return fmt.Errorf("add sheet: %w", err)
		}
		if err := setRow(f, wellSheet, 1, []any{"Mnemonic", "Unit", "Value", "Description"}); err != nil {
			return err
		}
		for n, e := range ds.WellInfo {
			if err := setRow(f, wellSheet, n+2, []any{e.Mnemonic, e.Unit, e.Value, e.Description}); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// Decimated column names.
var DecimatedHeaders = []string{"DEPTH", "WOB", "RPM", "ROP", "TFLO", "TVD", "RUN"}

// Decimated turns decimated points into an exportable dataset with TVD and
// RUN columns. Units are taken from the mapped source dataset when given.
func Decimated(points []models.DecimatedPoint, sections []models.SectionData, src *models.Dataset) *models.Dataset {
	ds := &models.Dataset{
		Kind:    models.KindDepth,
		Headers: append([]string(nil), DecimatedHeaders...),
		Units:   make([]string, len(DecimatedHeaders)),
	}
	if src != nil {
		ds.Filename = src.Filename
		ds.Customer = src.Customer
		ds.Well = src.Well
		ds.WellInfo = src.WellInfo
		for i, field := range []string{models.FieldDepth, models.MetricWOB, models.MetricRPM, models.MetricROP, models.MetricTFLO} {
			ds.Units[i] = src.Unit(src.FieldColumn(field))
		}
		ds.Units[5] = ds.Units[0]
	}

	ds.Rows = make([]models.Row, len(points))
	for n, p := range points {
		row := models.Row{
			models.Number(p.Depth),
			models.Number(p.WOB),
			models.Number(p.RPM),
			models.Number(p.ROP),
			models.Number(p.TFLO),
			{},
			{},
		}
		if p.TVD != nil {
			row[5] = models.Number(*p.TVD)
		}
		if run := RunNumber(p.Depth, sections); run > 0 {
			row[6] = models.Number(float64(run))
		}
		ds.Rows[n] = row
	}
	return ds
}

// RunNumber is the 1-based index of the first section whose [start, end)
// range contains depth, or 0 when none does.
func RunNumber(depth float64, sections []models.SectionData) int {
	for i, s := range sections {
		if depth >= s.StartDepth && depth < s.EndDepth {
			return i + 1
		}
	}
	return 0
}
