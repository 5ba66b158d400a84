package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/timestamp"
)

const defaultLASNull = "-999.25"

// ReadLAS parses a LAS 2.0 file: ~Version, ~Well, ~Curve and ~ASCII
// sections. Other sections are skipped. Values equal to the ~Well NULL
// become empty cells.
func ReadLAS(r io.Reader) (*models.Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		ds      = &models.Dataset{}
		section byte
		header  strings.Builder
		null    = defaultLASNull
		wrapped bool
		line    int
	)

	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(raw)

		if section != 'A' {
			header.WriteString(raw)
			header.WriteByte('\n')
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "~") {
			if len(trimmed) < 2 {
				return nil, fmt.Errorf("las line %d: empty section marker", line)
			}
			section = upper(trimmed[1])
			if section == 'A' {
				if wrapped {
					return nil, errors.New("las: wrapped data is not supported")
				}
				if len(ds.Headers) == 0 {
					return nil, errors.New("las: ~ASCII before ~Curve")
				}
				ds.LASHeader = strings.TrimRight(header.String(), "\n")
			}
			continue
		}

		switch section {
		case 'V':
			e := parseHeaderLine(trimmed)
			if strings.EqualFold(e.Mnemonic, "WRAP") && strings.EqualFold(e.Value, "YES") {
				wrapped = true
			}
		case 'W':
			e := parseHeaderLine(trimmed)
			if strings.EqualFold(e.Mnemonic, "NULL") && e.Value != "" {
				null = e.Value
			}
			ds.WellInfo = append(ds.WellInfo, e)
		case 'C':
			e := parseHeaderLine(trimmed)
			ds.Headers = append(ds.Headers, e.Mnemonic)
			ds.Units = append(ds.Units, e.Unit)
		case 'A':
			fields := strings.Fields(trimmed)
			row := make(models.Row, len(ds.Headers))
			for i := range row {
				if i < len(fields) && !isNull(fields[i], null) {
					row[i] = models.ParseCell(fields[i])
				}
			}
			ds.Rows = append(ds.Rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan las: %w", err)
	}
	if len(ds.Headers) == 0 {
		return nil, errors.New("las: no ~Curve section")
	}

	ds.StartTime = startTime(ds.WellInfo)
	return ds, nil
}

// parseHeaderLine splits "MNEM.UNIT  VALUE : DESCRIPTION".
func parseHeaderLine(s string) models.WellInfoEntry {
	var e models.WellInfoEntry

	body := s
	if i := strings.LastIndex(s, ":"); i >= 0 {
		body = s[:i]
		e.Description = strings.TrimSpace(s[i+1:])
	}

	dot := strings.Index(body, ".")
	if dot < 0 {
		fields := strings.Fields(body)
		if len(fields) > 0 {
			e.Mnemonic = fields[0]
			e.Value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(body), fields[0]))
		}
		return e
	}

	e.Mnemonic = strings.TrimSpace(body[:dot])
	rest := body[dot+1:]
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		e.Value = strings.TrimSpace(rest)
		return e
	}
	end := strings.IndexAny(rest, " \t")
	if end < 0 {
		e.Unit = rest
		return e
	}
	e.Unit = rest[:end]
	e.Value = strings.TrimSpace(rest[end:])
	return e
}

// startTime looks for a calendar start time in the well section, used as the
// reference for elapsed timestamps.
func startTime(info []models.WellInfoEntry) *time.Time {
	for _, mnem := range []string{"STRT", "DATE", "STARTTIME"} {
		for _, e := range info {
			if !strings.EqualFold(e.Mnemonic, mnem) {
				continue
			}
			format, ok := timestamp.Detect(e.Value)
			if !ok || isNumericFormat(format) {
				continue
			}
			if t, err := timestamp.Parse(e.Value, format, nil); err == nil {
				return &t
			}
		}
	}
	return nil
}

func isNull(field, null string) bool {
	if field == null {
		return true
	}
	a, errA := strconv.ParseFloat(field, 64)
	b, errB := strconv.ParseFloat(null, 64)
	return errA == nil && errB == nil && a == b
}

func isNumericFormat(code string) bool {
	for _, o := range timestamp.Options() {
		if o.Code == code {
			return o.Numeric
		}
	}
	return false
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
