package timestamp

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical is the only layout timestamps are ever rendered in
// (dd/MM/yyyy HH:mm:ss).
const Canonical = "02/01/2006 15:04:05"

// Format codes.
const (
	DMY       = "dd/MM/yyyy HH:mm:ss"
	MDY       = "MM/dd/yyyy HH:mm:ss"
	YMDDash   = "yyyy-MM-dd HH:mm:ss"
	ISO8601   = "yyyy-MM-dd'T'HH:mm:ss'Z'"
	YMDSlash  = "yyyy/MM/dd HH:mm:ss"
	DMYDash   = "dd-MM-yyyy HH:mm:ss"
	UnixS     = "unix-s"
	ElapsedS  = "elapsed-s"
	ElapsedM  = "elapsed-m"
	Time1900D = "time-1900-d"
	Excel1900 = "excel-1900"
	EMDTS     = "emdt-s"
)

var (
	ErrInvalid       = errors.New("invalid timestamp")
	ErrUnknownFormat = errors.New("unknown timestamp format")
	ErrNoReference   = errors.New("elapsed format requires a reference start time")
)

type Option struct {
	Code    string `json:"code"`
	Label   string `json:"label"`
	Numeric bool   `json:"numeric"`
}

var options = []Option{
	{DMY, "dd/MM/yyyy HH:mm:ss", false},
	{MDY, "MM/dd/yyyy HH:mm:ss", false},
	{YMDDash, "yyyy-MM-dd HH:mm:ss", false},
	{ISO8601, "ISO 8601", false},
	{YMDSlash, "yyyy/MM/dd HH:mm:ss", false},
	{DMYDash, "dd-MM-yyyy HH:mm:ss", false},
	{UnixS, "UNIX Time (Seconds)", true},
	{ElapsedS, "Elapsed Time (Seconds)", true},
	{ElapsedM, "Elapsed Time (Minutes)", true},
	{Time1900D, "TIME_1900 (Days since 1900)", true},
	{Excel1900, "Excel Serial (1900 date system)", true},
	{EMDTS, "Elapsed Time from Midnight (Seconds)", true},
}

// Options lists the supported formats in presentation order.
func Options() []Option {
	return append([]Option(nil), options...)
}

func lookup(code string) (Option, bool) {
	for _, o := range options {
		if o.Code == code {
			return o, true
		}
	}
	return Option{}, false
}

// Go layouts accepted for each calendar format, tried in order.
var calendarLayouts = map[string][]string{
	DMY:      {"2/1/2006 15:04:05", "2/1/2006 15:04", "2/1/2006"},
	MDY:      {"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006"},
	YMDDash:  {"2006-1-2 15:04:05", "2006-1-2 15:04", "2006-1-2"},
	ISO8601:  {time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"},
	YMDSlash: {"2006/1/2 15:04:05", "2006/1/2 15:04", "2006/1/2"},
	DMYDash:  {"2-1-2006 15:04:05", "2-1-2006 15:04", "2-1-2006"},
}

var (
	excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	epoch1900  = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Render formats t in the canonical layout.
func Render(t time.Time) string {
	return t.UTC().Format(Canonical)
}

// Parse interprets raw under format. ref is the well start time used by the
// elapsed formats and as the day anchor for emdt-s.
func Parse(raw, format string, ref *time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalid
	}
	opt, ok := lookup(format)
	if !ok {
		return time.Time{}, ErrUnknownFormat
	}
	if !opt.Numeric {
		return parseCalendar(s, format)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, ErrInvalid
	}

	switch format {
	case UnixS:
		return offset(time.Unix(0, 0).UTC(), v, time.Second)
	case ElapsedS, ElapsedM:
		if ref == nil {
			return time.Time{}, ErrNoReference
		}
		unit := time.Second
		if format == ElapsedM {
			unit = time.Minute
		}
		return offset(ref.UTC(), v, unit)
	case Time1900D:
		return offset(epoch1900, v, 24*time.Hour)
	case Excel1900:
		return offset(excelEpoch, v, 24*time.Hour)
	case EMDTS:
		day := time.Unix(0, 0).UTC()
		if ref != nil {
			r := ref.UTC()
			day = time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, time.UTC)
		}
		return offset(day, v, time.Second)
	}
	return time.Time{}, ErrUnknownFormat
}

// maxOffset bounds numeric offsets to roughly ten thousand years.
const maxOffset = 10000 * 366 * 86400

// offset adds v units to base, rounded to the nearest second. Whole days go
// through AddDate so offsets past the range of time.Duration stay exact;
// results outside years 1 to 9999 are invalid.
func offset(base time.Time, v float64, unit time.Duration) (time.Time, error) {
	secs := math.Round(v * unit.Seconds())
	if math.Abs(secs) > maxOffset {
		return time.Time{}, ErrInvalid
	}
	days := math.Trunc(secs / 86400)
	rem := secs - days*86400
	t := base.AddDate(0, 0, int(days)).Add(time.Duration(rem) * time.Second)
	if t.Year() < 1 || t.Year() > 9999 {
		return time.Time{}, ErrInvalid
	}
	return t, nil
}

func parseCalendar(s, format string) (time.Time, error) {
	for _, layout := range calendarLayouts[format] {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalid
}

// Convert parses raw and renders it canonically.
func Convert(raw, format string, ref *time.Time) (string, error) {
	t, err := Parse(raw, format, ref)
	if err != nil {
		return "", err
	}
	return Render(t), nil
}

// Detect suggests a format for a sample value. It returns false when nothing
// fits and the user has to choose.
func Detect(sample string) (string, bool) {
	s := strings.TrimSpace(sample)
	if s == "" {
		return "", false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case v > 1e9:
			return UnixS, true
		case strings.Contains(s, ".") && v > 30000 && v < 60000:
			return Excel1900, true
		case v > 40000:
			return Time1900D, true
		case v < 86400:
			return EMDTS, true
		case v < 100000:
			return ElapsedS, true
		}
		return "", false
	}

	for _, o := range options {
		if o.Numeric {
			continue
		}
		if _, err := parseCalendar(s, o.Code); err == nil {
			return o.Code, true
		}
	}
	return "", false
}
