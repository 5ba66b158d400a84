package timestamp

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseDual merges a date column holding an Excel serial (only the integer
// part is used) with a time-of-day column. The time may be HH:mm:ss, a day
// fraction in (0,1) or seconds since midnight. An empty time means midnight.
func ParseDual(dateRaw, timeRaw string) (time.Time, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(dateRaw), 64)
	if err != nil || math.IsNaN(serial) || math.IsInf(serial, 0) || serial < 0 {
		return time.Time{}, ErrInvalid
	}
	day := excelEpoch.AddDate(0, 0, int(math.Floor(serial)))

	secs, err := timeOfDay(timeRaw)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(secs) * time.Second), nil
}

func timeOfDay(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	if parts := strings.Split(s, ":"); len(parts) == 3 {
		var hms [3]int
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || len(p) > 2 {
				return 0, ErrInvalid
			}
			hms[i] = n
		}
		if hms[0] > 23 || hms[1] > 59 || hms[2] > 59 {
			return 0, ErrInvalid
		}
		return hms[0]*3600 + hms[1]*60 + hms[2], nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	switch {
	case v > 0 && v < 1:
		return int(math.Round(v * 86400)), nil
	case v >= 0 && v < 86400:
		return int(math.Floor(v)), nil
	}
	return 0, ErrInvalid
}
