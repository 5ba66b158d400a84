package timestamp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/drillprep/internal/models"
)

func TestConvert(t *testing.T) {
	ref := time.Date(2024, 6, 17, 6, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		raw    string
		format string
		ref    *time.Time
		want   string
	}{
		{"excel serial", "45460.059", Excel1900, nil, "17/06/2024 01:24:58"},
		{"excel whole day", "45460", Excel1900, nil, "17/06/2024 00:00:00"},
		{"unix seconds", "1718587498", UnixS, nil, "17/06/2024 01:24:58"},
		{"days since 1900", "45458", Time1900D, nil, "17/06/2024 00:00:00"},
		{"elapsed seconds", "90", ElapsedS, &ref, "17/06/2024 06:31:30"},
		{"elapsed minutes", "1.5", ElapsedM, &ref, "17/06/2024 06:31:30"},
		{"midnight seconds with reference", "3600", EMDTS, &ref, "17/06/2024 01:00:00"},
		{"midnight seconds without reference", "3600", EMDTS, nil, "01/01/1970 01:00:00"},
		{"dmy", "17/06/2024 01:24:58", DMY, nil, "17/06/2024 01:24:58"},
		{"dmy single digits", "7/6/2024 1:02:03", DMY, nil, "07/06/2024 01:02:03"},
		{"mdy", "06/17/2024 01:24:58", MDY, nil, "17/06/2024 01:24:58"},
		{"ymd dash", "2024-06-17 01:24:58", YMDDash, nil, "17/06/2024 01:24:58"},
		{"iso", "2024-06-17T01:24:58Z", ISO8601, nil, "17/06/2024 01:24:58"},
		{"iso offset", "2024-06-17T11:24:58+10:00", ISO8601, nil, "17/06/2024 01:24:58"},
		{"ymd slash", "2024/06/17 01:24:58", YMDSlash, nil, "17/06/2024 01:24:58"},
		{"dmy dash", "17-06-2024 01:24:58", DMYDash, nil, "17/06/2024 01:24:58"},
		{"date only", "17/06/2024", DMY, nil, "17/06/2024 00:00:00"},
		{"unix seconds past 2262", "10000000000", UnixS, nil, "20/11/2286 17:46:40"},
		{"days since 1900 past 2262", "200000", Time1900D, nil, "01/08/2447 00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.raw, tt.format, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertFailures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		format  string
		wantErr error
	}{
		{"empty", "", DMY, ErrInvalid},
		{"garbage", "not a date", DMY, ErrInvalid},
		{"wrong order", "2024-06-17 01:24:58", DMY, ErrInvalid},
		{"month out of range", "06/17/2024 01:24:58", DMY, ErrInvalid},
		{"text for numeric", "abc", Excel1900, ErrInvalid},
		{"elapsed without reference", "90", ElapsedS, ErrNoReference},
		{"elapsed minutes without reference", "2", ElapsedM, ErrNoReference},
		{"unknown format", "1", "fortnights", ErrUnknownFormat},
		{"unix milliseconds", "1717632000000", UnixS, ErrInvalid},
		{"excel serial before year 1", "-700000", Excel1900, ErrInvalid},
		{"days beyond year 9999", "3000000", Time1900D, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.raw, tt.format, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		sample string
		want   string
		ok     bool
	}{
		{"1718587498", UnixS, true},
		{"45460.059", Excel1900, true},
		{"45460", Time1900D, true},
		{"3600", EMDTS, true},
		{"17/06/2024 01:24:58", DMY, true},
		{"06/17/2024 01:24:58", MDY, true},
		{"2024-06-17 01:24:58", YMDDash, true},
		{"2024-06-17T01:24:58Z", ISO8601, true},
		{"2024/06/17 01:24:58", YMDSlash, true},
		{"17-06-2024 01:24:58", DMYDash, true},
		{"banana", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			got, ok := Detect(tt.sample)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDual(t *testing.T) {
	tests := []struct {
		name string
		date string
		time string
		want string
	}{
		{"clock time", "45460", "01:24:58", "17/06/2024 01:24:58"},
		{"fraction of serial ignored", "45460.9", "01:24:58", "17/06/2024 01:24:58"},
		{"day fraction", "45460", "0.5", "17/06/2024 12:00:00"},
		{"seconds of day", "45460", "3661", "17/06/2024 01:01:01"},
		{"empty time", "45460", "", "17/06/2024 00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDual(tt.date, tt.time)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Render(got))
		})
	}

	_, err := ParseDual("17/06/2024", "01:00:00")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = ParseDual("45460", "25:00:00")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = ParseDual("45460", "later")
	assert.ErrorIs(t, err, ErrInvalid)
}

func testDataset(n int) *models.Dataset {
	ds := &models.Dataset{
		Filename: "test.csv",
		Headers:  []string{"TIME", "DMEA"},
		Units:    []string{"", "m"},
	}
	for i := 0; i < n; i++ {
		ds.Rows = append(ds.Rows, models.Row{models.Number(45460 + float64(i)/86400), models.Number(float64(i))})
	}
	return ds
}

func TestConverterKeepsInvalidRows(t *testing.T) {
	ds := testDataset(3)
	ds.Rows[1][0] = models.Text("garbage")

	var progress []int
	res, err := NewConverter().Convert(context.Background(), ds, Request{Columns: []string{"TIME"}, Format: Excel1900}, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.Len(t, res.Dataset.Rows, 3)
	assert.Equal(t, 2, res.Converted)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, "17/06/2024 00:00:00", res.Dataset.Rows[0][0].String())
	assert.True(t, res.Dataset.Rows[1][0].IsInvalid())
	assert.Equal(t, "garbage", res.Dataset.Rows[1][0].Raw())
	assert.Equal(t, models.InvalidTimestamp, res.Dataset.Rows[1][0].String())
	assert.Equal(t, "17/06/2024 00:00:02", res.Dataset.Rows[2][0].String())

	// source untouched
	assert.True(t, ds.Rows[0][0].IsNumber())
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestConverterProgress(t *testing.T) {
	ds := testDataset(250)
	var progress []int
	_, err := NewConverter().Convert(context.Background(), ds, Request{Columns: []string{"TIME"}, Format: Excel1900}, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 40, 80, 100}, progress)
}

func TestConverterDualColumn(t *testing.T) {
	ds := &models.Dataset{
		Headers: []string{"DATE", "CLOCK"},
		Rows: []models.Row{
			{models.Number(45460), models.Text("01:24:58")},
			{models.Number(45460), models.Number(0.25)},
		},
	}
	res, err := NewConverter().Convert(context.Background(), ds, Request{Columns: []string{"DATE", "CLOCK"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "17/06/2024 01:24:58", res.Dataset.Rows[0][0].String())
	assert.Equal(t, "17/06/2024 06:00:00", res.Dataset.Rows[1][0].String())
}

func TestConverterErrors(t *testing.T) {
	ds := testDataset(1)
	c := NewConverter()

	_, err := c.Convert(context.Background(), ds, Request{Columns: []string{"NOPE"}, Format: Excel1900}, nil)
	assert.ErrorIs(t, err, ErrNoColumns)

	_, err = c.Convert(context.Background(), ds, Request{Columns: []string{"TIME"}, Format: "bogus"}, nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Convert(ctx, ds, Request{Columns: []string{"TIME"}, Format: Excel1900}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJobDeliversOneFinalEvent(t *testing.T) {
	job := NewConverter().Start(context.Background(), testDataset(500), Request{Columns: []string{"TIME"}, Format: Excel1900})

	var final []Event
	for ev := range job.Events {
		if ev.Type != EventProgress {
			final = append(final, ev)
		}
	}
	require.Len(t, final, 1)
	assert.Equal(t, EventDone, final[0].Type)
	assert.Equal(t, 500, final[0].Result.Converted)
}

func TestJobError(t *testing.T) {
	job := NewConverter().Start(context.Background(), testDataset(1), Request{Columns: []string{"missing"}})
	var last Event
	for ev := range job.Events {
		last = ev
	}
	assert.Equal(t, EventError, last.Type)
	assert.NotEmpty(t, last.Error)
}

func TestPreview(t *testing.T) {
	ds := testDataset(5)
	ds.Rows[0][0] = models.Cell{}
	ds.Rows[1][0] = models.Text("x")

	got := Preview(ds, "TIME", Excel1900, nil, 2)
	require.Len(t, got, 2)
	assert.Equal(t, PreviewEntry{Original: "x", Formatted: models.InvalidTimestamp}, got[0])
	assert.True(t, got[1].Valid)

	format, ok := DetectColumn(ds, "TIME")
	assert.False(t, ok, "text sample has no suggestion")
	assert.Empty(t, format)
}
