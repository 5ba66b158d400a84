package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/drillprep/internal/models"
)

const (
	DefaultWidth  = 480
	DefaultHeight = 720
)

var ErrUnknownMetric = errors.New("unknown metric")

// Selected reports whether a raw row is part of the current selection.
type Selected interface {
	Contains(id int) bool
}

type Options struct {
	Width   int
	Height  int
	Title   string
	Caption string
}

func dots(col drawing.Color, width float64) gochart.Style {
	return gochart.Style{
		StrokeWidth: gochart.Disabled,
		DotWidth:    width,
		DotColor:    col,
	}
}

// Render draws one metric against depth, depth increasing downwards. Raw rows
// are grey dots, decimated points a blue line and selected rows red dots.
func Render(metric string, rows []models.DrillingRow, points []models.DecimatedPoint, sel Selected, opts Options) ([]byte, error) {
	if !known(metric) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}

	var raw, picked xy
	for _, r := range rows {
		v, ok := r.Value(metric)
		if !ok || r.Depth < 0 {
			continue
		}
		if sel != nil && sel.Contains(r.ID) {
			picked.add(v, r.Depth)
		} else {
			raw.add(v, r.Depth)
		}
	}
	var dec xy
	for _, p := range points {
		dec.add(p.Metric(metric), p.Depth)
	}

	var series []gochart.Series
	if raw.len() > 0 {
		series = append(series, gochart.ContinuousSeries{Name: "raw", XValues: raw.x, YValues: raw.y, Style: dots(gochart.ColorAlternateGray, 2)})
	}
	if dec.len() > 0 {
		series = append(series, gochart.ContinuousSeries{
			Name:    "decimated",
			XValues: dec.x,
			YValues: dec.y,
			Style: gochart.Style{
				StrokeColor: gochart.ColorBlue,
				StrokeWidth: 1.5,
				DotColor:    gochart.ColorBlue,
				DotWidth:    3,
			},
		})
	}
	if picked.len() > 0 {
		series = append(series, gochart.ContinuousSeries{Name: "selected", XValues: picked.x, YValues: picked.y, Style: dots(gochart.ColorRed, 4)})
	}

	caption := opts.Caption
	if caption == "" {
		caption = fmt.Sprintf("%s: %d raw, %d decimated, %d selected", strings.ToUpper(metric), raw.len()+picked.len(), dec.len(), picked.len())
	}

	if len(series) == 0 {
		return encode(withCaption(blank(opts.Width, opts.Height), "no data"))
	}

	xr, yr := raw.merge(dec).merge(picked).ranges()
	ch := gochart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 16, Right: 16, Bottom: 28}},
		XAxis:      gochart.XAxis{Name: strings.ToUpper(metric), Range: xr},
		YAxis:      gochart.YAxis{Name: "Depth", Range: yr},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return encode(withCaption(img, caption))
}

func known(metric string) bool {
	for _, m := range models.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

type xy struct {
	x, y []float64
}

func (s *xy) add(x, y float64) {
	s.x = append(s.x, x)
	s.y = append(s.y, y)
}

func (s xy) len() int { return len(s.x) }

func (s xy) merge(o xy) xy {
	return xy{x: append(append([]float64(nil), s.x...), o.x...), y: append(append([]float64(nil), s.y...), o.y...)}
}

// ranges pads degenerate extents so a single point still renders.
func (s xy) ranges() (*gochart.ContinuousRange, *gochart.ContinuousRange) {
	xmin, xmax := extent(s.x)
	ymin, ymax := extent(s.y)
	return &gochart.ContinuousRange{Min: xmin, Max: xmax},
		&gochart.ContinuousRange{Min: ymin, Max: ymax, Descending: true}
}

func extent(vs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.05, 1)
		return lo - pad, hi + pad
	}
	return lo, hi
}

func blank(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// withCaption draws text on a dark band along the bottom edge.
func withCaption(img image.Image, text string) image.Image {
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	if strings.TrimSpace(text) == "" {
		return rgba
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: rgba, Src: image.NewUniform(color.White), Face: face}
	x, y := b.Min.X+8, b.Max.Y-6
	tw := d.MeasureString(text).Ceil()
	band := image.Rect(x-4, y-face.Metrics().Ascent.Ceil()-4, x+tw+4, y+3)
	draw.Draw(rgba, band, image.NewUniform(color.RGBA{0, 0, 0, 200}), image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	d.DrawString(text)
	return rgba
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
