package api

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lox/drillprep/internal/chart"
	"github.com/lox/drillprep/internal/export"
	"github.com/lox/drillprep/internal/session"
)

const maxChartSide = 2000

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	metric := chi.URLParam(r, "metric")
	opts := chart.Options{
		Width:   dimension(r, "width", chart.DefaultWidth),
		Height:  dimension(r, "height", chart.DefaultHeight),
		Title:   metric,
		Caption: sess.Dataset().Filename,
	}

	key := chartKey(sess, metric, opts)
	if png, ok := s.charts.Get(key); ok {
		writePNG(w, png, true)
		return
	}

	png, _, err := sess.Chart(metric, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.charts.Set(key, png)
	writePNG(w, png, false)
}

// chartKey identifies a render by everything that changes the picture: the
// result version, the selection and the size.
func chartKey(sess *session.Session, metric string, opts chart.Options) string {
	h := fnv.New64a()
	for _, id := range sess.Selection() {
		fmt.Fprintf(h, "%d,", id)
	}
	return fmt.Sprintf("%s/%s/%d/%dx%d/%x/%d", sess.ID, metric, sess.Result().Version, opts.Width, opts.Height, h.Sum64(), len(sess.Rows()))
}

func writePNG(w http.ResponseWriter, png []byte, hit bool) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Write(png)
}

func dimension(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxChartSide)
}

// handleExport writes the mapped dataset or the decimated points as a file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !sess.Mapped() {
		writeError(w, r, session.ErrNotMapped)
		return
	}
	ds := sess.Dataset()

	which := q.Get("dataset")
	switch which {
	case "", "mapped":
		which = "mapped"
	case "decimated":
		ds = export.Decimated(sess.Result().Points, sess.Sections(), ds)
	default:
		writeError(w, r, fmt.Errorf("%w: dataset must be mapped or decimated", errBadRequest))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, ds); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(sess.Dataset().Filename, which, format)))
	w.Write(buf.Bytes())
}
