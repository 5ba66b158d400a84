package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/timestamp"
)

const (
	writeWait       = 10 * time.Second
	defaultPreview  = 5
	maxPreviewLimit = 50
)

func (s *Server) handleTimestampFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, timestamp.Options())
}

type Detection struct {
	Column string `json:"column"`
	Format string `json:"format"`
}

// handleDetectTimestamps suggests a format for one column, or for every
// column that looks like a timestamp when none is named.
func (s *Server) handleDetectTimestamps(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ds := sess.Dataset()

	columns := ds.Headers
	if c := r.URL.Query().Get("column"); c != "" {
		if ds.Column(c) < 0 {
			writeError(w, r, fmt.Errorf("%w: no column %q", errBadRequest, c))
			return
		}
		columns = []string{c}
	}

	out := []Detection{}
	for _, c := range columns {
		if format, ok := timestamp.DetectColumn(ds, c); ok {
			out = append(out, Detection{Column: c, Format: format})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type previewRequest struct {
	Column    string     `json:"column" validate:"required"`
	Format    string     `json:"format" validate:"required"`
	Reference *time.Time `json:"reference,omitempty"`
	Limit     int        `json:"limit" validate:"gte=0,lte=50"`
}

func (s *Server) handlePreviewTimestamps(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req previewRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !knownFormat(req.Format) {
		writeError(w, r, fmt.Errorf("%w: %q", timestamp.ErrUnknownFormat, req.Format))
		return
	}
	ds := sess.Dataset()
	if ds.Column(req.Column) < 0 {
		writeError(w, r, fmt.Errorf("%w: no column %q", errBadRequest, req.Column))
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultPreview
	}
	writeJSON(w, http.StatusOK, nonNil(timestamp.Preview(ds, req.Column, req.Format, req.Reference, min(limit, maxPreviewLimit))))
}

type convertAccepted struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Socket string `json:"socket"`
}

func (s *Server) handleConvertTimestamps(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req timestamp.Request
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ds := sess.Dataset()
	for _, c := range req.Columns {
		if ds.Column(c) < 0 {
			writeError(w, r, fmt.Errorf("%w: %q", timestamp.ErrNoColumns, c))
			return
		}
	}
	if len(req.Columns) == 1 && !knownFormat(req.Format) {
		writeError(w, r, fmt.Errorf("%w: %q", timestamp.ErrUnknownFormat, req.Format))
		return
	}

	run := s.startRun(sess.ID, req)
	tj := s.converter.Start(context.Background(), ds, req)
	job := s.jobs.add(sess.ID, tj)
	go s.followJob(sess, job, run, len(ds.Rows))

	writeJSON(w, http.StatusAccepted, convertAccepted{
		JobID:  job.ID,
		Status: "running",
		Socket: "/api/jobs/" + job.ID + "/ws",
	})
}

// followJob applies a finished conversion to its session before the final
// event becomes visible to listeners.
func (s *Server) followJob(sess *session.Session, job *conversionJob, run *store.ProcessingRun, rows int) {
	for ev := range job.job.Events {
		switch ev.Type {
		case timestamp.EventDone:
			if err := sess.ApplyTimestamps(ev.Result); err != nil {
				s.completeRun(run, rows, 0, "superseded", err.Error())
				zap.S().Warnf("api: session %s: discarding timestamp conversion: %v", sess.ID, err)
				ev = timestamp.Event{Type: timestamp.EventError, Progress: 100, Error: err.Error()}
				break
			}
			s.completeRun(run, rows, ev.Result.Converted, "ok", "")
			zap.S().Infof("api: session %s: converted %d timestamps (%d invalid)", sess.ID, ev.Result.Converted, ev.Result.Invalid)
		case timestamp.EventError:
			s.completeRun(run, rows, 0, "error", ev.Error)
			zap.S().Warnf("api: session %s: timestamp conversion: %s", sess.ID, ev.Error)
		}
		job.append(ev)
	}
}

func (s *Server) startRun(sessionID string, req timestamp.Request) *store.ProcessingRun {
	detail, _ := json.Marshal(req)
	run, err := s.store.StartRun(sessionID, store.RunTimestamp, string(detail))
	if err != nil {
		zap.S().Warnf("api: record timestamp run: %v", err)
		return nil
	}
	return run
}

func (s *Server) completeRun(run *store.ProcessingRun, in, out int, outcome, msg string) {
	if run == nil {
		return
	}
	run.Outcome = outcome
	run.InputRows.Int64, run.InputRows.Valid = int64(in), true
	if outcome == "ok" {
		run.OutputRows.Int64, run.OutputRows.Valid = int64(out), true
	}
	if msg != "" {
		run.ErrorMessage.String, run.ErrorMessage.Valid = msg, true
	}
	if err := s.store.CompleteRun(run); err != nil {
		zap.S().Warnf("api: complete timestamp run %d: %v", run.ID, err)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, ok := s.jobs.get(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", errNoJob, id))
		return
	}
	writeJSON(w, http.StatusOK, job.status())
}

// handleJobSocket streams a job's events, replaying those already sent, and
// closes the socket after the final one.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, ok := s.jobs.get(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %s", errNoJob, id))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Debugf("api: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	next := 0
	for {
		evs, done, changed := job.since(next)
		for _, ev := range evs {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		next += len(evs)
		if done {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
				time.Now().Add(writeWait))
			return
		}
		select {
		case <-changed:
		case <-gone:
			return
		}
	}
}

func knownFormat(code string) bool {
	for _, o := range timestamp.Options() {
		if o.Code == code {
			return true
		}
	}
	return false
}
