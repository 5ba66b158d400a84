package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/export"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/mapping"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/session"
)

// ingestPayload parses a log file, stores it and opens a session over it.
func (s *Server) ingestPayload(source, filename string, payload []byte) (SessionView, error) {
	ds, err := ingest.ReadBytes(filename, payload)
	if err != nil {
		return SessionView{}, err
	}
	return s.openSession(source, filename, ds, payload)
}

func (s *Server) openSession(source, filename string, ds *models.Dataset, payload []byte) (SessionView, error) {
	up, dup, err := s.store.StoreUpload(source, filepath.Base(filename), payload)
	if err != nil {
		return SessionView{}, fmt.Errorf("store upload: %w", err)
	}
	cat, err := s.store.Catalog()
	if err != nil {
		return SessionView{}, fmt.Errorf("load catalog: %w", err)
	}

	sess := s.sessions.Create(ds, cat)
	sess.UploadID = up.ID

	audit := sess.Audit()
	if err := s.store.SetUploadQuality(up.ID, audit.Rows, audit.Overall, ingest.QualityFlagsToJSON(audit.Issues)); err != nil {
		zap.S().Warnf("api: set upload quality %d: %v", up.ID, err)
	}
	zap.S().Infof("api: session %s opened for %s (%d rows, quality %d)", sess.ID, ds.Filename, audit.Rows, audit.Overall)

	v := sessionView(sess)
	v.Duplicate = dup
	return v, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file field: %v", errBadRequest, err))
		return
	}
	defer file.Close()

	if !ingest.Supported(hdr.Filename) {
		writeError(w, r, fmt.Errorf("%w: %s", ingest.ErrUnsupportedFile, hdr.Filename))
		return
	}
	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read upload: %v", errBadRequest, err))
		return
	}

	v, err := s.ingestPayload("upload", hdr.Filename, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleUploadRecords accepts a log as JSON keyed rows. It is stored as the
// equivalent CSV so FTP and file uploads of the same data deduplicate.
func (s *Server) handleUploadRecords(w http.ResponseWriter, r *http.Request) {
	var rec ingest.Records
	if err := s.decodeLimit(r, &rec, s.maxUpload); err != nil {
		writeError(w, r, err)
		return
	}
	ds := ingest.ReadRecords(rec)

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, ds); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSuffix(ds.Filename, filepath.Ext(ds.Filename)) + ".csv"

	v, err := s.openSession("upload", name, ds, buf.Bytes())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.store.ListUploads(100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]UploadView, 0, len(uploads))
	for i := range uploads {
		out = append(out, uploadView(&uploads[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFTPList(w http.ResponseWriter, r *http.Request) {
	if s.ftp == nil {
		writeError(w, r, errNoFTP)
		return
	}
	files, err := s.ftp.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []ingest.RemoteFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

type ftpFetchRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleFTPFetch(w http.ResponseWriter, r *http.Request) {
	if s.ftp == nil {
		writeError(w, r, errNoFTP)
		return
	}
	var req ftpFetchRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := s.ftp.Fetch(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.ingestPayload("ftp", req.Name, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Delete(id) {
		writeError(w, r, fmt.Errorf("%w: %s", errNoSession, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionRuns(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := s.store.GetSessionRuns(sess.ID, 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]RunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingView(sess))
}

type mappingUpdate struct {
	Mapped string `json:"mapped" validate:"max=64"`
	Unit   string `json:"unit" validate:"max=32"`
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	col, err := intParam(r, "column")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req mappingUpdate
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.UpdateMapping(col, strings.TrimSpace(req.Mapped), strings.TrimSpace(req.Unit)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappingView(sess))
}

func (s *Server) handleCompleteMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := sess.CompleteMapping(); err != nil {
		if errors.Is(err, mapping.ErrIncompleteMapping) {
			writeJSON(w, http.StatusUnprocessableEntity, struct {
				errorBody
				MappingView
			}{errorBody{Error: err.Error()}, mappingView(sess)})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

type sectionsBody struct {
	Sections []models.SectionData `json:"sections" validate:"dive"`
}

type formationsBody struct {
	Formations []models.FormationData `json:"formations" validate:"dive"`
}

type surveyBody struct {
	Stations []models.SurveyStation `json:"stations" validate:"dive"`
}

func (s *Server) handleGetSections(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionsBody{Sections: nonNil(sess.Sections())})
}

func (s *Server) handlePutSections(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body sectionsBody
	if err := s.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	sess.SetSections(body.Sections)
	writeJSON(w, http.StatusAccepted, sectionsBody{Sections: nonNil(sess.Sections())})
}

func (s *Server) handleGetFormations(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formationsBody{Formations: nonNil(sess.Formations())})
}

func (s *Server) handlePutFormations(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body formationsBody
	if err := s.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	sess.SetFormations(body.Formations)
	writeJSON(w, http.StatusAccepted, formationsBody{Formations: nonNil(sess.Formations())})
}

func (s *Server) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, surveyBody{Stations: nonNil(sess.Survey())})
}

func (s *Server) handlePutSurvey(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body surveyBody
	if err := s.decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	sess.SetSurvey(body.Stations)
	writeJSON(w, http.StatusAccepted, surveyBody{Stations: nonNil(sess.Survey())})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg := sess.Config()
	if err := s.decode(r, &cfg); err != nil {
		writeError(w, r, err)
		return
	}
	sess.SetConfig(cfg)
	writeJSON(w, http.StatusAccepted, cfg)
}

func (s *Server) handleDecimate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.Decimate(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDecimated(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res := sess.Result()
	if res.Points == nil {
		res.Points = []models.DecimatedPoint{}
	}
	writeJSON(w, http.StatusOK, res)
}

type selectionView struct {
	Rows    []int `json:"rows"`
	Deleted int   `json:"deleted,omitempty"`
}

func (s *Server) writeSelection(w http.ResponseWriter, sess *session.Session, deleted int) {
	writeJSON(w, http.StatusOK, selectionView{Rows: nonNil(sess.Selection()), Deleted: deleted})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSelection(w, sess, 0)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess.ClearSelection()
	s.writeSelection(w, sess, 0)
}

func (s *Server) handleToggleRow(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := intParam(r, "row")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess.ToggleRow(row)
	s.writeSelection(w, sess, 0)
}

func (s *Server) handleTogglePoint(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	point, err := intParam(r, "point")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.TogglePoint(point); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSelection(w, sess, 0)
}

func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := sess.DeleteSelected()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSelection(w, sess, n)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
