package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/chart"
	"github.com/lox/drillprep/internal/export"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/mapping"
	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/timestamp"
)

const maxBodySize = 10 << 20

var (
	errBadRequest = errors.New("bad request")
	errConflict   = errors.New("conflict")
	errNoSession  = errors.New("session not found")
	errNoJob      = errors.New("job not found")
	errNoFTP      = errors.New("ftp source not configured")
)

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnf("api: encode response: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, timestamp.ErrUnknownFormat),
		errors.Is(err, timestamp.ErrNoColumns),
		errors.Is(err, ingest.ErrBadName),
		errors.Is(err, timestamp.ErrNoReference):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, errNoSession),
		errors.Is(err, errNoJob),
		errors.Is(err, mapping.ErrNoColumn),
		errors.Is(err, session.ErrNoSuchPoint),
		errors.Is(err, chart.ErrUnknownMetric),
		errors.Is(err, errNoFTP):
		return http.StatusNotFound
	case errors.Is(err, errConflict),
		errors.Is(err, session.ErrNotMapped):
		return http.StatusConflict
	case errors.Is(err, mapping.ErrIncompleteMapping):
		return http.StatusUnprocessableEntity
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Error = "validation failed"
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	if status == http.StatusInternalServerError {
		zap.S().Errorf("api: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	return s.decodeLimit(r, v, maxBodySize)
}

func (s *Server) decodeLimit(r *http.Request, v any, limit int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.validate.Struct(v)
}

func intParam(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func (s *Server) session(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSession, id)
	}
	return sess, nil
}
