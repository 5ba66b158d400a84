package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/chart"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/timestamp"
)

const (
	defaultMaxUpload = 64 << 20
	chartCacheTTL    = 10 * time.Minute
)

type Server struct {
	store     *store.Store
	sessions  *session.Manager
	ftp       *ingest.FTPSource
	converter *timestamp.Converter
	jobs      *jobRegistry
	charts    *chart.Cache
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	addr      string
	maxUpload int64
}

type Option func(*Server)

// WithFTP enables the rig FTP drop endpoints.
func WithFTP(src *ingest.FTPSource) Option {
	return func(s *Server) { s.ftp = src }
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func NewServer(st *store.Store, sessions *session.Manager, addr string, opts ...Option) *Server {
	s := &Server{
		store:     st,
		sessions:  sessions,
		converter: timestamp.NewConverter(),
		jobs:      newJobRegistry(),
		charts:    chart.NewCache(chartCacheTTL),
		validate:  newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		addr:      addr,
		maxUpload: defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Get("/shared-aliases", s.handleSharedAliases)
			r.Get("/{channelID}", s.handleGetChannel)
			r.Put("/{channelID}", s.handleUpdateChannel)
			r.Delete("/{channelID}", s.handleDeleteChannel)
		})

		r.Post("/uploads", s.handleUpload)
		r.Post("/uploads/records", s.handleUploadRecords)
		r.Get("/uploads", s.handleListUploads)

		r.Route("/ftp", func(r chi.Router) {
			r.Get("/files", s.handleFTPList)
			r.Post("/fetch", s.handleFTPFetch)
		})

		r.Get("/timestamps/formats", s.handleTimestampFormats)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/runs", s.handleSessionRuns)

				r.Get("/mapping", s.handleGetMapping)
				r.Put("/mapping/{column}", s.handleUpdateMapping)
				r.Post("/mapping/complete", s.handleCompleteMapping)

				r.Get("/timestamps/detect", s.handleDetectTimestamps)
				r.Post("/timestamps/preview", s.handlePreviewTimestamps)
				r.Post("/timestamps/convert", s.handleConvertTimestamps)

				r.Get("/sections", s.handleGetSections)
				r.Put("/sections", s.handlePutSections)
				r.Get("/formations", s.handleGetFormations)
				r.Put("/formations", s.handlePutFormations)
				r.Get("/survey", s.handleGetSurvey)
				r.Put("/survey", s.handlePutSurvey)
				r.Get("/config", s.handleGetConfig)
				r.Put("/config", s.handlePutConfig)

				r.Post("/decimate", s.handleDecimate)
				r.Get("/decimated", s.handleDecimated)

				r.Get("/selection", s.handleGetSelection)
				r.Delete("/selection", s.handleClearSelection)
				r.Post("/selection/rows/{row}", s.handleToggleRow)
				r.Post("/selection/points/{point}", s.handleTogglePoint)
				r.Post("/selection/delete", s.handleDeleteSelection)

				r.Get("/chart/{metric}.png", s.handleChart)
				r.Get("/export", s.handleExport)
			})
		})

		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Get("/ws", s.handleJobSocket)
		})
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.jobs.cancelAll()
		server.Shutdown(shutdownCtx)
	}()

	zap.S().Infof("api: listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status  string                   `json:"status"`
	Uptime  string                   `json:"uptime,omitempty"`
	Version int                      `json:"schemaVersion"`
	Uploads *store.UploadStats       `json:"uploads,omitempty"`
	Runs    []store.RunHealthSummary `json:"runs,omitempty"`
	Live    int                      `json:"sessions"`
	Errors  []string                 `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", Live: len(s.sessions.List())}

	v, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	health.Version = v

	if stats, err := s.store.GetUploadStats(); err != nil {
		health.Errors = append(health.Errors, "uploads: "+err.Error())
	} else {
		health.Uploads = stats
	}
	if runs, err := s.store.GetRunHealth(time.Now().Add(-24 * time.Hour)); err != nil {
		health.Errors = append(health.Errors, "runs: "+err.Error())
	} else {
		health.Runs = runs
	}
	if len(health.Errors) > 0 {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}
