package api

import (
	"encoding/json"
	"time"

	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
)

type UploadView struct {
	ID           int64                `json:"id"`
	ReceivedAt   time.Time            `json:"receivedAt"`
	Source       string               `json:"source"`
	Filename     string               `json:"filename"`
	SizeBytes    int64                `json:"sizeBytes"`
	Hash         string               `json:"hash"`
	Rows         *int64               `json:"rows,omitempty"`
	QualityScore *int64               `json:"qualityScore,omitempty"`
	QualityFlags []ingest.ColumnIssue `json:"qualityFlags,omitempty"`
}

func uploadView(u *store.Upload) UploadView {
	v := UploadView{
		ID:         u.ID,
		ReceivedAt: u.ReceivedAt,
		Source:     u.Source,
		Filename:   u.Filename,
		SizeBytes:  u.SizeBytes,
		Hash:       u.PayloadHash,
	}
	if u.Rows.Valid {
		v.Rows = &u.Rows.Int64
	}
	if u.QualityScore.Valid {
		v.QualityScore = &u.QualityScore.Int64
	}
	if u.QualityFlags.Valid && u.QualityFlags.String != "" {
		json.Unmarshal([]byte(u.QualityFlags.String), &v.QualityFlags)
	}
	return v
}

type RunView struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	Outcome    string          `json:"outcome"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	InputRows  *int64          `json:"inputRows,omitempty"`
	OutputRows *int64          `json:"outputRows,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func runView(run store.ProcessingRun) RunView {
	v := RunView{
		ID:        run.ID,
		Kind:      run.Kind,
		Outcome:   run.Outcome,
		StartedAt: run.StartedAt,
		Error:     run.ErrorMessage.String,
	}
	if run.FinishedAt.Valid {
		v.FinishedAt = &run.FinishedAt.Time
	}
	if run.InputRows.Valid {
		v.InputRows = &run.InputRows.Int64
	}
	if run.OutputRows.Valid {
		v.OutputRows = &run.OutputRows.Int64
	}
	if run.Detail.Valid && json.Valid([]byte(run.Detail.String)) {
		v.Detail = json.RawMessage(run.Detail.String)
	}
	return v
}

// MappingView is the mapping step as the wizard shows it.
type MappingView struct {
	Columns    []models.ColumnMapping `json:"columns"`
	Incomplete []int                  `json:"incomplete"`
	Complete   bool                   `json:"complete"`
}

func mappingView(sess *session.Session) MappingView {
	incomplete := sess.Incomplete()
	if incomplete == nil {
		incomplete = []int{}
	}
	return MappingView{
		Columns:    sess.Mapping(),
		Incomplete: incomplete,
		Complete:   len(incomplete) == 0,
	}
}

type SessionView struct {
	ID        string                 `json:"id"`
	UploadID  int64                  `json:"uploadId,omitempty"`
	Duplicate bool                   `json:"duplicate,omitempty"`
	Filename  string                 `json:"filename"`
	Kind      models.DataKind        `json:"kind"`
	Headers   []string               `json:"headers"`
	Units     []string               `json:"units"`
	Rows      int                    `json:"rows"`
	WellInfo  []models.WellInfoEntry `json:"wellInfo,omitempty"`
	Created   time.Time              `json:"created"`
	Audit     ingest.Audit           `json:"audit"`
	Mapping   MappingView            `json:"mapping"`
	Version   uint64                 `json:"version"`
}

func sessionView(sess *session.Session) SessionView {
	ds := sess.Dataset()
	return SessionView{
		ID:       sess.ID,
		UploadID: sess.UploadID,
		Filename: ds.Filename,
		Kind:     ds.Kind,
		Headers:  ds.Headers,
		Units:    ds.Units,
		Rows:     len(ds.Rows),
		WellInfo: ds.WellInfo,
		Created:  sess.Created,
		Audit:    sess.Audit(),
		Mapping:  mappingView(sess),
		Version:  sess.Result().Version,
	}
}
