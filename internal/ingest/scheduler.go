package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/store"
)

// Expirer drops idle work sessions. *session.Manager satisfies it.
type Expirer interface {
	Expire(maxAge time.Duration) int
}

type SchedulerConfig struct {
	PollInterval    time.Duration
	SessionTTL      time.Duration
	RetentionDays   int
	HousekeepPeriod time.Duration
}

// Scheduler polls the rig FTP drop for new logs and keeps storage and
// sessions trimmed.
type Scheduler struct {
	store    *store.Store
	ftp      *FTPSource
	sessions Expirer
	cfg      SchedulerConfig

	mu   sync.Mutex
	seen map[string]bool
}

func NewScheduler(st *store.Store, ftp *FTPSource, sessions Expirer, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.HousekeepPeriod == 0 {
		cfg.HousekeepPeriod = time.Hour
	}
	return &Scheduler{
		store:    st,
		ftp:      ftp,
		sessions: sessions,
		cfg:      cfg,
		seen:     make(map[string]bool),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.pollDrop(ctx)
	s.housekeep()

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	houseTicker := time.NewTicker(s.cfg.HousekeepPeriod)
	defer pollTicker.Stop()
	defer houseTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Info("scheduler: shutting down")
			return
		case <-pollTicker.C:
			s.pollDrop(ctx)
		case <-houseTicker.C:
			s.housekeep()
		}
	}
}

func (s *Scheduler) pollDrop(ctx context.Context) {
	if s.ftp == nil {
		return
	}
	n, err := s.PollOnce(ctx)
	if err != nil {
		zap.S().Errorf("scheduler: poll drop: %v", err)
		return
	}
	if n > 0 {
		zap.S().Infof("scheduler: stored %d new logs from %s", n, s.ftp.cfg.Host)
	}
}

// PollOnce fetches every file in the drop not seen before, audits it and
// stores it. Files that fail to parse are logged and skipped. It returns
// how many new payloads were stored.
func (s *Scheduler) PollOnce(ctx context.Context) (int, error) {
	files, err := s.ftp.List(ctx)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, f := range files {
		key := fmt.Sprintf("%s|%d|%d", f.Name, f.Size, f.Modified.Unix())
		s.mu.Lock()
		done := s.seen[key]
		s.mu.Unlock()
		if done {
			continue
		}

		ok, err := s.ingestFile(ctx, f.Name)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			zap.S().Warnf("scheduler: %s: %v", f.Name, err)
			continue
		}
		s.mu.Lock()
		s.seen[key] = true
		s.mu.Unlock()
		if ok {
			stored++
		}
	}
	return stored, nil
}

func (s *Scheduler) ingestFile(ctx context.Context, name string) (bool, error) {
	payload, err := s.ftp.Fetch(ctx, name)
	if err != nil {
		return false, err
	}
	ds, err := ReadBytes(name, payload)
	if err != nil {
		return false, err
	}
	up, dup, err := s.store.StoreUpload("ftp", name, payload)
	if err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	if dup {
		return false, nil
	}

	audit := AuditDataset(ds)
	if err := s.store.SetUploadQuality(up.ID, audit.Rows, audit.Overall, QualityFlagsToJSON(audit.Issues)); err != nil {
		return true, fmt.Errorf("set quality: %w", err)
	}
	zap.S().Infof("scheduler: stored %s (%d rows, quality %d %s)", name, audit.Rows, audit.Overall, audit.Grade)
	return true, nil
}

func (s *Scheduler) housekeep() {
	if s.sessions != nil {
		if n := s.sessions.Expire(s.cfg.SessionTTL); n > 0 {
			zap.S().Infof("scheduler: expired %d sessions", n)
		}
	}
	if s.cfg.RetentionDays > 0 {
		n, err := s.store.CleanupOldUploads(s.cfg.RetentionDays)
		if err != nil {
			zap.S().Errorf("scheduler: cleanup uploads: %v", err)
		} else if n > 0 {
			zap.S().Infof("scheduler: removed %d uploads older than %d days", n, s.cfg.RetentionDays)
		}
	}
}
