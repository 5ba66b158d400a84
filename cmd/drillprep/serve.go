package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/api"
	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/session"
	"github.com/lox/drillprep/internal/store"
)

type FTPFlags struct {
	Host     string        `help:"Rig FTP drop address (host:port)." env:"DRILLPREP_FTP_HOST"`
	User     string        `help:"FTP user." env:"DRILLPREP_FTP_USER"`
	Password string        `help:"FTP password." env:"DRILLPREP_FTP_PASSWORD"`
	Dir      string        `help:"Drop directory." default:"/" env:"DRILLPREP_FTP_DIR"`
	Timeout  time.Duration `help:"Dial timeout." default:"30s" env:"DRILLPREP_FTP_TIMEOUT"`
}

func (f FTPFlags) source() *ingest.FTPSource {
	if f.Host == "" {
		return nil
	}
	return ingest.NewFTPSource(ingest.FTPConfig{
		Host:     f.Host,
		User:     f.User,
		Password: f.Password,
		Dir:      f.Dir,
		Timeout:  f.Timeout,
	})
}

type ServeCmd struct {
	DB            string        `help:"SQLite database path." default:"data/drillprep.db" env:"DRILLPREP_DB"`
	Addr          string        `help:"Listen address." default:":8080" env:"DRILLPREP_ADDR"`
	Catalog       string        `help:"Seed an empty channel table from this YAML catalog instead of the built-in one." type:"existingfile" env:"DRILLPREP_CATALOG"`
	MaxUploadMB   int64         `help:"Largest accepted upload in MiB." default:"64" env:"DRILLPREP_MAX_UPLOAD_MB"`
	SessionTTL    time.Duration `help:"Close wizard sessions older than this." default:"12h" env:"DRILLPREP_SESSION_TTL"`
	RetentionDays int           `help:"Delete stored uploads older than this many days (0 keeps them)." default:"90" env:"DRILLPREP_RETENTION_DAYS"`
	PollInterval  time.Duration `help:"FTP drop poll interval." default:"5m" env:"DRILLPREP_FTP_POLL"`
	NoPoll        bool          `help:"Disable background polling and housekeeping (for local dev)."`

	FTP FTPFlags `embed:"" prefix:"ftp-"`
}

func (c *ServeCmd) Run() error {
	if dir := filepath.Dir(c.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()
	zap.S().Infof("serve: database %s migrated", c.DB)

	seed := channels.Default()
	if c.Catalog != "" {
		if seed, err = channels.Load(c.Catalog); err != nil {
			return err
		}
	}
	if err := st.SeedChannels(seed.Channels()); err != nil {
		return fmt.Errorf("seed channels: %w", err)
	}

	sessions := session.NewManager(st)
	defer sessions.Close()

	src := c.FTP.source()
	opts := []api.Option{api.WithMaxUpload(c.MaxUploadMB << 20)}
	if src != nil {
		opts = append(opts, api.WithFTP(src))
	}
	server := api.NewServer(st, sessions, c.Addr, opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoPoll {
		sched := ingest.NewScheduler(st, src, sessions, ingest.SchedulerConfig{
			PollInterval:  c.PollInterval,
			SessionTTL:    c.SessionTTL,
			RetentionDays: c.RetentionDays,
		})
		go sched.Run(ctx)
	} else {
		zap.S().Info("serve: polling disabled (--no-poll)")
	}

	return server.Run(ctx)
}
