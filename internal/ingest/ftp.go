package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/metrics"
)

// ErrBadName is returned for file names that are not a plain name inside the
// drop directory.
var ErrBadName = errors.New("invalid file name")

type FTPConfig struct {
	Host     string
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
	// MaxElapsed bounds the retries of a single list or fetch.
	MaxElapsed   time.Duration
	RetryInitial time.Duration
}

type RemoteFile struct {
	Name     string    `json:"name"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
}

// ftpConn is the subset of *ftp.ServerConn the source uses.
type ftpConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FTPSource picks up log files from a rig's FTP drop.
type FTPSource struct {
	cfg  FTPConfig
	dial func(ctx context.Context) (ftpConn, error)
}

func NewFTPSource(cfg FTPConfig) *FTPSource {
	if cfg.User == "" {
		cfg.User, cfg.Password = "anonymous", "anonymous"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	if cfg.RetryInitial == 0 {
		cfg.RetryInitial = time.Second
	}
	s := &FTPSource{cfg: cfg}
	s.dial = func(ctx context.Context) (ftpConn, error) {
		conn, err := ftp.Dial(cfg.Host, ftp.DialWithTimeout(cfg.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return nil, err
		}
		return serverConn{conn}, nil
	}
	return s
}

// List returns the supported log files in the drop directory, sorted by name.
func (s *FTPSource) List(ctx context.Context) ([]RemoteFile, error) {
	var files []RemoteFile
	err := s.withConn(ctx, func(conn ftpConn) error {
		entries, err := conn.List(s.dir())
		if err != nil {
			return fmt.Errorf("ftp list: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			if e.Type != ftp.EntryTypeFile || !Supported(e.Name) {
				continue
			}
			files = append(files, RemoteFile{Name: e.Name, Size: e.Size, Modified: e.Time})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Fetch downloads one file, retrying transient failures with exponential
// backoff.
func (s *FTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || path.Base(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if !Supported(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}

	start := time.Now()
	var body []byte
	err := s.withConn(ctx, func(conn ftpConn) error {
		resp, err := conn.Retr(path.Join(s.dir(), name))
		if err != nil {
			return fmt.Errorf("ftp retr: %w", err)
		}
		defer resp.Close()

		body, err = io.ReadAll(resp)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FTPFetchesTotal.WithLabelValues(s.cfg.Host, status).Inc()
	metrics.FTPFetchLatency.WithLabelValues(s.cfg.Host).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *FTPSource) withConn(ctx context.Context, fn func(ftpConn) error) error {
	operation := func() error {
		conn, err := s.dial(ctx)
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
			return classify(fmt.Errorf("ftp login: %w", err))
		}
		return classify(fn(conn))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitial
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = s.cfg.MaxElapsed

	notify := func(err error, wait time.Duration) {
		zap.S().Warnf("ftp: %s: %v, retrying in %s", s.cfg.Host, err, wait)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return err
	}
	return nil
}

// classify marks FTP replies that will not change on retry as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var te *textproto.Error
	if errors.As(err, &te) && te.Code >= 500 {
		return backoff.Permanent(err)
	}
	return err
}

func (s *FTPSource) dir() string {
	if s.cfg.Dir == "" {
		return "/"
	}
	return s.cfg.Dir
}
