package feed

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// DefaultFTPDirectory is the remote directory holding feed exports.
const DefaultFTPDirectory = "/Gamma_Product_Files/Shopify_Files/"

// ftpConn is the subset of *ftp.ServerConn used here.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	Retr(path string) (*ftp.Response, error)
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, secure bool) (ftpConn, error)

// FTPSource reads feeds from an FTP server. Each operation tries explicit
// TLS first and repeats once over plain FTP if the secure attempt fails.
type FTPSource struct {
	addr     string
	user     string
	password string
	dir      string
	timeout  time.Duration
	dial     dialFunc
	logger   *slog.Logger
	// retr downloads a file over an established connection.
	retr func(c ftpConn, name string) ([]byte, error)
}

// NewFTPSource creates an FTPSource. host may omit the port.
func NewFTPSource(host, user, password, dir string, logger *slog.Logger) *FTPSource {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if dir == "" {
		dir = DefaultFTPDirectory
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FTPSource{
		addr:     host,
		user:     user,
		password: password,
		dir:      dir,
		timeout:  30 * time.Second,
		logger:   logger,
		retr:     readAll,
	}
	s.dial = s.dialServer
	return s
}

func (s *FTPSource) dialServer(ctx context.Context, addr string, secure bool) (ftpConn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.timeout),
	}
	if secure {
		serverName, _, _ := net.SplitHostPort(addr)
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func readAll(c ftpConn, name string) ([]byte, error) {
	r, err := c.Retr(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// session runs fn on a logged-in connection positioned in the feed directory.
func (s *FTPSource) session(ctx context.Context, secure bool, fn func(ftpConn) error) error {
	c, err := s.dial(ctx, s.addr, secure)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = c.Quit() }()

	if err := c.Login(s.user, s.password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := c.ChangeDir(s.dir); err != nil {
		return fmt.Errorf("cwd %s: %w", s.dir, err)
	}
	return fn(c)
}

func (s *FTPSource) withFallback(ctx context.Context, op string, fn func(ftpConn) error) error {
	err := s.session(ctx, true, fn)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("feed: ftp %s: %w", op, err)
	}
	s.logger.Warn("secure FTP failed, retrying without TLS", "op", op, "error", err)
	if err := s.session(ctx, false, fn); err != nil {
		return fmt.Errorf("feed: ftp %s: %w", op, err)
	}
	return nil
}

func (s *FTPSource) ListFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withFallback(ctx, "list", func(c ftpConn) error {
		entries, err := c.NameList(".")
		if err != nil {
			return err
		}
		names = make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, path.Base(e))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return csvOnly(names), nil
}

func (s *FTPSource) Fetch(ctx context.Context, name string) (Table, error) {
	var data []byte
	err := s.withFallback(ctx, "fetch "+name, func(c ftpConn) error {
		b, err := s.retr(c, name)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return Table{}, err
	}
	return Parse(name, data)
}
