package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFTP struct {
	loginErr error
	cwd      string
	names    []string
	files    map[string]string
	quit     bool
}

func (f *fakeFTP) Login(_, _ string) error { return f.loginErr }
func (f *fakeFTP) ChangeDir(p string) error {
	f.cwd = p
	return nil
}
func (f *fakeFTP) NameList(_ string) ([]string, error) { return f.names, nil }
func (f *fakeFTP) Retr(_ string) (*ftp.Response, error) {
	return nil, errors.New("use retr hook")
}
func (f *fakeFTP) Quit() error {
	f.quit = true
	return nil
}

func newTestFTP(secure, plain *fakeFTP) (*FTPSource, *[]bool) {
	s := NewFTPSource("ftp.example.com", "u", "p", "", nil)
	var dials []bool
	s.dial = func(_ context.Context, addr string, tls bool) (ftpConn, error) {
		dials = append(dials, tls)
		if tls {
			if secure == nil {
				return nil, errors.New("tls handshake failed")
			}
			return secure, nil
		}
		return plain, nil
	}
	s.retr = func(c ftpConn, name string) ([]byte, error) {
		body, ok := c.(*fakeFTP).files[name]
		if !ok {
			return nil, errors.New("550 not found")
		}
		return []byte(body), nil
	}
	return s, &dials
}

func TestFTPSource_SecureFirst(t *testing.T) {
	secure := &fakeFTP{names: []string{"/Gamma_Product_Files/Shopify_Files/z.csv", "a.CSV", "readme.md"}}
	s, dials := newTestFTP(secure, nil)

	files, err := s.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.CSV", "z.csv"}, files)
	assert.Equal(t, []bool{true}, *dials)
	assert.Equal(t, DefaultFTPDirectory, secure.cwd)
	assert.True(t, secure.quit)
	assert.Equal(t, "ftp.example.com:21", s.addr)
}

func TestFTPSource_FallsBackToPlain(t *testing.T) {
	plain := &fakeFTP{files: map[string]string{"feed.csv": "SKU,Price\nA,1\n"}}
	s, dials := newTestFTP(nil, plain)

	tbl, err := s.Fetch(context.Background(), "feed.csv")
	require.NoError(t, err)
	assert.Equal(t, "A", tbl.Records[0].Get("sku"))
	assert.Equal(t, []bool{true, false}, *dials)
}

func TestFTPSource_BothFail(t *testing.T) {
	plain := &fakeFTP{loginErr: errors.New("530 login incorrect")}
	s, _ := newTestFTP(nil, plain)

	_, err := s.ListFiles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: ftp list")
	assert.Contains(t, err.Error(), "530")
}
