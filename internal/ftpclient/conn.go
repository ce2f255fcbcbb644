package ftpclient

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/jlaffaye/ftp"
)

// Conn is the subset of FTP commands used for mirroring.
type Conn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	MakeDir(path string) error
	RemoveDir(path string) error
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
	Delete(path string) error
	GetTime(path string) (time.Time, error)
	SetTime(path string, t time.Time) error
	Quit() error
}

// Dialer opens an unauthenticated control connection. A nil tlsConfig means plain FTP.
type Dialer func(ctx context.Context, addr string, tlsConfig *tls.Config) (Conn, error)

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

// NewDialer returns a Dialer backed by github.com/jlaffaye/ftp.
func NewDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, addr string, tlsConfig *tls.Config) (Conn, error) {
		opts := []ftp.DialOption{
			ftp.DialWithContext(ctx),
			ftp.DialWithTimeout(timeout),
		}
		if tlsConfig != nil {
			opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
		}

		c, err := ftp.Dial(addr, opts...)
		if err != nil {
			return nil, err
		}
		return serverConn{c}, nil
	}
}
