package ftpclient

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/openmined/ftpmirror/internal/registry"
)

// Session is one logged-in control connection plus the config it was opened with.
// Commands are issued strictly one at a time; a Session must not be shared between goroutines.
type Session struct {
	Name   string
	Config registry.ServerConfig

	conn   Conn
	logger *slog.Logger
	closed bool
}

// NewSession wraps an authenticated connection.
func NewSession(name string, cfg registry.ServerConfig, conn Conn, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		Name:   name,
		Config: cfg,
		conn:   conn,
		logger: logger,
	}
}

// RemotePath joins parts under the server root. The result is always absolute.
func (s *Session) RemotePath(parts ...string) string {
	return path.Join(append([]string{"/", s.Config.Root}, parts...)...)
}

// EnsureDir changes into dir, creating every missing component on the way.
// It returns the directories it had to create.
func (s *Session) EnsureDir(dir string) ([]string, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	var created []string
	cur := "/"
	for _, part := range strings.Split(dir, "/") {
		if part == "" || part == "." {
			continue
		}
		cur = path.Join(cur, part)

		err := s.conn.ChangeDir(cur)
		if err == nil {
			continue
		}
		if !IsPermanent(err) {
			return created, fmt.Errorf("cwd %s: %w", cur, err)
		}

		if err := s.conn.MakeDir(cur); err != nil {
			return created, fmt.Errorf("mkd %s: %w", cur, err)
		}
		if err := s.conn.ChangeDir(cur); err != nil {
			return created, fmt.Errorf("cwd %s: %w", cur, err)
		}
		created = append(created, cur)
		s.logger.Debug("mkd", "path", cur)
	}
	return created, nil
}

// List returns the machine-readable listing of dir, including "." and ".." when the server sends them.
func (s *Session) List(dir string) ([]*ftp.Entry, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.conn.List(dir)
}

// Store uploads r to the remote path in binary mode.
func (s *Session) Store(remotePath string, r io.Reader) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.Stor(remotePath, r)
}

// Retrieve downloads the remote path into w and returns the number of bytes copied.
func (s *Session) Retrieve(remotePath string, w io.Writer) (int64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}

	body, err := s.conn.Retr(remotePath)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(w, body)
	if cerr := body.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Delete removes a remote file.
func (s *Session) Delete(remotePath string) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.Delete(remotePath)
}

// RemoveDir removes an empty remote directory.
func (s *Session) RemoveDir(remotePath string) error {
	if s.closed {
		return ErrSessionClosed
	}
	return s.conn.RemoveDir(remotePath)
}

// ModTime queries the remote modification time (MDTM).
// Any failure wraps ErrTimestampUnavailable.
func (s *Session) ModTime(remotePath string) (time.Time, error) {
	if s.closed {
		return time.Time{}, ErrSessionClosed
	}
	t, err := s.conn.GetTime(remotePath)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: mdtm %s: %v", ErrTimestampUnavailable, remotePath, err)
	}
	return t.UTC(), nil
}

// SetModTime sets the remote modification time (MFMT), which the server acknowledges with 213.
// Any failure wraps ErrTimestampUnavailable.
func (s *Session) SetModTime(remotePath string, t time.Time) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.SetTime(remotePath, t.UTC().Truncate(time.Second)); err != nil {
		return fmt.Errorf("%w: mfmt %s: %v", ErrTimestampUnavailable, remotePath, err)
	}
	return nil
}

// Close sends QUIT. Calling it more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("disconnect")
	return s.conn.Quit()
}
