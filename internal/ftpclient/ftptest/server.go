// Package ftptest provides an in-memory FTP server double implementing ftpclient.Conn.
package ftptest

import (
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

const (
	codeNotAvailable  = 550
	codeNameNotAllow  = 553
	codeNotLoggedIn   = 530
	codeNotSupported  = 502
	codeNotEmpty      = 550
	defaultServerTime = "20000101000000"
)

type file struct {
	data    []byte
	modTime time.Time
}

// Server is an in-memory FTP tree. The zero value is not usable; call NewServer.
type Server struct {
	mu sync.Mutex

	User     string
	Password string

	// NoMFMT makes SetTime fail like a server without the MFMT extension.
	NoMFMT bool
	// NoMDTM makes GetTime fail like a server without the MDTM extension.
	NoMDTM bool
	// ListErrors, StorErrors and DeleteErrors inject failures for specific absolute paths.
	ListErrors   map[string]error
	StorErrors   map[string]error
	DeleteErrors map[string]error

	dirs     map[string]bool
	files    map[string]*file
	cwd      string
	loggedIn bool
	calls    []string
	now      func() time.Time
}

// NewServer returns a server with an empty root directory and credentials guest/guest.
func NewServer() *Server {
	now, _ := time.ParseInLocation("20060102150405", defaultServerTime, time.UTC)
	return &Server{
		User:         "guest",
		Password:     "guest",
		ListErrors:   make(map[string]error),
		StorErrors:   make(map[string]error),
		DeleteErrors: make(map[string]error),
		dirs:         map[string]bool{"/": true},
		files:        make(map[string]*file),
		cwd:          "/",
		now:          func() time.Time { return now },
	}
}

// Reply builds a negative FTP reply error.
func Reply(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

// PermissionDenied is the reply servers send for unreadable directories.
func PermissionDenied(p string) error {
	return Reply(codeNotAvailable, p+": Permission denied")
}

// AddFile creates a file and all of its parent directories.
func (s *Server) AddFile(p string, data []byte, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean("/" + p)
	s.mkdirAll(path.Dir(p))
	s.files[p] = &file{data: slices.Clone(data), modTime: modTime.UTC()}
}

// AddDir creates a directory and all of its parents.
func (s *Server) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(path.Clean("/" + p))
}

// File returns the content and modification time of a file.
func (s *Server) File(p string) ([]byte, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path.Clean("/"+p)]
	if !ok {
		return nil, time.Time{}, false
	}
	return slices.Clone(f.data), f.modTime, true
}

// HasDir reports whether a directory exists.
func (s *Server) HasDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[path.Clean("/"+p)]
}

// Files returns all file paths, sorted.
func (s *Server) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Calls returns the commands received so far, e.g. "CWD /a" or "STOR /a/b.txt".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsWithPrefix filters Calls by command prefix.
func (s *Server) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) mkdirAll(p string) {
	for p != "/" && !s.dirs[p] {
		s.dirs[p] = true
		p = path.Dir(p)
	}
}

func (s *Server) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p)
}

func (s *Server) record(cmd, p string) {
	s.calls = append(s.calls, strings.TrimSpace(cmd+" "+p))
}

func (s *Server) checkLogin() error {
	if !s.loggedIn {
		return Reply(codeNotLoggedIn, "Not logged in.")
	}
	return nil
}

func (s *Server) Login(user, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("USER", user)
	if user != s.User || password != s.Password {
		return Reply(codeNotLoggedIn, "Login incorrect.")
	}
	s.loggedIn = true
	return nil
}

func (s *Server) ChangeDir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("CWD", p)
	if !s.dirs[p] {
		return Reply(codeNotAvailable, p+": No such file or directory.")
	}
	s.cwd = p
	return nil
}

func (s *Server) MakeDir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("MKD", p)
	if s.dirs[p] || s.files[p] != nil {
		return Reply(codeNotAvailable, p+": File exists.")
	}
	if !s.dirs[path.Dir(p)] {
		return Reply(codeNotAvailable, p+": No such file or directory.")
	}
	s.dirs[p] = true
	return nil
}

func (s *Server) RemoveDir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("RMD", p)
	if !s.dirs[p] || p == "/" {
		return Reply(codeNotAvailable, p+": No such file or directory.")
	}
	for other := range s.dirs {
		if path.Dir(other) == p && other != p {
			return Reply(codeNotEmpty, p+": Directory not empty.")
		}
	}
	for other := range s.files {
		if path.Dir(other) == p {
			return Reply(codeNotEmpty, p+": Directory not empty.")
		}
	}
	delete(s.dirs, p)
	return nil
}

func (s *Server) List(p string) ([]*ftp.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return nil, err
	}
	p = s.abs(p)
	s.record("MLSD", p)
	if err, ok := s.ListErrors[p]; ok {
		return nil, err
	}
	if !s.dirs[p] {
		return nil, Reply(codeNotAvailable, p+": No such file or directory.")
	}

	entries := []*ftp.Entry{
		{Name: ".", Type: ftp.EntryTypeFolder, Time: s.now()},
		{Name: "..", Type: ftp.EntryTypeFolder, Time: s.now()},
	}
	for d := range s.dirs {
		if d != p && path.Dir(d) == p {
			entries = append(entries, &ftp.Entry{Name: path.Base(d), Type: ftp.EntryTypeFolder, Time: s.now()})
		}
	}
	for fp, f := range s.files {
		if path.Dir(fp) == p {
			entries = append(entries, &ftp.Entry{
				Name: path.Base(fp),
				Type: ftp.EntryTypeFile,
				Size: uint64(len(f.data)),
				Time: f.modTime,
			})
		}
	}
	slices.SortFunc(entries, func(a, b *ftp.Entry) int { return strings.Compare(a.Name, b.Name) })
	return entries, nil
}

func (s *Server) Stor(p string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("STOR", p)
	if err, ok := s.StorErrors[p]; ok {
		return err
	}
	if !s.dirs[path.Dir(p)] {
		return Reply(codeNameNotAllow, p+": No such file or directory.")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[p] = &file{data: data, modTime: s.now()}
	return nil
}

func (s *Server) Retr(p string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return nil, err
	}
	p = s.abs(p)
	s.record("RETR", p)
	f, ok := s.files[p]
	if !ok {
		return nil, Reply(codeNotAvailable, p+": No such file or directory.")
	}
	return io.NopCloser(bytes.NewReader(slices.Clone(f.data))), nil
}

func (s *Server) Delete(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("DELE", p)
	if err, ok := s.DeleteErrors[p]; ok {
		return err
	}
	if _, ok := s.files[p]; !ok {
		return Reply(codeNotAvailable, p+": No such file or directory.")
	}
	delete(s.files, p)
	return nil
}

func (s *Server) GetTime(p string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return time.Time{}, err
	}
	p = s.abs(p)
	s.record("MDTM", p)
	if s.NoMDTM {
		return time.Time{}, fmt.Errorf("GetTime is not supported")
	}
	f, ok := s.files[p]
	if !ok {
		return time.Time{}, Reply(codeNotAvailable, p+": No such file or directory.")
	}
	return f.modTime, nil
}

func (s *Server) SetTime(p string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLogin(); err != nil {
		return err
	}
	p = s.abs(p)
	s.record("MFMT", p)
	if s.NoMFMT {
		return Reply(codeNotSupported, "MFMT not implemented.")
	}
	f, ok := s.files[p]
	if !ok {
		return Reply(codeNotAvailable, p+": No such file or directory.")
	}
	f.modTime = t.UTC()
	return nil
}

func (s *Server) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("QUIT", "")
	s.loggedIn = false
	return nil
}
