package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/openmined/ftpmirror/internal/ftpclient"
	"github.com/openmined/ftpmirror/internal/ftpclient/ftptest"
	"github.com/openmined/ftpmirror/internal/registry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testServer   = "site"
	testLocalDir = "/local/site"
	testRemote   = "/www/site"
)

var (
	t1 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
)

type fakeConnector struct {
	servers  map[string]*ftptest.Server
	err      error
	connects int
}

func (c *fakeConnector) Connect(ctx context.Context, name string) (*ftpclient.Session, error) {
	c.connects++
	if c.err != nil {
		return nil, &ftpclient.ConnectError{Server: name, Err: c.err}
	}
	srv, ok := c.servers[name]
	if !ok {
		return nil, &ftpclient.ConnectError{Server: name, Err: registry.ErrUnknownServer}
	}
	if err := srv.Login(srv.User, srv.Password); err != nil {
		return nil, &ftpclient.ConnectError{Server: name, Err: err}
	}
	cfg := registry.ServerConfig{Host: "ftp.example.com", Port: 21, User: srv.User, Password: srv.Password, Root: "/www"}
	return ftpclient.NewSession(name, cfg, srv, discardLogger()), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type engineFixture struct {
	fs     afero.Fs
	srv    *ftptest.Server
	conn   *fakeConnector
	engine *Engine
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(testLocalDir, 0o755))

	srv := ftptest.NewServer()
	conn := &fakeConnector{servers: map[string]*ftptest.Server{testServer: srv}}
	opts = append([]Option{WithFs(fsys), WithLogger(discardLogger())}, opts...)

	return &engineFixture{
		fs:     fsys,
		srv:    srv,
		conn:   conn,
		engine: NewEngine(conn, opts...),
	}
}

func (f *engineFixture) writeLocal(t *testing.T, rel, data string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(testLocalDir, filepath.FromSlash(rel))
	require.NoError(t, f.fs.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(f.fs, p, []byte(data), 0o644))
	require.NoError(t, f.fs.Chtimes(p, mtime, mtime))
}

func (f *engineFixture) readLocal(t *testing.T, rel string) (string, time.Time) {
	t.Helper()
	p := filepath.Join(testLocalDir, filepath.FromSlash(rel))
	data, err := afero.ReadFile(f.fs, p)
	require.NoError(t, err)
	info, err := f.fs.Stat(p)
	require.NoError(t, err)
	return string(data), info.ModTime().UTC()
}

func (f *engineFixture) run(t *testing.T, policy RemoteOnlyPolicy, ignoreFiles ...string) (*Report, error) {
	t.Helper()
	return f.engine.Run(context.Background(), Request{
		Server:      testServer,
		LocalDir:    testLocalDir,
		RemoteDir:   "site",
		Policy:      policy,
		IgnoreFiles: ignoreFiles,
	})
}

func TestEngine_UploadLocalOnly(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddDir(testRemote)
	f.writeLocal(t, "f1.txt", "hello", t1)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.RunState())
	assert.Equal(t, []string{"f1.txt"}, report.Uploaded)
	assert.Empty(t, report.Downloaded)
	assert.Empty(t, report.Deleted)
	assert.Empty(t, report.Kept)
	assert.Equal(t, 0, report.Same)
	assert.EqualValues(t, 5, report.BytesUploaded)

	data, mtime, ok := f.srv.File(testRemote + "/f1.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, t1, mtime)

	// the existing parent is entered without being recreated
	assert.Contains(t, f.srv.Calls(), "CWD "+testRemote)
	assert.Empty(t, f.srv.CallsWithPrefix("MKD"))
}

func TestEngine_UploadCreatesMissingRemoteDirs(t *testing.T) {
	f := newEngineFixture(t)
	f.writeLocal(t, "a/b/deep.txt", "x", t1)
	f.writeLocal(t, "top.txt", "y", t1)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	assert.Equal(t, []string{"top.txt", "a/b/deep.txt"}, report.Uploaded)
	assert.True(t, f.srv.HasDir(testRemote+"/a/b"))
	assert.Equal(t, []string{"MKD /www", "MKD /www/site", "MKD /www/site/a", "MKD /www/site/a/b"}, f.srv.CallsWithPrefix("MKD"))
}

func TestEngine_LocalNewerWithoutMFMT(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.NoMFMT = true
	f.srv.AddFile(testRemote+"/f2.txt", []byte("old"), t1)
	f.writeLocal(t, "f2.txt", "new", t2)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.RunState())
	assert.Equal(t, []string{"f2.txt"}, report.Uploaded)
	assert.Equal(t, 1, report.Cautions)

	data, _, ok := f.srv.File(testRemote + "/f2.txt")
	require.True(t, ok)
	assert.Equal(t, "new", string(data))
}

func TestEngine_RemoteOnlyDelete(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddFile(testRemote+"/orphan.txt", []byte("o"), t1)

	report, err := f.run(t, PolicyDelete)
	require.NoError(t, err)

	assert.Equal(t, []string{"orphan.txt"}, report.Deleted)
	assert.Empty(t, report.Kept)
	_, _, ok := f.srv.File(testRemote + "/orphan.txt")
	assert.False(t, ok)
}

func TestEngine_RemoteOnlyKeep(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddFile(testRemote+"/orphan.txt", []byte("o"), t1)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	assert.Equal(t, []string{"orphan.txt"}, report.Kept)
	assert.Empty(t, report.Deleted)
	assert.Empty(t, f.srv.CallsWithPrefix("DELE"))
	assert.Empty(t, f.srv.CallsWithPrefix("RETR"))
	_, _, ok := f.srv.File(testRemote + "/orphan.txt")
	assert.True(t, ok)
}

func TestEngine_RemoteOnlyDownload(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddFile(testRemote+"/sub/r.txt", []byte("remote"), t1)

	report, err := f.run(t, PolicyDownload)
	require.NoError(t, err)

	assert.Equal(t, []string{"sub/r.txt"}, report.Downloaded)
	assert.EqualValues(t, 6, report.BytesDownloaded)

	data, mtime := f.readLocal(t, "sub/r.txt")
	assert.Equal(t, "remote", data)
	assert.Equal(t, t1, mtime)
}

func TestEngine_LocalOlderIsDownloaded(t *testing.T) {
	f := newEngineFixture(t)
	f.writeLocal(t, "a.txt", "stale", t1)
	f.srv.AddFile(testRemote+"/a.txt", []byte("fresh"), t2)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, report.Downloaded)
	assert.Empty(t, report.Uploaded)

	data, mtime := f.readLocal(t, "a.txt")
	assert.Equal(t, "fresh", data)
	assert.Equal(t, t2, mtime)
}

func TestEngine_DownloadWithoutMDTM(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.NoMDTM = true
	f.srv.AddFile(testRemote+"/r.txt", []byte("remote"), t1)

	report, err := f.run(t, PolicyDownload)
	require.NoError(t, err)

	assert.Equal(t, []string{"r.txt"}, report.Downloaded)
	assert.Equal(t, 1, report.Cautions)
	data, _ := f.readLocal(t, "r.txt")
	assert.Equal(t, "remote", data)
}

func TestEngine_DownloadFileModes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "run.sh"), []byte("old"), 0o755))
	require.NoError(t, os.Chmod(filepath.Join(localDir, "run.sh"), 0o755))
	require.NoError(t, os.Chtimes(filepath.Join(localDir, "run.sh"), t1, t1))

	srv := ftptest.NewServer()
	srv.AddFile(testRemote+"/page.html", []byte("<html>"), t1)
	srv.AddFile(testRemote+"/run.sh", []byte("#!/bin/sh"), t2)
	conn := &fakeConnector{servers: map[string]*ftptest.Server{testServer: srv}}
	engine := NewEngine(conn, WithFs(afero.NewOsFs()), WithLogger(discardLogger()))

	report, err := engine.Run(context.Background(), Request{
		Server:    testServer,
		LocalDir:  localDir,
		RemoteDir: "site",
		Policy:    PolicyDownload,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"page.html", "run.sh"}, report.Downloaded)

	info, err := os.Stat(filepath.Join(localDir, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(localDir, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestEngine_SameFilesAreUntouched(t *testing.T) {
	f := newEngineFixture(t)
	f.writeLocal(t, "same.txt", "x", t1)
	f.srv.AddFile(testRemote+"/same.txt", []byte("x"), t1)

	report, err := f.run(t, PolicyDelete)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Same)
	assert.Empty(t, f.srv.CallsWithPrefix("STOR"))
	assert.Empty(t, f.srv.CallsWithPrefix("RETR"))
	assert.Empty(t, f.srv.CallsWithPrefix("DELE"))
}

func TestEngine_SecondRunIsNoop(t *testing.T) {
	f := newEngineFixture(t)
	f.writeLocal(t, "a.txt", "a", t1)
	f.writeLocal(t, "sub/b.txt", "b", t2)

	_, err := f.run(t, PolicyKeep)
	require.NoError(t, err)

	report, err := f.run(t, PolicyKeep)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Same)
	assert.Empty(t, report.Uploaded)
	assert.Empty(t, report.Downloaded)
	assert.Len(t, f.srv.CallsWithPrefix("STOR"), 2)
}

func TestEngine_IgnoreFiles(t *testing.T) {
	f := newEngineFixture(t)
	ignorePath := filepath.Join(testLocalDir, IgnoreFileName)
	require.NoError(t, afero.WriteFile(f.fs, ignorePath, []byte("*.log\n.ftpignore\n"), 0o644))
	f.writeLocal(t, "keep.txt", "k", t1)
	f.writeLocal(t, "debug.log", "d", t1)
	f.srv.AddFile(testRemote+"/server.log", []byte("s"), t1)

	report, err := f.run(t, PolicyDelete, "/missing/shared-ignore", ignorePath)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt"}, report.Uploaded)
	assert.Empty(t, report.Deleted)
	_, _, ok := f.srv.File(testRemote + "/server.log")
	assert.True(t, ok)
}

func TestEngine_DeleteBatchStopsAtFirstFailure(t *testing.T) {
	f := newEngineFixture(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		f.srv.AddFile(testRemote+"/"+name, []byte(name), t1)
	}
	f.srv.DeleteErrors[testRemote+"/b.txt"] = ftptest.PermissionDenied(testRemote + "/b.txt")

	report, err := f.run(t, PolicyDelete)
	require.Error(t, err)

	var batchErr *DeleteBatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Deleted)
	assert.Equal(t, 1, batchErr.Abandoned)
	assert.True(t, ftpclient.IsPermanent(err))

	assert.Equal(t, StateTransferred, report.RunState())
	assert.Equal(t, []string{"a.txt"}, report.Deleted)
	assert.NotEmpty(t, report.Error)
	assert.Equal(t, []string{testRemote + "/b.txt", testRemote + "/c.txt"}, f.srv.Files())
}

func TestEngine_UploadFailureEndsRun(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddDir(testRemote)
	f.writeLocal(t, "a.txt", "a", t1)
	f.writeLocal(t, "b.txt", "b", t1)
	f.srv.StorErrors[testRemote+"/a.txt"] = ftptest.Reply(452, "Insufficient storage space.")

	report, err := f.run(t, PolicyKeep)
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "upload", transferErr.Op)
	assert.Equal(t, testRemote+"/a.txt", transferErr.Path)
	assert.Equal(t, StateClassified, report.RunState())
	assert.Empty(t, f.srv.CallsWithPrefix("STOR "+testRemote+"/b.txt"))
}

func TestEngine_ConnectFailureStaysInit(t *testing.T) {
	f := newEngineFixture(t)
	f.conn.err = errors.New("connection refused")

	report, err := f.run(t, PolicyKeep)
	require.Error(t, err)

	var connErr *ftpclient.ConnectError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateInit, report.RunState())
	assert.Equal(t, "init", report.State)
}

func TestEngine_MissingLocalDir(t *testing.T) {
	f := newEngineFixture(t)

	report, err := f.engine.Run(context.Background(), Request{Server: testServer, LocalDir: "/nope", RemoteDir: "site"})
	require.Error(t, err)
	assert.Equal(t, StateConnected, report.RunState())
	assert.Contains(t, f.srv.Calls(), "QUIT")
}

func TestEngine_RemoteScanFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.srv.AddDir(testRemote)
	f.srv.ListErrors[testRemote] = ftptest.Reply(421, "Service not available.")

	report, err := f.run(t, PolicyKeep)
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, "scan", transferErr.Op)
	assert.Equal(t, StateConnected, report.RunState())
}

func TestEngine_CanceledContext(t *testing.T) {
	f := newEngineFixture(t)
	f.writeLocal(t, "a.txt", "a", t1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine.Run(ctx, Request{Server: testServer, LocalDir: testLocalDir, RemoteDir: "site"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Uploaded)
	assert.Empty(t, f.srv.CallsWithPrefix("STOR"))
}

func TestEngine_ServerLocked(t *testing.T) {
	lockDir := t.TempDir()
	f := newEngineFixture(t, WithLockDir(lockDir))

	unlock, err := lockServer(lockDir, testServer)
	require.NoError(t, err)

	_, err = f.run(t, PolicyKeep)
	require.ErrorIs(t, err, ErrServerLocked)
	assert.Equal(t, 0, f.conn.connects)

	unlock()
	_, err = f.run(t, PolicyKeep)
	assert.NoError(t, err)
}

func TestEngine_Journal(t *testing.T) {
	journal, err := OpenJournal(":memory:", discardLogger())
	require.NoError(t, err)
	defer journal.Close()

	f := newEngineFixture(t, WithJournal(journal))
	f.writeLocal(t, "up.txt", "up", t1)
	f.srv.AddFile(testRemote+"/gone.txt", []byte("g"), t1)

	report, err := f.run(t, PolicyDelete)
	require.NoError(t, err)

	runs, err := journal.Runs(testServer, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)
	assert.Equal(t, "done", runs[0].State)
	assert.Equal(t, 1, runs[0].Uploaded)
	assert.Equal(t, 1, runs[0].Deleted)

	ops, err := journal.Ops(report.RunID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "upload", ops[0].Op)
	assert.Equal(t, "up.txt", ops[0].Path)
	assert.EqualValues(t, 2, ops[0].Bytes)
	assert.Equal(t, "delete", ops[1].Op)
	assert.Equal(t, "gone.txt", ops[1].Path)
}
