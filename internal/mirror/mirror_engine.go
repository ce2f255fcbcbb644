// Package mirror keeps a local directory tree and a remote FTP tree consistent using
// modification timestamps as the only change signal.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/openmined/ftpmirror/internal/ftpclient"
	"github.com/spf13/afero"
)

// Connector opens a logged-in session for a server nickname.
type Connector interface {
	Connect(ctx context.Context, server string) (*ftpclient.Session, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Verbose output is emitted at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFs replaces the local filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithJournal records every run and transfer.
func WithJournal(j *Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLockDir enables per-server lock files in dir.
func WithLockDir(dir string) Option {
	return func(e *Engine) {
		e.lockDir = dir
	}
}

// Engine runs mirror jobs. It holds no per-run state, so one Engine may serve
// concurrent runs against different servers.
type Engine struct {
	connector Connector
	fs        afero.Fs
	logger    *slog.Logger
	journal   *Journal
	lockDir   string
	now       func() time.Time
}

func NewEngine(connector Connector, opts ...Option) *Engine {
	e := &Engine{
		connector: connector,
		fs:        afero.NewOsFs(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// mirrorRun is the state owned by a single run.
type mirrorRun struct {
	ctx        context.Context
	session    *ftpclient.Session
	fs         afero.Fs
	localDir   string
	remoteRoot string
	logger     *slog.Logger
	journal    *Journal
	report     *Report
}

// Run mirrors req.LocalDir with req.RemoteDir on req.Server. The returned report reflects
// how far the run got, also when an error is returned. Nothing is retried.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		Server:     req.Server,
		LocalDir:   req.LocalDir,
		RemoteDir:  req.RemoteDir,
		Policy:     req.Policy.String(),
		Uploaded:   []string{},
		Downloaded: []string{},
		Deleted:    []string{},
		Kept:       []string{},
		Started:    e.now(),
	}
	report.advance(StateInit)

	logger := e.logger.With("server", req.Server)
	logger.Info("mirror", "local", req.LocalDir, "remote", req.RemoteDir, "remoteOnly", req.Policy)

	err := e.run(ctx, req, report, logger)
	report.Finished = e.now()
	if err != nil {
		report.Error = err.Error()
		logger.Error("mirror failed", "state", report.State, "error", err)
	} else {
		logger.Info("mirror done",
			"same", report.Same,
			"uploaded", len(report.Uploaded),
			"downloaded", len(report.Downloaded),
			"deleted", len(report.Deleted),
			"kept", len(report.Kept),
			"sent", humanize.Bytes(uint64(report.BytesUploaded)),
			"received", humanize.Bytes(uint64(report.BytesDownloaded)),
			"took", report.Finished.Sub(report.Started).Round(time.Millisecond),
		)
	}

	if e.journal != nil {
		if jerr := e.journal.RecordRun(report); jerr != nil {
			logger.Warn("failed to record run", "error", jerr)
		}
	}
	return report, err
}

func (e *Engine) run(ctx context.Context, req Request, report *Report, logger *slog.Logger) error {
	unlock, err := lockServer(e.lockDir, req.Server)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := e.connector.Connect(ctx, req.Server)
	if err != nil {
		return err
	}
	defer session.Close()
	report.advance(StateConnected)

	rules, err := LoadIgnoreRules(e.fs, req.IgnoreFiles...)
	if err != nil {
		return err
	}
	logger.Debug("ignore rules", "files", rules.Loaded(), "patterns", rules.Patterns())

	local, err := ScanLocal(e.fs, req.LocalDir, rules.Matcher(LocalCaseInsensitive))
	if err != nil {
		return err
	}
	logger.Info("local files", "count", len(local))

	remoteRoot := session.RemotePath(req.RemoteDir)
	remote, err := ScanRemote(session, remoteRoot, rules.Matcher(false), logger)
	if err != nil {
		return &TransferError{Server: req.Server, Op: "scan", Path: remoteRoot, Err: err}
	}
	logger.Info("remote files", "count", len(remote))
	report.advance(StateScanned)

	c := Classify(local, remote)
	report.Same = c.Same.Cardinality()
	report.advance(StateClassified)
	if report.Same > 0 {
		logger.Info("same files", "count", report.Same)
	}

	r := &mirrorRun{
		ctx:        ctx,
		session:    session,
		fs:         e.fs,
		localDir:   req.LocalDir,
		remoteRoot: remoteRoot,
		logger:     logger,
		journal:    e.journal,
		report:     report,
	}

	if err := r.uploadBatch(c.Uploads()); err != nil {
		return err
	}
	if err := r.downloadBatch(SortPaths(c.LocalOlder.ToSlice())); err != nil {
		return err
	}
	report.advance(StateTransferred)

	remoteOnly := SortPaths(c.RemoteOnly.ToSlice())
	switch req.Policy {
	case PolicyDownload:
		err = r.downloadBatch(remoteOnly)
	case PolicyDelete:
		err = r.deleteBatch(remoteOnly)
	default:
		for _, p := range remoteOnly {
			logger.Info("remote only", "path", p)
		}
		report.Kept = remoteOnly
	}
	if err != nil {
		return err
	}
	report.advance(StatePolicyApplied)

	if err := session.Close(); err != nil {
		logger.Warn("close session", "error", err)
	}
	report.advance(StateDone)
	return nil
}

func (r *mirrorRun) checkCanceled() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("mirror %q interrupted: %w", r.session.Name, err)
	}
	return nil
}

func (r *mirrorRun) recordOp(op, rel string, n int64) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordOp(r.report.RunID, op, rel, n); err != nil {
		r.logger.Warn("failed to record op", "op", op, "path", rel, "error", err)
	}
}
