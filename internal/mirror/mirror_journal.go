package mirror

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/ftpmirror/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS mirror_runs (
    run_id TEXT PRIMARY KEY,
    server TEXT NOT NULL,
    local_dir TEXT NOT NULL,
    remote_dir TEXT NOT NULL,
    policy TEXT NOT NULL,
    state TEXT NOT NULL,
    same INTEGER NOT NULL,
    uploaded INTEGER NOT NULL,
    downloaded INTEGER NOT NULL,
    deleted INTEGER NOT NULL,
    kept INTEGER NOT NULL,
    bytes_uploaded INTEGER NOT NULL,
    bytes_downloaded INTEGER NOT NULL,
    cautions INTEGER NOT NULL,
    error TEXT NOT NULL,
    started TEXT NOT NULL, -- RFC3339
    finished TEXT NOT NULL -- RFC3339
);

CREATE TABLE IF NOT EXISTS mirror_ops (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    op TEXT NOT NULL,
    path TEXT NOT NULL,
    bytes INTEGER NOT NULL,
    at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_runs_server_started ON mirror_runs(server, started);
CREATE INDEX IF NOT EXISTS idx_ops_run_id ON mirror_ops(run_id);
`

// RunRecord is a journaled run.
type RunRecord struct {
	RunID           string    `db:"run_id" json:"run_id"`
	Server          string    `db:"server" json:"server"`
	LocalDir        string    `db:"local_dir" json:"local_dir"`
	RemoteDir       string    `db:"remote_dir" json:"remote_dir"`
	Policy          string    `db:"policy" json:"policy"`
	State           string    `db:"state" json:"state"`
	Same            int       `db:"same" json:"same"`
	Uploaded        int       `db:"uploaded" json:"uploaded"`
	Downloaded      int       `db:"downloaded" json:"downloaded"`
	Deleted         int       `db:"deleted" json:"deleted"`
	Kept            int       `db:"kept" json:"kept"`
	BytesUploaded   int64     `db:"bytes_uploaded" json:"bytes_uploaded"`
	BytesDownloaded int64     `db:"bytes_downloaded" json:"bytes_downloaded"`
	Cautions        int       `db:"cautions" json:"cautions"`
	Error           string    `db:"error" json:"error,omitempty"`
	Started         time.Time `db:"-" json:"started"`
	Finished        time.Time `db:"-" json:"finished"`
}

// OpRecord is a single journaled transfer or delete.
type OpRecord struct {
	RunID string    `db:"run_id" json:"run_id"`
	Op    string    `db:"op" json:"op"`
	Path  string    `db:"path" json:"path"`
	Bytes int64     `db:"bytes" json:"bytes"`
	At    time.Time `db:"-" json:"at"`
}

// dbRunRecord and dbOpRecord carry times as TEXT.
type dbRunRecord struct {
	RunRecord
	StartedText  string `db:"started"`
	FinishedText string `db:"finished"`
}

type dbOpRecord struct {
	OpRecord
	AtText string `db:"at"`
}

// Journal persists run reports and their operations in SQLite.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenJournal opens or creates the journal at path. Use ":memory:" for a throwaway journal.
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1), db.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: conn, logger: logger, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		j.logger.Error("failed to close journal", "error", err)
		return err
	}
	return nil
}

// RecordRun inserts or replaces the run summary.
func (j *Journal) RecordRun(r *Report) error {
	row := dbRunRecord{
		RunRecord: RunRecord{
			RunID:           r.RunID,
			Server:          r.Server,
			LocalDir:        r.LocalDir,
			RemoteDir:       r.RemoteDir,
			Policy:          r.Policy,
			State:           r.State,
			Same:            r.Same,
			Uploaded:        len(r.Uploaded),
			Downloaded:      len(r.Downloaded),
			Deleted:         len(r.Deleted),
			Kept:            len(r.Kept),
			BytesUploaded:   r.BytesUploaded,
			BytesDownloaded: r.BytesDownloaded,
			Cautions:        r.Cautions,
			Error:           r.Error,
		},
		StartedText:  r.Started.UTC().Format(time.RFC3339),
		FinishedText: r.Finished.UTC().Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO mirror_runs
	  (run_id, server, local_dir, remote_dir, policy, state, same, uploaded, downloaded, deleted, kept,
	   bytes_uploaded, bytes_downloaded, cautions, error, started, finished)
	  VALUES
	  (:run_id, :server, :local_dir, :remote_dir, :policy, :state, :same, :uploaded, :downloaded, :deleted, :kept,
	   :bytes_uploaded, :bytes_downloaded, :cautions, :error, :started, :finished)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	j.logger.Debug("journal run", "run", r.RunID, "state", r.State)
	return nil
}

// RecordOp appends one operation of a run.
func (j *Journal) RecordOp(runID, op, path string, n int64) error {
	row := dbOpRecord{
		OpRecord: OpRecord{RunID: runID, Op: op, Path: path, Bytes: n},
		AtText:   j.now().UTC().Format(time.RFC3339),
	}
	query := `INSERT INTO mirror_ops (run_id, op, path, bytes, at) VALUES (:run_id, :op, :path, :bytes, :at)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to record %s %s: %w", op, path, err)
	}
	return nil
}

// Runs returns the most recent runs first. An empty server matches every server;
// a limit of zero or less returns all runs.
func (j *Journal) Runs(server string, limit int) ([]RunRecord, error) {
	query := `SELECT * FROM mirror_runs WHERE (? = '' OR server = ?) ORDER BY started DESC, run_id`
	args := []any{server, server}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []dbRunRecord
	if err := j.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs := make([]RunRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.RunRecord
		rec.Started = parseJournalTime(row.StartedText)
		rec.Finished = parseJournalTime(row.FinishedText)
		runs = append(runs, rec)
	}
	return runs, nil
}

// Ops returns the operations of a run in the order they happened.
func (j *Journal) Ops(runID string) ([]OpRecord, error) {
	var rows []dbOpRecord
	err := j.db.Select(&rows, `SELECT run_id, op, path, bytes, at FROM mirror_ops WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ops for %s: %w", runID, err)
	}

	ops := make([]OpRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.OpRecord
		rec.At = parseJournalTime(row.AtText)
		ops = append(ops, rec)
	}
	return ops, nil
}

func parseJournalTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
