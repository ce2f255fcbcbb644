package mirror

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

func (r *mirrorRun) downloadBatch(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	r.logger.Debug("download", "count", len(paths))

	for _, rel := range paths {
		if err := r.checkCanceled(); err != nil {
			return err
		}
		if err := r.download(rel); err != nil {
			return err
		}
	}
	r.logger.Info("downloaded", "count", len(paths))
	return nil
}

// download retrieves one remote file and applies the remote modification time when the
// server reports it.
func (r *mirrorRun) download(rel string) error {
	localPath := filepath.Join(r.localDir, filepath.FromSlash(rel))
	remotePath := path.Join(r.remoteRoot, rel)
	fail := func(err error) error {
		return &TransferError{Server: r.session.Name, Op: "download", Path: remotePath, Err: err}
	}

	modTime, terr := r.session.ModTime(remotePath)
	if terr != nil {
		r.report.Cautions++
		r.logger.Warn("caution: remote timestamp unavailable", "path", remotePath, "error", terr)
	}

	localDir := filepath.Dir(localPath)
	if _, err := r.fs.Stat(localDir); os.IsNotExist(err) {
		r.logger.Debug("makedirs", "path", localDir)
		if err := r.fs.MkdirAll(localDir, 0o755); err != nil {
			return fail(err)
		}
	}

	n, err := writeLocalFile(r.fs, localPath, func(w io.Writer) (int64, error) {
		return r.session.Retrieve(remotePath, w)
	})
	if err != nil {
		return fail(err)
	}

	if terr == nil {
		if err := r.fs.Chtimes(localPath, modTime, modTime); err != nil {
			return fail(err)
		}
	}

	r.report.Downloaded = append(r.report.Downloaded, rel)
	r.report.BytesDownloaded += n
	r.recordOp("download", rel, n)
	r.logger.Debug("download", "remote", remotePath, "local", localPath, "size", humanize.Bytes(uint64(n)))
	return nil
}
