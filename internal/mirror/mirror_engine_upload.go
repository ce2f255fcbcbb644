package mirror

import (
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

func (r *mirrorRun) uploadBatch(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	r.logger.Debug("upload", "count", len(paths))

	for _, rel := range paths {
		if err := r.checkCanceled(); err != nil {
			return err
		}
		if err := r.upload(rel); err != nil {
			return err
		}
	}
	r.logger.Info("uploaded", "count", len(paths))
	return nil
}

// upload stores one local file and then tries to copy its modification time to the server.
func (r *mirrorRun) upload(rel string) error {
	localPath := filepath.Join(r.localDir, filepath.FromSlash(rel))
	remotePath := path.Join(r.remoteRoot, rel)
	fail := func(op string, err error) error {
		return &TransferError{Server: r.session.Name, Op: op, Path: remotePath, Err: err}
	}

	if _, err := r.session.EnsureDir(path.Dir(remotePath)); err != nil {
		return fail("mkd", err)
	}

	f, err := r.fs.Open(localPath)
	if err != nil {
		return fail("upload", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fail("upload", err)
	}

	body := &countingReader{r: f}
	if err := r.session.Store(remotePath, body); err != nil {
		return fail("upload", err)
	}
	r.report.Uploaded = append(r.report.Uploaded, rel)
	r.report.BytesUploaded += body.n
	r.recordOp("upload", rel, body.n)

	if err := r.session.SetModTime(remotePath, info.ModTime()); err != nil {
		r.report.Cautions++
		r.logger.Warn("caution: remote timestamp not set", "path", remotePath, "error", err)
		return nil
	}
	r.logger.Debug("upload", "local", localPath, "remote", remotePath, "size", humanize.Bytes(uint64(body.n)))
	return nil
}
