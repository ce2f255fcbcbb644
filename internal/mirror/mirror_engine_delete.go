package mirror

import (
	"path"
)

// deleteBatch removes remote files in order. The first failure abandons the rest;
// files already deleted stay deleted.
func (r *mirrorRun) deleteBatch(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	r.logger.Debug("delete remote only", "count", len(paths))

	for i, rel := range paths {
		if err := r.checkCanceled(); err != nil {
			return err
		}

		remotePath := path.Join(r.remoteRoot, rel)
		if err := r.session.Delete(remotePath); err != nil {
			return &DeleteBatchError{
				Server:    r.session.Name,
				Path:      remotePath,
				Deleted:   i,
				Abandoned: len(paths) - i - 1,
				Err:       err,
			}
		}

		r.report.Deleted = append(r.report.Deleted, rel)
		r.recordOp("delete", rel, 0)
		r.logger.Info("delete", "path", remotePath)
	}
	r.logger.Info("deleted", "count", len(paths))
	return nil
}
