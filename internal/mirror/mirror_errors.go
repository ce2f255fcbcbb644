package mirror

import (
	"errors"
	"fmt"
)

var ErrServerLocked = errors.New("server locked by another mirror run")

// TransferError is a failed store, retrieve or local write. It ends the run.
type TransferError struct {
	Server string
	Op     string
	Path   string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %q on %q: %v", e.Op, e.Path, e.Server, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// DeleteBatchError is the first failed remote delete of a batch.
// Deletions done before it stand; the Abandoned ones were never attempted.
type DeleteBatchError struct {
	Server    string
	Path      string
	Deleted   int
	Abandoned int
	Err       error
}

func (e *DeleteBatchError) Error() string {
	return fmt.Sprintf("delete %q on %q: %v (%d deleted, %d abandoned)", e.Path, e.Server, e.Err, e.Deleted, e.Abandoned)
}

func (e *DeleteBatchError) Unwrap() error {
	return e.Err
}
