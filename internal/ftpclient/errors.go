package ftpclient

import (
	"errors"
	"fmt"
	"net/textproto"
)

var (
	ErrTimestampUnavailable = errors.New("timestamp extension unavailable")
	ErrSessionClosed        = errors.New("session closed")
)

// ConnectError is returned when a session cannot be established.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %q: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err carries a permanent negative FTP reply (5xx).
// Missing directories and permission denials both end up here.
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600
}
