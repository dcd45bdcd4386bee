package sftpgate

import (
	"errors"
	"fmt"
	"os"

	"github.com/pkg/sftp"
)

// ErrNotConfigured is returned before dialing when the gateway is missing
// host or credentials. Operator action is required; the client cannot
// retry its way out of it.
var ErrNotConfigured = errors.New("sftp gateway not configured")

// Code tags a RemoteError with a machine-readable failure class.
type Code string

const (
	CodeNotFound   Code = "not_found"
	CodePermission Code = "permission"
	CodeNotEmpty   Code = "not_empty"
	CodeOther      Code = "other"
)

// RemoteError wraps a remote I/O failure with the operation and path it
// occurred on.
type RemoteError struct {
	Op   string
	Path string
	Code Code
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("sftp %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a RemoteError for a missing path.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeNotFound
}

// IsNotEmpty reports whether err is a RemoteError for a non-empty
// directory removal.
func IsNotEmpty(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeNotEmpty
}

func wrapRemote(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Path: path, Code: classify(err), Err: err}
}

// classify maps pkg/sftp status codes and fs errors onto Code values.
func classify(err error) Code {
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return CodeNotFound
		case sftp.ErrSSHFxPermissionDenied:
			return CodePermission
		}
		return CodeOther
	}
	if errors.Is(err, os.ErrNotExist) {
		return CodeNotFound
	}
	if errors.Is(err, os.ErrPermission) {
		return CodePermission
	}
	return CodeOther
}
