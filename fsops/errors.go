package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotADirectory      = errors.New("not a directory")
	ErrNotAccessible      = errors.New("not accessible")
	ErrDestinationInvalid = errors.New("destination is not a directory")
	ErrSourceMissing      = errors.New("source does not exist")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrCopyFailed         = errors.New("copy failed")
	ErrMoveFailed         = errors.New("move failed")
	ErrInvalidName        = errors.New("invalid name")
	ErrPattern            = errors.New("invalid pattern")
	ErrAlreadyExists      = errors.New("already exists")
	ErrTrashUnsupported   = errors.New("trash is not supported on this platform")
	ErrClosed             = errors.New("engine is closed")
)

// OpError describes a failed operation on a path. It unwraps to both the
// error kind and the underlying OS cause.
type OpError struct {
	Op       string
	Path     string
	Kind     error
	Attempts int // > 0 only for retried operations
	Err      error
}

func (e *OpError) Error() string {
	msg := e.Op + " " + e.Path + ": "
	if e.Kind != nil {
		msg += e.Kind.Error()
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		if e.Kind != nil {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func opErr(op, path string, kind, cause error) error {
	return &OpError{Op: op, Path: path, Kind: kind, Err: cause}
}

// statKind maps a stat/open failure to an error kind. A path running
// through a regular file (ENOTDIR) does not exist.
func statKind(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	}
	return ErrNotAccessible
}
