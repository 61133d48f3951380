package spool

import "errors"

// Errors returned by the spool. Underlying causes are wrapped alongside the
// sentinel, so callers match with errors.Is.
var (
	ErrDirectoryUnavailable = errors.New("spool: directory unavailable")
	ErrCollisionExhausted   = errors.New("spool: identifier collision retries exhausted")
	ErrWriteFailure         = errors.New("spool: write failed")
	ErrReadFailure          = errors.New("spool: read failed")
	ErrTraversalRejected    = errors.New("spool: path escapes spool directory")
	ErrNotFound             = errors.New("spool: not found")
	ErrIsDirectory          = errors.New("spool: path is a directory")
)

// IsNotFound reports whether err means the requested item does not exist.
// Rejected traversal attempts count as not found so that callers never
// confirm the directory structure outside the spool.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTraversalRejected)
}

// IsDirectoryUnavailable reports whether err is ErrDirectoryUnavailable.
func IsDirectoryUnavailable(err error) bool { return errors.Is(err, ErrDirectoryUnavailable) }

// Kind returns a short label for err, used for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDirectoryUnavailable):
		return "directory_unavailable"
	case errors.Is(err, ErrCollisionExhausted):
		return "collision_exhausted"
	case errors.Is(err, ErrTraversalRejected):
		return "traversal_rejected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIsDirectory):
		return "is_directory"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, ErrReadFailure):
		return "read_failure"
	default:
		return "unknown"
	}
}
