package upload

import "errors"

// Failure kinds of an upload job. Every error returned by the uploader
// wraps exactly one of these, so callers can branch with errors.Is.
var (
	ErrFileUnreadable = errors.New("file unreadable")
	ErrSeekFailure    = errors.New("seek failure")
	ErrTransport      = errors.New("transport failure")
	ErrDecode         = errors.New("decode failure")
	ErrCancelled      = errors.New("upload cancelled")
	ErrInvalidName    = errors.New("invalid file name")
)

// Describe returns the short user-facing message for an upload error.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "upload cancelled"
	case errors.Is(err, ErrFileUnreadable), errors.Is(err, ErrSeekFailure):
		return "could not read file"
	case errors.Is(err, ErrInvalidName):
		return "invalid file name"
	case errors.Is(err, ErrDecode):
		return "unexpected server response"
	case errors.Is(err, ErrTransport):
		return "upload failed, check connection"
	default:
		return "upload failed"
	}
}
