package acquire

import (
	"errors"
	"fmt"
)

// Reason classifies an acquisition failure.
type Reason string

const (
	ReasonInvalidURL      Reason = "invalid_url"
	ReasonFetch           Reason = "fetch"
	ReasonDownloadTimeout Reason = "download_timeout"
	ReasonUnavailable     Reason = "unavailable"
	ReasonTool            Reason = "tool"
	ReasonMissingOutput   Reason = "missing_output"
	ReasonIO              Reason = "io"
)

var (
	// ErrInvalidURL marks a URL that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid audio URL")
	// ErrNotPlayable marks a platform URL that names no single video, such
	// as a channel, playlist or home page.
	ErrNotPlayable = errors.New("URL does not point to a playable video")
)

// Error is returned by every failed acquisition. Nothing has been handed to
// the worker when it occurs.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsInvalidInput reports whether err was caused by the request itself
// rather than by a remote source or the download tool.
func IsInvalidInput(err error) bool {
	var acqErr *Error
	return errors.As(err, &acqErr) && acqErr.Reason == ReasonInvalidURL
}
