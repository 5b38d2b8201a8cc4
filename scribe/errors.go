package scribe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bosley/relayscribe/acquire"
)

// RequestError is a request refused before any job work starts: a wrong
// content type, a malformed body or a missing field.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func badRequest(msg string, err error) error {
	return &RequestError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

// statusFor maps a job or request failure to its HTTP status.
func statusFor(err error) int {
	var (
		maxErr *http.MaxBytesError
		reqErr *RequestError
		acqErr *acquire.Error
	)
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr):
		return reqErr.Status
	case errors.Is(err, errJobCancelled), errors.Is(err, errShuttingDown):
		return http.StatusServiceUnavailable
	case errors.As(err, &acqErr):
		if acqErr.Reason == acquire.ReasonInvalidURL {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isRequestShapeError reports whether err is the client's fault in a way a
// status code describes better than an error frame.
func isRequestShapeError(err error) bool {
	var (
		maxErr *http.MaxBytesError
		reqErr *RequestError
	)
	return errors.As(err, &maxErr) || errors.As(err, &reqErr)
}
