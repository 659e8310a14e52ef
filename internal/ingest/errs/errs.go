// Package errs defines the typed error taxonomy shared by every ingestion
// component, so the HTTP layer and the job/sub-job bookkeeping can map a
// failure to a status code and a stable string without string-matching on
// error text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an ingestion failure.
type Kind string

const (
	BadSource          Kind = "bad_source"
	BadRequest         Kind = "bad_request"
	ParseError         Kind = "parse_error"
	FileNotFound       Kind = "file_not_found"
	ChunkerConfigError Kind = "chunker_config_error"
	InvalidInput       Kind = "invalid_input"
	ObjectStoreError   Kind = "object_store_error"
	JobStoreError      Kind = "job_store_error"
	QueueError         Kind = "queue_error"
	MergeError         Kind = "merge_error"
	FatalInternal      Kind = "fatal_internal"
	Unauthorized       Kind = "unauthorized"
)

// Error wraps an underlying cause with a Kind, so callers can branch on
// classification via errors.As while still printing a useful message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error's Kind to the HTTP status code the API layer
// should respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case BadSource, BadRequest, ChunkerConfigError, InvalidInput:
		return http.StatusBadRequest
	case FileNotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case ParseError:
		return http.StatusUnprocessableEntity
	case ObjectStoreError, JobStoreError, QueueError, MergeError, FatalInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New constructs an *Error of the given kind wrapping cause (which may be
// nil).
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatusFor returns the status code for any error, defaulting to 500 for
// errors that are not *Error.
func HTTPStatusFor(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
