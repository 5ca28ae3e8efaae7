package main

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind is the failure taxonomy shared by the extractors
type ErrorKind string

const (
	KindIdentifierNotFound  ErrorKind = "IdentifierNotFound"
	KindUpstreamNotFound    ErrorKind = "UpstreamNotFound"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindMalformedResponse   ErrorKind = "MalformedStructuredResponse"
	KindMissingField        ErrorKind = "MissingRequiredField"
	KindUnknown             ErrorKind = "Unknown"
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// ExtractionError is returned by extractors when a URL cannot produce a record
type ExtractionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone
func (e *ExtractionError) Is(target error) bool {
	t, ok := target.(*ExtractionError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind-only targets for errors.Is
var (
	ErrIdentifierNotFound = &ExtractionError{Kind: KindIdentifierNotFound}
	ErrUpstreamNotFound   = &ExtractionError{Kind: KindUpstreamNotFound}
	ErrMissingField       = &ExtractionError{Kind: KindMissingField}
)

func newExtractionError(kind ErrorKind, err error, format string, args ...interface{}) *ExtractionError {
	return &ExtractionError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies any error produced while processing a URL
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Kind
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return KindUpstreamUnavailable
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return KindUpstreamUnavailable
	}
	return KindUnknown
}
