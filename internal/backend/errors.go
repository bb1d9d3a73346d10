package backend

import (
	"errors"
	"fmt"
)

// APIError represents a non-2xx response from the analysis backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error,omitempty"`
	RequestID  string `json:"-"`
	Path       string `json:"-"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error: status=%d", e.StatusCode)
	if e.Path != "" {
		msg += " path=" + e.Path
	}
	if e.RequestID != "" {
		msg += " request_id=" + e.RequestID
	}
	if e.Message != "" {
		msg += " message=" + e.Message
	}
	return msg
}

// NotFoundError indicates a 404 for the requested resource.
type NotFoundError struct{ *APIError }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.APIError.Error()) }

// BadRequestError indicates a 4xx request problem (e.g., 400 validation).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// ServerError indicates 5xx errors from the backend.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("backend error: %s", e.APIError.Error()) }

// UnreachableError indicates the backend could not be contacted at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("backend unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// EnvelopeError indicates a 2xx response whose envelope reported failure or
// could not be decoded.
type EnvelopeError struct {
	Path    string
	Message string
	Err     error
}

func (e *EnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("request to %s failed: %s", e.Path, e.Message)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// classify maps a generic APIError to a typed error.
func classify(apiErr *APIError) error {
	sc := apiErr.StatusCode
	switch {
	case sc == 404:
		return &NotFoundError{APIError: apiErr}
	case sc >= 400 && sc <= 499:
		return &BadRequestError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}
