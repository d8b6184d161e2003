package qualtrics

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidLinkType indicates a survey link type outside Individual, Anonymous and Multiple.
	ErrInvalidLinkType = errors.New("invalid link type")
	// ErrInvalidTarget indicates link generation was asked for both or neither of a list and a batch.
	ErrInvalidTarget = errors.New("specify either a mailing list or a transaction batch id")
	// ErrInvalidCategory indicates an unsupported message library category filter.
	ErrInvalidCategory = errors.New("invalid message category")
	// ErrMissingScope indicates a manager was built without a required path identifier.
	ErrMissingScope = errors.New("missing path scope identifier")
)

// APIError holds the fields of a Qualtrics error envelope.
type APIError struct {
	StatusCode   int
	Reason       string
	ErrorMessage string
	ErrorCode    string
	RequestID    string
}

func (e APIError) describe() string {
	return fmt.Sprintf("(%d - %s - %s) %s", e.StatusCode, e.Reason, e.ErrorCode, e.ErrorMessage)
}

// ClientError is returned for 4xx responses and for requests rejected before
// they reach the network. It is never worth retrying.
type ClientError struct {
	APIError
}

func (e *ClientError) Error() string {
	return "qualtrics client error: " + e.describe()
}

// ServerError is returned for 5xx responses and transport failures. Callers may retry.
type ServerError struct {
	APIError
	Cause error
}

func (e *ServerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("qualtrics server error: %s: %v", e.describe(), e.Cause)
	}
	return "qualtrics server error: " + e.describe()
}

func (e *ServerError) Unwrap() error {
	return e.Cause
}

// DecodeError reports a 2xx response whose body does not have the expected envelope shape.
type DecodeError struct {
	Path   string
	Detail string
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("qualtrics decode %s: %s", e.Path, e.Detail)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsClientError reports whether err wraps a *ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsServerError reports whether err wraps a *ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// IsDecodeError reports whether err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// StatusCode extracts the HTTP status carried by a Qualtrics error, or 0.
func StatusCode(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func newStatusError(status int, reason string, meta Meta, requestID string) error {
	apiErr := APIError{
		StatusCode: status,
		Reason:     reason,
		RequestID:  meta.RequestID,
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = requestID
	}
	if meta.Error != nil {
		apiErr.ErrorMessage = meta.Error.ErrorMessage
		apiErr.ErrorCode = meta.Error.ErrorCode
	}
	if apiErr.Reason == "" {
		apiErr.Reason = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		return &ServerError{APIError: apiErr}
	}
	return &ClientError{APIError: apiErr}
}

func emptyContactListError() error {
	return &ClientError{APIError: APIError{
		StatusCode: http.StatusBadRequest,
		Reason:     "Empty contact list not Allowed",
	}}
}
