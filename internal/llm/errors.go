package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the completion endpoint could not be reached.
	ErrUnavailable = errors.New("completion endpoint unavailable")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("completion request timed out")

	// ErrUpstreamStatus indicates a non-2xx response.
	ErrUpstreamStatus = errors.New("completion endpoint returned an error status")

	// ErrEmptyChoices indicates a 2xx response without any message content.
	ErrEmptyChoices = errors.New("completion response has no message content")

	// ErrInvalidResponse indicates a 2xx body that could not be decoded.
	ErrInvalidResponse = errors.New("completion response could not be decoded")
)

// StatusError carries the upstream status and its (truncated) error message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d: %s", ErrUpstreamStatus.Error(), e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrUpstreamStatus):
		return "STATUS"
	case errors.Is(err, ErrEmptyChoices):
		return "EMPTY_CHOICES"
	case errors.Is(err, ErrInvalidResponse):
		return "INVALID_RESPONSE"
	default:
		return "UNKNOWN"
	}
}
