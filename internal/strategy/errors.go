package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

var (
	ErrProfileNotFound   = errors.New("artist profile not found")
	ErrGenerationFailed  = errors.New("strategy generation failed")
	ErrMalformedResponse = errors.New("malformed completion response")
	ErrContractViolation = errors.New("strategy contract violation")
	ErrPersistenceFailed = errors.New("strategy persistence failed")
)

// ExcerptLimit caps the raw completion text kept on a parse failure.
const ExcerptLimit = 1000

// GenerationFailedError wraps an upstream completion failure.
type GenerationFailedError struct {
	Cause error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("%s: %v", ErrGenerationFailed.Error(), e.Cause)
}

func (e *GenerationFailedError) Unwrap() []error { return []error{ErrGenerationFailed, e.Cause} }

// MalformedResponseError reports completion text that is not JSON. Excerpt
// holds at most ExcerptLimit characters of the raw text.
type MalformedResponseError struct {
	Excerpt string
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	if e.Cause == nil {
		return ErrMalformedResponse.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedResponse.Error(), e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// ContractViolationError lists every shape or alignment problem found.
type ContractViolationError struct {
	Problems []string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrContractViolation.Error(), strings.Join(e.Problems, "; "))
}

func (e *ContractViolationError) Unwrap() error { return ErrContractViolation }

// Code maps a generation error to the stable code surfaced to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProfileNotFound):
		return "profile_not_found"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	default:
		return "internal_error"
	}
}

// excerpt returns the first limit grapheme clusters of s.
func excerpt(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	g := uniseg.NewGraphemes(s)
	n, end := 0, 0
	for n < limit && g.Next() {
		_, end = g.Positions()
		n++
	}
	return s[:end]
}
