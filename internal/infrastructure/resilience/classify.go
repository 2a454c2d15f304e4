package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/ai-ops-console/internal/core/domain"
)

// Outcome tells the executor what one failed attempt means.
type Outcome struct {
	// Retry allows another attempt within the same call.
	Retry bool
	// Trip counts the failure against the operation's breaker.
	Trip bool
}

// Classify reads the domain error kinds. Adapters are expected to mark
// transport failures as ErrTemporary before they reach the executor.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Outcome{}
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrUnavailable):
		return Outcome{Retry: true, Trip: true}
	case isCallerError(err):
		return Outcome{}
	default:
		return Outcome{Trip: true}
	}
}

// Caller errors say nothing about the health of the dependency.
func isCallerError(err error) bool {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrInvalidTransition,
		domain.ErrExtractionUnavailable,
	} {
		if domain.IsKind(err, kind) {
			return true
		}
	}
	return false
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
