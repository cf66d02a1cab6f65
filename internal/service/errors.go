package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/verdict/internal/domain"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrCaseNotFound = errors.New("case not found")
	ErrCapExceeded  = errors.New("turn limit reached for this case")
	ErrOracle       = errors.New("oracle failed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// OracleKind names an oracle failure class for API responses.
type OracleKind string

const (
	OracleTimeout     OracleKind = "timeout"
	OracleRateLimited OracleKind = "rate_limited"
	OracleUnavailable OracleKind = "unavailable"
)

// OracleError is returned when the oracle could not produce a response.
// When TurnAccepted is true the turn was persisted and its slot is spent,
// so resubmitting creates a new turn rather than retrying this one.
type OracleError struct {
	Kind         OracleKind
	TurnAccepted bool
	Turn         *domain.Turn
	Err          error
}

// Error deliberately omits provider detail; that is logged, not returned.
func (e *OracleError) Error() string {
	switch e.Kind {
	case OracleTimeout:
		return "the judgment oracle timed out"
	case OracleRateLimited:
		return "the judgment oracle is rate limited"
	default:
		return "the judgment oracle is unavailable"
	}
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

func (e *OracleError) Is(target error) bool {
	return target == ErrOracle
}

func newOracleError(err error, turn *domain.Turn) *OracleError {
	return &OracleError{
		Kind:         oracleKind(err),
		TurnAccepted: turn != nil,
		Turn:         turn,
		Err:          err,
	}
}

func oracleKind(err error) OracleKind {
	switch {
	case errors.Is(err, domain.ErrOracleRateLimited):
		return OracleRateLimited
	case errors.Is(err, domain.ErrOracleTimeout), errors.Is(err, context.DeadlineExceeded):
		return OracleTimeout
	default:
		return OracleUnavailable
	}
}
