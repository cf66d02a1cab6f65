package domain

import (
	"errors"
	"fmt"
)

// Oracle failures. Provider clients wrap one of these so callers can
// distinguish them with errors.Is.
var (
	ErrOracleTimeout     = errors.New("oracle timed out")
	ErrOracleRateLimited = errors.New("oracle rate limited")
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// OracleFailure carries provider diagnostics for logging. Its message is
// not meant for API responses.
type OracleFailure struct {
	Kind     error
	Provider string
	Status   int
	Detail   string
}

func (e *OracleFailure) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Provider, e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, e.Detail)
}

func (e *OracleFailure) Unwrap() error {
	return e.Kind
}

// OracleKindForStatus maps an upstream HTTP status to an oracle failure kind.
func OracleKindForStatus(status int) error {
	switch status {
	case 429:
		return ErrOracleRateLimited
	case 408, 504:
		return ErrOracleTimeout
	default:
		return ErrOracleUnavailable
	}
}
