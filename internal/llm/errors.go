package llm

import (
	"context"
	"errors"
	"net"

	"github.com/Harshitk-cp/verdict/internal/domain"
)

// maxDetail caps how much of an upstream body is kept for logs.
const maxDetail = 512

// transportFailure classifies an error raised before any status was read.
func transportFailure(provider string, err error) error {
	kind := domain.ErrOracleUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.ErrOracleTimeout
	}
	return &domain.OracleFailure{Kind: kind, Provider: provider, Detail: err.Error()}
}

func statusFailure(provider string, status int, body []byte) error {
	detail := string(body)
	if len(detail) > maxDetail {
		detail = detail[:maxDetail]
	}
	return &domain.OracleFailure{
		Kind:     domain.OracleKindForStatus(status),
		Provider: provider,
		Status:   status,
		Detail:   detail,
	}
}

func emptyFailure(provider, detail string) error {
	return &domain.OracleFailure{Kind: domain.ErrOracleUnavailable, Provider: provider, Detail: detail}
}
