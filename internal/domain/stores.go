package domain

import (
	"context"

	"github.com/google/uuid"
)

type CaseStore interface {
	// CreateCase persists the case, both evidence rows and the verdict as one unit.
	CreateCase(ctx context.Context, c *Case) error
	// GetCase returns a consistent snapshot with turns ordered by sequence.
	GetCase(ctx context.Context, id uuid.UUID) (*Case, error)
	// AppendTurnIfUnderCap inserts the next turn only while the case holds
	// fewer than limit turns. ok is false when the cap is already reached.
	AppendTurnIfUnderCap(ctx context.Context, caseID uuid.UUID, side Side, content string, limit int) (turn *Turn, ok bool, err error)
	RecordReevaluation(ctx context.Context, turnID uuid.UUID, response string) error
	Ping(ctx context.Context) error
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type OracleClient interface {
	Adjudicate(ctx context.Context, messages []Message) (string, error)
}

type EventType string

const (
	EventTurnReevaluated EventType = "turn.reevaluated"
	EventTurnUnanswered  EventType = "turn.accepted_without_response"
	// EventStreamReady is the first message on a case stream.
	EventStreamReady EventType = "stream.ready"
)

// CaseEvent is broadcast to every observer of a case after a turn settles.
type CaseEvent struct {
	Type           EventType `json:"type"`
	CaseID         uuid.UUID `json:"case_id"`
	Turn           *Turn     `json:"turn,omitempty"`
	RemainingTurns int       `json:"remaining_turns"`
}

type EventPublisher interface {
	Publish(ctx context.Context, evt CaseEvent) error
}
