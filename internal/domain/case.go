package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTurns is the number of follow-up turns a case accepts after its verdict.
const MaxTurns = 5

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func ValidSide(s string) bool {
	switch Side(s) {
	case SideA, SideB:
		return true
	}
	return false
}

// Winner is the side named on the verdict line, or a tie.
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

type CaseState string

const (
	CaseStateOpen            CaseState = "open"
	CaseStateVerdictRendered CaseState = "verdict_rendered"
	CaseStateDeliberating    CaseState = "deliberating"
	CaseStateConcluded       CaseState = "concluded"
)

var ErrEmptyEvidence = errors.New("evidence from at least one side is required")

type Evidence struct {
	Side    Side   `json:"side"`
	Content string `json:"content"`
}

type Turn struct {
	ID           uuid.UUID  `json:"id"`
	CaseID       uuid.UUID  `json:"case_id"`
	Side         Side       `json:"side"`
	Content      string     `json:"content"`
	Sequence     int        `json:"sequence"`
	Reevaluation *string    `json:"reevaluation,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
}

// Answered reports whether the oracle response for this turn was recorded.
func (t Turn) Answered() bool {
	return t.Reevaluation != nil
}

type Case struct {
	ID        uuid.UUID `json:"id"`
	Persona   string    `json:"persona"`
	EvidenceA string    `json:"evidence_a"`
	EvidenceB string    `json:"evidence_b"`
	Verdict   string    `json:"verdict"`
	Winner    Winner    `json:"winner"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// Evidence returns both evidence records, side A first.
func (c *Case) Evidence() []Evidence {
	return []Evidence{
		{Side: SideA, Content: c.EvidenceA},
		{Side: SideB, Content: c.EvidenceB},
	}
}

// State derives the deliberation state from the stored turn count.
// A persisted case always has a verdict, so it is never Open.
func (c *Case) State() CaseState {
	switch n := len(c.Turns); {
	case n == 0:
		return CaseStateVerdictRendered
	case n < MaxTurns:
		return CaseStateDeliberating
	default:
		return CaseStateConcluded
	}
}

func (c *Case) RemainingTurns() int {
	if r := MaxTurns - len(c.Turns); r > 0 {
		return r
	}
	return 0
}

// HasEvidence reports whether at least one side submitted non-blank evidence.
func HasEvidence(evidenceA, evidenceB string) bool {
	return strings.TrimSpace(evidenceA) != "" || strings.TrimSpace(evidenceB) != ""
}
