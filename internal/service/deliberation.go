package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/prompt"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultOracleTimeout = 30 * time.Second

type OpenCaseInput struct {
	EvidenceA string
	EvidenceB string
	Persona   string
}

type SubmitTurnResult struct {
	Turn           domain.Turn
	Response       string
	Side           domain.Side
	RemainingTurns int
}

type CaseView struct {
	Case           *domain.Case
	State          domain.CaseState
	RemainingTurns int
}

// DeliberationService runs the case lifecycle: opening a case with an
// initial verdict, then accepting at most domain.MaxTurns follow-up turns,
// each re-adjudicated by the oracle. The store is the only arbiter of turn
// order; nothing here is locked across an oracle call.
type DeliberationService struct {
	store     domain.CaseStore
	oracle    domain.OracleClient
	publisher domain.EventPublisher
	logger    *zap.Logger

	oracleTimeout time.Duration
}

func NewDeliberationService(cs domain.CaseStore, oc domain.OracleClient, logger *zap.Logger) *DeliberationService {
	return &DeliberationService{
		store:         cs,
		oracle:        oc,
		logger:        logger,
		oracleTimeout: defaultOracleTimeout,
	}
}

func (s *DeliberationService) SetPublisher(p domain.EventPublisher) {
	s.publisher = p
}

func (s *DeliberationService) SetOracleTimeout(d time.Duration) {
	if d > 0 {
		s.oracleTimeout = d
	}
}

// OpenCase obtains the initial verdict and persists the case only once the
// oracle has answered. A failed oracle call leaves nothing behind.
func (s *DeliberationService) OpenCase(ctx context.Context, in OpenCaseInput) (*domain.Case, error) {
	if !domain.HasEvidence(in.EvidenceA, in.EvidenceB) {
		return nil, invalid("evidence", domain.ErrEmptyEvidence.Error())
	}
	persona, err := prompt.LookupPersona(in.Persona)
	if err != nil {
		return nil, invalid("persona", fmt.Sprintf("unknown persona %q (valid: %s)", in.Persona, strings.Join(prompt.PersonaNames(), ", ")))
	}

	messages := prompt.BuildInitialPrompt(persona.Name, in.EvidenceA, in.EvidenceB)
	verdict, err := s.adjudicate(ctx, messages)
	if err != nil {
		s.logger.Warn("initial adjudication failed", zap.String("persona", persona.Name), zap.Error(err))
		return nil, newOracleError(err, nil)
	}

	c := &domain.Case{
		Persona:   persona.Name,
		EvidenceA: in.EvidenceA,
		EvidenceB: in.EvidenceB,
		Verdict:   verdict,
		Winner:    prompt.ParseWinner(verdict),
	}
	if err := s.store.CreateCase(ctx, c); err != nil {
		if errors.Is(err, domain.ErrEmptyEvidence) {
			return nil, invalid("evidence", err.Error())
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	c.Turns = []domain.Turn{}

	s.logger.Info("case opened",
		zap.String("case_id", c.ID.String()),
		zap.String("persona", c.Persona),
		zap.String("winner", string(c.Winner)))
	return c, nil
}

// SubmitTurn appends a turn for side and asks the oracle to re-evaluate.
// The turn is committed before the oracle is called. If the oracle then
// fails, the turn stays recorded without a response and an *OracleError
// with TurnAccepted set is returned.
func (s *DeliberationService) SubmitTurn(ctx context.Context, caseID uuid.UUID, side domain.Side, content string) (*SubmitTurnResult, error) {
	if !domain.ValidSide(string(side)) {
		return nil, invalid("side", "must be A or B")
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content", "is required")
	}

	turn, ok, err := s.store.AppendTurnIfUnderCap(ctx, caseID, side, content, domain.MaxTurns)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("append turn: %w", err)
	}
	if !ok {
		return nil, ErrCapExceeded
	}

	log := s.logger.With(
		zap.String("case_id", caseID.String()),
		zap.String("side", string(side)),
		zap.Int("sequence", turn.Sequence))
	remaining := domain.MaxTurns - turn.Sequence

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, s.unanswered(ctx, log, turn, remaining, fmt.Errorf("load case after append: %w", err))
	}

	messages := prompt.BuildReevaluationPrompt(prompt.ReevaluationInput{
		Persona:     c.Persona,
		EvidenceA:   c.EvidenceA,
		EvidenceB:   c.EvidenceB,
		Verdict:     c.Verdict,
		PriorTurns:  turnsBefore(c.Turns, turn.Sequence),
		NewSide:     turn.Side,
		NewContent:  turn.Content,
		NewSequence: turn.Sequence,
	})

	response, err := s.adjudicate(ctx, messages)
	if err != nil {
		return nil, s.unanswered(ctx, log, turn, remaining, err)
	}

	if err := s.store.RecordReevaluation(ctx, turn.ID, response); err != nil {
		log.Error("failed to record re-evaluation", zap.Error(err))
	} else {
		now := time.Now().UTC()
		turn.RespondedAt = &now
	}
	turn.Reevaluation = &response

	s.publish(ctx, domain.CaseEvent{
		Type:           domain.EventTurnReevaluated,
		CaseID:         caseID,
		Turn:           turn,
		RemainingTurns: remaining,
	})
	log.Info("turn re-evaluated", zap.Int("remaining_turns", remaining))

	return &SubmitTurnResult{
		Turn:           *turn,
		Response:       response,
		Side:           turn.Side,
		RemainingTurns: remaining,
	}, nil
}

// unanswered handles any failure after the turn was committed. The slot is
// spent, so the caller always learns the turn was accepted.
func (s *DeliberationService) unanswered(ctx context.Context, log *zap.Logger, turn *domain.Turn, remaining int, err error) error {
	log.Warn("re-evaluation failed, turn kept without response", zap.Error(err))
	s.publish(ctx, domain.CaseEvent{
		Type:           domain.EventTurnUnanswered,
		CaseID:         turn.CaseID,
		Turn:           turn,
		RemainingTurns: remaining,
	})
	return newOracleError(err, turn)
}

func (s *DeliberationService) GetCase(ctx context.Context, id uuid.UUID) (*CaseView, error) {
	c, err := s.store.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	return &CaseView{
		Case:           c,
		State:          c.State(),
		RemainingTurns: c.RemainingTurns(),
	}, nil
}

func (s *DeliberationService) adjudicate(ctx context.Context, messages []domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	out, err := s.oracle.Adjudicate(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", &domain.OracleFailure{Kind: domain.ErrOracleUnavailable, Provider: "oracle", Detail: "empty response"}
	}
	return out, nil
}

// publish is best effort; a missing observer never fails a turn.
func (s *DeliberationService) publish(ctx context.Context, evt domain.CaseEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("failed to publish case event",
			zap.String("case_id", evt.CaseID.String()),
			zap.String("type", string(evt.Type)),
			zap.Error(err))
	}
}

func turnsBefore(turns []domain.Turn, seq int) []domain.Turn {
	prior := make([]domain.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Sequence < seq {
			prior = append(prior, t)
		}
	}
	return prior
}
