package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/llm"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/Harshitk-cp/verdict/internal/store/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockCaseStore implements domain.CaseStore in memory. A single mutex makes
// every append linearizable, like the row lock in the real stores.
type mockCaseStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*domain.Case
}

func newMockCaseStore() *mockCaseStore {
	return &mockCaseStore{cases: make(map[uuid.UUID]*domain.Case)}
}

func (m *mockCaseStore) CreateCase(ctx context.Context, c *domain.Case) error {
	if !domain.HasEvidence(c.EvidenceA, c.EvidenceB) {
		return domain.ErrEmptyEvidence
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	stored := *c
	stored.Turns = nil
	m.cases[c.ID] = &stored
	return nil
}

func (m *mockCaseStore) GetCase(ctx context.Context, id uuid.UUID) (*domain.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *c
	out.Turns = append([]domain.Turn{}, c.Turns...)
	return &out, nil
}

func (m *mockCaseStore) AppendTurnIfUnderCap(ctx context.Context, caseID uuid.UUID, side domain.Side, content string, limit int) (*domain.Turn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if len(c.Turns) >= limit {
		return nil, false, nil
	}
	t := domain.Turn{
		ID:        uuid.New(),
		CaseID:    caseID,
		Side:      side,
		Content:   content,
		Sequence:  len(c.Turns) + 1,
		CreatedAt: time.Now().UTC(),
	}
	c.Turns = append(c.Turns, t)
	return &t, true, nil
}

func (m *mockCaseStore) RecordReevaluation(ctx context.Context, turnID uuid.UUID, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		for i := range c.Turns {
			if c.Turns[i].ID != turnID {
				continue
			}
			if c.Turns[i].Reevaluation != nil {
				return store.ErrConflict
			}
			r := response
			now := time.Now().UTC()
			c.Turns[i].Reevaluation = &r
			c.Turns[i].RespondedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockCaseStore) Ping(ctx context.Context) error { return nil }

func (m *mockCaseStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cases)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.CaseEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt domain.CaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) snapshot() []domain.CaseEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.CaseEvent{}, p.events...)
}

func newTestService(t *testing.T, cs domain.CaseStore) (*DeliberationService, *llm.MockClient) {
	t.Helper()
	oracle := llm.NewMockClient()
	return NewDeliberationService(cs, oracle, zap.NewNop()), oracle
}

func newSQLiteStore(t *testing.T) *sqlite.CaseStore {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "verdict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openTestCase(t *testing.T, s *DeliberationService) *domain.Case {
	t.Helper()
	c, err := s.OpenCase(context.Background(), OpenCaseInput{
		EvidenceA: "I paid for the last three dinners.",
		EvidenceB: "I cooked every weekend.",
	})
	require.NoError(t, err)
	return c
}

func TestDeliberationService_OpenCase(t *testing.T) {
	s, oracle := newTestService(t, newMockCaseStore())

	c := openTestCase(t, s)

	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, "mediator", c.Persona)
	assert.Equal(t, domain.WinnerA, c.Winner)
	assert.Contains(t, c.Verdict, "VERDICT: A")
	assert.Empty(t, c.Turns)
	assert.Equal(t, 1, oracle.CallCount())
}

func TestDeliberationService_OpenCaseValidation(t *testing.T) {
	cs := newMockCaseStore()
	s, oracle := newTestService(t, cs)
	ctx := context.Background()

	_, err := s.OpenCase(ctx, OpenCaseInput{EvidenceA: "  ", EvidenceB: "\n"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.OpenCase(ctx, OpenCaseInput{EvidenceA: "x", Persona: "pirate"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "persona", verr.Field)
	assert.Contains(t, verr.Reason, "mediator, judge, comedic")

	assert.Equal(t, 0, oracle.CallCount())
	assert.Equal(t, 0, cs.count())
}

func TestDeliberationService_OpenCaseOneSideEmpty(t *testing.T) {
	s, _ := newTestService(t, newMockCaseStore())

	c, err := s.OpenCase(context.Background(), OpenCaseInput{EvidenceA: "", EvidenceB: "only me", Persona: "judge"})
	require.NoError(t, err)
	assert.Equal(t, "judge", c.Persona)
}

func TestDeliberationService_OpenCaseOracleFailurePersistsNothing(t *testing.T) {
	cs := newMockCaseStore()
	s, oracle := newTestService(t, cs)
	oracle.SetError(&domain.OracleFailure{Kind: domain.ErrOracleRateLimited, Provider: "mock", Status: 429})

	_, err := s.OpenCase(context.Background(), OpenCaseInput{EvidenceA: "a", EvidenceB: "b"})

	var oerr *OracleError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, OracleRateLimited, oerr.Kind)
	assert.False(t, oerr.TurnAccepted)
	assert.Nil(t, oerr.Turn)
	assert.ErrorIs(t, err, ErrOracle)
	assert.NotContains(t, err.Error(), "429")
	assert.Equal(t, 0, cs.count())
}

func TestDeliberationService_SubmitTurnValidation(t *testing.T) {
	s, _ := newTestService(t, newMockCaseStore())
	c := openTestCase(t, s)
	ctx := context.Background()

	_, err := s.SubmitTurn(ctx, c.ID, domain.SideA, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.SubmitTurn(ctx, c.ID, domain.Side("C"), "hello")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.SubmitTurn(ctx, uuid.New(), domain.SideA, "hello")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestDeliberationService_SubmitTurnPromptContext(t *testing.T) {
	s, oracle := newTestService(t, newMockCaseStore())
	c := openTestCase(t, s)
	ctx := context.Background()

	_, err := s.SubmitTurn(ctx, c.ID, domain.SideA, "Here is the receipt.")
	require.NoError(t, err)
	res, err := s.SubmitTurn(ctx, c.ID, domain.SideB, "Groceries cost money too.")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Turn.Sequence)
	assert.Equal(t, domain.SideB, res.Side)
	assert.Equal(t, 3, res.RemainingTurns)

	calls := oracle.Calls()
	require.Len(t, calls, 3)
	user := calls[2][1].Content
	assert.Contains(t, user, c.Verdict[:10])
	assert.Contains(t, user, "<<<BEGIN TURN 1: SIDE A>>>\nHere is the receipt.\n<<<END TURN 1: SIDE A>>>")
	assert.Contains(t, user, "<<<BEGIN NEW TURN 2: SIDE B>>>\nGroceries cost money too.\n<<<END NEW TURN 2: SIDE B>>>")
	assert.NotContains(t, user, "<<<BEGIN TURN 2")
}

func TestDeliberationService_CapReachedSkipsOracle(t *testing.T) {
	cs := newMockCaseStore()
	s, oracle := newTestService(t, cs)
	c := openTestCase(t, s)
	ctx := context.Background()

	for i := 0; i < domain.MaxTurns; i++ {
		_, err := s.SubmitTurn(ctx, c.ID, domain.SideA, "point")
		require.NoError(t, err)
	}
	calls := oracle.CallCount()

	_, err := s.SubmitTurn(ctx, c.ID, domain.SideB, "one more")
	assert.ErrorIs(t, err, ErrCapExceeded)
	assert.Equal(t, calls, oracle.CallCount())

	view, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, view.Case.Turns, domain.MaxTurns)
	assert.Equal(t, domain.CaseStateConcluded, view.State)
	assert.Equal(t, 0, view.RemainingTurns)
}

func TestDeliberationService_ConcurrentSubmissions(t *testing.T) {
	stores := map[string]func(t *testing.T) domain.CaseStore{
		"mock":   func(t *testing.T) domain.CaseStore { return newMockCaseStore() },
		"sqlite": func(t *testing.T) domain.CaseStore { return newSQLiteStore(t) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestService(t, newStore(t))
			c := openTestCase(t, s)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted []int
				capped   int
				other    []error
			)
			for i := 0; i < 10; i++ {
				side := domain.SideA
				if i%2 == 1 {
					side = domain.SideB
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := s.SubmitTurn(context.Background(), c.ID, side, "statement")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						accepted = append(accepted, res.Turn.Sequence)
					case errors.Is(err, ErrCapExceeded):
						capped++
					default:
						other = append(other, err)
					}
				}()
			}
			wg.Wait()

			require.Empty(t, other)
			assert.Len(t, accepted, 5)
			assert.Equal(t, 5, capped)
			assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, accepted)

			view, err := s.GetCase(context.Background(), c.ID)
			require.NoError(t, err)
			require.Len(t, view.Case.Turns, 5)
			for i, turn := range view.Case.Turns {
				assert.Equal(t, i+1, turn.Sequence)
				assert.True(t, turn.Answered())
			}
		})
	}
}

func TestDeliberationService_EndToEnd(t *testing.T) {
	s, _ := newTestService(t, newSQLiteStore(t))
	pub := &recordingPublisher{}
	s.SetPublisher(pub)
	ctx := context.Background()

	c := openTestCase(t, s)
	view, err := s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStateVerdictRendered, view.State)

	sides := []domain.Side{domain.SideA, domain.SideB, domain.SideA, domain.SideB, domain.SideA}
	for i, side := range sides {
		res, err := s.SubmitTurn(ctx, c.ID, side, "turn "+string(side))
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Turn.Sequence)
		assert.Equal(t, domain.MaxTurns-i-1, res.RemainingTurns)
		assert.NotEmpty(t, res.Response)
	}

	_, err = s.SubmitTurn(ctx, c.ID, domain.SideB, "sixth")
	assert.ErrorIs(t, err, ErrCapExceeded)

	view, err = s.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStateConcluded, view.State)
	assert.Equal(t, c.Verdict, view.Case.Verdict, "re-evaluations never overwrite the verdict")
	for i, turn := range view.Case.Turns {
		assert.Equal(t, sides[i], turn.Side)
		require.NotNil(t, turn.Reevaluation)
	}

	events := pub.snapshot()
	require.Len(t, events, 5)
	for i, evt := range events {
		assert.Equal(t, domain.EventTurnReevaluated, evt.Type)
		assert.Equal(t, i+1, evt.Turn.Sequence)
	}
}

func TestDeliberationService_OracleTimeoutKeepsTurn(t *testing.T) {
	cs := newSQLiteStore(t)
	s, oracle := newTestService(t, cs)
	pub := &recordingPublisher{}
	s.SetPublisher(pub)
	s.SetOracleTimeout(20 * time.Millisecond)
	c := openTestCase(t, s)

	oracle.Respond = func(ctx context.Context, _ []domain.Message) (string, error) {
		<-ctx.Done()
		return "", &domain.OracleFailure{Kind: domain.ErrOracleTimeout, Provider: "mock", Detail: ctx.Err().Error()}
	}

	_, err := s.SubmitTurn(context.Background(), c.ID, domain.SideA, "are you there?")

	var oerr *OracleError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, OracleTimeout, oerr.Kind)
	assert.True(t, oerr.TurnAccepted)
	require.NotNil(t, oerr.Turn)
	assert.Equal(t, 1, oerr.Turn.Sequence)
	assert.ErrorIs(t, err, domain.ErrOracleTimeout)

	stored, err := cs.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Turns, 1)
	assert.False(t, stored.Turns[0].Answered())

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTurnUnanswered, events[0].Type)

	// The slot is spent: the next submission becomes turn 2.
	oracle.Respond = nil
	res, err := s.SubmitTurn(context.Background(), c.ID, domain.SideA, "are you there?")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Turn.Sequence)
}

// failingLoadStore commits appends but cannot read a case back.
type failingLoadStore struct {
	domain.CaseStore
	err error
}

func (s *failingLoadStore) GetCase(ctx context.Context, id uuid.UUID) (*domain.Case, error) {
	return nil, s.err
}

func TestDeliberationService_LoadFailureAfterAppendKeepsTurn(t *testing.T) {
	inner := newMockCaseStore()
	loadErr := errors.New("connection reset")
	s, oracle := newTestService(t, &failingLoadStore{CaseStore: inner, err: loadErr})
	pub := &recordingPublisher{}
	s.SetPublisher(pub)
	c := openTestCase(t, s)

	_, err := s.SubmitTurn(context.Background(), c.ID, domain.SideB, "my turn")

	var oerr *OracleError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, OracleUnavailable, oerr.Kind)
	assert.True(t, oerr.TurnAccepted)
	require.NotNil(t, oerr.Turn)
	assert.Equal(t, 1, oerr.Turn.Sequence)
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 1, oracle.CallCount(), "only the opening verdict reached the oracle")

	stored, err := inner.GetCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Turns, 1)

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTurnUnanswered, events[0].Type)
	assert.Equal(t, c.ID, events[0].CaseID)
	assert.Equal(t, domain.MaxTurns-1, events[0].RemainingTurns)
}

func TestDeliberationService_GetCaseNotFound(t *testing.T) {
	s, _ := newTestService(t, newMockCaseStore())

	_, err := s.GetCase(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestOracleKind(t *testing.T) {
	tests := []struct {
		err  error
		want OracleKind
	}{
		{&domain.OracleFailure{Kind: domain.ErrOracleTimeout}, OracleTimeout},
		{&domain.OracleFailure{Kind: domain.ErrOracleRateLimited}, OracleRateLimited},
		{&domain.OracleFailure{Kind: domain.ErrOracleUnavailable}, OracleUnavailable},
		{context.DeadlineExceeded, OracleTimeout},
		{errors.New("boom"), OracleUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, oracleKind(tt.err), "%v", tt.err)
	}

	assert.True(t, strings.HasPrefix((&OracleError{Kind: OracleTimeout}).Error(), "the judgment oracle"))
}
