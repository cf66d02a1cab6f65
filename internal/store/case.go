package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// maxAppendAttempts bounds retries when a concurrent append wins the
// (case_id, seq) slot or the transaction is chosen as a deadlock victim.
const maxAppendAttempts = 5

type CaseStore struct {
	db *pgxpool.Pool
}

func NewCaseStore(db *pgxpool.Pool) *CaseStore {
	return &CaseStore{db: db}
}

// Migrate applies the embedded schema. Safe to run on every start.
func (s *CaseStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *CaseStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *CaseStore) CreateCase(ctx context.Context, c *domain.Case) error {
	if !domain.HasEvidence(c.EvidenceA, c.EvidenceB) {
		return domain.ErrEmptyEvidence
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO cases (persona, verdict, winner)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.Persona, c.Verdict, c.Winner,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}

	for _, ev := range c.Evidence() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO evidence (case_id, side, content) VALUES ($1, $2, $3)`,
			c.ID, ev.Side, ev.Content,
		); err != nil {
			return fmt.Errorf("insert evidence %s: %w", ev.Side, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	c.Turns = []domain.Turn{}
	return nil
}

func (s *CaseStore) GetCase(ctx context.Context, id uuid.UUID) (*domain.Case, error) {
	// Repeatable read pins every statement below to one snapshot, so a
	// turn committed mid-read never shows up half way through the list.
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c := &domain.Case{}
	err = tx.QueryRow(ctx,
		`SELECT id, persona, verdict, winner, created_at FROM cases WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Persona, &c.Verdict, &c.Winner, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT side, content FROM evidence WHERE case_id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var side domain.Side
		var content string
		if err := rows.Scan(&side, &content); err != nil {
			rows.Close()
			return nil, err
		}
		switch side {
		case domain.SideA:
			c.EvidenceA = content
		case domain.SideB:
			c.EvidenceB = content
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.Turns, err = listTurns(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func listTurns(ctx context.Context, tx pgx.Tx, caseID uuid.UUID) ([]domain.Turn, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, case_id, side, content, seq, reevaluation, created_at, responded_at
		 FROM turns WHERE case_id = $1
		 ORDER BY seq ASC`,
		caseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.ID, &t.CaseID, &t.Side, &t.Content, &t.Sequence, &t.Reevaluation, &t.CreatedAt, &t.RespondedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *CaseStore) AppendTurnIfUnderCap(ctx context.Context, caseID uuid.UUID, side domain.Side, content string, limit int) (*domain.Turn, bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		turn, ok, err := s.appendTurn(ctx, caseID, side, content, limit)
		if err == nil {
			return turn, ok, nil
		}
		if !retryable(err) {
			return nil, false, err
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("append turn: retries exhausted: %w", lastErr)
}

func (s *CaseStore) appendTurn(ctx context.Context, caseID uuid.UUID, side domain.Side, content string, limit int) (*domain.Turn, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The case row lock serialises appenders for this case until commit.
	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM cases WHERE id = $1 FOR UPDATE`,
		caseID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM turns WHERE case_id = $1`,
		caseID,
	).Scan(&count); err != nil {
		return nil, false, err
	}
	if count >= limit {
		return nil, false, nil
	}

	t := &domain.Turn{
		CaseID:   caseID,
		Side:     side,
		Content:  content,
		Sequence: count + 1,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO turns (case_id, side, content, seq)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.CaseID, t.Side, t.Content, t.Sequence,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *CaseStore) RecordReevaluation(ctx context.Context, turnID uuid.UUID, response string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE turns SET reevaluation = $2, responded_at = NOW()
		 WHERE id = $1 AND reevaluation IS NULL`,
		turnID, response,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM turns WHERE id = $1)`,
		turnID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
