package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

type CaseStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
// Safe to call repeatedly on the same file.
func Open(path string) (*CaseStore, error) {
	// '?' and '#' in the path would otherwise start the query or fragment.
	escaped := (&url.URL{Path: path}).EscapedPath()
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", escaped)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &CaseStore{db: db, now: time.Now}, nil
}

func (s *CaseStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *CaseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *CaseStore) CreateCase(ctx context.Context, c *domain.Case) error {
	if !domain.HasEvidence(c.EvidenceA, c.EvidenceB) {
		return domain.ErrEmptyEvidence
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New()
	createdAt := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cases (id, persona, verdict, winner, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), c.Persona, c.Verdict, string(c.Winner), createdAt,
	); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}

	for _, ev := range c.Evidence() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO evidence (case_id, side, content) VALUES (?, ?, ?)`,
			id.String(), string(ev.Side), ev.Content,
		); err != nil {
			return fmt.Errorf("insert evidence %s: %w", ev.Side, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = createdAt
	c.Turns = []domain.Turn{}
	return nil
}

func (s *CaseStore) GetCase(ctx context.Context, id uuid.UUID) (*domain.Case, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	c := &domain.Case{ID: id}
	var winner string
	err = tx.QueryRowContext(ctx,
		`SELECT persona, verdict, winner, created_at FROM cases WHERE id = ?`,
		id.String(),
	).Scan(&c.Persona, &c.Verdict, &winner, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Winner = domain.Winner(winner)

	rows, err := tx.QueryContext(ctx,
		`SELECT side, content FROM evidence WHERE case_id = ?`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var side, content string
		if err := rows.Scan(&side, &content); err != nil {
			_ = rows.Close()
			return nil, err
		}
		switch domain.Side(side) {
		case domain.SideA:
			c.EvidenceA = content
		case domain.SideB:
			c.EvidenceB = content
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	c.Turns, err = listTurns(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func listTurns(ctx context.Context, tx *sql.Tx, caseID uuid.UUID) ([]domain.Turn, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, side, content, seq, reevaluation, created_at, responded_at
		 FROM turns WHERE case_id = ?
		 ORDER BY seq ASC`,
		caseID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	turns := []domain.Turn{}
	for rows.Next() {
		var (
			id, side     string
			reevaluation sql.NullString
			respondedAt  sql.NullTime
		)
		t := domain.Turn{CaseID: caseID}
		if err := rows.Scan(&id, &side, &t.Content, &t.Sequence, &reevaluation, &t.CreatedAt, &respondedAt); err != nil {
			return nil, err
		}
		t.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse turn id: %w", err)
		}
		t.Side = domain.Side(side)
		if reevaluation.Valid {
			t.Reevaluation = &reevaluation.String
		}
		if respondedAt.Valid {
			t.RespondedAt = &respondedAt.Time
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *CaseStore) AppendTurnIfUnderCap(ctx context.Context, caseID uuid.UUID, side domain.Side, content string, limit int) (*domain.Turn, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cases WHERE id = ?)`,
		caseID.String(),
	).Scan(&exists); err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, store.ErrNotFound
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE case_id = ?`,
		caseID.String(),
	).Scan(&count); err != nil {
		return nil, false, err
	}
	if count >= limit {
		return nil, false, nil
	}

	t := &domain.Turn{
		ID:        uuid.New(),
		CaseID:    caseID,
		Side:      side,
		Content:   content,
		Sequence:  count + 1,
		CreatedAt: s.now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (id, case_id, side, content, seq, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), caseID.String(), string(side), content, t.Sequence, t.CreatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *CaseStore) RecordReevaluation(ctx context.Context, turnID uuid.UUID, response string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE turns SET reevaluation = ?, responded_at = ?
		 WHERE id = ? AND reevaluation IS NULL`,
		response, s.now().UTC(), turnID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM turns WHERE id = ?)`,
			turnID.String(),
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return tx.Commit()
}
