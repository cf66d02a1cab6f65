// Seed script for creating a demo case without calling an oracle.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Harshitk-cp/verdict/internal/config"
	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/prompt"
	"github.com/Harshitk-cp/verdict/internal/store"
	"github.com/Harshitk-cp/verdict/internal/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
)

const demoVerdict = "Side A kept receipts for every dinner, while Side B's contribution is real but unquantified.\n" +
	"VERDICT: A"

var demoTurns = []struct {
	side         domain.Side
	content      string
	reevaluation string
}{
	{domain.SideA, "The receipts are in the shared folder.", "The receipts confirm Side A's account.\nVERDICT: A"},
	{domain.SideB, "Grocery bills for the month are attached too.", "Both sides now document similar totals.\nVERDICT: TIE"},
}

func main() {
	_ = config.Load()
	ctx := context.Background()

	cs, closeStore, err := open(ctx)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	c := &domain.Case{
		Persona:   prompt.DefaultPersona(),
		EvidenceA: "I paid for the last three dinners.",
		EvidenceB: "I cooked every weekend this month.",
		Verdict:   demoVerdict,
		Winner:    prompt.ParseWinner(demoVerdict),
	}
	if err := cs.CreateCase(ctx, c); err != nil {
		log.Fatalf("create case: %v", err)
	}

	for _, t := range demoTurns {
		turn, ok, err := cs.AppendTurnIfUnderCap(ctx, c.ID, t.side, t.content, domain.MaxTurns)
		if err != nil || !ok {
			log.Fatalf("append turn: ok=%v err=%v", ok, err)
		}
		if err := cs.RecordReevaluation(ctx, turn.ID, t.reevaluation); err != nil {
			log.Fatalf("record re-evaluation: %v", err)
		}
	}

	fmt.Println("Seeded demo case")
	fmt.Printf("  Store:   %s\n", config.StoreDriver())
	fmt.Printf("  Case ID: %s\n", c.ID)
	fmt.Printf("  Turns:   %d of %d\n", len(demoTurns), domain.MaxTurns)
}

func open(ctx context.Context) (domain.CaseStore, func(), error) {
	if config.StoreDriver() == config.StoreDriverSQLite {
		s, err := sqlite.Open(config.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	if config.DatabaseURL() == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, config.DatabaseURL())
	if err != nil {
		return nil, nil, err
	}
	s := store.NewCaseStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}
