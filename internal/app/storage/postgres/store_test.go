package postgres

import (
	"context"
	"database/sql"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/platform/migrations"
	_ "github.com/lib/pq"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	// Leftovers from an earlier run collide with the fixed test ids.
	for _, stmt := range []string{
		`DELETE FROM jackpot_tickets WHERE drawing_id = 900001`,
		`DELETE FROM jackpot_accumulators WHERE drawing_id = 900001`,
		`DELETE FROM jackpot_drawing_states WHERE drawing_id = 900001`,
		`DELETE FROM jackpot_positions WHERE lp = 'lp-int-1'`,
		`DELETE FROM jackpot_drawings WHERE id = 900001`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	}

	store := New(db)

	d := drawing.Drawing{
		ID:     900001,
		Status: drawing.StatusOpen,
		Config: drawing.Config{NormalMax: 30, BonusMax: 10, PickSize: 5, TicketPrice: 2_000000},
		Tiers: drawing.TierSnapshot{
			MinPayout:                    1_000000,
			PremiumMinAllocationFraction: 500_000_000_000_000_000,
		},
		OpenedAt: time.Now().UTC(),
	}
	d.Tiers.PremiumWeight[11] = 1_000_000_000_000_000_000

	created, err := store.CreateDrawing(ctx, d)
	if err != nil {
		t.Fatalf("create drawing: %v", err)
	}

	created.Status = drawing.StatusSettled
	created.WinningNumbers = []int{3, 9, 14, 22, 30}
	created.WinningBonus = 7
	created.Payouts[11] = 500_000000
	now := time.Now().UTC()
	created.SettledAt = &now
	updated, err := store.UpdateDrawing(ctx, created)
	if err != nil {
		t.Fatalf("update drawing: %v", err)
	}

	got, err := store.GetDrawing(ctx, updated.ID)
	if err != nil {
		t.Fatalf("get drawing: %v", err)
	}
	if got.Status != drawing.StatusSettled || got.Payouts[11] != 500_000000 {
		t.Errorf("drawing round trip mismatch: %+v", got)
	}
	if got.Tiers.PremiumWeight[11] != 1_000_000_000_000_000_000 {
		t.Errorf("tier snapshot lost: %+v", got.Tiers)
	}
	if len(got.WinningNumbers) != 5 || got.WinningNumbers[4] != 30 {
		t.Errorf("winning numbers lost: %v", got.WinningNumbers)
	}

	tk, err := store.CreateTicket(ctx, ticket.Ticket{
		DrawingID: got.ID,
		AccountID: "acct-1",
		Numbers:   []int{3, 9, 14, 22, 30},
		Bonus:     7,
		Price:     2_000000,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	tk.Claimed = true
	tk.ClaimedAmount = 500_000000
	tk.ClaimedAt = &now
	if _, err := store.UpdateTicket(ctx, tk); err != nil {
		t.Fatalf("update ticket: %v", err)
	}
	listed, err := store.ListTickets(ctx, got.ID)
	if err != nil {
		t.Fatalf("list tickets: %v", err)
	}
	if len(listed) == 0 || !listed[0].Claimed || listed[0].ClaimedAt == nil {
		t.Errorf("ticket round trip mismatch: %+v", listed)
	}

	pos := liquidity.Position{
		LP:                 "lp-int-1",
		ConsolidatedShares: 1_000_000000,
		LastDeposit:        liquidity.PendingDeposit{Amount: 50_000000, DrawingID: got.ID},
	}
	if _, err := store.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("upsert position: %v", err)
	}
	pos.ClaimableWithdrawals = 7_000000
	if _, err := store.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("second upsert position: %v", err)
	}
	gotPos, err := store.GetPosition(ctx, pos.LP)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if gotPos.ClaimableWithdrawals != 7_000000 || gotPos.LastDeposit.Amount != 50_000000 {
		t.Errorf("position round trip mismatch: %+v", gotPos)
	}

	price, _ := big.NewInt(0).SetString("12345678901234567890123456789", 10)
	if _, err := store.CreateAccumulator(ctx, liquidity.Accumulator{DrawingID: got.ID, Price: price}); err != nil {
		t.Fatalf("create accumulator: %v", err)
	}
	gotAcc, err := store.GetAccumulator(ctx, got.ID)
	if err != nil {
		t.Fatalf("get accumulator: %v", err)
	}
	if gotAcc.Price.Cmp(price) != 0 {
		t.Errorf("accumulator price round trip mismatch: %s", gotAcc.Price)
	}

	if _, err := store.UpsertDrawingState(ctx, liquidity.DrawingState{DrawingID: got.ID, PoolTotal: 900_000000}); err != nil {
		t.Fatalf("upsert drawing state: %v", err)
	}
	state, err := store.GetDrawingState(ctx, got.ID)
	if err != nil {
		t.Fatalf("get drawing state: %v", err)
	}
	if state.PoolTotal != 900_000000 {
		t.Errorf("drawing state round trip mismatch: %+v", state)
	}

	if err := store.DeletePosition(ctx, pos.LP); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	if _, err := store.GetPosition(ctx, pos.LP); err != sql.ErrNoRows {
		t.Errorf("get deleted position error = %v, want sql.ErrNoRows", err)
	}
}
