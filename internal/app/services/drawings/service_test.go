package drawings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/ledger"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/payout"
	liquiditysvc "github.com/drawpool-labs/jackpot-engine/internal/app/services/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage/memory"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// fixedSource settles against a known outcome.
type fixedSource struct {
	numbers []int
	bonus   int
}

func (f fixedSource) Draw(context.Context, int, int) ([]int, error) {
	return append([]int(nil), f.numbers...), nil
}

func (f fixedSource) DrawBonus(context.Context, int) (int, error) { return f.bonus, nil }

type eventRecorder struct {
	mu     sync.Mutex
	events []drawing.Event
}

func (r *eventRecorder) Publish(evt drawing.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []drawing.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]drawing.EventType, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Type
	}
	return out
}

func testConfig() Config {
	var params payout.Params
	params.PremiumWeight[11] = fixedpoint.Unit
	return Config{
		Drawing: drawing.Config{
			NormalMax:   20,
			BonusMax:    5,
			PickSize:    5,
			TicketPrice: 10_000000,
		},
		ProtocolFeeFraction: fixedpoint.Unit / 10,
		Params:              params,
	}
}

func newTestEngine(t *testing.T, store storage.LiquidityStore, drawings storage.DrawingStore, tickets storage.TicketStore) (*Service, *liquiditysvc.Service) {
	t.Helper()
	pool := liquiditysvc.New(store, ledger.Config{}, nil)
	svc, err := New(drawings, tickets, pool, testConfig(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.AttachEntropy(fixedSource{numbers: []int{1, 2, 3, 4, 5}, bonus: 1})
	return svc, pool
}

func TestFullDrawingRound(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, pool := newTestEngine(t, store, store, store)

	if _, err := pool.Deposit(ctx, "lp-1", 1000_000000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	opened, err := svc.OpenDrawing(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.ID != 0 || opened.Status != drawing.StatusOpen {
		t.Fatalf("unexpected genesis drawing: %+v", opened)
	}

	alice, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1)
	if err != nil {
		t.Fatalf("alice purchase: %v", err)
	}
	if alice.Duplicate {
		t.Fatal("first combination flagged duplicate")
	}
	// Same combination in a different order is the same ticket.
	bob, err := svc.PurchaseTicket(ctx, "bob", []int{5, 4, 3, 2, 1}, 1)
	if err != nil {
		t.Fatalf("bob purchase: %v", err)
	}
	if !bob.Duplicate {
		t.Fatal("reordered combination not flagged duplicate")
	}
	carol, err := svc.PurchaseTicket(ctx, "carol", []int{6, 7, 8, 9, 10}, 2)
	if err != nil {
		t.Fatalf("carol purchase: %v", err)
	}

	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.TicketsSold != 2 || cur.DuplicatesSold != 1 || cur.TicketRevenue != 30_000000 {
		t.Fatalf("sale counters = %d/%d/%d, want 2/1/30_000000",
			cur.TicketsSold, cur.DuplicatesSold, cur.TicketRevenue)
	}

	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Revenue 30, fee 3, pool contribution 0: the LP deposit is still
	// pending and joins only at this settlement.
	settled, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := settled.WinningNumbers; len(got) != 5 || got[0] != 1 || got[4] != 5 {
		t.Fatalf("winning numbers = %v", got)
	}
	if settled.WinningBonus != 1 {
		t.Fatalf("winning bonus = %d, want 1", settled.WinningBonus)
	}
	if settled.ProtocolFee != 3_000000 {
		t.Fatalf("protocol fee = %d, want 3_000000", settled.ProtocolFee)
	}
	if settled.PrizePool != 27_000000 {
		t.Fatalf("prize pool = %d, want 27_000000", settled.PrizePool)
	}
	// Jackpot tier divides by one theoretical combination plus one
	// duplicate sold.
	if settled.Payouts[11] != 13_500000 {
		t.Fatalf("jackpot payout = %d, want 13_500000", settled.Payouts[11])
	}
	if settled.TotalUserPayout != 27_000000 {
		t.Fatalf("total payout = %d, want 27_000000", settled.TotalUserPayout)
	}

	// Settlement rolled the pool and opened the next drawing.
	cur, err = svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current after settle: %v", err)
	}
	if cur.ID != 1 || cur.Status != drawing.StatusOpen {
		t.Fatalf("drawing after settle = %d %s, want 1 open", cur.ID, cur.Status)
	}
	if got := pool.CurrentDrawing(); got != 1 {
		t.Fatalf("pool drawing = %d, want 1", got)
	}
	state, err := pool.DrawingState(ctx, 1)
	if err != nil {
		t.Fatalf("pool state: %v", err)
	}
	if state.PoolTotal != 1000_000000 {
		t.Fatalf("pool total = %d, want 1000_000000", state.PoolTotal)
	}

	claimed, err := svc.ClaimPrize(ctx, alice.ID)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if claimed.ClaimedAmount != 13_500000 || !claimed.Claimed || claimed.ClaimedAt == nil {
		t.Fatalf("unexpected claim: %+v", claimed)
	}
	if _, err := svc.ClaimPrize(ctx, alice.ID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim error = %v, want ErrAlreadyClaimed", err)
	}
	if claimed, err = svc.ClaimPrize(ctx, bob.ID); err != nil || claimed.ClaimedAmount != 13_500000 {
		t.Fatalf("duplicate claim = %+v, %v, want 13_500000", claimed, err)
	}
	if _, err := svc.ClaimPrize(ctx, carol.ID); !errors.Is(err, ErrNoPrize) {
		t.Fatalf("losing claim error = %v, want ErrNoPrize", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.CurrentDrawing != 1 || stats.DrawingsSettled != 1 || stats.PayoutTotal != 27_000000 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.PoolValue != 1000_000000 {
		t.Fatalf("stats pool value = %d, want 1000_000000", stats.PoolValue)
	}
}

func TestDrawingRoundWithoutWinners(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, pool := newTestEngine(t, store, store, store)

	if _, err := pool.Deposit(ctx, "lp-1", 1000_000000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	dave, err := svc.PurchaseTicket(ctx, "dave", []int{1, 2, 3, 4, 5}, 1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc.AttachEntropy(fixedSource{numbers: []int{16, 17, 18, 19, 20}, bonus: 5})
	settled, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	// Pool 0 plus revenue 10 minus fee 1; nothing owed since no ticket
	// sits in a weighted tier.
	if settled.PrizePool != 9_000000 || settled.TotalUserPayout != 0 {
		t.Fatalf("prize pool/payout = %d/%d, want 9_000000/0", settled.PrizePool, settled.TotalUserPayout)
	}
	if settled.Payouts[11] != 9_000000 {
		t.Fatalf("advertised jackpot = %d, want 9_000000", settled.Payouts[11])
	}
	if _, err := svc.ClaimPrize(ctx, dave.ID); !errors.Is(err, ErrNoPrize) {
		t.Fatalf("claim error = %v, want ErrNoPrize", err)
	}

	// The unclaimed prize pool carries into drawing 1 with the deposit.
	state, err := pool.DrawingState(ctx, 1)
	if err != nil {
		t.Fatalf("pool state: %v", err)
	}
	if state.PoolTotal != 1009_000000 {
		t.Fatalf("pool total = %d, want 1009_000000", state.PoolTotal)
	}
}

func TestPurchaseValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)

	if _, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1); !errors.Is(err, ErrNoDrawing) {
		t.Fatalf("purchase before open = %v, want ErrNoDrawing", err)
	}
	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	cases := []struct {
		name    string
		account string
		numbers []int
		bonus   int
		want    error
	}{
		{"short pick", "alice", []int{1, 2, 3, 4}, 1, ticket.ErrPickCount},
		{"long pick", "alice", []int{1, 2, 3, 4, 5, 6}, 1, ticket.ErrPickCount},
		{"number too large", "alice", []int{1, 2, 3, 4, 21}, 1, ticket.ErrNumberOutOfRange},
		{"number zero", "alice", []int{0, 2, 3, 4, 5}, 1, ticket.ErrNumberOutOfRange},
		{"repeated number", "alice", []int{1, 2, 3, 4, 4}, 1, ticket.ErrDuplicateNumber},
		{"bonus zero", "alice", []int{1, 2, 3, 4, 5}, 0, ticket.ErrNumberOutOfRange},
		{"bonus too large", "alice", []int{1, 2, 3, 4, 5}, 6, ticket.ErrNumberOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.PurchaseTicket(ctx, tc.account, tc.numbers, tc.bonus); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
	if _, err := svc.PurchaseTicket(ctx, "   ", []int{1, 2, 3, 4, 5}, 1); err == nil {
		t.Fatal("blank account accepted")
	}

	// Rejected purchases left no trace in the counters.
	if _, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1); err != nil {
		t.Fatalf("valid purchase: %v", err)
	}
	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.TicketsSold != 1 || cur.DuplicatesSold != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", cur.TicketsSold, cur.DuplicatesSold)
	}

	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.PurchaseTicket(ctx, "alice", []int{6, 7, 8, 9, 10}, 1); !errors.Is(err, ErrSalesClosed) {
		t.Fatalf("purchase after close = %v, want ErrSalesClosed", err)
	}
}

func TestSettleGuards(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)

	if _, err := svc.Settle(ctx); !errors.Is(err, ErrNoDrawing) {
		t.Fatalf("settle without drawing = %v, want ErrNoDrawing", err)
	}
	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Settle(ctx); !errors.Is(err, ErrNotClosed) {
		t.Fatalf("settle while open = %v, want ErrNotClosed", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.OpenDrawing(ctx); err == nil {
		t.Fatal("opened on top of a closed drawing")
	}
}

func TestHaltGatesLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, pool := newTestEngine(t, store, store, store)

	if _, err := pool.Deposit(ctx, "lp-1", 100_000000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	winner, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := svc.EmergencyUnwind(ctx, "lp-1"); !errors.Is(err, ErrNotHalted) {
		t.Fatalf("unwind before halt = %v, want ErrNotHalted", err)
	}
	if err := svc.Halt(ctx); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if err := svc.Halt(ctx); !errors.Is(err, ErrHalted) {
		t.Fatalf("second halt = %v, want ErrHalted", err)
	}
	if !svc.Halted() {
		t.Fatal("halted flag not set")
	}

	if _, err := svc.OpenDrawing(ctx); !errors.Is(err, ErrHalted) {
		t.Fatalf("open while halted = %v, want ErrHalted", err)
	}
	if _, err := svc.PurchaseTicket(ctx, "bob", []int{1, 2, 3, 4, 5}, 1); !errors.Is(err, ErrHalted) {
		t.Fatalf("purchase while halted = %v, want ErrHalted", err)
	}
	if _, err := svc.CloseDrawing(ctx); !errors.Is(err, ErrHalted) {
		t.Fatalf("close while halted = %v, want ErrHalted", err)
	}
	if _, err := svc.Settle(ctx); !errors.Is(err, ErrHalted) {
		t.Fatalf("settle while halted = %v, want ErrHalted", err)
	}

	// Claims and the emergency exit stay open.
	claimed, err := svc.ClaimPrize(ctx, winner.ID)
	if err != nil {
		t.Fatalf("claim while halted: %v", err)
	}
	if claimed.ClaimedAmount != 9_000000 {
		t.Fatalf("claimed = %d, want 9_000000", claimed.ClaimedAmount)
	}
	owed, err := svc.EmergencyUnwind(ctx, "lp-1")
	if err != nil {
		t.Fatalf("unwind: %v", err)
	}
	if owed != 100_000000 {
		t.Fatalf("unwound = %d, want 100_000000", owed)
	}
	if _, err := pool.Position(ctx, "lp-1"); err == nil {
		t.Fatal("position survived the unwind")
	}
}

func TestRestoreReplaysOpenDrawing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc1, _ := newTestEngine(t, store, store, store)

	if _, err := svc1.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc1.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1); err != nil {
		t.Fatalf("alice purchase: %v", err)
	}
	if _, err := svc1.PurchaseTicket(ctx, "carol", []int{6, 7, 8, 9, 10}, 2); err != nil {
		t.Fatalf("carol purchase: %v", err)
	}

	svc2, _ := newTestEngine(t, store, store, store)
	if err := svc2.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	cur, err := svc2.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != 0 || cur.Status != drawing.StatusOpen || cur.TicketsSold != 2 {
		t.Fatalf("restored drawing = %+v", cur)
	}

	// The replayed tracker still knows alice's combination.
	dup, err := svc2.PurchaseTicket(ctx, "bob", []int{1, 2, 3, 4, 5}, 1)
	if err != nil {
		t.Fatalf("purchase after restore: %v", err)
	}
	if !dup.Duplicate {
		t.Fatal("duplicate not detected after restore")
	}
}

func TestRestoreOpensGenesisDrawing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)

	if err := svc.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != 0 || cur.Status != drawing.StatusOpen {
		t.Fatalf("genesis drawing = %+v", cur)
	}
}

// flakyLiquidityStore fails the first accumulator insert, leaving a
// settled drawing record with no pool roll behind it.
type flakyLiquidityStore struct {
	*memory.Store
	failures int
}

func (f *flakyLiquidityStore) CreateAccumulator(ctx context.Context, acc liquidity.Accumulator) (liquidity.Accumulator, error) {
	if f.failures > 0 {
		f.failures--
		return liquidity.Accumulator{}, errors.New("store offline")
	}
	return f.Store.CreateAccumulator(ctx, acc)
}

func buildPartialSettlement(t *testing.T, base *memory.Store) {
	t.Helper()
	ctx := context.Background()
	fs := &flakyLiquidityStore{Store: base, failures: 1}
	svc, _ := newTestEngine(t, fs, base, base)

	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err == nil {
		t.Fatal("settle succeeded despite pool write failure")
	}

	rec, err := base.GetDrawing(ctx, 0)
	if err != nil {
		t.Fatalf("get drawing: %v", err)
	}
	if rec.Status != drawing.StatusSettled {
		t.Fatalf("drawing status = %s, want settled", rec.Status)
	}
}

func TestSettleRetryCompletesForward(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	fs := &flakyLiquidityStore{Store: base, failures: 1}
	svc, pool := newTestEngine(t, fs, base, base)

	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err == nil {
		t.Fatal("settle succeeded despite pool write failure")
	}
	if got := pool.CurrentDrawing(); got != 0 {
		t.Fatalf("pool drawing after failure = %d, want 0", got)
	}

	// The retry finishes the committed settlement without redrawing.
	settled, err := svc.Settle(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if settled.ID != 0 || settled.Status != drawing.StatusSettled || settled.WinningBonus != 1 {
		t.Fatalf("retry returned %+v", settled)
	}
	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != 1 || cur.Status != drawing.StatusOpen {
		t.Fatalf("drawing after retry = %d %s, want 1 open", cur.ID, cur.Status)
	}
	if got := pool.CurrentDrawing(); got != 1 {
		t.Fatalf("pool drawing after retry = %d, want 1", got)
	}
}

func TestRestoreFinishesPartialSettlement(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	buildPartialSettlement(t, base)

	svc, pool := newTestEngine(t, base, base, base)
	if err := svc.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.ID != 1 || cur.Status != drawing.StatusOpen {
		t.Fatalf("drawing after restore = %d %s, want 1 open", cur.ID, cur.Status)
	}
	if got := pool.CurrentDrawing(); got != 1 {
		t.Fatalf("pool drawing = %d, want 1", got)
	}
	acc, err := pool.Accumulator(ctx, 0)
	if err != nil {
		t.Fatalf("accumulator: %v", err)
	}
	if acc.Price.String() != "1000000000000000000" {
		t.Fatalf("accumulator = %s, want one unit", acc.Price)
	}
}

func TestEventsEmitted(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)
	recorder := &eventRecorder{}
	svc.AttachEvents(recorder)

	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := svc.Halt(ctx); err != nil {
		t.Fatalf("halt: %v", err)
	}

	want := []drawing.EventType{
		drawing.EventOpened,
		drawing.EventClosed,
		drawing.EventSettled,
		drawing.EventOpened,
		drawing.EventHalted,
	}
	got := recorder.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	settledEvt := recorder.events[2]
	if settledEvt.Drawing == nil || settledEvt.Drawing.Status != drawing.StatusSettled {
		t.Fatalf("settled event missing drawing payload: %+v", settledEvt)
	}
	if recorder.events[0].Drawing != nil {
		t.Fatal("opened event carries a drawing payload")
	}
}

func TestTierParamsFreezePerDrawing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)

	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	next := testConfig().Params
	next.PremiumWeight[11] = fixedpoint.Unit / 2
	next.PremiumWeight[10] = fixedpoint.Unit - fixedpoint.Unit/2
	if err := svc.UpdateTierParams(next); err != nil {
		t.Fatalf("update params: %v", err)
	}

	bad := next
	bad.PremiumWeight[10] = 0
	if err := svc.UpdateTierParams(bad); !errors.Is(err, payout.ErrWeightsNotUnity) {
		t.Fatalf("invalid params = %v, want ErrWeightsNotUnity", err)
	}

	cur, err := svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Tiers.PremiumWeight[11] != fixedpoint.Unit {
		t.Fatalf("open drawing snapshot changed: %d", cur.Tiers.PremiumWeight[11])
	}

	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
	cur, err = svc.CurrentDrawing()
	if err != nil {
		t.Fatalf("current after settle: %v", err)
	}
	if cur.Tiers.PremiumWeight[11] != fixedpoint.Unit/2 {
		t.Fatalf("next drawing snapshot = %d, want half unit", cur.Tiers.PremiumWeight[11])
	}
}

func TestDrawingConfigAppliesToNextDrawing(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestEngine(t, store, store, store)

	if _, err := svc.OpenDrawing(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	invalid := testConfig().Drawing
	invalid.PickSize = 4
	if err := svc.SetDrawingConfig(invalid); err == nil {
		t.Fatal("pick size 4 accepted")
	}

	next := testConfig().Drawing
	next.TicketPrice = 20_000000
	if err := svc.SetDrawingConfig(next); err != nil {
		t.Fatalf("set config: %v", err)
	}

	tk, err := svc.PurchaseTicket(ctx, "alice", []int{6, 7, 8, 9, 10}, 2)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if tk.Price != 10_000000 {
		t.Fatalf("open drawing price = %d, want 10_000000", tk.Price)
	}

	if _, err := svc.CloseDrawing(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	tk, err = svc.PurchaseTicket(ctx, "alice", []int{6, 7, 8, 9, 10}, 2)
	if err != nil {
		t.Fatalf("purchase in drawing 1: %v", err)
	}
	if tk.Price != 20_000000 {
		t.Fatalf("next drawing price = %d, want 20_000000", tk.Price)
	}
}

func ExampleService() {
	log := logger.NewDefault("example")
	log.SetOutput(io.Discard)

	ctx := context.Background()
	store := memory.New()
	pool := liquiditysvc.New(store, ledger.Config{}, log)
	svc, _ := New(store, store, pool, testConfig(), log)
	svc.AttachEntropy(fixedSource{numbers: []int{1, 2, 3, 4, 5}, bonus: 1})

	pool.Deposit(ctx, "lp-1", 1000_000000)
	svc.OpenDrawing(ctx)
	tk, _ := svc.PurchaseTicket(ctx, "alice", []int{1, 2, 3, 4, 5}, 1)
	svc.CloseDrawing(ctx)
	settled, _ := svc.Settle(ctx)
	claimed, _ := svc.ClaimPrize(ctx, tk.ID)

	fmt.Printf("prize:%d claimed:%d\n", settled.PrizePool, claimed.ClaimedAmount)
	// Output:
	// prize:9000000 claimed:9000000
}
