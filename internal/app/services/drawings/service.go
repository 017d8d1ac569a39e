// Package drawings implements the drawing lifecycle orchestrator. It
// owns the sale window, the settlement sequence and the claim path,
// and drives the combination tracker, the payout calculator and the
// liquidity pool in a fixed order.
package drawings

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/payout"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/tracker"
	"github.com/drawpool-labs/jackpot-engine/internal/app/metrics"
	"github.com/drawpool-labs/jackpot-engine/internal/app/services/entropy"
	liquiditysvc "github.com/drawpool-labs/jackpot-engine/internal/app/services/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

var (
	// ErrHalted rejects lifecycle operations on a halted engine.
	ErrHalted = errors.New("engine halted")
	// ErrNotHalted rejects the emergency path on a running engine.
	ErrNotHalted = errors.New("engine not halted")
	// ErrNoDrawing is returned when no drawing has been opened yet.
	ErrNoDrawing = errors.New("no active drawing")
	// ErrSalesClosed rejects purchases outside an open sale window.
	ErrSalesClosed = errors.New("drawing not open for sales")
	// ErrNotClosed rejects settling a drawing still selling tickets.
	ErrNotClosed = errors.New("drawing not closed")
	// ErrNotSettled rejects claims against an unsettled drawing.
	ErrNotSettled = errors.New("drawing not settled")
	// ErrAlreadyClaimed rejects a second claim on one ticket.
	ErrAlreadyClaimed = errors.New("ticket already claimed")
	// ErrNoPrize rejects claiming a ticket whose tier pays nothing.
	ErrNoPrize = errors.New("ticket did not win")
	// ErrSettlementLocked means another settlement attempt holds the
	// drawing's lock.
	ErrSettlementLocked = errors.New("settlement already in progress")
)

// EventSink receives drawing lifecycle events. Publish must not block;
// the stream hub buffers and drops for slow consumers.
type EventSink interface {
	Publish(evt drawing.Event)
}

// Config carries the orchestrator's admin-settable knobs. Drawing and
// Params apply to drawings opened after a change, never retroactively.
type Config struct {
	// Drawing fixes the number ranges and ticket price of newly
	// opened drawings.
	Drawing drawing.Config
	// ProtocolFeeFraction of ticket revenue is taken at settlement,
	// in the 10^18 scale.
	ProtocolFeeFraction uint64
	// Params are the initial tier payout parameters.
	Params payout.Params
}

func validateDrawingConfig(cfg drawing.Config) error {
	trackerCfg := tracker.Config{
		NormalMax: cfg.NormalMax,
		BonusMax:  cfg.BonusMax,
		PickSize:  cfg.PickSize,
	}
	if err := trackerCfg.Validate(); err != nil {
		return err
	}
	if cfg.TicketPrice == 0 {
		return fmt.Errorf("ticket price must be positive")
	}
	return nil
}

// Service is the orchestrator. The open drawing's record and tracker
// live in memory as the authority; tickets are the only per-purchase
// write, and the record is persisted at every lifecycle transition.
type Service struct {
	mu      sync.Mutex
	cfg     drawing.Config
	fee     uint64
	store   storage.DrawingStore
	tickets storage.TicketStore
	pool    *liquiditysvc.Service
	calc    *payout.Calculator
	source  entropy.Source
	lock    SettleLock
	events  EventSink
	log     *logger.Logger

	current *drawing.Drawing
	tracker *tracker.Tracker
	halted  bool
	dirty   bool
}

// New constructs the orchestrator. The entropy source defaults to
// crypto/rand and the settlement lock to the in-process lock; attach
// replacements before Restore.
func New(store storage.DrawingStore, tickets storage.TicketStore, pool *liquiditysvc.Service, cfg Config, log *logger.Logger) (*Service, error) {
	if err := validateDrawingConfig(cfg.Drawing); err != nil {
		return nil, err
	}
	if cfg.ProtocolFeeFraction > fixedpoint.Unit {
		return nil, fmt.Errorf("protocol fee fraction %d exceeds unity", cfg.ProtocolFeeFraction)
	}
	calc, err := payout.New(cfg.Params)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault("drawings")
	}
	return &Service{
		cfg:     cfg.Drawing,
		fee:     cfg.ProtocolFeeFraction,
		store:   store,
		tickets: tickets,
		pool:    pool,
		calc:    calc,
		source:  entropy.NewCryptoSource(),
		lock:    NewLocalLock(),
		log:     log,
	}, nil
}

// AttachEntropy replaces the randomness source.
func (s *Service) AttachEntropy(source entropy.Source) {
	if source != nil {
		s.source = source
	}
}

// AttachLock replaces the settlement lock.
func (s *Service) AttachLock(lock SettleLock) {
	if lock != nil {
		s.lock = lock
	}
}

// AttachEvents injects the lifecycle event sink.
func (s *Service) AttachEvents(sink EventSink) {
	s.events = sink
}

// Restore rebuilds the orchestrator and the liquidity pool from
// storage and finishes any half-completed settlement. When storage is
// empty it opens the genesis drawing.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.ListDrawings(ctx)
	if err != nil {
		return fmt.Errorf("load drawings: %w", err)
	}

	var latest *drawing.Drawing
	lastSettled := uint64(0)
	anySettled := false
	for i := range records {
		rec := records[i]
		s.calc.Restore(rec.ID, rec.Tiers, settledPayouts(rec), rec.TotalUserPayout)
		if rec.Status == drawing.StatusSettled {
			anySettled = true
			if rec.ID >= lastSettled {
				lastSettled = rec.ID
			}
		}
		if latest == nil || rec.ID > latest.ID {
			latest = &records[i]
		}
	}

	if err := s.pool.RestoreFrom(ctx, lastSettled, anySettled); err != nil {
		return err
	}

	if latest == nil {
		s.log.Info("no drawings on record, opening genesis drawing")
		return s.openNextLocked(ctx, 0)
	}

	switch latest.Status {
	case drawing.StatusOpen, drawing.StatusClosed:
		s.current = latest
		if err := s.rebuildTrackerLocked(ctx); err != nil {
			return err
		}
	case drawing.StatusSettled:
		// Crashed between the settled record and the next drawing.
		s.current = latest
		if err := s.completeSettleLocked(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("drawing %d has unknown status %q", latest.ID, latest.Status)
	}

	s.log.WithField("drawing", s.current.ID).
		WithField("status", s.current.Status).
		Info("drawing state restored")
	return nil
}

func settledPayouts(rec drawing.Drawing) *[ticket.NumTiers]uint64 {
	if rec.Status != drawing.StatusSettled {
		return nil
	}
	payouts := rec.Payouts
	return &payouts
}

// rebuildTrackerLocked replays the current drawing's persisted tickets
// into a fresh tracker. Insertion order does not matter: counts and
// duplicate tallies come out identical for any replay order.
func (s *Service) rebuildTrackerLocked(ctx context.Context) error {
	tr, err := tracker.New(tracker.Config{
		NormalMax: s.current.Config.NormalMax,
		BonusMax:  s.current.Config.BonusMax,
		PickSize:  s.current.Config.PickSize,
	})
	if err != nil {
		return err
	}
	sold, err := s.tickets.ListTickets(ctx, s.current.ID)
	if err != nil {
		return fmt.Errorf("load tickets for drawing %d: %w", s.current.ID, err)
	}
	for _, tk := range sold {
		if _, _, err := tr.Insert(tk.Numbers, tk.Bonus); err != nil {
			return fmt.Errorf("replay ticket %s: %w", tk.ID, err)
		}
	}
	s.tracker = tr
	s.refreshCountersLocked()
	return nil
}

// refreshCountersLocked recomputes the open drawing's sale counters
// from the tracker. They are derived state, not written through per
// purchase.
func (s *Service) refreshCountersLocked() {
	unique, dups := s.tracker.TicketCount()
	s.current.TicketsSold = unique
	s.current.DuplicatesSold = dups
	s.current.TicketRevenue = (unique + dups) * s.current.Config.TicketPrice
}

// reloadTrackerLocked discards unpersisted tracker state after a
// failed ticket write. A failed rebuild marks the service dirty; the
// next mutation retries before proceeding.
func (s *Service) reloadTrackerLocked(ctx context.Context) {
	if err := s.rebuildTrackerLocked(ctx); err != nil {
		s.dirty = true
		s.log.WithError(err).Error("tracker reload after failed write")
	}
}

// ensureCleanLocked rebuilds both the calculator and the tracker when
// an earlier reload failed, so no mutation runs against state that
// storage never accepted.
func (s *Service) ensureCleanLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	if err := s.reloadCalcLocked(ctx); err != nil {
		return fmt.Errorf("state out of sync with storage: %w", err)
	}
	if s.current != nil && s.current.Status != drawing.StatusSettled {
		if err := s.rebuildTrackerLocked(ctx); err != nil {
			return fmt.Errorf("state out of sync with storage: %w", err)
		}
	}
	s.dirty = false
	return nil
}

// OpenDrawing opens the next drawing explicitly. Normal operation only
// needs it once for genesis; settlement opens subsequent drawings
// itself.
func (s *Service) OpenDrawing(ctx context.Context) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return drawing.Drawing{}, ErrHalted
	}
	if s.current != nil && s.current.Status != drawing.StatusSettled {
		return drawing.Drawing{}, fmt.Errorf("drawing %d is still %s", s.current.ID, s.current.Status)
	}
	if err := s.ensureCleanLocked(ctx); err != nil {
		return drawing.Drawing{}, err
	}
	if err := s.openNextLocked(ctx, s.pool.CurrentDrawing()); err != nil {
		return drawing.Drawing{}, err
	}
	return *s.current, nil
}

// openNextLocked snapshots tier parameters, creates the drawing record
// and seeds a fresh tracker. A retry after a partial failure reuses
// the snapshot already taken for the drawing.
func (s *Service) openNextLocked(ctx context.Context, id uint64) error {
	if current := s.pool.CurrentDrawing(); current != id {
		return fmt.Errorf("drawing %d cannot open while the pool is at drawing %d", id, current)
	}

	snap, err := s.calc.SetTierSnapshot(id)
	if errors.Is(err, payout.ErrSnapshotExists) {
		snap, err = s.calc.Snapshot(id)
	}
	if err != nil {
		return err
	}

	tr, err := tracker.New(tracker.Config{
		NormalMax: s.cfg.NormalMax,
		BonusMax:  s.cfg.BonusMax,
		PickSize:  s.cfg.PickSize,
	})
	if err != nil {
		return err
	}

	rec := drawing.Drawing{
		ID:       id,
		Status:   drawing.StatusOpen,
		Config:   s.cfg,
		Tiers:    snap,
		OpenedAt: time.Now().UTC(),
	}
	created, err := s.store.CreateDrawing(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist drawing %d: %w", id, err)
	}

	s.current = &created
	s.tracker = tr
	s.dirty = false

	s.log.WithField("drawing", id).
		WithField("ticket_price", s.cfg.TicketPrice).
		Info("drawing opened")
	s.emitLocked(drawing.EventOpened, &created)
	return nil
}

// PurchaseTicket sells one combination in the open drawing. The
// returned ticket carries the duplicate flag: an exact combination
// someone already bought shares its prize rather than winning its own.
func (s *Service) PurchaseTicket(ctx context.Context, accountID string, numbers []int, bonus int) (ticket.Ticket, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return ticket.Ticket{}, fmt.Errorf("account_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ticket.Ticket{}, ErrHalted
	}
	if s.current == nil {
		return ticket.Ticket{}, ErrNoDrawing
	}
	if s.current.Status != drawing.StatusOpen {
		return ticket.Ticket{}, fmt.Errorf("%w: drawing %d is %s", ErrSalesClosed, s.current.ID, s.current.Status)
	}
	if err := s.ensureCleanLocked(ctx); err != nil {
		return ticket.Ticket{}, err
	}
	if bonus < 1 || bonus > s.current.Config.BonusMax {
		return ticket.Ticket{}, fmt.Errorf("%w: bonus %d not in [1, %d]", ticket.ErrNumberOutOfRange, bonus, s.current.Config.BonusMax)
	}

	_, isDup, err := s.tracker.Insert(numbers, bonus)
	if err != nil {
		return ticket.Ticket{}, err
	}

	tk := ticket.Ticket{
		DrawingID: s.current.ID,
		AccountID: accountID,
		Numbers:   append([]int(nil), numbers...),
		Bonus:     bonus,
		Duplicate: isDup,
		Price:     s.current.Config.TicketPrice,
	}
	created, err := s.tickets.CreateTicket(ctx, tk)
	if err != nil {
		s.reloadTrackerLocked(ctx)
		return ticket.Ticket{}, fmt.Errorf("persist ticket: %w", err)
	}
	s.refreshCountersLocked()
	metrics.RecordTicketSale(created.Duplicate)

	s.log.WithField("ticket_id", created.ID).
		WithField("drawing", created.DrawingID).
		WithField("duplicate", created.Duplicate).
		Debug("ticket sold")
	return created, nil
}

// CloseDrawing ends the sale window. The final sale counters are
// persisted with the closed record.
func (s *Service) CloseDrawing(ctx context.Context) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return drawing.Drawing{}, ErrHalted
	}
	if s.current == nil {
		return drawing.Drawing{}, ErrNoDrawing
	}
	if s.current.Status != drawing.StatusOpen {
		return drawing.Drawing{}, fmt.Errorf("%w: drawing %d is %s", ErrSalesClosed, s.current.ID, s.current.Status)
	}
	if err := s.ensureCleanLocked(ctx); err != nil {
		return drawing.Drawing{}, err
	}

	next := *s.current
	now := time.Now().UTC()
	next.Status = drawing.StatusClosed
	next.ClosedAt = &now

	stored, err := s.store.UpdateDrawing(ctx, next)
	if err != nil {
		return drawing.Drawing{}, fmt.Errorf("persist close: %w", err)
	}
	s.current = &stored

	s.log.WithField("drawing", stored.ID).
		WithField("tickets", stored.TicketsSold).
		WithField("revenue", stored.TicketRevenue).
		Info("drawing closed")
	s.emitLocked(drawing.EventClosed, &stored)
	return stored, nil
}

// Settle draws winning numbers and runs the settlement sequence:
// count tier matches, compute payouts, roll the pool, open the next
// drawing. The settled record is the commit point; before it the
// settlement aborts whole, after it a failure is completed forward by
// the next attempt or by Restore.
func (s *Service) Settle(ctx context.Context) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return drawing.Drawing{}, ErrHalted
	}
	if s.current == nil {
		return drawing.Drawing{}, ErrNoDrawing
	}

	release, err := s.lock.Acquire(ctx, s.current.ID)
	if err != nil {
		return drawing.Drawing{}, err
	}
	defer release()

	if s.current.Status == drawing.StatusSettled {
		settled := *s.current
		if err := s.completeSettleLocked(ctx); err != nil {
			return drawing.Drawing{}, err
		}
		return settled, nil
	}
	if s.current.Status != drawing.StatusClosed {
		return drawing.Drawing{}, fmt.Errorf("%w: drawing %d is %s", ErrNotClosed, s.current.ID, s.current.Status)
	}
	if err := s.ensureCleanLocked(ctx); err != nil {
		return drawing.Drawing{}, err
	}

	d := *s.current
	start := time.Now()

	numbers, err := s.source.Draw(ctx, d.Config.PickSize, d.Config.NormalMax)
	if err != nil {
		return drawing.Drawing{}, fmt.Errorf("draw numbers: %w", err)
	}
	bonus, err := s.source.DrawBonus(ctx, d.Config.BonusMax)
	if err != nil {
		return drawing.Drawing{}, fmt.Errorf("draw bonus: %w", err)
	}

	_, uniqueCounts, dupCounts, err := s.tracker.CountTierMatches(numbers, bonus)
	if err != nil {
		return drawing.Drawing{}, fmt.Errorf("count tier matches: %w", err)
	}

	state, err := s.pool.DrawingState(ctx, d.ID)
	if err != nil {
		return drawing.Drawing{}, err
	}
	protocolFee, err := fixedpoint.MulDiv(d.TicketRevenue, big.NewInt(0).SetUint64(s.fee), fixedpoint.UnitBig())
	if err != nil {
		return drawing.Drawing{}, err
	}
	pot := big.NewInt(0).SetUint64(state.PoolTotal)
	pot.Add(pot, big.NewInt(0).SetUint64(d.TicketRevenue))
	pot.Sub(pot, big.NewInt(0).SetUint64(protocolFee))
	prizePool, err := fixedpoint.ToUint64(pot)
	if err != nil {
		return drawing.Drawing{}, err
	}

	totalUserPayout, err := s.calc.Settle(d.ID, prizePool, d.Config.NormalMax, d.Config.BonusMax, uniqueCounts, dupCounts)
	if err != nil {
		return drawing.Drawing{}, err
	}
	payouts, err := s.calc.Payouts(d.ID)
	if err != nil {
		return drawing.Drawing{}, err
	}

	now := time.Now().UTC()
	d.Status = drawing.StatusSettled
	d.WinningNumbers = numbers
	d.WinningBonus = bonus
	d.PrizePool = prizePool
	d.ProtocolFee = protocolFee
	d.TotalUserPayout = totalUserPayout
	d.Payouts = payouts
	d.SettledAt = &now

	// Commit point. On failure the payout table is discarded so a
	// retry can settle against freshly drawn numbers.
	stored, err := s.store.UpdateDrawing(ctx, d)
	if err != nil {
		if relErr := s.reloadCalcLocked(ctx); relErr != nil {
			s.dirty = true
			s.log.WithError(relErr).Error("calculator reload after failed write")
		}
		return drawing.Drawing{}, fmt.Errorf("persist settlement: %w", err)
	}
	s.current = &stored
	metrics.RecordSettlement(time.Since(start), stored.PrizePool, stored.TotalUserPayout)

	s.log.WithField("drawing", stored.ID).
		WithField("winning_numbers", stored.WinningNumbers).
		WithField("winning_bonus", stored.WinningBonus).
		WithField("prize_pool", stored.PrizePool).
		WithField("user_payout", stored.TotalUserPayout).
		Info("drawing settled")
	s.emitLocked(drawing.EventSettled, &stored)

	if err := s.completeSettleLocked(ctx); err != nil {
		return drawing.Drawing{}, err
	}
	return stored, nil
}

// completeSettleLocked finishes a settlement whose record is already
// committed: roll the pool ledger if it has not crossed yet, then open
// the next drawing.
func (s *Service) completeSettleLocked(ctx context.Context) error {
	d := s.current
	if s.pool.CurrentDrawing() == d.ID {
		if _, _, err := s.pool.Settle(ctx, d.ID, d.TicketRevenue, d.TotalUserPayout, d.ProtocolFee); err != nil {
			return fmt.Errorf("roll pool for drawing %d: %w", d.ID, err)
		}
	}
	return s.openNextLocked(ctx, d.ID+1)
}

// reloadCalcLocked rebuilds the payout calculator from persisted
// drawing records, discarding any settlement that failed before its
// commit point. Live parameters survive the rebuild.
func (s *Service) reloadCalcLocked(ctx context.Context) error {
	records, err := s.store.ListDrawings(ctx)
	if err != nil {
		return err
	}
	calc, err := payout.New(s.calc.Params())
	if err != nil {
		return err
	}
	for _, rec := range records {
		calc.Restore(rec.ID, rec.Tiers, settledPayouts(rec), rec.TotalUserPayout)
	}
	s.calc = calc
	return nil
}

// ClaimPrize pays out a winning ticket once. The tier is recomputed
// from the stored numbers against the settled winning numbers.
func (s *Service) ClaimPrize(ctx context.Context, ticketID string) (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tk, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return ticket.Ticket{}, err
	}
	rec, err := s.drawingLocked(ctx, tk.DrawingID)
	if err != nil {
		return ticket.Ticket{}, err
	}
	if rec.Status != drawing.StatusSettled {
		return ticket.Ticket{}, fmt.Errorf("%w: drawing %d", ErrNotSettled, rec.ID)
	}
	if tk.Claimed {
		return ticket.Ticket{}, fmt.Errorf("%w: ticket %s", ErrAlreadyClaimed, tk.ID)
	}

	tier, err := matchTier(rec, tk)
	if err != nil {
		return ticket.Ticket{}, err
	}
	amount := rec.Payouts[tier]
	if amount == 0 {
		return ticket.Ticket{}, fmt.Errorf("%w: ticket %s", ErrNoPrize, tk.ID)
	}

	now := time.Now().UTC()
	tk.Claimed = true
	tk.ClaimedAmount = amount
	tk.ClaimedAt = &now
	claimed, err := s.tickets.UpdateTicket(ctx, tk)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("persist claim: %w", err)
	}
	metrics.RecordClaim(amount)

	s.log.WithField("ticket_id", claimed.ID).
		WithField("drawing", rec.ID).
		WithField("tier", tier).
		WithField("amount", amount).
		Info("prize claimed")
	return claimed, nil
}

// matchTier recomputes both bit vectors from stored numbers and
// resolves the ticket's tier.
func matchTier(rec drawing.Drawing, tk ticket.Ticket) (int, error) {
	winNormals, err := ticket.NormalsVector(rec.WinningNumbers, rec.Config.NormalMax, rec.Config.PickSize)
	if err != nil {
		return 0, fmt.Errorf("winning numbers of drawing %d: %w", rec.ID, err)
	}
	tkNormals, err := ticket.NormalsVector(tk.Numbers, rec.Config.NormalMax, rec.Config.PickSize)
	if err != nil {
		return 0, fmt.Errorf("numbers of ticket %s: %w", tk.ID, err)
	}
	winVec := winNormals.WithBonus(rec.WinningBonus, rec.Config.NormalMax)
	tkVec := tkNormals.WithBonus(tk.Bonus, rec.Config.NormalMax)
	return ticket.MatchTier(tkVec, winVec, rec.Config.NormalMax), nil
}

// Halt stops lifecycle operations engine-wide. Claims against settled
// drawings and the emergency unwind path stay available. There is no
// resume.
func (s *Service) Halt(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return fmt.Errorf("%w: already halted", ErrHalted)
	}
	s.halted = true

	s.log.Warn("engine halted")
	if s.current != nil {
		s.emitLocked(drawing.EventHalted, s.current)
	}
	return nil
}

// Halted reports the halt flag.
func (s *Service) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// EmergencyUnwind liquidates one provider's position. Only available
// once the engine is halted.
func (s *Service) EmergencyUnwind(ctx context.Context, lp string) (uint64, error) {
	s.mu.Lock()
	halted := s.halted
	s.mu.Unlock()
	if !halted {
		return 0, ErrNotHalted
	}
	return s.pool.EmergencyUnwind(ctx, lp)
}

// GetDrawing returns one drawing. The open drawing is served from
// memory so its sale counters are live.
func (s *Service) GetDrawing(ctx context.Context, id uint64) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawingLocked(ctx, id)
}

func (s *Service) drawingLocked(ctx context.Context, id uint64) (drawing.Drawing, error) {
	if s.current != nil && s.current.ID == id {
		return *s.current, nil
	}
	return s.store.GetDrawing(ctx, id)
}

// CurrentDrawing returns the drawing currently selling or settling.
func (s *Service) CurrentDrawing() (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return drawing.Drawing{}, ErrNoDrawing
	}
	return *s.current, nil
}

// ListDrawings returns every drawing, the open one with live counters.
func (s *Service) ListDrawings(ctx context.Context) ([]drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.ListDrawings(ctx)
	if err != nil {
		return nil, err
	}
	if s.current != nil {
		for i := range records {
			if records[i].ID == s.current.ID {
				records[i] = *s.current
			}
		}
	}
	return records, nil
}

// GetTicket returns one ticket.
func (s *Service) GetTicket(ctx context.Context, id string) (ticket.Ticket, error) {
	return s.tickets.GetTicket(ctx, id)
}

// ListAccountTickets returns every ticket an account bought.
func (s *Service) ListAccountTickets(ctx context.Context, accountID string) ([]ticket.Ticket, error) {
	return s.tickets.ListAccountTickets(ctx, strings.TrimSpace(accountID))
}

// ListDrawingTickets returns every ticket of one drawing.
func (s *Service) ListDrawingTickets(ctx context.Context, drawingID uint64) ([]ticket.Ticket, error) {
	return s.tickets.ListTickets(ctx, drawingID)
}

// Payouts returns a settled drawing's per-ticket payout table.
func (s *Service) Payouts(ctx context.Context, drawingID uint64) ([ticket.NumTiers]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.drawingLocked(ctx, drawingID)
	if err != nil {
		return [ticket.NumTiers]uint64{}, err
	}
	if rec.Status != drawing.StatusSettled {
		return [ticket.NumTiers]uint64{}, fmt.Errorf("%w: drawing %d", ErrNotSettled, drawingID)
	}
	return rec.Payouts, nil
}

// Stats assembles the operator overview: live counters of the current
// drawing, lifetime totals and the pool value.
func (s *Service) Stats(ctx context.Context) (drawing.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := drawing.Stats{Halted: s.halted}
	if s.current != nil {
		stats.CurrentDrawing = s.current.ID
		stats.TicketsSold = s.current.TicketsSold
		stats.DuplicatesSold = s.current.DuplicatesSold
		stats.RevenueTotal = s.current.TicketRevenue

		state, err := s.pool.DrawingState(ctx, s.current.ID)
		if err == nil {
			stats.PoolValue = state.PoolTotal
		}
	}

	records, err := s.store.ListDrawings(ctx)
	if err != nil {
		return drawing.Stats{}, err
	}
	for _, rec := range records {
		if rec.Status == drawing.StatusSettled {
			stats.DrawingsSettled++
			stats.PayoutTotal += rec.TotalUserPayout
		}
	}
	return stats, nil
}

// UpdateTierParams replaces the live payout parameters. Drawings
// already snapshotted keep their frozen copy.
func (s *Service) UpdateTierParams(params payout.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.calc.UpdateParams(params); err != nil {
		return err
	}
	s.log.Info("tier parameters updated")
	return nil
}

// TierParams returns the live payout parameters.
func (s *Service) TierParams() payout.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calc.Params()
}

// SetDrawingConfig replaces the configuration used by the next opened
// drawing.
func (s *Service) SetDrawingConfig(cfg drawing.Config) error {
	if err := validateDrawingConfig(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.log.WithField("normal_max", cfg.NormalMax).
		WithField("bonus_max", cfg.BonusMax).
		WithField("ticket_price", cfg.TicketPrice).
		Info("drawing configuration updated")
	return nil
}

// DrawingConfig returns the configuration the next drawing will use.
func (s *Service) DrawingConfig() drawing.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) emitLocked(evtType drawing.EventType, rec *drawing.Drawing) {
	if s.events == nil {
		return
	}
	evt := drawing.Event{
		Type:      evtType,
		DrawingID: rec.ID,
		At:        time.Now().UTC(),
	}
	if evtType == drawing.EventSettled {
		settled := *rec
		evt.Drawing = &settled
	}
	s.events.Publish(evt)
}
