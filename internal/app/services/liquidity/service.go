// Package liquidity exposes the provider-facing pool operations. The
// in-memory ledger is the authority for share math; every mutation is
// written through to storage so a restart rebuilds the same state.
package liquidity

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/ledger"
	"github.com/drawpool-labs/jackpot-engine/internal/app/metrics"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// Service serializes ledger mutations and keeps storage in sync. The
// current drawing is advanced by Settle only, so a deposit can never
// slip between a settlement and the next drawing opening.
type Service struct {
	mu      sync.Mutex
	current uint64
	dirty   bool
	cfg     ledger.Config
	ledger  *ledger.Ledger
	store   storage.LiquidityStore
	log     *logger.Logger
}

// New constructs a liquidity service over a fresh ledger at drawing 0.
// Call Restore to rebuild from persisted records instead.
func New(store storage.LiquidityStore, cfg ledger.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("liquidity")
	}
	return &Service{
		cfg:    cfg,
		ledger: ledger.New(cfg),
		store:  store,
		log:    log,
	}
}

// CurrentDrawing returns the drawing new deposits and withdrawals tag.
func (s *Service) CurrentDrawing() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Restore rebuilds the ledger from storage and pins the current
// drawing. Every drawing before the current one is treated as settled;
// the caller derives currentDrawing from the drawing records.
func (s *Service) Restore(ctx context.Context, currentDrawing uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, currentDrawing); err != nil {
		return err
	}
	s.current = currentDrawing
	return nil
}

// RestoreFrom restores against the drawing history, where lastSettled
// is the highest settled drawing on record and anySettled is false
// when no drawing has settled yet. A pool roll that persisted before a
// crash leaves both the drawing's accumulator and its successor state
// behind; when the probe finds them the pool resumes one past the
// settled drawing, otherwise the roll is left for the caller to replay.
func (s *Service) RestoreFrom(ctx context.Context, lastSettled uint64, anySettled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(0)
	if anySettled {
		current = lastSettled
		if _, err := s.store.GetAccumulator(ctx, lastSettled); err == nil {
			if _, err := s.store.GetDrawingState(ctx, lastSettled+1); err == nil {
				current = lastSettled + 1
			}
		}
	}
	if err := s.loadLocked(ctx, current); err != nil {
		return err
	}
	s.current = current
	return nil
}

func (s *Service) loadLocked(ctx context.Context, currentDrawing uint64) error {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	states, err := s.store.ListDrawingStates(ctx)
	if err != nil {
		return fmt.Errorf("load drawing states: %w", err)
	}
	accumulators, err := s.store.ListAccumulators(ctx)
	if err != nil {
		return fmt.Errorf("load accumulators: %w", err)
	}

	settled := make([]uint64, 0, currentDrawing)
	for id := uint64(0); id < currentDrawing; id++ {
		settled = append(settled, id)
	}

	l := ledger.New(s.cfg)
	l.Restore(positions, states, accumulators, settled)
	if _, err := l.DrawingState(currentDrawing); err != nil {
		return fmt.Errorf("current drawing %d: %w", currentDrawing, err)
	}
	s.ledger = l

	s.log.WithField("positions", len(positions)).
		WithField("drawing", currentDrawing).
		Info("liquidity ledger restored")
	return nil
}

// reloadLocked discards unpersisted ledger state after a failed write
// so memory and storage agree again. If the reload itself fails the
// service goes dirty and refuses mutations until a reload succeeds.
func (s *Service) reloadLocked(ctx context.Context) {
	if err := s.loadLocked(ctx, s.current); err != nil {
		s.dirty = true
		s.log.WithError(err).Error("ledger reload after failed write")
		return
	}
	s.dirty = false
}

func (s *Service) ensureCleanLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	if err := s.loadLocked(ctx, s.current); err != nil {
		return fmt.Errorf("ledger out of sync with storage: %w", err)
	}
	s.dirty = false
	return nil
}

// Deposit records a pending deposit for the current drawing and
// returns the provider's updated position.
func (s *Service) Deposit(ctx context.Context, lp string, amount uint64) (liquidity.Position, error) {
	lp = strings.TrimSpace(lp)
	if lp == "" {
		return liquidity.Position{}, fmt.Errorf("lp is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCleanLocked(ctx); err != nil {
		return liquidity.Position{}, err
	}
	if err := s.ledger.Deposit(s.current, lp, amount); err != nil {
		return liquidity.Position{}, err
	}
	pos, err := s.persistPositionLocked(ctx, lp)
	if err != nil {
		return liquidity.Position{}, fmt.Errorf("persist deposit: %w", err)
	}
	metrics.RecordPoolDeposit(amount)

	s.log.WithField("lp", lp).
		WithField("amount", amount).
		WithField("drawing", s.current).
		Info("deposit recorded")
	return pos, nil
}

// InitiateWithdraw moves shares into a pending withdrawal for the
// current drawing and returns the provider's updated position.
func (s *Service) InitiateWithdraw(ctx context.Context, lp string, shares uint64) (liquidity.Position, error) {
	lp = strings.TrimSpace(lp)
	if lp == "" {
		return liquidity.Position{}, fmt.Errorf("lp is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCleanLocked(ctx); err != nil {
		return liquidity.Position{}, err
	}
	if err := s.ledger.InitiateWithdraw(s.current, lp, shares); err != nil {
		return liquidity.Position{}, err
	}
	pos, err := s.persistPositionLocked(ctx, lp)
	if err != nil {
		return liquidity.Position{}, fmt.Errorf("persist withdrawal: %w", err)
	}

	s.log.WithField("lp", lp).
		WithField("shares", shares).
		WithField("drawing", s.current).
		Info("withdrawal initiated")
	return pos, nil
}

// FinalizeWithdraw pays out everything claimable for the provider and
// returns the amount.
func (s *Service) FinalizeWithdraw(ctx context.Context, lp string) (uint64, error) {
	lp = strings.TrimSpace(lp)
	if lp == "" {
		return 0, fmt.Errorf("lp is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCleanLocked(ctx); err != nil {
		return 0, err
	}
	amount, err := s.ledger.FinalizeWithdraw(s.current, lp)
	if err != nil {
		return 0, err
	}
	if _, err := s.persistPositionLocked(ctx, lp); err != nil {
		return 0, fmt.Errorf("persist claim: %w", err)
	}
	metrics.RecordPoolWithdrawal(amount)

	s.log.WithField("lp", lp).
		WithField("amount", amount).
		Info("withdrawal finalized")
	return amount, nil
}

// Settle rolls the pool through a drawing settlement and opens the
// next drawing's pool state in one step. drawingID must match the
// current drawing; the caller has already computed the obligations.
// It returns the pool value the next drawing starts from and the
// settled accumulator.
func (s *Service) Settle(ctx context.Context, drawingID uint64, ticketRevenue, userWinnings, protocolFee uint64) (uint64, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCleanLocked(ctx); err != nil {
		return 0, nil, err
	}
	if drawingID != s.current {
		return 0, nil, fmt.Errorf("settle drawing %d while drawing %d is current", drawingID, s.current)
	}

	newPool, acc, err := s.ledger.SettleDrawing(drawingID, ticketRevenue, userWinnings, protocolFee)
	if err != nil {
		return 0, nil, err
	}
	if err := s.ledger.InitializeNextDrawing(drawingID+1, newPool); err != nil {
		s.reloadLocked(ctx)
		return 0, nil, err
	}

	if err := s.persistSettleLocked(ctx, drawingID, acc); err != nil {
		s.reloadLocked(ctx)
		return 0, nil, fmt.Errorf("persist settlement: %w", err)
	}
	s.current = drawingID + 1
	metrics.SetPoolValue(newPool)
	metrics.SetSharePrice(acc)

	s.log.WithField("drawing", drawingID).
		WithField("pool", newPool).
		WithField("accumulator", acc.String()).
		Info("pool settled")
	return newPool, acc, nil
}

// EmergencyUnwind liquidates a provider's whole position and returns
// the owed amount. Only the halted path calls this.
func (s *Service) EmergencyUnwind(ctx context.Context, lp string) (uint64, error) {
	lp = strings.TrimSpace(lp)
	if lp == "" {
		return 0, fmt.Errorf("lp is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCleanLocked(ctx); err != nil {
		return 0, err
	}
	owed, err := s.ledger.EmergencyUnwind(s.current, lp)
	if err != nil {
		return 0, err
	}
	// Pool state first; the position row must survive any partial
	// failure so the unwind stays retryable.
	if err := s.persistDrawingStateLocked(ctx, s.current); err != nil {
		s.reloadLocked(ctx)
		return 0, fmt.Errorf("persist pool state: %w", err)
	}
	if err := s.store.DeletePosition(ctx, lp); err != nil {
		s.reloadLocked(ctx)
		return 0, fmt.Errorf("delete position: %w", err)
	}
	metrics.RecordPoolWithdrawal(owed)
	if state, err := s.ledger.DrawingState(s.current); err == nil {
		metrics.SetPoolValue(state.PoolTotal)
	}

	s.log.WithField("lp", lp).
		WithField("owed", owed).
		Warn("position unwound")
	return owed, nil
}

// Position returns a provider's persisted record.
func (s *Service) Position(ctx context.Context, lp string) (liquidity.Position, error) {
	return s.store.GetPosition(ctx, strings.TrimSpace(lp))
}

// Positions returns every persisted provider record.
func (s *Service) Positions(ctx context.Context) ([]liquidity.Position, error) {
	return s.store.ListPositions(ctx)
}

// DrawingState returns a drawing's live pool bookkeeping. The ledger
// is read rather than storage: pending counters are not written
// through per mutation.
func (s *Service) DrawingState(ctx context.Context, drawingID uint64) (liquidity.DrawingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.DrawingState(drawingID)
}

// Accumulator returns a drawing's settled share price.
func (s *Service) Accumulator(ctx context.Context, drawingID uint64) (liquidity.Accumulator, error) {
	return s.store.GetAccumulator(ctx, drawingID)
}

// persistPositionLocked writes the ledger's view of one position
// through to storage. The position is the only record a deposit or
// withdrawal mutates; drawing-state pending counters are re-derived
// from positions on restore, so a single write keeps storage whole.
func (s *Service) persistPositionLocked(ctx context.Context, lp string) (liquidity.Position, error) {
	pos, err := s.ledger.Position(lp)
	if err != nil {
		return liquidity.Position{}, err
	}
	stored, err := s.store.UpsertPosition(ctx, pos)
	if err != nil {
		s.reloadLocked(ctx)
		return liquidity.Position{}, err
	}
	return stored, nil
}

func (s *Service) persistDrawingStateLocked(ctx context.Context, drawingID uint64) error {
	state, err := s.ledger.DrawingState(drawingID)
	if err != nil {
		return err
	}
	_, err = s.store.UpsertDrawingState(ctx, state)
	return err
}

// persistSettleLocked records the settled accumulator and the opening
// pool state of the next drawing. A retry after a partial write finds
// the accumulator already present with the same price and carries on.
func (s *Service) persistSettleLocked(ctx context.Context, drawingID uint64, acc *big.Int) error {
	record := liquidity.Accumulator{
		DrawingID: drawingID,
		Price:     big.NewInt(0).Set(acc),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.store.CreateAccumulator(ctx, record); err != nil {
		existing, getErr := s.store.GetAccumulator(ctx, drawingID)
		if getErr != nil || existing.Price == nil || existing.Price.Cmp(acc) != 0 {
			return err
		}
	}
	return s.persistDrawingStateLocked(ctx, drawingID+1)
}
