// Package ledger implements the accumulator share-pricing ledger. LPs
// deposit pool currency that converts to shares at their drawing's
// settled price and withdraw shares that convert back the same way, so
// positions straddling drawing boundaries absorb gains and losses
// exactly once.
//
// Every conversion truncates toward zero and the pool keeps the
// remainder. The direction of rounding is load-bearing: downstream
// solvency invariants assume the pool is never over-credited.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
)

var (
	// ErrZeroAmount rejects deposits and withdrawals of nothing.
	ErrZeroAmount = errors.New("zero amount")
	// ErrPoolCapExceeded rejects a deposit that would push the pool
	// past its configured cap. No partial fill.
	ErrPoolCapExceeded = errors.New("pool cap exceeded")
	// ErrInsufficientShares rejects a withdrawal beyond the LP's
	// consolidated shares. No partial fill.
	ErrInsufficientShares = errors.New("insufficient consolidated shares")
	// ErrNothingClaimable rejects a finalize with no eligible funds.
	ErrNothingClaimable = errors.New("nothing claimable")
	// ErrNoPosition is returned for an LP the ledger has never seen.
	ErrNoPosition = errors.New("no position")
	// ErrDrawingNotInitialized is returned when an operation targets a
	// drawing whose pool state was never seeded.
	ErrDrawingNotInitialized = errors.New("drawing not initialized")
	// ErrDrawingInitialized rejects re-seeding an existing drawing.
	ErrDrawingInitialized = errors.New("drawing already initialized")
	// ErrAlreadySettled rejects a second settlement of one drawing.
	ErrAlreadySettled = errors.New("drawing already settled")
	// ErrAccumulatorMissing is returned when a conversion needs a
	// price that was never settled, including out-of-order settlement.
	ErrAccumulatorMissing = errors.New("accumulator missing")
	// ErrAccumulatorZero is returned when a deposit would convert
	// against a zero price. A wiped pool cannot mint shares.
	ErrAccumulatorZero = errors.New("accumulator is zero")
	// ErrSettlementUnderflow is returned when settlement inputs say
	// the pool owes more than it holds.
	ErrSettlementUnderflow = errors.New("settlement underflow")
)

// Config carries ledger-wide parameters.
type Config struct {
	// PoolCap bounds poolTotal + pendingDeposits, in currency.
	// Zero means uncapped.
	PoolCap uint64
}

// Ledger owns every LP position, per-drawing pool state and settled
// accumulator. Callers serialize access; an operation either fully
// applies or leaves the ledger untouched.
type Ledger struct {
	cfg          Config
	positions    map[string]*liquidity.Position
	drawings     map[uint64]*liquidity.DrawingState
	accumulators map[uint64]*big.Int
	settled      map[uint64]bool
	lastSettled  uint64
}

// New returns a ledger with the genesis accumulator at 1.0 and an
// empty drawing 0, ready to take deposits.
func New(cfg Config) *Ledger {
	l := &Ledger{
		cfg:          cfg,
		positions:    make(map[string]*liquidity.Position),
		drawings:     make(map[uint64]*liquidity.DrawingState),
		accumulators: make(map[uint64]*big.Int),
		settled:      make(map[uint64]bool),
	}
	l.accumulators[0] = fixedpoint.UnitBig()
	l.drawings[0] = &liquidity.DrawingState{DrawingID: 0}
	return l
}

// Deposit records a pending deposit tagged with the current drawing;
// the amount joins the pool at the next settlement. A stale pending
// deposit from an earlier drawing is consolidated into shares first.
// A settled drawing takes no further deposits.
func (l *Ledger) Deposit(drawingID uint64, lp string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	state, ok := l.drawings[drawingID]
	if !ok {
		return fmt.Errorf("%w: drawing %d", ErrDrawingNotInitialized, drawingID)
	}
	if l.settled[drawingID] {
		return fmt.Errorf("%w: drawing %d", ErrAlreadySettled, drawingID)
	}
	if l.cfg.PoolCap > 0 {
		total := big.NewInt(0).SetUint64(state.PoolTotal)
		total.Add(total, big.NewInt(0).SetUint64(state.PendingDeposits))
		total.Add(total, big.NewInt(0).SetUint64(amount))
		if total.Cmp(big.NewInt(0).SetUint64(l.cfg.PoolCap)) > 0 {
			return fmt.Errorf("%w: %s over cap %d", ErrPoolCapExceeded, total, l.cfg.PoolCap)
		}
	}

	work := liquidity.Position{LP: lp}
	if pos := l.positions[lp]; pos != nil {
		work = *pos
	}
	if err := l.consolidateDeposit(&work, drawingID); err != nil {
		return err
	}
	if work.LastDeposit.Amount > 0 && work.LastDeposit.DrawingID == drawingID {
		work.LastDeposit.Amount += amount
	} else {
		work.LastDeposit = liquidity.PendingDeposit{Amount: amount, DrawingID: drawingID}
	}

	l.positions[lp] = &work
	state.PendingDeposits += amount
	return nil
}

// InitiateWithdraw moves shares out of the consolidated total into a
// pending withdrawal tagged with the current drawing. The shares leave
// the pool at this drawing's settlement price.
func (l *Ledger) InitiateWithdraw(drawingID uint64, lp string, shares uint64) error {
	if shares == 0 {
		return ErrZeroAmount
	}
	state, ok := l.drawings[drawingID]
	if !ok {
		return fmt.Errorf("%w: drawing %d", ErrDrawingNotInitialized, drawingID)
	}
	if l.settled[drawingID] {
		return fmt.Errorf("%w: drawing %d", ErrAlreadySettled, drawingID)
	}
	pos := l.positions[lp]
	if pos == nil {
		return fmt.Errorf("%w: lp %s", ErrInsufficientShares, lp)
	}

	work := *pos
	if err := l.consolidateDeposit(&work, drawingID); err != nil {
		return err
	}
	if err := l.consolidateWithdrawal(&work, drawingID); err != nil {
		return err
	}
	if work.ConsolidatedShares < shares {
		return fmt.Errorf("%w: have %d, want %d", ErrInsufficientShares, work.ConsolidatedShares, shares)
	}
	work.ConsolidatedShares -= shares
	if work.PendingWithdrawal.Shares > 0 && work.PendingWithdrawal.DrawingID == drawingID {
		work.PendingWithdrawal.Shares += shares
	} else {
		work.PendingWithdrawal = liquidity.PendingWithdrawal{Shares: shares, DrawingID: drawingID}
	}

	*pos = work
	state.PendingWithdrawals += shares
	return nil
}

// FinalizeWithdraw pays out everything claimable, folding in a pending
// withdrawal whose drawing has settled. Claimable zero is an error the
// caller must distinguish from a still-pending withdrawal.
func (l *Ledger) FinalizeWithdraw(drawingID uint64, lp string) (uint64, error) {
	pos := l.positions[lp]
	if pos == nil {
		return 0, fmt.Errorf("%w: lp %s", ErrNothingClaimable, lp)
	}

	work := *pos
	if err := l.consolidateWithdrawal(&work, drawingID); err != nil {
		return 0, err
	}
	amount := work.ClaimableWithdrawals
	if amount == 0 {
		return 0, ErrNothingClaimable
	}
	work.ClaimableWithdrawals = 0

	*pos = work
	return amount, nil
}

// SettleDrawing rolls the drawing's pool value by its revenue and
// obligations, publishes the drawing's accumulator (write-once) and
// converts the drawing's pending withdrawals out of the pool. It
// returns the pool value the next drawing starts from.
//
// Drawing 0 keeps the genesis accumulator: its shares were minted at
// 1.0 and no prior price exists to scale, so pending withdrawals
// convert at UNIT rather than through a recomputed price.
func (l *Ledger) SettleDrawing(drawingID uint64, ticketRevenue, userWinnings, protocolFee uint64) (uint64, *big.Int, error) {
	if l.settled[drawingID] {
		return 0, nil, fmt.Errorf("%w: drawing %d", ErrAlreadySettled, drawingID)
	}
	state, ok := l.drawings[drawingID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: drawing %d", ErrDrawingNotInitialized, drawingID)
	}

	post := big.NewInt(0).SetUint64(state.PoolTotal)
	post.Add(post, big.NewInt(0).SetUint64(ticketRevenue))
	post.Sub(post, big.NewInt(0).SetUint64(userWinnings))
	post.Sub(post, big.NewInt(0).SetUint64(protocolFee))
	if post.Sign() < 0 {
		return 0, nil, fmt.Errorf("%w: drawing %d short by %s", ErrSettlementUnderflow, drawingID, big.NewInt(0).Neg(post))
	}
	postValue, err := fixedpoint.ToUint64(post)
	if err != nil {
		return 0, nil, err
	}

	var newAcc *big.Int
	if drawingID > 0 {
		prev, ok := l.accumulators[drawingID-1]
		if !ok {
			return 0, nil, fmt.Errorf("%w: drawing %d", ErrAccumulatorMissing, drawingID-1)
		}
		if state.PoolTotal == 0 {
			newAcc = fixedpoint.UnitBig()
		} else {
			newAcc, err = fixedpoint.MulDivBig(prev, postValue, state.PoolTotal)
			if err != nil {
				return 0, nil, err
			}
		}
	} else {
		newAcc = big.NewInt(0).Set(l.accumulators[0])
	}

	withdrawals, err := fixedpoint.MulDiv(state.PendingWithdrawals, newAcc, fixedpoint.UnitBig())
	if err != nil {
		return 0, nil, err
	}

	pool := big.NewInt(0).SetUint64(postValue)
	pool.Add(pool, big.NewInt(0).SetUint64(state.PendingDeposits))
	pool.Sub(pool, big.NewInt(0).SetUint64(withdrawals))
	if pool.Sign() < 0 {
		return 0, nil, fmt.Errorf("%w: withdrawals %d exceed pool", ErrSettlementUnderflow, withdrawals)
	}
	newPool, err := fixedpoint.ToUint64(pool)
	if err != nil {
		return 0, nil, err
	}

	if drawingID > 0 {
		l.accumulators[drawingID] = newAcc
	}
	l.settled[drawingID] = true
	if drawingID > l.lastSettled {
		l.lastSettled = drawingID
	}
	return newPool, big.NewInt(0).Set(newAcc), nil
}

// InitializeNextDrawing seeds a fresh drawing's pool state with the
// value settlement handed over.
func (l *Ledger) InitializeNextDrawing(drawingID uint64, initialValue uint64) error {
	if _, ok := l.drawings[drawingID]; ok {
		return fmt.Errorf("%w: drawing %d", ErrDrawingInitialized, drawingID)
	}
	l.drawings[drawingID] = &liquidity.DrawingState{DrawingID: drawingID, PoolTotal: initialValue}
	return nil
}

// EmergencyUnwind liquidates every component of an LP's position in
// one pass, skipping the usual consolidation ordering. Only for a
// system-wide halt: pool-side counters are reduced saturating at zero
// since normal settlement no longer runs. The position is removed.
func (l *Ledger) EmergencyUnwind(drawingID uint64, lp string) (uint64, error) {
	pos := l.positions[lp]
	if pos == nil {
		return 0, fmt.Errorf("%w: lp %s", ErrNoPosition, lp)
	}
	state, ok := l.drawings[drawingID]
	if !ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrDrawingNotInitialized, drawingID)
	}
	lastAcc := l.accumulators[l.lastSettled]
	unit := fixedpoint.UnitBig()

	work := *pos
	total := big.NewInt(0)
	var subDeposits, subPool, subWithdrawShares uint64

	if d := work.LastDeposit; d.Amount > 0 {
		if d.DrawingID == drawingID {
			// Never entered the pool; refund at face value.
			total.Add(total, big.NewInt(0).SetUint64(d.Amount))
			subDeposits = d.Amount
		} else {
			shares, err := l.depositShares(d)
			if err != nil {
				return 0, err
			}
			work.ConsolidatedShares += shares
		}
	}

	if work.ConsolidatedShares > 0 {
		value, err := fixedpoint.MulDiv(work.ConsolidatedShares, lastAcc, unit)
		if err != nil {
			return 0, err
		}
		total.Add(total, big.NewInt(0).SetUint64(value))
		subPool += value
	}

	if w := work.PendingWithdrawal; w.Shares > 0 {
		acc := lastAcc
		if w.DrawingID != drawingID {
			prior, ok := l.accumulators[w.DrawingID]
			if !ok {
				return 0, fmt.Errorf("%w: drawing %d", ErrAccumulatorMissing, w.DrawingID)
			}
			acc = prior
		}
		value, err := fixedpoint.MulDiv(w.Shares, acc, unit)
		if err != nil {
			return 0, err
		}
		total.Add(total, big.NewInt(0).SetUint64(value))
		if w.DrawingID == drawingID {
			// Still inside the pool; a settled withdrawal already left it.
			subWithdrawShares = w.Shares
			subPool += value
		}
	}

	total.Add(total, big.NewInt(0).SetUint64(work.ClaimableWithdrawals))

	owed, err := fixedpoint.ToUint64(total)
	if err != nil {
		return 0, err
	}

	saturatingSub(&state.PendingDeposits, subDeposits)
	saturatingSub(&state.PoolTotal, subPool)
	saturatingSub(&state.PendingWithdrawals, subWithdrawShares)
	delete(l.positions, lp)
	return owed, nil
}

// Accumulator returns the settled price of a drawing.
func (l *Ledger) Accumulator(drawingID uint64) (*big.Int, error) {
	acc, ok := l.accumulators[drawingID]
	if !ok {
		return nil, fmt.Errorf("%w: drawing %d", ErrAccumulatorMissing, drawingID)
	}
	return big.NewInt(0).Set(acc), nil
}

// Position returns a copy of an LP's full state.
func (l *Ledger) Position(lp string) (liquidity.Position, error) {
	pos := l.positions[lp]
	if pos == nil {
		return liquidity.Position{}, fmt.Errorf("%w: lp %s", ErrNoPosition, lp)
	}
	return *pos, nil
}

// DrawingState returns a copy of a drawing's pool bookkeeping.
func (l *Ledger) DrawingState(drawingID uint64) (liquidity.DrawingState, error) {
	state, ok := l.drawings[drawingID]
	if !ok {
		return liquidity.DrawingState{}, fmt.Errorf("%w: drawing %d", ErrDrawingNotInitialized, drawingID)
	}
	return *state, nil
}

// Restore rebuilds ledger state from persisted records, for recovery.
// Drawing-state records are trusted for PoolTotal only; the pending
// counters are re-derived from the positions, which are the single
// written-through source of truth for in-flight deposits and
// withdrawals. The genesis accumulator is reseeded if the records
// lack it.
func (l *Ledger) Restore(positions []liquidity.Position, states []liquidity.DrawingState, accumulators []liquidity.Accumulator, settled []uint64) {
	for i := range positions {
		p := positions[i]
		l.positions[p.LP] = &p
	}
	for i := range states {
		s := states[i]
		s.PendingDeposits = 0
		s.PendingWithdrawals = 0
		l.drawings[s.DrawingID] = &s
	}
	for _, p := range l.positions {
		if d := p.LastDeposit; d.Amount > 0 {
			if state := l.drawings[d.DrawingID]; state != nil {
				state.PendingDeposits += d.Amount
			}
		}
		if w := p.PendingWithdrawal; w.Shares > 0 {
			if state := l.drawings[w.DrawingID]; state != nil {
				state.PendingWithdrawals += w.Shares
			}
		}
	}
	for _, a := range accumulators {
		if a.Price != nil {
			l.accumulators[a.DrawingID] = big.NewInt(0).Set(a.Price)
		}
	}
	if _, ok := l.accumulators[0]; !ok {
		l.accumulators[0] = fixedpoint.UnitBig()
	}
	for _, id := range settled {
		l.settled[id] = true
		if id > l.lastSettled {
			l.lastSettled = id
		}
	}
}

// depositShares converts a stale pending deposit to shares at its
// origin drawing's accumulator.
func (l *Ledger) depositShares(d liquidity.PendingDeposit) (uint64, error) {
	acc, ok := l.accumulators[d.DrawingID]
	if !ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrAccumulatorMissing, d.DrawingID)
	}
	if acc.Sign() == 0 {
		return 0, fmt.Errorf("%w: drawing %d", ErrAccumulatorZero, d.DrawingID)
	}
	return fixedpoint.MulDiv(d.Amount, fixedpoint.UnitBig(), acc)
}

// consolidateDeposit folds a pending deposit from a strictly earlier
// drawing into consolidated shares. A same-drawing deposit stays
// pending: its price is not known until that drawing settles.
func (l *Ledger) consolidateDeposit(pos *liquidity.Position, current uint64) error {
	d := pos.LastDeposit
	if d.Amount == 0 || d.DrawingID >= current {
		return nil
	}
	shares, err := l.depositShares(d)
	if err != nil {
		return err
	}
	pos.ConsolidatedShares += shares
	pos.LastDeposit = liquidity.PendingDeposit{}
	return nil
}

// consolidateWithdrawal folds a pending withdrawal from a strictly
// earlier drawing into claimable currency at its origin accumulator.
func (l *Ledger) consolidateWithdrawal(pos *liquidity.Position, current uint64) error {
	w := pos.PendingWithdrawal
	if w.Shares == 0 || w.DrawingID >= current {
		return nil
	}
	acc, ok := l.accumulators[w.DrawingID]
	if !ok {
		return fmt.Errorf("%w: drawing %d", ErrAccumulatorMissing, w.DrawingID)
	}
	value, err := fixedpoint.MulDiv(w.Shares, acc, fixedpoint.UnitBig())
	if err != nil {
		return err
	}
	pos.ClaimableWithdrawals += value
	pos.PendingWithdrawal = liquidity.PendingWithdrawal{}
	return nil
}

func saturatingSub(x *uint64, by uint64) {
	if *x >= by {
		*x -= by
	} else {
		*x = 0
	}
}
