// Package liquidity defines the LP-side bookkeeping records: per-LP
// positions, per-drawing pool state and the settled price accumulators
// that convert between pool currency and share units.
package liquidity

import (
	"math/big"
	"time"
)

// PendingDeposit is an LP deposit waiting for its drawing to settle.
// Amount is pool currency.
type PendingDeposit struct {
	Amount    uint64
	DrawingID uint64
}

// PendingWithdrawal is an initiated withdrawal waiting for its drawing
// to settle. Shares are share units.
type PendingWithdrawal struct {
	Shares    uint64
	DrawingID uint64
}

// Position is the full state of one liquidity provider. At most one
// unconsolidated deposit and one unconsolidated withdrawal exist at a
// time; crossing a drawing boundary folds the stale one into the
// consolidated running totals.
type Position struct {
	LP                   string
	ConsolidatedShares   uint64
	LastDeposit          PendingDeposit
	PendingWithdrawal    PendingWithdrawal
	ClaimableWithdrawals uint64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DrawingState is the pool bookkeeping of one drawing. PoolTotal and
// PendingDeposits are currency; PendingWithdrawals are share units.
type DrawingState struct {
	DrawingID          uint64
	PoolTotal          uint64
	PendingDeposits    uint64
	PendingWithdrawals uint64
}

// Accumulator is a settled share price for one drawing, in the
// 10^18 fraction scale. Written once at settlement, immutable after.
type Accumulator struct {
	DrawingID uint64
	Price     *big.Int
	CreatedAt time.Time
}
