// Package payout implements the guaranteed-minimum payout calculator.
// Each drawing freezes the global tier parameters into a snapshot at
// open time; settlement splits the prize pool across tiers by premium
// weight, adding a flat minimum per ticket when the premium-protection
// gate allows it.
//
// Per-ticket amounts divide by the theoretical combination count plus
// duplicates sold, while totals pay only tickets actually sold. The
// denominators being larger than the paid set is what keeps the pool
// solvent; do not "fix" the asymmetry.
package payout

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/combin"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/fixedpoint"
)

// maxMatches is the ordinary-match count of the top tier in the
// twelve-tier layout.
const maxMatches = ticket.NumTiers/2 - 1

var (
	// ErrWeightsNotUnity rejects premium weights that do not sum to 1.0.
	ErrWeightsNotUnity = errors.New("premium weights do not sum to unity")
	// ErrFractionTooLarge rejects a premium reserve above 100%.
	ErrFractionTooLarge = errors.New("premium allocation fraction exceeds unity")
	// ErrZeroTierConfigured rejects parameters that pay the dead tier.
	ErrZeroTierConfigured = errors.New("tier 0 cannot carry weight or minimum")
	// ErrSnapshotExists rejects a second snapshot of one drawing.
	ErrSnapshotExists = errors.New("tier snapshot already taken")
	// ErrNotSnapshotted rejects settling a drawing with no snapshot.
	ErrNotSnapshotted = errors.New("drawing not snapshotted")
	// ErrAlreadySettled rejects a second settlement of one drawing.
	ErrAlreadySettled = errors.New("payouts already settled")
	// ErrNotSettled is returned when payouts are read before settlement.
	ErrNotSettled = errors.New("payouts not settled")
	// ErrUnknownTier is returned for a tier id outside [0, 11].
	ErrUnknownTier = errors.New("unknown tier")
)

// Params are the live global tier parameters. They apply to drawings
// snapshotted after the change, never retroactively.
type Params struct {
	MinPayout                    uint64
	PremiumMinAllocationFraction uint64
	MinPayoutEligible            [ticket.NumTiers]bool
	PremiumWeight                [ticket.NumTiers]uint64
}

// Validate applies the admin-boundary checks: weights must sum to
// exactly 1.0, the reserve fraction cannot exceed 1.0, and the dead
// tier 0 can neither carry weight nor a minimum. Nothing is clamped.
func (p Params) Validate() error {
	sum := big.NewInt(0)
	for _, w := range p.PremiumWeight {
		sum.Add(sum, big.NewInt(0).SetUint64(w))
	}
	if sum.Cmp(fixedpoint.UnitBig()) != 0 {
		return fmt.Errorf("%w: sum %s", ErrWeightsNotUnity, sum)
	}
	if p.PremiumMinAllocationFraction > fixedpoint.Unit {
		return fmt.Errorf("%w: %d", ErrFractionTooLarge, p.PremiumMinAllocationFraction)
	}
	if p.PremiumWeight[0] != 0 || p.MinPayoutEligible[0] {
		return ErrZeroTierConfigured
	}
	return nil
}

// Calculator owns the per-drawing snapshots and settled payouts.
// Callers serialize access.
type Calculator struct {
	params    Params
	snapshots map[uint64]drawing.TierSnapshot
	payouts   map[uint64][ticket.NumTiers]uint64
	totals    map[uint64]uint64
}

// New builds a calculator with validated initial parameters.
func New(params Params) (*Calculator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		params:    params,
		snapshots: make(map[uint64]drawing.TierSnapshot),
		payouts:   make(map[uint64][ticket.NumTiers]uint64),
		totals:    make(map[uint64]uint64),
	}, nil
}

// UpdateParams replaces the live parameters after validation. Already
// snapshotted drawings are unaffected.
func (c *Calculator) UpdateParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	c.params = params
	return nil
}

// Params returns the live global parameters.
func (c *Calculator) Params() Params { return c.params }

// SetTierSnapshot freezes the live parameters for a drawing, exactly
// once, and returns the frozen copy.
func (c *Calculator) SetTierSnapshot(drawingID uint64) (drawing.TierSnapshot, error) {
	if _, ok := c.snapshots[drawingID]; ok {
		return drawing.TierSnapshot{}, fmt.Errorf("%w: drawing %d", ErrSnapshotExists, drawingID)
	}
	snap := drawing.TierSnapshot{
		MinPayout:                    c.params.MinPayout,
		PremiumMinAllocationFraction: c.params.PremiumMinAllocationFraction,
		MinPayoutEligible:            c.params.MinPayoutEligible,
		PremiumWeight:                c.params.PremiumWeight,
	}
	c.snapshots[drawingID] = snap
	return snap, nil
}

// Snapshot returns a drawing's frozen parameters.
func (c *Calculator) Snapshot(drawingID uint64) (drawing.TierSnapshot, error) {
	snap, ok := c.snapshots[drawingID]
	if !ok {
		return drawing.TierSnapshot{}, fmt.Errorf("%w: drawing %d", ErrNotSnapshotted, drawingID)
	}
	return snap, nil
}

// TheoreticalCombos counts every combination that lands in the tier,
// sold or not: ways to hit exactly `matches` of the five winning
// numbers times ways to miss the rest, times the non-matching bonus
// values when the tier's bonus does not match.
func TheoreticalCombos(matches, normalMax, bonusMax int, bonusMatched bool) uint64 {
	combos := combin.Choose(maxMatches, matches) * combin.Choose(normalMax-maxMatches, maxMatches-matches)
	if !bonusMatched {
		combos *= uint64(bonusMax - 1)
	}
	return combos
}

// Settle computes every tier's payout per ticket and the total owed to
// ticket holders, then records both. The premium gate disables the
// flat minimums entirely when reserve plus minimums would reach the
// pool; that is the designed degraded mode, not a failure.
func (c *Calculator) Settle(drawingID uint64, prizePool uint64, normalMax, bonusMax int, uniqueCounts, dupCounts [ticket.NumTiers]uint64) (uint64, error) {
	snap, ok := c.snapshots[drawingID]
	if !ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrNotSnapshotted, drawingID)
	}
	if _, ok := c.payouts[drawingID]; ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrAlreadySettled, drawingID)
	}

	// Winning-ticket denominators and the minimum allocation they pin.
	var winning [ticket.NumTiers]uint64
	minAllocation := big.NewInt(0)
	for tier := 0; tier < ticket.NumTiers; tier++ {
		matches := tier / 2
		bonusMatched := tier%2 == 1
		winning[tier] = TheoreticalCombos(matches, normalMax, bonusMax, bonusMatched) + dupCounts[tier]
		if snap.MinPayoutEligible[tier] {
			minAllocation.Add(minAllocation, fixedpoint.MulU64(winning[tier], snap.MinPayout))
		}
	}

	// Premium-protection gate: minimums apply only while the premium
	// reserve plus all minimums stays strictly inside the pool.
	reserve, err := fixedpoint.MulDiv(prizePool, big.NewInt(0).SetUint64(snap.PremiumMinAllocationFraction), fixedpoint.UnitBig())
	if err != nil {
		return 0, err
	}
	gated := big.NewInt(0).SetUint64(reserve)
	gated.Add(gated, minAllocation)
	minimumsOn := gated.Cmp(big.NewInt(0).SetUint64(prizePool)) < 0

	distributable := big.NewInt(0).SetUint64(prizePool)
	if minimumsOn {
		distributable.Sub(distributable, minAllocation)
	}
	premiumPool, err := fixedpoint.ToUint64(distributable)
	if err != nil {
		return 0, err
	}

	var perTicket [ticket.NumTiers]uint64
	total := big.NewInt(0)
	for tier := 0; tier < ticket.NumTiers; tier++ {
		if winning[tier] == 0 {
			continue
		}
		share, err := fixedpoint.MulDiv(premiumPool, big.NewInt(0).SetUint64(snap.PremiumWeight[tier]), fixedpoint.UnitBig())
		if err != nil {
			return 0, err
		}
		amount := share / winning[tier]
		if minimumsOn && snap.MinPayoutEligible[tier] {
			amount += snap.MinPayout
		}
		perTicket[tier] = amount
		sold := uniqueCounts[tier] + dupCounts[tier]
		total.Add(total, fixedpoint.MulU64(amount, sold))
	}

	totalPayout, err := fixedpoint.ToUint64(total)
	if err != nil {
		return 0, err
	}
	c.payouts[drawingID] = perTicket
	c.totals[drawingID] = totalPayout
	return totalPayout, nil
}

// Payout returns a settled drawing's per-ticket amount for one tier.
func (c *Calculator) Payout(drawingID uint64, tier int) (uint64, error) {
	if tier < 0 || tier >= ticket.NumTiers {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTier, tier)
	}
	payouts, ok := c.payouts[drawingID]
	if !ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrNotSettled, drawingID)
	}
	return payouts[tier], nil
}

// Payouts returns a settled drawing's full per-ticket table.
func (c *Calculator) Payouts(drawingID uint64) ([ticket.NumTiers]uint64, error) {
	payouts, ok := c.payouts[drawingID]
	if !ok {
		return [ticket.NumTiers]uint64{}, fmt.Errorf("%w: drawing %d", ErrNotSettled, drawingID)
	}
	return payouts, nil
}

// TotalUserPayout returns the settled total owed to ticket holders.
func (c *Calculator) TotalUserPayout(drawingID uint64) (uint64, error) {
	total, ok := c.totals[drawingID]
	if !ok {
		return 0, fmt.Errorf("%w: drawing %d", ErrNotSettled, drawingID)
	}
	return total, nil
}

// Restore reloads a drawing's frozen snapshot and, when it already
// settled, its payout table. For recovery from persisted records.
func (c *Calculator) Restore(drawingID uint64, snap drawing.TierSnapshot, payouts *[ticket.NumTiers]uint64, totalUserPayout uint64) {
	c.snapshots[drawingID] = snap
	if payouts != nil {
		c.payouts[drawingID] = *payouts
		c.totals[drawingID] = totalUserPayout
	}
}
