// Package tracker maintains the per-drawing combination counters that
// let settlement compute tier winner counts without iterating sold
// tickets.
//
// Every inserted ticket contributes one count to each of its
// sub-combinations, keyed by (bonus, subset). At settlement the same
// enumeration runs over the winning numbers instead, producing
// "at least k matches" totals that an inclusion-exclusion pass turns
// into exact per-tier counts. Work at settlement is bounded by the
// drawing configuration, not by tickets sold.
package tracker

import (
	"errors"
	"fmt"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/engine/combin"
)

var (
	// ErrConfig is returned for an unusable drawing configuration.
	ErrConfig = errors.New("invalid tracker configuration")
)

// Config fixes the number ranges of one drawing. Immutable once the
// tracker is created.
type Config struct {
	NormalMax int
	BonusMax  int
	PickSize  int
}

// Validate rejects configurations the bit-vector encoding or the
// twelve-tier layout cannot express.
func (c Config) Validate() error {
	if c.PickSize < 1 {
		return fmt.Errorf("%w: pick size %d", ErrConfig, c.PickSize)
	}
	if 2*(c.PickSize+1) != ticket.NumTiers {
		return fmt.Errorf("%w: pick size %d does not fit the %d-tier layout", ErrConfig, c.PickSize, ticket.NumTiers)
	}
	if c.NormalMax < c.PickSize {
		return fmt.Errorf("%w: normal max %d below pick size %d", ErrConfig, c.NormalMax, c.PickSize)
	}
	if c.BonusMax < 1 {
		return fmt.Errorf("%w: bonus max %d", ErrConfig, c.BonusMax)
	}
	if c.NormalMax+c.BonusMax > 63 {
		return fmt.Errorf("%w: normal max %d + bonus max %d exceeds the 63-bit vector", ErrConfig, c.NormalMax, c.BonusMax)
	}
	return nil
}

// ComboCount tallies first purchases and duplicate purchases of one
// combination. Duplicates are real claims on the pool but not
// independent combinatorial outcomes, so the streams stay separate.
type ComboCount struct {
	Count    uint64
	DupCount uint64
}

type comboKey struct {
	bonus  int
	subset ticket.BitVector
}

// Tracker owns the combination counters of a single drawing.
type Tracker struct {
	cfg      Config
	combos   map[comboKey]ComboCount
	bonusAgg map[int]ComboCount
	tickets  uint64
	dups     uint64
}

// New creates an empty tracker for the drawing configuration.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:      cfg,
		combos:   make(map[comboKey]ComboCount),
		bonusAgg: make(map[int]ComboCount),
	}, nil
}

// Config returns the drawing configuration the tracker was built with.
func (t *Tracker) Config() Config { return t.cfg }

// TicketCount returns total first-purchase and duplicate insertions.
func (t *Tracker) TicketCount() (unique, duplicates uint64) {
	return t.tickets, t.dups
}

// Insert records one sold ticket. It returns the full ticket vector
// (bonus bit included) and whether the exact combination had been sold
// before. The duplicate decision is taken before any counter moves.
// Ordinary numbers are validated here; the bonus value is a caller
// precondition and must already be within [1, BonusMax].
func (t *Tracker) Insert(normals []int, bonus int) (ticket.BitVector, bool, error) {
	normalVec, err := ticket.NormalsVector(normals, t.cfg.NormalMax, t.cfg.PickSize)
	if err != nil {
		return 0, false, err
	}

	full := comboKey{bonus: bonus, subset: normalVec}
	isDup := t.combos[full].Count > 0

	for size := 1; size <= t.cfg.PickSize; size++ {
		for _, subset := range combin.Subsets(uint64(normalVec), size) {
			key := comboKey{bonus: bonus, subset: ticket.BitVector(subset)}
			c := t.combos[key]
			if isDup {
				c.DupCount++
			} else {
				c.Count++
			}
			t.combos[key] = c
		}
	}

	agg := t.bonusAgg[bonus]
	if isDup {
		agg.DupCount++
		t.dups++
	} else {
		agg.Count++
		t.tickets++
	}
	t.bonusAgg[bonus] = agg

	return normalVec.WithBonus(bonus, t.cfg.NormalMax), isDup, nil
}

// IsDuplicate reports whether the exact combination has a recorded
// first purchase. Read-only.
func (t *Tracker) IsDuplicate(normals []int, bonus int) (bool, error) {
	normalVec, err := ticket.NormalsVector(normals, t.cfg.NormalMax, t.cfg.PickSize)
	if err != nil {
		return false, err
	}
	return t.combos[comboKey{bonus: bonus, subset: normalVec}].Count > 0, nil
}

// CountTierMatches resolves the winner count of every tier for the
// given winning numbers. It returns the full winning vector and the
// unique and duplicate counts indexed by tier id. Read-only; the
// winning bonus is a caller precondition like Insert's.
func (t *Tracker) CountTierMatches(winningNormals []int, winningBonus int) (ticket.BitVector, [ticket.NumTiers]uint64, [ticket.NumTiers]uint64, error) {
	var unique, dups [ticket.NumTiers]uint64

	winVec, err := ticket.NormalsVector(winningNormals, t.cfg.NormalMax, t.cfg.PickSize)
	if err != nil {
		return 0, unique, dups, err
	}

	// Phase 1: sum stored counters over every subset of the winning
	// numbers. atLeast[k][flag] then holds the number of tickets with
	// at least k winning ordinary numbers, an over-count since an
	// m-match ticket lands in every k <= m.
	pick := t.cfg.PickSize
	atLeast := make([][2]uint64, pick+1)
	atLeastDup := make([][2]uint64, pick+1)
	for bonus := 1; bonus <= t.cfg.BonusMax; bonus++ {
		flag := 0
		if bonus == winningBonus {
			flag = 1
		}
		for k := 1; k <= pick; k++ {
			for _, subset := range combin.Subsets(uint64(winVec), k) {
				c := t.combos[comboKey{bonus: bonus, subset: ticket.BitVector(subset)}]
				atLeast[k][flag] += c.Count
				atLeastDup[k][flag] += c.DupCount
			}
		}
	}

	// Phase 2: deflate top-down. An exact m-match ticket was counted
	// C(m, k) times at level k, so subtracting that contribution for
	// every resolved m > k leaves exact counts.
	for k := pick; k >= 1; k-- {
		for m := k + 1; m <= pick; m++ {
			weight := combin.Choose(m, k)
			for flag := 0; flag < 2; flag++ {
				atLeast[k][flag] -= weight * atLeast[m][flag]
				atLeastDup[k][flag] -= weight * atLeastDup[m][flag]
			}
		}
	}

	for k := 1; k <= pick; k++ {
		for flag := 0; flag < 2; flag++ {
			id := ticket.TierID(k, flag == 1)
			unique[id] = atLeast[k][flag]
			dups[id] = atLeastDup[k][flag]
		}
	}

	// Phase 3: the bonus-only tier is everything that matched the
	// bonus minus what already landed in an ordinary-match tier.
	agg := t.bonusAgg[winningBonus]
	bonusOnly, bonusOnlyDup := agg.Count, agg.DupCount
	for k := 1; k <= pick; k++ {
		bonusOnly -= atLeast[k][1]
		bonusOnlyDup -= atLeastDup[k][1]
	}
	unique[ticket.TierID(0, true)] = bonusOnly
	dups[ticket.TierID(0, true)] = bonusOnlyDup

	return winVec.WithBonus(winningBonus, t.cfg.NormalMax), unique, dups, nil
}
