// Package ticket defines the bit-vector ticket encoding shared by the
// combination tracker, the drawings service and the claim path.
//
// A ticket is pickSize ordinary numbers from [1, normalMax] plus one
// bonus number from [1, bonusMax]. Ordinary numbers occupy bit
// positions 1..normalMax; the bonus occupies position normalMax+bonus,
// always above every ordinary position. A well-formed full vector has
// exactly pickSize+1 bits set.
package ticket

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

var (
	// ErrPickCount is returned when the number of ordinary picks does
	// not match the drawing's pick size.
	ErrPickCount = errors.New("wrong number of picks")
	// ErrNumberOutOfRange is returned for a pick outside [1, max].
	ErrNumberOutOfRange = errors.New("number out of range")
	// ErrDuplicateNumber is returned when one ticket repeats a number.
	ErrDuplicateNumber = errors.New("duplicate number in ticket")
)

// BitVector encodes a set of picked numbers as set bits. The zero
// value is the empty set. Vectors are only constructible through the
// validating constructors, so a held BitVector is always well formed.
type BitVector uint64

// NormalsVector validates and encodes the ordinary numbers of a ticket.
// It rejects a wrong pick count, any number outside [1, normalMax] and
// any repeated number.
func NormalsVector(normals []int, normalMax, pickSize int) (BitVector, error) {
	if len(normals) != pickSize {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrPickCount, len(normals), pickSize)
	}
	var v BitVector
	for _, n := range normals {
		if n < 1 || n > normalMax {
			return 0, fmt.Errorf("%w: %d not in [1, %d]", ErrNumberOutOfRange, n, normalMax)
		}
		bit := BitVector(1) << uint(n)
		if v&bit != 0 {
			return 0, fmt.Errorf("%w: %d", ErrDuplicateNumber, n)
		}
		v |= bit
	}
	return v, nil
}

// WithBonus returns the full ticket vector with the bonus bit set at
// position normalMax+bonus. Callers guarantee bonus is in range for
// the drawing.
func (v BitVector) WithBonus(bonus, normalMax int) BitVector {
	return v | BitVector(1)<<uint(normalMax+bonus)
}

// Normals extracts the vector's ordinary-number bits, masking off any
// bonus bit above normalMax.
func (v BitVector) Normals(normalMax int) BitVector {
	mask := BitVector(1)<<uint(normalMax+1) - 1
	return v & mask
}

// Numbers decodes the ordinary numbers in ascending order.
func (v BitVector) Numbers(normalMax int) []int {
	out := make([]int, 0, bits.OnesCount64(uint64(v)))
	for n := 1; n <= normalMax; n++ {
		if v&(BitVector(1)<<uint(n)) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of set bits.
func (v BitVector) Count() int {
	return bits.OnesCount64(uint64(v))
}

// NumTiers is the number of prize tiers: match counts 0..5 crossed
// with the bonus flag. Tier 0 (no matches, no bonus) exists in the
// layout but never pays.
const NumTiers = 12

// TierID combines an ordinary-match count with the bonus flag.
func TierID(matches int, bonusMatched bool) int {
	id := 2 * matches
	if bonusMatched {
		id++
	}
	return id
}

// MatchTier returns the prize tier of a full ticket vector against a
// full winning vector encoded over the same normalMax.
func MatchTier(ticketVec, winningVec BitVector, normalMax int) int {
	matches := (ticketVec.Normals(normalMax) & winningVec.Normals(normalMax)).Count()
	bonusMask := ^(BitVector(1)<<uint(normalMax+1) - 1)
	bonusMatched := ticketVec&winningVec&bonusMask != 0
	return TierID(matches, bonusMatched)
}

// Ticket records one purchased combination. The bit vector is not part
// of the record; it is recomputed from Numbers and Bonus whenever the
// drawing configuration is at hand.
type Ticket struct {
	ID            string
	DrawingID     uint64
	AccountID     string
	Numbers       []int
	Bonus         int
	Duplicate     bool
	Price         uint64
	Claimed       bool
	ClaimedAmount uint64
	CreatedAt     time.Time
	ClaimedAt     *time.Time
}
