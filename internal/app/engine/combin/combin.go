// Package combin provides the binomial and subset-enumeration primitives
// used by the ticket tracker and payout calculator. All sets are bit
// vectors in a uint64 word.
package combin

import "math/bits"

// Choose returns the binomial coefficient C(n, k). It computes the
// product iteratively, dividing at every step so intermediates stay
// bounded, and applies the k = min(k, n-k) symmetry reduction first.
// Out-of-range k yields 0.
func Choose(n, k int) uint64 {
	if k < 0 || n < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := 1; i <= k; i++ {
		// (n-k+i) for i=1..k walks the numerator; each step divides
		// exactly because result holds C(n-k+i, i) after it.
		result = result * uint64(n-k+i) / uint64(i)
	}
	return result
}

// Subsets enumerates every subset of exactly k set bits of set, mapped
// back onto the original bit positions. Enumeration walks Gosper's hack
// over a compact popcount-wide word. k == 0 yields the single empty
// subset; k above the popcount yields nothing.
func Subsets(set uint64, k int) []uint64 {
	if k < 0 {
		return nil
	}
	if k == 0 {
		return []uint64{0}
	}
	n := bits.OnesCount64(set)
	if k > n {
		return nil
	}

	// Record the original position of each set bit so compact-word
	// combinations can be expanded back.
	positions := make([]int, 0, n)
	for rest := set; rest != 0; rest &= rest - 1 {
		positions = append(positions, bits.TrailingZeros64(rest))
	}

	out := make([]uint64, 0, Choose(n, k))
	limit := uint64(1) << uint(n)
	for c := uint64(1)<<uint(k) - 1; c < limit; {
		var subset uint64
		for rest := c; rest != 0; rest &= rest - 1 {
			subset |= uint64(1) << uint(positions[bits.TrailingZeros64(rest)])
		}
		out = append(out, subset)

		// Gosper's hack: advance c to the next word with k bits set.
		u := c & (-c)
		v := c + u
		if v == 0 {
			break
		}
		c = v + (((v ^ c) / u) >> 2)
	}
	return out
}
