// Package entropy draws winning numbers for drawing settlement.
package entropy

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
)

// Source produces the random values a settlement consumes. Draw returns
// count distinct values in [1, max] in ascending order; DrawBonus returns a
// single value in [1, max].
type Source interface {
	Draw(ctx context.Context, count, max int) ([]int, error)
	DrawBonus(ctx context.Context, max int) (int, error)
}

func validateDraw(count, max int) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if max < count {
		return fmt.Errorf("max %d below count %d", max, count)
	}
	if max > 255 {
		return fmt.Errorf("max %d exceeds 255", max)
	}
	return nil
}

// drawDistinct pulls bytes from next and keeps the distinct in-range values.
// Bytes at or above the largest multiple of max are rejected so the modulo
// stays unbiased.
func drawDistinct(ctx context.Context, next func() (byte, error), count, max int) ([]int, error) {
	limit := 256 - 256%max
	seen := make(map[int]struct{}, count)
	out := make([]int, 0, count)
	for len(out) < count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := next()
		if err != nil {
			return nil, err
		}
		if int(b) >= limit {
			continue
		}
		n := int(b)%max + 1
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// CryptoSource draws from the operating system entropy pool.
type CryptoSource struct{}

var _ Source = (*CryptoSource)(nil)

// NewCryptoSource constructs the default source.
func NewCryptoSource() *CryptoSource {
	return &CryptoSource{}
}

func cryptoBytes() func() (byte, error) {
	var buf [32]byte
	off := len(buf)
	return func() (byte, error) {
		if off == len(buf) {
			if _, err := rand.Read(buf[:]); err != nil {
				return 0, fmt.Errorf("read randomness: %w", err)
			}
			off = 0
		}
		b := buf[off]
		off++
		return b, nil
	}
}

// Draw returns count distinct values in [1, max].
func (s *CryptoSource) Draw(ctx context.Context, count, max int) ([]int, error) {
	if err := validateDraw(count, max); err != nil {
		return nil, err
	}
	return drawDistinct(ctx, cryptoBytes(), count, max)
}

// DrawBonus returns a single value in [1, max].
func (s *CryptoSource) DrawBonus(ctx context.Context, max int) (int, error) {
	if err := validateDraw(1, max); err != nil {
		return 0, err
	}
	out, err := drawDistinct(ctx, cryptoBytes(), 1, max)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}
