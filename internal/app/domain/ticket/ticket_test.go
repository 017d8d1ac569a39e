package ticket

import (
	"errors"
	"testing"
)

func TestNormalsVector(t *testing.T) {
	tests := []struct {
		name    string
		normals []int
		wantErr error
	}{
		{"valid", []int{1, 2, 3, 4, 5}, nil},
		{"valid scattered", []int{30, 7, 19, 2, 11}, nil},
		{"too few", []int{1, 2, 3, 4}, ErrPickCount},
		{"too many", []int{1, 2, 3, 4, 5, 6}, ErrPickCount},
		{"zero", []int{0, 2, 3, 4, 5}, ErrNumberOutOfRange},
		{"above max", []int{1, 2, 3, 4, 31}, ErrNumberOutOfRange},
		{"repeated", []int{1, 2, 3, 3, 5}, ErrDuplicateNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NormalsVector(tt.normals, 30, 5)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NormalsVector(%v) error = %v, want %v", tt.normals, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalsVector(%v) unexpected error: %v", tt.normals, err)
			}
			if v.Count() != 5 {
				t.Errorf("vector popcount = %d, want 5", v.Count())
			}
			got := v.Numbers(30)
			seen := make(map[int]bool)
			for _, n := range got {
				seen[n] = true
			}
			for _, n := range tt.normals {
				if !seen[n] {
					t.Errorf("decoded numbers %v missing %d", got, n)
				}
			}
		})
	}
}

func TestWithBonusKeepsBitsDisjoint(t *testing.T) {
	v, err := NormalsVector([]int{1, 2, 3, 4, 30}, 30, 5)
	if err != nil {
		t.Fatalf("NormalsVector: %v", err)
	}

	full := v.WithBonus(1, 30)
	if full.Count() != 6 {
		t.Fatalf("full vector popcount = %d, want 6", full.Count())
	}
	if full.Normals(30) != v {
		t.Errorf("Normals() = %#x, want %#x", full.Normals(30), v)
	}
}

func TestTierID(t *testing.T) {
	tests := []struct {
		matches int
		bonus   bool
		want    int
	}{
		{0, false, 0},
		{0, true, 1},
		{1, false, 2},
		{3, true, 7},
		{5, false, 10},
		{5, true, 11},
	}
	for _, tt := range tests {
		if got := TierID(tt.matches, tt.bonus); got != tt.want {
			t.Errorf("TierID(%d, %v) = %d, want %d", tt.matches, tt.bonus, got, tt.want)
		}
	}
}

func TestMatchTier(t *testing.T) {
	win, err := NormalsVector([]int{1, 2, 3, 4, 5}, 30, 5)
	if err != nil {
		t.Fatalf("NormalsVector: %v", err)
	}
	winning := win.WithBonus(6, 30)

	tests := []struct {
		name    string
		normals []int
		bonus   int
		want    int
	}{
		{"jackpot", []int{1, 2, 3, 4, 5}, 6, 11},
		{"five no bonus", []int{1, 2, 3, 4, 5}, 7, 10},
		{"three with bonus", []int{1, 2, 3, 14, 15}, 6, 7},
		{"bonus only", []int{21, 22, 23, 24, 25}, 6, 1},
		{"nothing", []int{21, 22, 23, 24, 25}, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NormalsVector(tt.normals, 30, 5)
			if err != nil {
				t.Fatalf("NormalsVector(%v): %v", tt.normals, err)
			}
			if got := MatchTier(v.WithBonus(tt.bonus, 30), winning, 30); got != tt.want {
				t.Errorf("MatchTier = %d, want %d", got, tt.want)
			}
		})
	}
}
