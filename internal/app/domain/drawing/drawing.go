// Package drawing defines the drawing lifecycle records: number-range
// configuration, the frozen per-drawing tier parameters and the
// settlement results.
package drawing

import (
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
)

// Status tracks a drawing through its lifecycle.
type Status string

const (
	// StatusOpen accepts ticket sales.
	StatusOpen Status = "open"
	// StatusClosed has ended sales and awaits settlement.
	StatusClosed Status = "closed"
	// StatusSettled has published winning numbers and payouts.
	StatusSettled Status = "settled"
)

// Config fixes the number ranges and ticket price of one drawing.
type Config struct {
	NormalMax   int
	BonusMax    int
	PickSize    int
	TicketPrice uint64
}

// TierSnapshot freezes the payout parameters of one drawing at open
// time. Later parameter changes never reach a snapshotted drawing.
// Fractions are in the 10^18 scale; MinPayout is currency.
type TierSnapshot struct {
	MinPayout                    uint64
	PremiumMinAllocationFraction uint64
	MinPayoutEligible            [ticket.NumTiers]bool
	PremiumWeight                [ticket.NumTiers]uint64
}

// Drawing is the full record of one drawing. Winning numbers are kept
// in decoded form; bit vectors are recomputed from them and the config
// where matching is needed.
type Drawing struct {
	ID              uint64
	Status          Status
	Config          Config
	Tiers           TierSnapshot
	WinningNumbers  []int
	WinningBonus    int
	TicketRevenue   uint64
	PrizePool       uint64
	TotalUserPayout uint64
	ProtocolFee     uint64
	Payouts         [ticket.NumTiers]uint64
	TicketsSold     uint64
	DuplicatesSold  uint64
	OpenedAt        time.Time
	ClosedAt        *time.Time
	SettledAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventType names a lifecycle transition published to event streams.
type EventType string

const (
	// EventOpened announces a drawing accepting sales.
	EventOpened EventType = "drawing.opened"
	// EventClosed announces the end of a drawing's sale window.
	EventClosed EventType = "drawing.closed"
	// EventSettled announces winning numbers and payouts.
	EventSettled EventType = "drawing.settled"
	// EventHalted announces an engine-wide halt.
	EventHalted EventType = "engine.halted"
)

// Event is one lifecycle transition. Drawing is populated for settled
// events so consumers receive the winning numbers and payout table
// without a second read.
type Event struct {
	Type      EventType
	DrawingID uint64
	At        time.Time
	Drawing   *Drawing
}

// Stats aggregates engine-wide totals for the operator surface.
type Stats struct {
	CurrentDrawing  uint64
	DrawingsSettled uint64
	TicketsSold     uint64
	DuplicatesSold  uint64
	RevenueTotal    uint64
	PayoutTotal     uint64
	PoolValue       uint64
	Halted          bool
}
