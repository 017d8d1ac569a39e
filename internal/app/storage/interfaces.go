package storage

import (
	"context"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
)

// DrawingStore persists drawing lifecycle records.
type DrawingStore interface {
	CreateDrawing(ctx context.Context, d drawing.Drawing) (drawing.Drawing, error)
	UpdateDrawing(ctx context.Context, d drawing.Drawing) (drawing.Drawing, error)
	GetDrawing(ctx context.Context, id uint64) (drawing.Drawing, error)
	ListDrawings(ctx context.Context) ([]drawing.Drawing, error)
}

// TicketStore persists sold tickets.
type TicketStore interface {
	CreateTicket(ctx context.Context, tk ticket.Ticket) (ticket.Ticket, error)
	UpdateTicket(ctx context.Context, tk ticket.Ticket) (ticket.Ticket, error)
	GetTicket(ctx context.Context, id string) (ticket.Ticket, error)
	ListTickets(ctx context.Context, drawingID uint64) ([]ticket.Ticket, error)
	ListAccountTickets(ctx context.Context, accountID string) ([]ticket.Ticket, error)
}

// LiquidityStore persists provider positions and per-drawing pool
// accounting. Accumulators are append-only; positions are written
// through on every ledger mutation, drawing states only at settlement
// boundaries.
type LiquidityStore interface {
	UpsertPosition(ctx context.Context, pos liquidity.Position) (liquidity.Position, error)
	GetPosition(ctx context.Context, lp string) (liquidity.Position, error)
	ListPositions(ctx context.Context) ([]liquidity.Position, error)
	DeletePosition(ctx context.Context, lp string) error

	UpsertDrawingState(ctx context.Context, state liquidity.DrawingState) (liquidity.DrawingState, error)
	GetDrawingState(ctx context.Context, drawingID uint64) (liquidity.DrawingState, error)
	ListDrawingStates(ctx context.Context) ([]liquidity.DrawingState, error)

	CreateAccumulator(ctx context.Context, acc liquidity.Accumulator) (liquidity.Accumulator, error)
	GetAccumulator(ctx context.Context, drawingID uint64) (liquidity.Accumulator, error)
	ListAccumulators(ctx context.Context) ([]liquidity.Accumulator, error)
}
