package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/drawing"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/liquidity"
	"github.com/drawpool-labs/jackpot-engine/internal/app/domain/ticket"
	"github.com/drawpool-labs/jackpot-engine/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	drawings      map[uint64]drawing.Drawing
	tickets       map[string]ticket.Ticket
	positions     map[string]liquidity.Position
	drawingStates map[uint64]liquidity.DrawingState
	accumulators  map[uint64]liquidity.Accumulator
}

var _ storage.DrawingStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)
var _ storage.LiquidityStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		drawings:      make(map[uint64]drawing.Drawing),
		tickets:       make(map[string]ticket.Ticket),
		positions:     make(map[string]liquidity.Position),
		drawingStates: make(map[uint64]liquidity.DrawingState),
		accumulators:  make(map[uint64]liquidity.Accumulator),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// DrawingStore implementation -------------------------------------------------

func (s *Store) CreateDrawing(_ context.Context, d drawing.Drawing) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drawings[d.ID]; exists {
		return drawing.Drawing{}, fmt.Errorf("drawing %d already exists", d.ID)
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.drawings[d.ID] = cloneDrawing(d)
	return cloneDrawing(d), nil
}

func (s *Store) UpdateDrawing(_ context.Context, d drawing.Drawing) (drawing.Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.drawings[d.ID]
	if !ok {
		return drawing.Drawing{}, fmt.Errorf("drawing %d not found", d.ID)
	}

	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	s.drawings[d.ID] = cloneDrawing(d)
	return cloneDrawing(d), nil
}

func (s *Store) GetDrawing(_ context.Context, id uint64) (drawing.Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drawings[id]
	if !ok {
		return drawing.Drawing{}, fmt.Errorf("drawing %d not found", id)
	}
	return cloneDrawing(d), nil
}

func (s *Store) ListDrawings(_ context.Context) ([]drawing.Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]drawing.Drawing, 0, len(s.drawings))
	for _, d := range s.drawings {
		result = append(result, cloneDrawing(d))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// TicketStore implementation --------------------------------------------------

func (s *Store) CreateTicket(_ context.Context, tk ticket.Ticket) (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tk.ID == "" {
		tk.ID = s.nextIDLocked()
	} else if _, exists := s.tickets[tk.ID]; exists {
		return ticket.Ticket{}, fmt.Errorf("ticket %s already exists", tk.ID)
	}

	tk.CreatedAt = time.Now().UTC()

	s.tickets[tk.ID] = cloneTicket(tk)
	return cloneTicket(tk), nil
}

func (s *Store) UpdateTicket(_ context.Context, tk ticket.Ticket) (ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tickets[tk.ID]
	if !ok {
		return ticket.Ticket{}, fmt.Errorf("ticket %s not found", tk.ID)
	}

	tk.CreatedAt = original.CreatedAt

	s.tickets[tk.ID] = cloneTicket(tk)
	return cloneTicket(tk), nil
}

func (s *Store) GetTicket(_ context.Context, id string) (ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tk, ok := s.tickets[id]
	if !ok {
		return ticket.Ticket{}, fmt.Errorf("ticket %s not found", id)
	}
	return cloneTicket(tk), nil
}

func (s *Store) ListTickets(_ context.Context, drawingID uint64) ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ticket.Ticket, 0)
	for _, tk := range s.tickets {
		if tk.DrawingID == drawingID {
			result = append(result, cloneTicket(tk))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListAccountTickets(_ context.Context, accountID string) ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ticket.Ticket, 0)
	for _, tk := range s.tickets {
		if accountID == "" || tk.AccountID == accountID {
			result = append(result, cloneTicket(tk))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// LiquidityStore implementation -----------------------------------------------

func (s *Store) UpsertPosition(_ context.Context, pos liquidity.Position) (liquidity.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos.LP == "" {
		return liquidity.Position{}, fmt.Errorf("position requires a provider id")
	}

	now := time.Now().UTC()
	if original, ok := s.positions[pos.LP]; ok {
		pos.CreatedAt = original.CreatedAt
	} else {
		pos.CreatedAt = now
	}
	pos.UpdatedAt = now

	s.positions[pos.LP] = pos
	return pos, nil
}

func (s *Store) GetPosition(_ context.Context, lp string) (liquidity.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[lp]
	if !ok {
		return liquidity.Position{}, fmt.Errorf("position %s not found", lp)
	}
	return pos, nil
}

func (s *Store) ListPositions(_ context.Context) ([]liquidity.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]liquidity.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LP < result[j].LP })
	return result, nil
}

func (s *Store) DeletePosition(_ context.Context, lp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[lp]; !ok {
		return fmt.Errorf("position %s not found", lp)
	}
	delete(s.positions, lp)
	return nil
}

func (s *Store) UpsertDrawingState(_ context.Context, state liquidity.DrawingState) (liquidity.DrawingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drawingStates[state.DrawingID] = state
	return state, nil
}

func (s *Store) GetDrawingState(_ context.Context, drawingID uint64) (liquidity.DrawingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.drawingStates[drawingID]
	if !ok {
		return liquidity.DrawingState{}, fmt.Errorf("drawing state %d not found", drawingID)
	}
	return state, nil
}

func (s *Store) ListDrawingStates(_ context.Context) ([]liquidity.DrawingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]liquidity.DrawingState, 0, len(s.drawingStates))
	for _, state := range s.drawingStates {
		result = append(result, state)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DrawingID < result[j].DrawingID })
	return result, nil
}

func (s *Store) CreateAccumulator(_ context.Context, acc liquidity.Accumulator) (liquidity.Accumulator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc.Price == nil {
		return liquidity.Accumulator{}, fmt.Errorf("accumulator %d requires a price", acc.DrawingID)
	}
	if _, exists := s.accumulators[acc.DrawingID]; exists {
		return liquidity.Accumulator{}, fmt.Errorf("accumulator %d already exists", acc.DrawingID)
	}

	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	s.accumulators[acc.DrawingID] = cloneAccumulator(acc)
	return cloneAccumulator(acc), nil
}

func (s *Store) GetAccumulator(_ context.Context, drawingID uint64) (liquidity.Accumulator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accumulators[drawingID]
	if !ok {
		return liquidity.Accumulator{}, fmt.Errorf("accumulator %d not found", drawingID)
	}
	return cloneAccumulator(acc), nil
}

func (s *Store) ListAccumulators(_ context.Context) ([]liquidity.Accumulator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]liquidity.Accumulator, 0, len(s.accumulators))
	for _, acc := range s.accumulators {
		result = append(result, cloneAccumulator(acc))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DrawingID < result[j].DrawingID })
	return result, nil
}

// Helpers --------------------------------------------------------------------

func cloneDrawing(d drawing.Drawing) drawing.Drawing {
	d.WinningNumbers = append([]int(nil), d.WinningNumbers...)
	if d.ClosedAt != nil {
		t := *d.ClosedAt
		d.ClosedAt = &t
	}
	if d.SettledAt != nil {
		t := *d.SettledAt
		d.SettledAt = &t
	}
	return d
}

func cloneTicket(tk ticket.Ticket) ticket.Ticket {
	tk.Numbers = append([]int(nil), tk.Numbers...)
	if tk.ClaimedAt != nil {
		t := *tk.ClaimedAt
		tk.ClaimedAt = &t
	}
	return tk
}

func cloneAccumulator(acc liquidity.Accumulator) liquidity.Accumulator {
	if acc.Price != nil {
		acc.Price = big.NewInt(0).Set(acc.Price)
	}
	return acc
}
